package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestReportBuilderSeal(t *testing.T) {
	b := NewReportBuilder(uuid.New())
	b.Add(OperationResult{UnitLabel: "a", Category: "scenes", Operation: OpDelete, Success: false})
	b.Add(OperationResult{UnitLabel: "b", Category: "scenes", Operation: OpSend, Success: true, ItemCount: 3})

	report := b.Seal()
	assert.Same(t, report, b.Seal())

	b.Add(OperationResult{UnitLabel: "c", Operation: OpSend, Success: true})
	require.Len(t, report.Results(), 2)
	assert.Equal(t, ReportSummary{Succeeded: 1, Failed: 1}, report.Summary())

	results := report.Results()
	results[0].Success = true
	assert.False(t, report.Results()[0].Success, "Results must return a copy")
	assert.False(t, report.CompletedAt.Before(report.StartedAt))
}

func TestReportViewJSON(t *testing.T) {
	report := NewSyncReport(uuid.New(), testTime, testTime, []OperationResult{
		{UnitLabel: "a", Category: "knx", Operation: OpSend, Success: true, ItemCount: 2},
	})

	data, err := json.Marshal(report.View())
	require.NoError(t, err)

	var view ReportView
	require.NoError(t, json.Unmarshal(data, &view))
	assert.Equal(t, report.RunID, view.RunID)
	assert.Equal(t, 1, view.Summary.Succeeded)
	assert.Equal(t, 2, view.Results[0].ItemCount)
}

func TestParseConfigCategory(t *testing.T) {
	for _, c := range AllCategories() {
		parsed, err := ParseConfigCategory(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, parsed)
	}

	c, err := ParseConfigCategory("MULTISCENES")
	require.NoError(t, err)
	assert.Equal(t, CategoryMultiScenes, c)

	_, err = ParseConfigCategory("lamps")
	assert.Error(t, err)

	_, err = CategoryCount.MarshalText()
	assert.Error(t, err)
	assert.Len(t, AllCategories(), int(CategoryCount))
}

func TestCategoryJSON(t *testing.T) {
	var got struct {
		Categories []ConfigCategory `json:"categories"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"categories":["scenes","curtain"]}`), &got))
	assert.Equal(t, []ConfigCategory{CategoryScenes, CategoryCurtain}, got.Categories)

	assert.Error(t, json.Unmarshal([]byte(`{"categories":["nope"]}`), &got))
}

func TestUnitSegment(t *testing.T) {
	u := NetworkUnit{IPAddress: "10.0.0.5", CanID: "1.2.3.4"}
	assert.Equal(t, "1.2.3", u.Segment())
	assert.Equal(t, "10.0.0.5/1.2.3.4", u.Key())
}

func TestProfileValidate(t *testing.T) {
	tests := []struct {
		name    string
		profile StoredUnitProfile
		wantErr bool
	}{
		{"empty", StoredUnitProfile{}, false},
		{"zero based inputs", StoredUnitProfile{InputConfigs: []IOConfig{{Index: 1}, {Index: 0}}}, false},
		{"gap in outputs", StoredUnitProfile{OutputConfigs: []IOConfig{{Index: 0}, {Index: 2}}}, true},
		{"duplicate inputs", StoredUnitProfile{InputConfigs: []IOConfig{{Index: 0}, {Index: 0}}}, true},
		{"rs485 index", StoredUnitProfile{RS485Config: []RS485Channel{{Index: 2}}}, true},
		{"rs485 twice", StoredUnitProfile{RS485Config: []RS485Channel{{Index: 1}, {Index: 1}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.profile.Validate()
			if tt.wantErr {
				assert.True(t, IsValidation(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
