package plan

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KevinKickass/OpenUnitSync/internal/types"
)

func fullProfile() *types.StoredUnitProfile {
	mode := types.ModeMaster
	return &types.StoredUnitProfile{
		Name:         "Lobby",
		IPAddress:    "192.168.1.60",
		CanID:        "1.1.1.60",
		HardwareMode: &mode,
		InputConfigs: []types.IOConfig{
			{Index: 1, Kind: types.IOKindInput, Name: "Door"},
			{Index: 0, Kind: types.IOKindInput, Name: "Motion"},
		},
		OutputConfigs: []types.IOConfig{
			{Index: 2, Kind: types.IOKindAircon},
			{Index: 0, Kind: types.IOKindCurtain},
			{Index: 1, Kind: types.IOKindLighting},
		},
		RS485Config: []types.RS485Channel{
			{Index: 1, Baud: 19200},
			{Index: 0, Baud: 9600},
		},
		Scenes: []types.CategoryRecord{{Index: 0, Name: "Evening"}},
	}
}

var target = types.NetworkUnit{IPAddress: "192.168.1.10", CanID: "1.1.1.10"}

func TestBuildOrdering(t *testing.T) {
	p, err := Build(fullProfile(), target)
	require.NoError(t, err)

	assert.Equal(t, []StepKind{StepHardwareMode, StepIOConfig, StepRS485, StepIPChange, StepCanIDChange}, p.Kinds())
	assert.Equal(t, MaxProfileWeight, p.Weight())
	assert.Equal(t, 65, MaxProfileWeight)
}

func TestBuildOmitsAbsentSections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*types.StoredUnitProfile)
		want   []StepKind
	}{
		{
			name:   "no hardware mode",
			mutate: func(p *types.StoredUnitProfile) { p.HardwareMode = nil },
			want:   []StepKind{StepIOConfig, StepRS485, StepIPChange, StepCanIDChange},
		},
		{
			name: "no io",
			mutate: func(p *types.StoredUnitProfile) {
				p.InputConfigs = nil
				p.OutputConfigs = nil
			},
			want: []StepKind{StepHardwareMode, StepRS485, StepIPChange, StepCanIDChange},
		},
		{
			name:   "no rs485",
			mutate: func(p *types.StoredUnitProfile) { p.RS485Config = nil },
			want:   []StepKind{StepHardwareMode, StepIOConfig, StepIPChange, StepCanIDChange},
		},
		{
			name:   "same ip",
			mutate: func(p *types.StoredUnitProfile) { p.IPAddress = target.IPAddress },
			want:   []StepKind{StepHardwareMode, StepIOConfig, StepRS485, StepCanIDChange},
		},
		{
			name: "identity unchanged",
			mutate: func(p *types.StoredUnitProfile) {
				p.IPAddress = target.IPAddress
				p.CanID = ""
			},
			want: []StepKind{StepHardwareMode, StepIOConfig, StepRS485},
		},
		{
			name: "only can id",
			mutate: func(p *types.StoredUnitProfile) {
				*p = types.StoredUnitProfile{CanID: "2.2.2.2"}
			},
			want: []StepKind{StepCanIDChange},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile := fullProfile()
			tt.mutate(profile)

			p, err := Build(profile, target)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Kinds())
			assert.LessOrEqual(t, p.Weight(), MaxProfileWeight)
		})
	}
}

func TestBuildPayloads(t *testing.T) {
	p, err := Build(fullProfile(), target)
	require.NoError(t, err)

	io := p.Steps[1].Payload.(IOPayload)
	require.Len(t, io.Inputs, 2)
	assert.Equal(t, "Motion", io.Inputs[0].Name)
	require.Len(t, io.Outputs, 2)
	assert.Equal(t, types.IOKindCurtain, io.Outputs[0].Kind)
	assert.Equal(t, types.IOKindLighting, io.Outputs[1].Kind)
	require.Len(t, io.Aircon, 1)
	assert.Equal(t, 2, io.Aircon[0].Index)

	channels := p.Steps[2].Payload.([]types.RS485Channel)
	assert.Equal(t, 0, channels[0].Index)
	assert.Equal(t, 1, channels[1].Index)

	assert.Equal(t, "192.168.1.60", p.Steps[3].Payload)
	assert.Equal(t, "1.1.1.60", p.Steps[4].Payload)
	assert.Equal(t, ProfileCategory, p.Steps[0].CategoryName())
}

func TestBuildValidates(t *testing.T) {
	profile := fullProfile()
	profile.RS485Config = append(profile.RS485Config, types.RS485Channel{Index: 0})

	_, err := Build(profile, target)
	var ve *types.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "PROFILE_RS485_COUNT", ve.Code)
}

func TestCategorySteps(t *testing.T) {
	categories := []types.ConfigCategory{types.CategoryScenes, types.CategoryKNX}
	steps := CategorySteps(fullProfile(), categories, 5)

	require.Len(t, steps, 4)
	assert.Equal(t, StepDeleteCategory, steps[0].Kind)
	assert.Equal(t, StepDeleteCategory, steps[1].Kind)
	assert.Equal(t, StepSendCategory, steps[2].Kind)
	assert.Equal(t, "scenes", steps[2].CategoryName())
	assert.Len(t, steps[2].Payload.([]types.CategoryRecord), 1)
	assert.Empty(t, steps[3].Payload.([]types.CategoryRecord))
	assert.Equal(t, "knx", steps[3].CategoryName())
}
