package units

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/KevinKickass/OpenUnitSync/internal/types"
)

func unit(ip, can string, mode types.UnitMode) types.NetworkUnit {
	return types.NetworkUnit{IPAddress: ip, CanID: can, Mode: mode, UnitType: 0x0101}
}

func TestCheckConflicts(t *testing.T) {
	units := []types.NetworkUnit{
		unit("10.0.0.1", "1.1.1.1", types.ModeMaster),
		unit("10.0.0.1", "1.1.1.2", types.ModeSlave),
		unit("10.0.0.3", "1.1.1.2", types.ModeMaster),
		unit("10.0.0.4", "1.1.2.1", types.ModeMaster),
	}

	conflicts := CheckConflicts(units)
	require.Len(t, conflicts, 3)
	assert.Equal(t, CodeDuplicateIP, conflicts[0].Code)
	assert.Len(t, conflicts[0].Units, 2)
	assert.Equal(t, CodeDuplicateCanID, conflicts[1].Code)
	assert.Equal(t, CodeMultipleMaster, conflicts[2].Code)
	assert.Contains(t, conflicts[2].Message, "1.1.1")

	assert.Empty(t, CheckConflicts(units[3:]))
}

func TestCheckIdentityWrite(t *testing.T) {
	master := types.ModeMaster
	target := unit("10.0.0.5", "1.1.1.5", types.ModeSlave)
	known := []types.NetworkUnit{
		target,
		unit("10.0.0.6", "1.1.1.6", types.ModeMaster),
		unit("10.0.0.7", "1.1.2.7", types.ModeSlave),
	}

	tests := []struct {
		name    string
		profile types.StoredUnitProfile
		code    string
	}{
		{"unchanged identity", types.StoredUnitProfile{IPAddress: "10.0.0.5", CanID: "1.1.1.5", UnitType: 0x0101}, ""},
		{"type mismatch", types.StoredUnitProfile{IPAddress: "10.0.0.5", CanID: "1.1.1.5", UnitType: 0x0201}, CodeTypeMismatch},
		{"duplicate ip", types.StoredUnitProfile{IPAddress: "10.0.0.7", CanID: "1.1.1.5"}, CodeDuplicateIP},
		{"duplicate can id", types.StoredUnitProfile{IPAddress: "10.0.0.5", CanID: "1.1.2.7"}, CodeDuplicateCanID},
		{"second master", types.StoredUnitProfile{IPAddress: "10.0.0.5", CanID: "1.1.1.5", HardwareMode: &master}, CodeMultipleMaster},
		{"master on other segment", types.StoredUnitProfile{IPAddress: "10.0.0.5", CanID: "1.1.3.5", HardwareMode: &master}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckIdentityWrite(target, &tt.profile, known)
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			var ve *types.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.code, ve.Code)
		})
	}
}

func TestRegistryReplace(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	r.Replace([]types.NetworkUnit{
		unit("10.0.0.1", "1.1.1.1", types.ModeMaster),
		unit("10.0.0.2", "1.1.1.2", types.ModeSlave),
	})

	got, ok := r.Get("10.0.0.2/1.1.1.2")
	require.True(t, ok)
	assert.Equal(t, types.ModeSlave, got.Mode)
	assert.False(t, r.ScannedAt().IsZero())

	found, missing := r.Lookup([]string{"10.0.0.1/1.1.1.1", "10.0.0.9/9.9.9.9"})
	assert.Len(t, found, 1)
	assert.Equal(t, []string{"10.0.0.9/9.9.9.9"}, missing)

	r.Replace([]types.NetworkUnit{unit("10.0.0.3", "1.1.1.3", types.ModeSlave)})
	_, ok = r.Get("10.0.0.1/1.1.1.1")
	assert.False(t, ok)
	assert.Len(t, r.List(), 1)
	assert.Empty(t, r.Conflicts())
}

func TestRegistryRekey(t *testing.T) {
	r := NewRegistry(zap.NewNop())
	r.Replace([]types.NetworkUnit{
		unit("10.0.0.1", "1.1.1.1", types.ModeMaster),
		unit("10.0.0.2", "1.1.1.2", types.ModeSlave),
	})

	moved := unit("10.0.0.20", "1.1.1.20", types.ModeSlave)
	require.True(t, r.Rekey("10.0.0.2/1.1.1.2", moved))

	_, ok := r.Get("10.0.0.2/1.1.1.2")
	assert.False(t, ok)
	got, ok := r.Get("10.0.0.20/1.1.1.20")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.20", got.IPAddress)
	assert.Len(t, r.List(), 2)

	found, missing := r.Lookup([]string{"10.0.0.1/1.1.1.1", "10.0.0.20/1.1.1.20"})
	assert.Len(t, found, 2)
	assert.Empty(t, missing)

	assert.False(t, r.Rekey("10.0.0.9/9.9.9.9", moved))
}
