package units

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KevinKickass/OpenUnitSync/internal/types"
)

const yamlProfile = `
id: 6f1c2a8e-9d7b-4c1a-8f0e-2b3c4d5e6f70
name: Lobby
ip_address: 192.168.1.50
can_id: 1.1.1.50
unit_type: 0x0102
hardware_mode: Master
input_configs:
  - {index: 1, kind: input, name: Door}
  - {index: 0, kind: input, name: Motion}
output_configs:
  - {index: 0, kind: lighting}
  - {index: 1, kind: aircon}
rs485_config:
  - index: 0
    baud: 9600
    parity: none
    slaves:
      - {address: 1, type: meter}
scenes:
  - index: 0
    name: Evening
    devices:
      - {logical_id: lamp-1, kind: lighting, address: "12"}
`

const jsonProfile = `{
  "id": "0b5a8c9e-1111-4222-8333-944455556666",
  "name": "Hall",
  "ip_address": "192.168.1.51",
  "can_id": "1.1.1.51",
  "schedules": [{"index": 0, "name": "Morning"}]
}`

func writeProfile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoaderYAML(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "lobby.yaml", yamlProfile)

	loader, err := NewProfileLoader([]string{dir})
	require.NoError(t, err)

	profile, err := loader.Load("lobby")
	require.NoError(t, err)
	assert.Equal(t, "Lobby", profile.Name)
	assert.Equal(t, types.UnitType(0x0102), profile.UnitType)
	require.NotNil(t, profile.HardwareMode)
	assert.Equal(t, types.ModeMaster, *profile.HardwareMode)
	assert.Len(t, profile.InputConfigs, 2)
	require.Len(t, profile.RS485Config, 1)
	assert.Equal(t, 9600, profile.RS485Config[0].Baud)
	require.Len(t, profile.Scenes, 1)
	assert.Equal(t, types.DeviceKindLighting, profile.Scenes[0].Devices[0].Kind)

	again, err := loader.Load("lobby")
	require.NoError(t, err)
	assert.Same(t, profile, again)
}

func TestLoaderGetUnitProfile(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "lobby.yml", yamlProfile)
	writeProfile(t, dir, "hall.json", jsonProfile)
	writeProfile(t, dir, "notes.txt", "ignored")

	loader, err := NewProfileLoader([]string{dir})
	require.NoError(t, err)

	id := uuid.MustParse("0b5a8c9e-1111-4222-8333-944455556666")
	profile, err := loader.GetUnitProfile(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Hall", profile.Name)

	_, err = loader.GetUnitProfile(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, ErrProfileNotFound))
}

func TestLoaderRejectsInvalidProfiles(t *testing.T) {
	tests := []struct {
		name    string
		content string
		code    string
	}{
		{"bad ip", `{"name": "x", "ip_address": "300.1.1.1", "can_id": "1.1.1.1"}`, "PROFILE_SCHEMA"},
		{"three rs485 channels", `{"name": "x", "ip_address": "10.0.0.1", "can_id": "1.1.1.1",
			"rs485_config": [{"index": 0, "baud": 9600}, {"index": 1, "baud": 9600}, {"index": 0, "baud": 9600}]}`, "PROFILE_SCHEMA"},
		{"gap in output indexes", `{"name": "x", "ip_address": "10.0.0.1", "can_id": "1.1.1.1",
			"output_configs": [{"index": 0, "kind": "lighting"}, {"index": 2, "kind": "lighting"}]}`, "PROFILE_IO_INDEX"},
		{"duplicate rs485 index", `{"name": "x", "ip_address": "10.0.0.1", "can_id": "1.1.1.1",
			"rs485_config": [{"index": 1, "baud": 9600}, {"index": 1, "baud": 19200}]}`, "PROFILE_RS485_INDEX"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeProfile(t, dir, "p.json", tt.content)

			loader, err := NewProfileLoader([]string{dir})
			require.NoError(t, err)

			_, err = loader.Load("p")
			var ve *types.ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tt.code, ve.Code)
		})
	}
}

func TestLoaderNotFound(t *testing.T) {
	loader, err := NewProfileLoader([]string{t.TempDir()})
	require.NoError(t, err)

	_, err = loader.Load("missing")
	assert.True(t, errors.Is(err, ErrProfileNotFound))
}
