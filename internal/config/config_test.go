package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Discovery.Port)
	assert.Equal(t, 2*time.Second, cfg.Discovery.Timeout)
	assert.Equal(t, 256*1024, cfg.Discovery.ReceiveBuffer)
	assert.True(t, cfg.Discovery.LegacyFallback)
	assert.Zero(t, cfg.Discovery.RescanInterval)
	assert.Equal(t, time.Second, cfg.Sync.RequestTimeout)
	assert.Equal(t, 200*time.Millisecond, cfg.Sync.Pacing)
	assert.Equal(t, 512, cfg.Sync.IOBatchMaxBytes)
	assert.False(t, cfg.Database.Enabled)
	assert.Equal(t, []string{"./profiles"}, cfg.Profiles.SearchPaths)
	assert.Equal(t, "unitsync", cfg.MQTT.TopicPrefix)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
discovery:
  port: 6000
  timeout: 500ms
  broadcasts: ["eth0=192.168.1.255"]
sync:
  pacing: 50ms
mqtt:
  enabled: true
  qos: 0
`), 0o644))

	t.Setenv("OUS_SYNC_IO_BATCH_MAX_BYTES", "1024")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 6000, cfg.Discovery.Port)
	assert.Equal(t, 500*time.Millisecond, cfg.Discovery.Timeout)
	assert.Equal(t, []string{"eth0=192.168.1.255"}, cfg.Discovery.Broadcasts)
	assert.Equal(t, 50*time.Millisecond, cfg.Sync.Pacing)
	assert.Equal(t, 1024, cfg.Sync.IOBatchMaxBytes)
	assert.True(t, cfg.MQTT.Enabled)
	assert.Equal(t, byte(0), cfg.MQTT.QoS)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sync:\n  io_batch_max_bytes: 8\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestJWTSecret(t *testing.T) {
	a := AuthConfig{JWTSecretEnv: "OUS_TEST_SECRET"}
	assert.Equal(t, devJWTSecret, a.GetJWTSecret())
	assert.False(t, a.IsProductionReady())

	t.Setenv("OUS_TEST_SECRET", "0123456789abcdef0123456789abcdef")
	a.AdminPasswordHash = "$argon2id$v=19$m=65536,t=3,p=2$c2FsdA$aGFzaA"
	assert.True(t, a.IsProductionReady())
}
