package model

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.API.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.ReconnectDelay())
	assert.Equal(t, 4*time.Second, cfg.Heartbeat())
	assert.Equal(t, 500*time.Millisecond, cfg.PublishRetry())
	assert.Equal(t, 5*time.Second, cfg.PollInterval())
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
api:
  base_url: https://tasks.example.com/
realtime:
  url: wss://tasks.example.com/ws/websocket
  heartbeat_ms: 10000
sync:
  poll_interval_sec: 0
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://tasks.example.com", cfg.API.BaseURL, "trailing slash trimmed")
	assert.Equal(t, "wss://tasks.example.com/ws/websocket", cfg.Realtime.URL)
	assert.Equal(t, 10*time.Second, cfg.Heartbeat())
	assert.Equal(t, 5*time.Second, cfg.ReconnectDelay(), "unset keys keep defaults")
	assert.Equal(t, 5*time.Second, cfg.PollInterval(), "non-positive values fall back")
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := defaultAppConfig()
	cfg.API.BaseURL = "http://10.0.0.5:8080"
	cfg.Sync.PollIntervalSec = 15
	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.5:8080", loaded.API.BaseURL)
	assert.Equal(t, 15*time.Second, loaded.PollInterval())
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("TASKPULSE_API_BASE_URL", "http://override:9000")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "http://override:9000", cfg.API.BaseURL)
}
