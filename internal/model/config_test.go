package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, []int{45, 30, 15, 0}, cfg.Reminder.Thresholds)
	require.Equal(t, 300, cfg.Reminder.PollIntervalSec)
	require.Equal(t, 60, cfg.Reminder.CheckIntervalSec)
	require.Equal(t, 60, cfg.Reminder.DebounceSec)
	require.Equal(t, 5, cfg.Chat.NotificationDismissSec)
	require.True(t, cfg.Notifications.Desktop)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  base_url: https://api.example.com
  tenant: acme
user:
  id: 12
reminder:
  thresholds: [10, 5]
  poll_interval_sec: 120
  debounce_sec: 0
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "https://api.example.com", cfg.Server.BaseURL)
	require.Equal(t, "acme", cfg.Server.Tenant)
	require.Equal(t, int64(12), cfg.User.ID)
	require.Equal(t, []int{10, 5}, cfg.Reminder.Thresholds)
	require.Equal(t, 120, cfg.Reminder.PollIntervalSec)
	require.Equal(t, 60, cfg.Reminder.CheckIntervalSec)
	require.Equal(t, 60, cfg.Reminder.DebounceSec)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("TEAMDESK_SERVER_BASE_URL", "http://env.example.com")
	t.Setenv("TEAMDESK_USER_ID", "99")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, "http://env.example.com", cfg.Server.BaseURL)
	require.Equal(t, int64(99), cfg.User.ID)
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultAppConfig()
	cfg.Server.Tenant = "acme"
	cfg.User.ID = 5

	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "acme", loaded.Server.Tenant)
	require.Equal(t, int64(5), loaded.User.ID)
}
