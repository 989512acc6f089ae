package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment variable overrides,
// e.g. TEAMDESK_SERVER_BASE_URL.
const EnvPrefix = "TEAMDESK"

// ServerConfig holds the remote API coordinates.
type ServerConfig struct {
	// BaseURL is the root of the REST API (e.g. http://localhost:8000).
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// WebSocketURL is the root used for chat sockets. Derived from BaseURL
	// when empty.
	WebSocketURL string `mapstructure:"websocket_url" yaml:"websocket_url"`

	// Tenant is the organization subdomain prepended to the API host.
	Tenant string `mapstructure:"tenant" yaml:"tenant"`

	// TimeoutSec bounds a single HTTP request.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// UserConfig identifies the signed-in user.
type UserConfig struct {
	ID    int64  `mapstructure:"id" yaml:"id"`
	Email string `mapstructure:"email" yaml:"email"`
}

// ReminderConfig tunes the task reminder scheduler.
type ReminderConfig struct {
	// Thresholds are the minutes-before-due values that raise a reminder.
	Thresholds []int `mapstructure:"thresholds" yaml:"thresholds"`

	// PollIntervalSec is how often the task list is refreshed.
	PollIntervalSec int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`

	// CheckIntervalSec is how often thresholds are evaluated.
	CheckIntervalSec int `mapstructure:"check_interval_sec" yaml:"check_interval_sec"`

	// DebounceSec is how long a fired threshold stays suppressed.
	DebounceSec int `mapstructure:"debounce_sec" yaml:"debounce_sec"`

	// WindowMin is the upper bound of the initial "coming up" window.
	WindowMin int `mapstructure:"window_min" yaml:"window_min"`

	// AutoDismissSec removes reminders from the feed after the delay.
	// Zero keeps them until dismissed.
	AutoDismissSec int `mapstructure:"auto_dismiss_sec" yaml:"auto_dismiss_sec"`
}

// ChatConfig tunes the chat client.
type ChatConfig struct {
	// NotificationDismissSec is how long a new-message alert stays in the feed.
	NotificationDismissSec int `mapstructure:"notification_dismiss_sec" yaml:"notification_dismiss_sec"`

	// ConnectAll opens a socket for every chat after the list is fetched.
	ConnectAll bool `mapstructure:"connect_all" yaml:"connect_all"`
}

// NotificationConfig controls the OS notification surface.
type NotificationConfig struct {
	Desktop bool `mapstructure:"desktop" yaml:"desktop"`
}

// StoreConfig locates the local database.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// LogConfig controls the logger.
type LogConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Development bool   `mapstructure:"development" yaml:"development"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Server        ServerConfig       `mapstructure:"server" yaml:"server"`
	User          UserConfig         `mapstructure:"user" yaml:"user"`
	Reminder      ReminderConfig     `mapstructure:"reminder" yaml:"reminder"`
	Chat          ChatConfig         `mapstructure:"chat" yaml:"chat"`
	Notifications NotificationConfig `mapstructure:"notifications" yaml:"notifications"`
	Store         StoreConfig        `mapstructure:"store" yaml:"store"`
	Log           LogConfig          `mapstructure:"log" yaml:"log"`
}

// configDir returns ~/.config/teamdesk, or the working directory when the
// home directory is unknown.
func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "teamdesk")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/teamdesk/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

// DefaultAppConfig returns the configuration used when no file exists.
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			BaseURL:    "http://localhost:8000",
			TimeoutSec: 30,
		},
		Reminder: ReminderConfig{
			Thresholds:       []int{45, 30, 15, 0},
			PollIntervalSec:  300,
			CheckIntervalSec: 60,
			DebounceSec:      60,
			WindowMin:        60,
		},
		Chat: ChatConfig{
			NotificationDismissSec: 5,
		},
		Notifications: NotificationConfig{
			Desktop: true,
		},
		Store: StoreConfig{
			Path: filepath.Join(configDir(), "teamdesk.db"),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// setDefaults registers every default so that missing keys and
// environment-only keys resolve.
func setDefaults(v *viper.Viper, cfg *AppConfig) {
	v.SetDefault("server.base_url", cfg.Server.BaseURL)
	v.SetDefault("server.websocket_url", cfg.Server.WebSocketURL)
	v.SetDefault("server.tenant", cfg.Server.Tenant)
	v.SetDefault("server.timeout_sec", cfg.Server.TimeoutSec)
	v.SetDefault("user.id", cfg.User.ID)
	v.SetDefault("user.email", cfg.User.Email)
	v.SetDefault("reminder.thresholds", cfg.Reminder.Thresholds)
	v.SetDefault("reminder.poll_interval_sec", cfg.Reminder.PollIntervalSec)
	v.SetDefault("reminder.check_interval_sec", cfg.Reminder.CheckIntervalSec)
	v.SetDefault("reminder.debounce_sec", cfg.Reminder.DebounceSec)
	v.SetDefault("reminder.window_min", cfg.Reminder.WindowMin)
	v.SetDefault("reminder.auto_dismiss_sec", cfg.Reminder.AutoDismissSec)
	v.SetDefault("chat.notification_dismiss_sec", cfg.Chat.NotificationDismissSec)
	v.SetDefault("chat.connect_all", cfg.Chat.ConnectAll)
	v.SetDefault("notifications.desktop", cfg.Notifications.Desktop)
	v.SetDefault("store.path", cfg.Store.Path)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.development", cfg.Log.Development)
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// Environment variables prefixed with TEAMDESK_ override file values.
// If the file does not exist, defaults plus environment are returned.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, DefaultAppConfig())

	if err := v.ReadInConfig(); err != nil {
		_, pathErr := err.(*os.PathError)
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !pathErr && !notFound {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if len(cfg.Reminder.Thresholds) == 0 {
		cfg.Reminder.Thresholds = DefaultAppConfig().Reminder.Thresholds
	}
	if cfg.Reminder.PollIntervalSec <= 0 {
		cfg.Reminder.PollIntervalSec = 300
	}
	if cfg.Reminder.CheckIntervalSec <= 0 {
		cfg.Reminder.CheckIntervalSec = 60
	}
	if cfg.Reminder.DebounceSec <= 0 {
		cfg.Reminder.DebounceSec = 60
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("server", cfg.Server)
	v.Set("user", cfg.User)
	v.Set("reminder", cfg.Reminder)
	v.Set("chat", cfg.Chat)
	v.Set("notifications", cfg.Notifications)
	v.Set("store", cfg.Store)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
