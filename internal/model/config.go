package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// APIConfig holds settings for the REST API client.
type APIConfig struct {
	// BaseURL is the root URL of the task service.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// TimeoutSec bounds a single HTTP round trip.
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// RealtimeConfig holds settings for the STOMP channel.
type RealtimeConfig struct {
	// URL is the WebSocket endpoint of the broker.
	URL string `mapstructure:"url" yaml:"url"`

	ReconnectDelayMs int  `mapstructure:"reconnect_delay_ms" yaml:"reconnect_delay_ms"`
	HeartbeatMs      int  `mapstructure:"heartbeat_ms" yaml:"heartbeat_ms"`
	PublishRetryMs   int  `mapstructure:"publish_retry_ms" yaml:"publish_retry_ms"`
	DisableStreaming bool `mapstructure:"disable_streaming" yaml:"disable_streaming"`
}

// SyncConfig controls the REST fallback.
type SyncConfig struct {
	// PollIntervalSec is how often the task list is re-fetched while the
	// realtime channel is down.
	PollIntervalSec int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`
}

// DisplayConfig holds UI/rendering preferences.
type DisplayConfig struct {
	Theme           string `mapstructure:"theme" yaml:"theme"`
	TickIntervalSec int    `mapstructure:"tick_interval_sec" yaml:"tick_interval_sec"`
}

// JournalConfig locates the local notification journal.
type JournalConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	API      APIConfig      `mapstructure:"api" yaml:"api"`
	Realtime RealtimeConfig `mapstructure:"realtime" yaml:"realtime"`
	Sync     SyncConfig     `mapstructure:"sync" yaml:"sync"`
	Display  DisplayConfig  `mapstructure:"display" yaml:"display"`
	Journal  JournalConfig  `mapstructure:"journal" yaml:"journal"`
}

// ReconnectDelay returns the realtime reconnect delay.
func (c *AppConfig) ReconnectDelay() time.Duration {
	return time.Duration(c.Realtime.ReconnectDelayMs) * time.Millisecond
}

// Heartbeat returns the STOMP heartbeat interval used in both directions.
func (c *AppConfig) Heartbeat() time.Duration {
	return time.Duration(c.Realtime.HeartbeatMs) * time.Millisecond
}

// PublishRetry returns the delay between publish attempts while offline.
func (c *AppConfig) PublishRetry() time.Duration {
	return time.Duration(c.Realtime.PublishRetryMs) * time.Millisecond
}

// PollInterval returns the REST fallback polling interval.
func (c *AppConfig) PollInterval() time.Duration {
	return time.Duration(c.Sync.PollIntervalSec) * time.Second
}

// TickInterval returns how often derived display state is recomputed.
func (c *AppConfig) TickInterval() time.Duration {
	return time.Duration(c.Display.TickIntervalSec) * time.Second
}

// APITimeout returns the HTTP client timeout.
func (c *AppConfig) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSec) * time.Second
}

// configDir is ~/.config/taskpulse, falling back to the working directory.
func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "taskpulse")
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/taskpulse/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		API: APIConfig{
			BaseURL:    "http://localhost:8080",
			TimeoutSec: 30,
		},
		Realtime: RealtimeConfig{
			URL:              "ws://localhost:8080/ws/websocket",
			ReconnectDelayMs: 5000,
			HeartbeatMs:      4000,
			PublishRetryMs:   500,
		},
		Sync: SyncConfig{
			PollIntervalSec: 5,
		},
		Display: DisplayConfig{
			Theme:           "default",
			TickIntervalSec: 30,
		},
		Journal: JournalConfig{
			Path: filepath.Join(configDir(), "journal.db"),
		},
	}
}

// setDefaults mirrors defaultAppConfig into v so missing keys resolve.
func setDefaults(v *viper.Viper) {
	d := defaultAppConfig()
	v.SetDefault("api.base_url", d.API.BaseURL)
	v.SetDefault("api.timeout_sec", d.API.TimeoutSec)
	v.SetDefault("realtime.url", d.Realtime.URL)
	v.SetDefault("realtime.reconnect_delay_ms", d.Realtime.ReconnectDelayMs)
	v.SetDefault("realtime.heartbeat_ms", d.Realtime.HeartbeatMs)
	v.SetDefault("realtime.publish_retry_ms", d.Realtime.PublishRetryMs)
	v.SetDefault("realtime.disable_streaming", false)
	v.SetDefault("sync.poll_interval_sec", d.Sync.PollIntervalSec)
	v.SetDefault("display.theme", d.Display.Theme)
	v.SetDefault("display.tick_interval_sec", d.Display.TickIntervalSec)
	v.SetDefault("journal.path", d.Journal.Path)
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// A .env file in the working directory and TASKPULSE_* environment
// variables override file values. If the file does not exist, defaults
// (plus environment overrides) are returned.
func LoadConfig(path string) (*AppConfig, error) {
	// A missing .env is the normal case.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("taskpulse")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &pathErr) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.normalize()
	return cfg, nil
}

// normalize replaces non-positive durations with their defaults.
func (c *AppConfig) normalize() {
	d := defaultAppConfig()
	if c.API.TimeoutSec <= 0 {
		c.API.TimeoutSec = d.API.TimeoutSec
	}
	if c.Realtime.ReconnectDelayMs <= 0 {
		c.Realtime.ReconnectDelayMs = d.Realtime.ReconnectDelayMs
	}
	if c.Realtime.HeartbeatMs <= 0 {
		c.Realtime.HeartbeatMs = d.Realtime.HeartbeatMs
	}
	if c.Realtime.PublishRetryMs <= 0 {
		c.Realtime.PublishRetryMs = d.Realtime.PublishRetryMs
	}
	if c.Sync.PollIntervalSec <= 0 {
		c.Sync.PollIntervalSec = d.Sync.PollIntervalSec
	}
	if c.Display.TickIntervalSec <= 0 {
		c.Display.TickIntervalSec = d.Display.TickIntervalSec
	}
	c.API.BaseURL = strings.TrimRight(c.API.BaseURL, "/")
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

	v.Set("api", cfg.API)
	v.Set("realtime", cfg.Realtime)
	v.Set("sync", cfg.Sync)
	v.Set("display", cfg.Display)
	v.Set("journal", cfg.Journal)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
