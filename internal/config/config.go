// Package config handles chatsync configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config is the root configuration structure for chatsync.
type Config struct {
	// Global settings
	Global GlobalConfig `yaml:"global" mapstructure:"global"`

	// API settings for the REST backend.
	API APIConfig `yaml:"api" mapstructure:"api"`

	// Push settings for the websocket push channel.
	Push PushConfig `yaml:"push" mapstructure:"push"`

	// Sync settings for the synchronization engine.
	Sync SyncConfig `yaml:"sync" mapstructure:"sync"`

	// Cache settings for the local sqlite cache.
	Cache CacheConfig `yaml:"cache" mapstructure:"cache"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// TUI settings
	TUI TUIConfig `yaml:"tui" mapstructure:"tui"`
}

// GlobalConfig contains global chatsync settings.
type GlobalConfig struct {
	// DataDir is where chatsync stores its data (default: ~/.local/share/chatsync).
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	// ConfigDir is where config files are stored (default: ~/.config/chatsync).
	ConfigDir string `yaml:"config_dir" mapstructure:"config_dir"`

	// UserID identifies the current user to the backend and the read-state
	// derivation. Required.
	UserID string `yaml:"user_id" mapstructure:"user_id"`
}

// APIConfig contains REST backend settings.
type APIConfig struct {
	// BaseURL is the backend root, e.g. https://api.example.com/v1.
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`

	// Timeout bounds a single request.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// PushConfig contains push channel settings.
type PushConfig struct {
	// URL is the websocket endpoint, e.g. wss://api.example.com/v1/push.
	URL string `yaml:"url" mapstructure:"url"`

	// DialTimeout bounds the websocket handshake.
	DialTimeout time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`

	// ReconnectInterval is the pause between reconnect attempts.
	ReconnectInterval time.Duration `yaml:"reconnect_interval" mapstructure:"reconnect_interval"`

	// SubscribeBuffer is the delivery channel capacity; bursts beyond it block
	// the reader, never the UI.
	SubscribeBuffer int `yaml:"subscribe_buffer" mapstructure:"subscribe_buffer"`
}

// SyncConfig contains synchronization engine settings.
type SyncConfig struct {
	// HistoryPageSize is the page size for backward history fetches.
	HistoryPageSize int `yaml:"history_page_size" mapstructure:"history_page_size"`

	// LoadMoreThreshold is the scroll-top distance (rendered lines) below which
	// a load-older-page is triggered.
	LoadMoreThreshold int `yaml:"load_more_threshold" mapstructure:"load_more_threshold"`
}

// CacheConfig contains local cache settings.
type CacheConfig struct {
	// Enabled toggles the offline sqlite cache.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Path is the sqlite database file path.
	Path string `yaml:"path" mapstructure:"path"`

	// MaxConnections is the maximum number of database connections.
	MaxConnections int `yaml:"max_connections" mapstructure:"max_connections"`

	// BusyTimeoutMs is how long to wait for a locked database (milliseconds).
	BusyTimeoutMs int `yaml:"busy_timeout_ms" mapstructure:"busy_timeout_ms"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// File is an optional log file path.
	File string `yaml:"file" mapstructure:"file"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// TUIConfig contains TUI settings.
type TUIConfig struct {
	// RefreshInterval is how often to refresh the display.
	RefreshInterval time.Duration `yaml:"refresh_interval" mapstructure:"refresh_interval"`

	// Theme is the color theme (default, high-contrast).
	Theme string `yaml:"theme" mapstructure:"theme"`

	// ShowTimestamps shows timestamps next to messages.
	ShowTimestamps bool `yaml:"show_timestamps" mapstructure:"show_timestamps"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Global: GlobalConfig{
			DataDir:   filepath.Join(homeDir, ".local", "share", "chatsync"),
			ConfigDir: filepath.Join(homeDir, ".config", "chatsync"),
		},
		API: APIConfig{
			BaseURL: "http://127.0.0.1:8080/v1",
			Timeout: 10 * time.Second,
		},
		Push: PushConfig{
			URL:               "ws://127.0.0.1:8080/v1/push",
			DialTimeout:       3 * time.Second,
			ReconnectInterval: 2 * time.Second,
			SubscribeBuffer:   256,
		},
		Sync: SyncConfig{
			HistoryPageSize:   25,
			LoadMoreThreshold: 3,
		},
		Cache: CacheConfig{
			Enabled:        true,
			Path:           "", // Will be set to DataDir/chatsync.db
			MaxConnections: 10,
			BusyTimeoutMs:  5000,
		},
		Logging: LoggingConfig{
			Level:        "info",
			Format:       "console",
			EnableCaller: false,
		},
		TUI: TUIConfig{
			RefreshInterval: 500 * time.Millisecond,
			Theme:           "default",
			ShowTimestamps:  true,
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.API.Timeout < time.Second {
		return fmt.Errorf("api.timeout must be at least 1s")
	}
	if c.Push.SubscribeBuffer < 1 {
		return fmt.Errorf("push.subscribe_buffer must be at least 1")
	}
	if c.Sync.HistoryPageSize < 1 {
		return fmt.Errorf("sync.history_page_size must be at least 1")
	}
	if c.Sync.LoadMoreThreshold < 0 {
		return fmt.Errorf("sync.load_more_threshold must not be negative")
	}
	if c.Cache.Enabled && c.Cache.MaxConnections < 1 {
		return fmt.Errorf("cache.max_connections must be at least 1")
	}
	return nil
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Global.DataDir,
		c.Global.ConfigDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// CachePath returns the full cache database path.
func (c *Config) CachePath() string {
	if c.Cache.Path != "" {
		return c.Cache.Path
	}
	return filepath.Join(c.Global.DataDir, "chatsync.db")
}

// StatePath returns the local client state (drafts) file path.
func (c *Config) StatePath() string {
	return filepath.Join(c.Global.DataDir, "client-state.json")
}
