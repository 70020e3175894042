package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 25, cfg.Sync.HistoryPageSize)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "missing base url", mutate: func(c *Config) { c.API.BaseURL = "" }},
		{name: "tiny timeout", mutate: func(c *Config) { c.API.Timeout = 10 * time.Millisecond }},
		{name: "zero subscribe buffer", mutate: func(c *Config) { c.Push.SubscribeBuffer = 0 }},
		{name: "zero page size", mutate: func(c *Config) { c.Sync.HistoryPageSize = 0 }},
		{name: "negative threshold", mutate: func(c *Config) { c.Sync.LoadMoreThreshold = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	payload := `
global:
  user_id: buyer-7
api:
  base_url: https://shop.example.com/v1
  timeout: 5s
sync:
  history_page_size: 50
`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.Equal(t, "buyer-7", cfg.Global.UserID)
	require.Equal(t, "https://shop.example.com/v1", cfg.API.BaseURL)
	require.Equal(t, 5*time.Second, cfg.API.Timeout)
	require.Equal(t, 50, cfg.Sync.HistoryPageSize)
	// Untouched keys keep defaults.
	require.Equal(t, 256, cfg.Push.SubscribeBuffer)
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestCachePathFallsBackToDataDir(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Global.DataDir = "/tmp/chatsync-test"
	cfg.Cache.Path = ""
	require.Equal(t, filepath.Join("/tmp/chatsync-test", "chatsync.db"), cfg.CachePath())

	cfg.Cache.Path = "/elsewhere/c.db"
	require.Equal(t, "/elsewhere/c.db", cfg.CachePath())
}
