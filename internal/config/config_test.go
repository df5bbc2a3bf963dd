package config

import (
	"os"
	"path/filepath"
	"testing"

	"chatsync/internal/constants"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const minimalConfig = `{
	"api": {"base_url": "https://api.example.com"},
	"push": {"url": "wss://push.example.com/socket"},
	"cache": {"path": "/tmp/chatsync.db"}
}`

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.API.BaseURL)
	assert.Equal(t, constants.DefaultHTTPTimeoutSec, cfg.API.TimeoutSec)
	assert.Equal(t, constants.DefaultReconnectInitialMs, cfg.Push.ReconnectInitialMs)
	assert.Equal(t, constants.DefaultReconnectMaxMs, cfg.Push.ReconnectMaxMs)
	assert.Equal(t, constants.DefaultReconnectMultiplier, cfg.Push.ReconnectMultiplier)
	assert.Equal(t, constants.DefaultAssumeDeliveredMs, cfg.Engine.AssumeDeliveredMs)
	assert.Equal(t, constants.DefaultTypingExpirySec, cfg.Engine.TypingExpirySec)
	assert.Equal(t, constants.DefaultRetentionDays, cfg.Cache.RetentionDays)
	assert.Equal(t, constants.DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, "https://api.example.com", cfg.Upload.URL, "upload URL falls back to the API host")
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}

func TestLoadConfigInvalidJSON(t *testing.T) {
	path := writeConfig(t, "{not json")
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing api url", `{"push": {"url": "wss://p"}, "cache": {"path": "/tmp/c.db"}}`},
		{"missing push url", `{"api": {"base_url": "https://a"}, "cache": {"path": "/tmp/c.db"}}`},
		{"missing cache path", `{"api": {"base_url": "https://a"}, "push": {"url": "wss://p"}}`},
		{"bad multiplier", `{
			"api": {"base_url": "https://a"},
			"push": {"url": "wss://p", "reconnect_multiplier": 0.5},
			"cache": {"path": "/tmp/c.db"}
		}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigExplicitValuesKept(t *testing.T) {
	path := writeConfig(t, `{
		"api": {"base_url": "https://api.example.com", "timeout_sec": 5},
		"push": {"url": "wss://push.example.com", "reconnect_initial_ms": 250},
		"upload": {"url": "https://uploads.example.com", "max_size_mb": 25},
		"cache": {"path": "/tmp/c.db", "retention_days": 7},
		"engine": {"assume_delivered_ms": 3000, "typing_expiry_sec": 5},
		"log_level": "debug"
	}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.API.TimeoutSec)
	assert.Equal(t, 250, cfg.Push.ReconnectInitialMs)
	assert.Equal(t, "https://uploads.example.com", cfg.Upload.URL)
	assert.Equal(t, 25, cfg.Upload.MaxSizeMB)
	assert.Equal(t, 7, cfg.Cache.RetentionDays)
	assert.Equal(t, 3000, cfg.Engine.AssumeDeliveredMs)
	assert.Equal(t, 5, cfg.Engine.TypingExpirySec)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	t.Setenv("CHATSYNC_API_URL", "https://staging-api.example.com")
	t.Setenv("CHATSYNC_PUSH_URL", "wss://staging-push.example.com")
	t.Setenv("CHATSYNC_CACHE_PATH", "/tmp/staging.db")
	t.Setenv("CHATSYNC_LOG_LEVEL", "warn")

	path := writeConfig(t, minimalConfig)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "https://staging-api.example.com", cfg.API.BaseURL)
	assert.Equal(t, "wss://staging-push.example.com", cfg.Push.URL)
	assert.Equal(t, "/tmp/staging.db", cfg.Cache.Path)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestEnvironmentOverridesSatisfyValidation(t *testing.T) {
	t.Setenv("CHATSYNC_API_URL", "https://api.example.com")
	t.Setenv("CHATSYNC_PUSH_URL", "wss://push.example.com")
	t.Setenv("CHATSYNC_CACHE_PATH", "/tmp/c.db")

	path := writeConfig(t, `{}`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com", cfg.API.BaseURL)
}
