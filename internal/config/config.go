package config

import (
	"encoding/json"
	"fmt"
	"os"

	"chatsync/internal/constants"
	"chatsync/internal/models"
)

var (
	ErrMissingAPIURL    = models.ConfigError{Message: "missing API base URL"}
	ErrMissingPushURL   = models.ConfigError{Message: "missing push channel URL"}
	ErrMissingCachePath = models.ConfigError{Message: "missing cache path"}
)

func LoadConfig(path string) (*models.Config, error) {
	file, err := os.ReadFile(path) // #nosec G304 - Path comes from the operator's own flag
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnvironmentOverrides(&config)
	applyDefaults(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(c *models.Config) error {
	if c.API.BaseURL == "" {
		return ErrMissingAPIURL
	}
	if c.Push.URL == "" {
		return ErrMissingPushURL
	}
	if c.Cache.Path == "" {
		return ErrMissingCachePath
	}
	if c.Push.ReconnectMultiplier < 1.0 {
		return models.ConfigError{Message: "reconnect multiplier must be at least 1.0"}
	}
	if c.Engine.AssumeDeliveredMs < 0 {
		return models.ConfigError{Message: "assume delivered delay must not be negative"}
	}
	return nil
}

func applyDefaults(c *models.Config) {
	if c.API.TimeoutSec <= 0 {
		c.API.TimeoutSec = constants.DefaultHTTPTimeoutSec
	}
	if c.Push.ReconnectInitialMs <= 0 {
		c.Push.ReconnectInitialMs = constants.DefaultReconnectInitialMs
	}
	if c.Push.ReconnectMaxMs <= 0 {
		c.Push.ReconnectMaxMs = constants.DefaultReconnectMaxMs
	}
	if c.Push.ReconnectMultiplier == 0 {
		c.Push.ReconnectMultiplier = constants.DefaultReconnectMultiplier
	}
	if c.Push.HandshakeTimeoutSec <= 0 {
		c.Push.HandshakeTimeoutSec = constants.DefaultHandshakeTimeoutSec
	}
	if c.Upload.URL == "" {
		// Fall back to the API host; most deployments serve uploads there.
		c.Upload.URL = c.API.BaseURL
	}
	if c.Upload.TimeoutSec <= 0 {
		c.Upload.TimeoutSec = constants.DefaultUploadTimeoutSec
	}
	if c.Upload.MaxSizeMB <= 0 {
		c.Upload.MaxSizeMB = constants.DefaultMaxUploadSizeMB
	}
	if c.Cache.RetentionDays <= 0 {
		c.Cache.RetentionDays = constants.DefaultRetentionDays
	}
	if c.Engine.AssumeDeliveredMs == 0 {
		c.Engine.AssumeDeliveredMs = constants.DefaultAssumeDeliveredMs
	}
	if c.Engine.TypingExpirySec <= 0 {
		c.Engine.TypingExpirySec = constants.DefaultTypingExpirySec
	}
	if c.Server.Port <= 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func applyEnvironmentOverrides(c *models.Config) {
	if v := os.Getenv("CHATSYNC_API_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("CHATSYNC_PUSH_URL"); v != "" {
		c.Push.URL = v
	}
	if v := os.Getenv("CHATSYNC_UPLOAD_URL"); v != "" {
		c.Upload.URL = v
	}
	if v := os.Getenv("CHATSYNC_CACHE_PATH"); v != "" {
		c.Cache.Path = v
	}
	if v := os.Getenv("CHATSYNC_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}
