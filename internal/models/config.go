package models

// ConfigError reports an invalid or incomplete configuration.
type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return "config error: " + e.Message
}

// APIConfig points at the backend REST surface.
type APIConfig struct {
	BaseURL    string `json:"base_url"`
	TimeoutSec int    `json:"timeout_sec"`
}

// PushConfig points at the push channel and tunes reconnection.
type PushConfig struct {
	URL                 string  `json:"url"`
	ReconnectInitialMs  int     `json:"reconnect_initial_ms"`
	ReconnectMaxMs      int     `json:"reconnect_max_ms"`
	ReconnectMultiplier float64 `json:"reconnect_multiplier"`
	HandshakeTimeoutSec int     `json:"handshake_timeout_sec"`
}

// UploadConfig points at the media upload collaborator.
type UploadConfig struct {
	URL        string `json:"url"`
	TimeoutSec int    `json:"timeout_sec"`
	MaxSizeMB  int    `json:"max_size_mb"`
}

// CacheConfig controls the local sqlite history cache.
type CacheConfig struct {
	Path          string `json:"path"`
	RetentionDays int    `json:"retention_days"`
}

// EngineConfig tunes the synchronization engine itself.
type EngineConfig struct {
	AssumeDeliveredMs int `json:"assume_delivered_ms"`
	TypingExpirySec   int `json:"typing_expiry_sec"`
}

// ServerConfig controls the local debug HTTP server.
type ServerConfig struct {
	Port int `json:"port"`
}

// TracingConfig contains OpenTelemetry configuration.
type TracingConfig struct {
	ServiceName    string  `json:"service_name"`
	ServiceVersion string  `json:"service_version"`
	Environment    string  `json:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate"`
	Enabled        bool    `json:"enabled"`
	UseStdout      bool    `json:"use_stdout"`
}

// Config is the full application configuration.
type Config struct {
	API      APIConfig     `json:"api"`
	Push     PushConfig    `json:"push"`
	Upload   UploadConfig  `json:"upload"`
	Cache    CacheConfig   `json:"cache"`
	Engine   EngineConfig  `json:"engine"`
	Server   ServerConfig  `json:"server"`
	Tracing  TracingConfig `json:"tracing"`
	LogLevel string        `json:"log_level"`
}
