package constants

// Default engine timing values
const (
	DefaultAssumeDeliveredMs = 1500
	DefaultTypingExpirySec   = 10
	DefaultRetentionDays     = 30
)

// Default push reconnection values
const (
	DefaultReconnectInitialMs  = 1000
	DefaultReconnectMaxMs      = 30000
	DefaultReconnectMultiplier = 2.0
	DefaultHandshakeTimeoutSec = 10
)

// Default timeout values
const (
	DefaultHTTPTimeoutSec        = 30
	DefaultUploadTimeoutSec      = 120
	DefaultGracefulShutdownSec   = 30
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultServerPort            = 8082
)

// Default cache retry values
const (
	DefaultCacheRetryAttempts = 3
	DefaultRetryBackoffMs     = 100
	DefaultMaxBackoffMs       = 2000
)

// Default media limits
const (
	DefaultMaxUploadSizeMB = 100
)
