package constants

// Default server configuration values
const (
	DefaultServerPort            = 21465
	DefaultSessionName           = "default"
	DefaultRunMode               = "development"
	DefaultSyncKey               = "change-me"
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
	ServerErrorChannelSize       = 1
	MaxRequestBodyBytes          = 1 << 20
	StatusRecentTransitions      = 10
)

// Session supervisor defaults
const (
	DefaultMaxReconnectAttempts   = 10
	DefaultReconnectBaseDelaySec  = 5
	DefaultReconnectMaxDelaySec   = 30
	DefaultSessionStartTimeoutSec = 60
	DefaultSessionCloseTimeoutSec = 10
	DefaultLivenessIntervalSec    = 30
	DefaultLivenessTimeoutSec     = 10
	DefaultEventBufferSize        = 64
)

// Relay and gateway defaults
const (
	DefaultWebhookTimeoutSec = 10
	DefaultSendTimeoutSec    = 30
	DefaultRelayQueueSize    = 100
	MinPhoneDigits           = 10
	DefaultTimestampLayout   = "2006-01-02 15:04:05"
)

// Adapter defaults
const (
	DefaultAdapterBaseURL    = "http://localhost:3000"
	DefaultAdapterTimeoutSec = 30
)

// Journal defaults
const (
	DefaultJournalPath               = "data/session-journal.db"
	DefaultJournalRetentionDays      = 30
	DefaultJournalCleanupIntervalHrs = 24
	DefaultJournalOpenAttempts       = 3
	DefaultJournalInitialBackoffMs   = 500
	DefaultJournalMaxBackoffMs       = 5000
)

// Privacy settings
const (
	DefaultPhoneMaskLength = 4
)
