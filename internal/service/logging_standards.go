package service

// Standard field names for structured logging. Use these exact names so log
// queries work the same across the supervisor, relay, gateway and HTTP layer.
const (
	// Core identifiers
	LogFieldSession   = "session"
	LogFieldMessageID = "message_id"
	LogFieldPhone     = "phone"
	LogFieldChatID    = "chat_id"
	LogFieldRequestID = "request_id"
	LogFieldTraceID   = "trace_id"
	LogFieldRunID     = "run_id"

	// Component fields
	LogFieldComponent = "component"
	LogFieldMethod    = "method"

	// Session lifecycle
	LogFieldState       = "state"
	LogFieldFromState   = "from_state"
	LogFieldCause       = "cause"
	LogFieldAttempt     = "attempt"
	LogFieldMaxAttempts = "max_attempts"
	LogFieldDelay       = "delay_ms"

	// Message fields
	LogFieldMessageType = "message_type"
	LogFieldDirection   = "direction" // "inbound" or "outbound"

	// Performance and metrics
	LogFieldDuration = "duration_ms"
	LogFieldCount    = "count"
	LogFieldSize     = "size_bytes"

	// Network and external services
	LogFieldURL        = "url"
	LogFieldStatusCode = "status_code"
	LogFieldRemoteIP   = "remote_ip"
	LogFieldUserAgent  = "user_agent"
)

// Log levels:
//
// DEBUG: filtered messages, probe results, raw payload shapes.
// INFO: startup/shutdown, state transitions, successful relays and sends.
// WARN: retryable failures, dropped deliveries, placeholder configuration.
// ERROR: SessionFatal, unexpected panics, failures that need an operator.
//
// Message patterns: "Starting X", "X completed", "Failed to X", "Skipping X: reason".
