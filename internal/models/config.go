package models

// Config holds the application configuration
type Config struct {
	Server   ServerConfig  `json:"server" yaml:"server"`
	Session  SessionConfig `json:"session" yaml:"session"`
	Adapter  AdapterConfig `json:"adapter" yaml:"adapter"`
	CRM      CRMConfig     `json:"crm" yaml:"crm"`
	Journal  JournalConfig `json:"journal" yaml:"journal"`
	Tracing  TracingConfig `json:"tracing" yaml:"tracing"`
	LogLevel string        `json:"log_level" yaml:"log_level"`
	Mode     string        `json:"mode" yaml:"mode"`
}

// ServerConfig holds HTTP listener settings
type ServerConfig struct {
	Port            int `json:"port" yaml:"port"`
	ReadTimeoutSec  int `json:"read_timeout_sec" yaml:"read_timeout_sec"`
	WriteTimeoutSec int `json:"write_timeout_sec" yaml:"write_timeout_sec"`
	IdleTimeoutSec  int `json:"idle_timeout_sec" yaml:"idle_timeout_sec"`
}

// SessionConfig controls the session supervisor and liveness monitor
type SessionConfig struct {
	Name                  string `json:"name" yaml:"name"`
	MaxReconnectAttempts  int    `json:"max_reconnect_attempts" yaml:"max_reconnect_attempts"`
	ReconnectBaseDelaySec int    `json:"reconnect_base_delay_sec" yaml:"reconnect_base_delay_sec"`
	ReconnectMaxDelaySec  int    `json:"reconnect_max_delay_sec" yaml:"reconnect_max_delay_sec"`
	StartTimeoutSec       int    `json:"start_timeout_sec" yaml:"start_timeout_sec"`
	LivenessIntervalSec   int    `json:"liveness_interval_sec" yaml:"liveness_interval_sec"`
	LivenessTimeoutSec    int    `json:"liveness_timeout_sec" yaml:"liveness_timeout_sec"`
}

// AdapterConfig describes how to reach the messaging network client
type AdapterConfig struct {
	BaseURL     string `json:"base_url" yaml:"base_url"`
	APIKey      string `json:"api_key" yaml:"api_key"`
	BrowserPath string `json:"browser_path" yaml:"browser_path"`
	TimeoutSec  int    `json:"timeout_sec" yaml:"timeout_sec"`
}

// CRMConfig holds the shared key and webhook endpoint of the CRM
type CRMConfig struct {
	SyncKey           string `json:"sync_key" yaml:"sync_key"`
	WebhookURL        string `json:"webhook_url" yaml:"webhook_url"`
	WebhookTimeoutSec int    `json:"webhook_timeout_sec" yaml:"webhook_timeout_sec"`
	SendTimeoutSec    int    `json:"send_timeout_sec" yaml:"send_timeout_sec"`
	Timezone          string `json:"timezone" yaml:"timezone"`
}

// JournalConfig holds settings for the session journal database
type JournalConfig struct {
	Path                 string `json:"path" yaml:"path"`
	RetentionDays        int    `json:"retention_days" yaml:"retention_days"`
	CleanupIntervalHours int    `json:"cleanup_interval_hours" yaml:"cleanup_interval_hours"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled        bool    `json:"enabled" yaml:"enabled"`
	ServiceName    string  `json:"service_name" yaml:"service_name"`
	ServiceVersion string  `json:"service_version" yaml:"service_version"`
	Environment    string  `json:"environment" yaml:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint" yaml:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate" yaml:"sample_rate"`
	UseStdout      bool    `json:"use_stdout" yaml:"use_stdout"`
}

// IsProduction reports whether the process runs in production mode
func (c *Config) IsProduction() bool {
	return c.Mode == "production"
}

type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}
