package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"crmbridge/internal/constants"
	"crmbridge/internal/models"
	"crmbridge/internal/security"
	"crmbridge/internal/tracing"
	"crmbridge/internal/validation"

	"gopkg.in/yaml.v3"
)

var (
	ErrMissingSessionName = models.ConfigError{Message: "missing session name"}
	ErrMissingSyncKey     = models.ConfigError{Message: "missing sync key"}
	ErrMissingWebhookURL  = models.ConfigError{Message: "missing CRM webhook URL"}
	ErrMissingAdapterURL  = models.ConfigError{Message: "missing adapter base URL"}
)

// LoadConfig builds the configuration from defaults, an optional JSON or YAML
// file and environment overrides, in that order. An empty path skips the file.
func LoadConfig(path string) (*models.Config, error) {
	config := Defaults()

	if path != "" {
		if err := loadFile(path, config); err != nil {
			return nil, err
		}
	}

	if err := applyEnvironmentOverrides(config); err != nil {
		return nil, err
	}

	applyDefaults(config)

	if err := validate(config); err != nil {
		return nil, err
	}

	if err := validateSecurity(config); err != nil {
		return nil, err
	}

	return config, nil
}

// Defaults returns a configuration populated with built-in defaults
func Defaults() *models.Config {
	return &models.Config{
		Server: models.ServerConfig{
			Port:            constants.DefaultServerPort,
			ReadTimeoutSec:  constants.DefaultServerReadTimeoutSec,
			WriteTimeoutSec: constants.DefaultServerWriteTimeoutSec,
			IdleTimeoutSec:  constants.DefaultServerIdleTimeoutSec,
		},
		Session: models.SessionConfig{
			Name:                  constants.DefaultSessionName,
			MaxReconnectAttempts:  constants.DefaultMaxReconnectAttempts,
			ReconnectBaseDelaySec: constants.DefaultReconnectBaseDelaySec,
			ReconnectMaxDelaySec:  constants.DefaultReconnectMaxDelaySec,
			StartTimeoutSec:       constants.DefaultSessionStartTimeoutSec,
			LivenessIntervalSec:   constants.DefaultLivenessIntervalSec,
			LivenessTimeoutSec:    constants.DefaultLivenessTimeoutSec,
		},
		Adapter: models.AdapterConfig{
			BaseURL:    constants.DefaultAdapterBaseURL,
			TimeoutSec: constants.DefaultAdapterTimeoutSec,
		},
		CRM: models.CRMConfig{
			SyncKey:           constants.DefaultSyncKey,
			WebhookTimeoutSec: constants.DefaultWebhookTimeoutSec,
			SendTimeoutSec:    constants.DefaultSendTimeoutSec,
		},
		Journal: models.JournalConfig{
			Path:                 constants.DefaultJournalPath,
			RetentionDays:        constants.DefaultJournalRetentionDays,
			CleanupIntervalHours: constants.DefaultJournalCleanupIntervalHrs,
		},
		Tracing:  tracing.DefaultTracingConfig(),
		LogLevel: "info",
		Mode:     constants.DefaultRunMode,
	}
}

func loadFile(path string, config *models.Config) error {
	if err := security.ValidateFilePath(path, true); err != nil {
		return fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated above
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(file, config); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		if err := json.Unmarshal(file, config); err != nil {
			return fmt.Errorf("failed to parse JSON config: %w", err)
		}
	}
	return nil
}

func applyEnvironmentOverrides(c *models.Config) error {
	stringOverrides := map[string]*string{
		"SESSION_NAME":    &c.Session.Name,
		"SYNC_KEY":        &c.CRM.SyncKey,
		"CRM_WEBHOOK_URL": &c.CRM.WebhookURL,
		"CHROME_PATH":     &c.Adapter.BrowserPath,
		"BRIDGE_ENV":      &c.Mode,
		"WAHA_URL":        &c.Adapter.BaseURL,
		"WAHA_API_KEY":    &c.Adapter.APIKey,
		"TIMEZONE":        &c.CRM.Timezone,
		"JOURNAL_PATH":    &c.Journal.Path,
		"LOG_LEVEL":       &c.LogLevel,
	}
	for name, target := range stringOverrides {
		if value := os.Getenv(name); value != "" {
			*target = value
		}
	}

	intOverrides := map[string]*int{
		"PORT":                     &c.Server.Port,
		"MAX_RECONNECT_ATTEMPTS":   &c.Session.MaxReconnectAttempts,
		"RECONNECT_BASE_DELAY_SEC": &c.Session.ReconnectBaseDelaySec,
		"RECONNECT_MAX_DELAY_SEC":  &c.Session.ReconnectMaxDelaySec,
		"LIVENESS_INTERVAL_SEC":    &c.Session.LivenessIntervalSec,
		"WEBHOOK_TIMEOUT_SEC":      &c.CRM.WebhookTimeoutSec,
	}
	for name, target := range intOverrides {
		value := os.Getenv(name)
		if value == "" {
			continue
		}
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return models.ConfigError{Message: fmt.Sprintf("invalid integer for %s: %q", name, value)}
		}
		*target = parsed
	}

	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		c.Tracing.OTLPEndpoint = endpoint
		c.Tracing.Enabled = true
		c.Tracing.UseStdout = false
	}

	return nil
}

// applyDefaults fills zero values left by a partial config file
func applyDefaults(c *models.Config) {
	defaults := Defaults()

	if c.Server.Port <= 0 {
		c.Server.Port = defaults.Server.Port
	}
	if c.Session.MaxReconnectAttempts <= 0 {
		c.Session.MaxReconnectAttempts = defaults.Session.MaxReconnectAttempts
	}
	if c.Session.ReconnectBaseDelaySec <= 0 {
		c.Session.ReconnectBaseDelaySec = defaults.Session.ReconnectBaseDelaySec
	}
	if c.Session.ReconnectMaxDelaySec <= 0 {
		c.Session.ReconnectMaxDelaySec = defaults.Session.ReconnectMaxDelaySec
	}
	if c.Session.StartTimeoutSec <= 0 {
		c.Session.StartTimeoutSec = defaults.Session.StartTimeoutSec
	}
	if c.Session.LivenessIntervalSec <= 0 {
		c.Session.LivenessIntervalSec = defaults.Session.LivenessIntervalSec
	}
	if c.Session.LivenessTimeoutSec <= 0 {
		c.Session.LivenessTimeoutSec = defaults.Session.LivenessTimeoutSec
	}
	if c.Adapter.TimeoutSec <= 0 {
		c.Adapter.TimeoutSec = defaults.Adapter.TimeoutSec
	}
	if c.CRM.WebhookTimeoutSec <= 0 {
		c.CRM.WebhookTimeoutSec = defaults.CRM.WebhookTimeoutSec
	}
	if c.CRM.SendTimeoutSec <= 0 {
		c.CRM.SendTimeoutSec = defaults.CRM.SendTimeoutSec
	}
	if c.Journal.RetentionDays <= 0 {
		c.Journal.RetentionDays = defaults.Journal.RetentionDays
	}
	if c.Journal.CleanupIntervalHours <= 0 {
		c.Journal.CleanupIntervalHours = defaults.Journal.CleanupIntervalHours
	}
	if c.Mode == "" {
		c.Mode = defaults.Mode
	}
}

func validate(c *models.Config) error {
	if strings.TrimSpace(c.Session.Name) == "" {
		return ErrMissingSessionName
	}
	if c.CRM.SyncKey == "" {
		return ErrMissingSyncKey
	}
	if c.CRM.WebhookURL == "" {
		return ErrMissingWebhookURL
	}
	if c.Adapter.BaseURL == "" {
		return ErrMissingAdapterURL
	}

	if err := validation.ValidateSessionName(c.Session.Name); err != nil {
		return models.ConfigError{Message: err.Error()}
	}

	checks := []error{
		validation.ValidateHTTPURL(c.CRM.WebhookURL, "CRM webhook URL"),
		validation.ValidateHTTPURL(c.Adapter.BaseURL, "adapter base URL"),
		validation.ValidateNumericRange(c.Server.Port, "port", 1, 65535),
		validation.ValidateNumericRange(c.Session.MaxReconnectAttempts, "max reconnect attempts", 1, 1000),
		validation.ValidateTimeout(c.CRM.WebhookTimeoutSec, "webhook timeout"),
		validation.ValidateTimeout(c.CRM.SendTimeoutSec, "send timeout"),
		validation.ValidateTimeout(c.Adapter.TimeoutSec, "adapter timeout"),
		validation.ValidateTimeout(c.Session.LivenessIntervalSec, "liveness interval"),
		validation.ValidateRetentionDays(c.Journal.RetentionDays),
	}
	for _, err := range checks {
		if err != nil {
			return models.ConfigError{Message: err.Error()}
		}
	}
	if c.Session.ReconnectMaxDelaySec < c.Session.ReconnectBaseDelaySec {
		return models.ConfigError{Message: "reconnect max delay must not be lower than the base delay"}
	}

	if c.CRM.Timezone != "" {
		if _, err := time.LoadLocation(c.CRM.Timezone); err != nil {
			return models.ConfigError{Message: fmt.Sprintf("invalid timezone %q: %v", c.CRM.Timezone, err)}
		}
	}

	if c.Journal.Path != "" {
		if err := security.ValidateFilePath(c.Journal.Path, true); err != nil {
			return models.ConfigError{Message: fmt.Sprintf("invalid journal path: %v", err)}
		}
	}

	return nil
}

// validateSecurity fails closed on a placeholder sync key in production only
func validateSecurity(c *models.Config) error {
	if !c.IsProduction() {
		return nil
	}
	if c.CRM.SyncKey == constants.DefaultSyncKey {
		return models.ConfigError{Message: "sync key is still the default placeholder (set SYNC_KEY environment variable)"}
	}
	if c.LogLevel == "debug" {
		return models.ConfigError{Message: "debug logging should not be used in production (security risk)"}
	}
	return nil
}

// Warnings lists non-fatal configuration problems worth surfacing at startup
func Warnings(c *models.Config) []string {
	var warnings []string
	if c.CRM.SyncKey == constants.DefaultSyncKey {
		warnings = append(warnings, "sync key is the default placeholder; set SYNC_KEY before exposing /send-message")
	}
	if c.Adapter.APIKey == "" {
		warnings = append(warnings, "adapter API key not set; set WAHA_API_KEY if the adapter requires one")
	}
	return warnings
}

// Location returns the time zone used for relay timestamps
func Location(c *models.Config) *time.Location {
	if c.CRM.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.CRM.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
