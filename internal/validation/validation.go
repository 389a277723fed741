package validation

import (
	"fmt"
	"net/url"
	"unicode"
)

// MaxSessionNameLength bounds adapter session names
const MaxSessionNameLength = 64

// ValidateSessionName accepts the names the adapter allows in URL paths
func ValidateSessionName(sessionName string) error {
	if sessionName == "" {
		return fmt.Errorf("session name cannot be empty")
	}

	if len(sessionName) > MaxSessionNameLength {
		return fmt.Errorf("session name too long (max %d characters)", MaxSessionNameLength)
	}

	for _, char := range sessionName {
		if !unicode.IsLetter(char) && !unicode.IsDigit(char) && char != '_' && char != '-' {
			return fmt.Errorf("session name must contain only letters, numbers, underscores, and dashes")
		}
	}

	return nil
}

// ValidateHTTPURL requires an absolute http or https URL with a host
func ValidateHTTPURL(raw, fieldName string) error {
	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("invalid %s: %q", fieldName, raw)
	}
	return nil
}

// ValidateNumericRange validates numeric values against bounds
func ValidateNumericRange(value int, fieldName string, min, max int) error {
	if value < min {
		return fmt.Errorf("%s too small (min %d)", fieldName, min)
	}

	if value > max {
		return fmt.Errorf("%s too large (max %d)", fieldName, max)
	}

	return nil
}

// ValidateTimeout validates timeout values
func ValidateTimeout(timeoutSec int, fieldName string) error {
	if timeoutSec < 1 {
		return fmt.Errorf("%s must be at least 1 second", fieldName)
	}

	if timeoutSec > 3600 {
		return fmt.Errorf("%s too large (max 3600 seconds)", fieldName)
	}

	return nil
}

// ValidateRetentionDays validates the journal retention period
func ValidateRetentionDays(days int) error {
	return ValidateNumericRange(days, "retention days", 1, 3650)
}
