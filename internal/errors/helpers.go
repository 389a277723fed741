package errors

import (
	"fmt"
	"net/http"
)

// NewUnauthorized reports a missing or mismatched sync key
func NewUnauthorized() *AppError {
	return New(ErrCodeUnauthorized, "invalid sync key").
		WithUserMessage("Invalid or missing key")
}

// NewInvalidRequest reports malformed send input
func NewInvalidRequest(field, reason string) *AppError {
	return New(ErrCodeInvalidRequest, fmt.Sprintf("%s: %s", field, reason)).
		WithContext("field", field).
		WithUserMessage(fmt.Sprintf("Invalid %s: %s", field, reason))
}

// NewNotConnected reports that the session cannot carry outbound traffic right now
func NewNotConnected(state string) *AppError {
	appErr := New(ErrCodeNotConnected, "messaging session is not connected").
		WithContext("state", state).
		WithUserMessage("WhatsApp session is not connected, try again later")
	appErr.Retryable = true
	return appErr
}

// NewSendFailed wraps an adapter send error, keeping its detail
func NewSendFailed(err error) *AppError {
	return Wrap(err, ErrCodeSendFailed, "adapter send failed").
		WithUserMessage("Failed to send message")
}

// NewDeliveryFailed reports a webhook delivery that did not succeed
func NewDeliveryFailed(statusCode int, err error) *AppError {
	appErr := Wrap(err, ErrCodeDeliveryFailed, "webhook delivery failed")
	if statusCode > 0 {
		appErr.Message = fmt.Sprintf("webhook delivery failed with status %d", statusCode)
		appErr.WithContext("status_code", statusCode)
	}
	return appErr
}

// NewSessionFatal reports that reconnect attempts are exhausted
func NewSessionFatal(attempts int) *AppError {
	return New(ErrCodeSessionFatal, fmt.Sprintf("reconnect attempts exhausted after %d tries", attempts)).
		WithContext("attempts", attempts).
		WithUserMessage("Session terminated, restart or re-authenticate required")
}

// HTTPStatus maps an error to the status code returned to HTTP callers
func HTTPStatus(err error) int {
	switch GetCode(err) {
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case ErrCodeNotConnected:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
