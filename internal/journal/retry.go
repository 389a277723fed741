package journal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"crmbridge/internal/constants"
	"crmbridge/internal/retry"

	"github.com/sirupsen/logrus"
)

// writeBackoff retries short-lived lock contention on writes
var writeBackoff = retry.BackoffConfig{
	Strategy:     retry.Linear,
	InitialDelay: 50 * time.Millisecond,
	MaxDelay:     500 * time.Millisecond,
	MaxAttempts:  3,
}

func retryableOperation(ctx context.Context, operation func() error, operationName string) error {
	err := retry.NewBackoff(writeBackoff).RetryWithPredicate(ctx, operation, isRetryableDBError)
	if err != nil {
		return fmt.Errorf("%s failed: %w", operationName, err)
	}
	return nil
}

// OpenWithRetry opens the journal, retrying transient failures with exponential backoff
func OpenWithRetry(ctx context.Context, dbPath string, logger *logrus.Logger) (*Journal, error) {
	cfg := retry.DefaultBackoffConfig()
	cfg.InitialDelay = time.Duration(constants.DefaultJournalInitialBackoffMs) * time.Millisecond
	cfg.MaxDelay = time.Duration(constants.DefaultJournalMaxBackoffMs) * time.Millisecond
	cfg.MaxAttempts = constants.DefaultJournalOpenAttempts

	var (
		j       *Journal
		attempt int
	)
	err := retry.NewBackoff(cfg).RetryWithPredicate(ctx, func() error {
		attempt++
		var openErr error
		j, openErr = Open(ctx, dbPath)
		if openErr != nil {
			logger.WithError(openErr).WithFields(logrus.Fields{
				"attempt":      attempt,
				"max_attempts": cfg.MaxAttempts,
			}).Warn("Failed to open session journal")
		}
		return openErr
	}, isRetryableDBError)
	if err != nil {
		return nil, err
	}
	return j, nil
}

// isRetryableDBError determines if a database error is worth retrying
func isRetryableDBError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "database is locked"),
		strings.Contains(errStr, "database table is locked"),
		strings.Contains(errStr, "disk I/O error"),
		strings.Contains(errStr, "unable to open database file"):
		return true
	default:
		return false
	}
}
