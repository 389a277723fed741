package retry

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// Strategy selects how the delay grows between attempts
type Strategy int

const (
	// Exponential multiplies the delay by Multiplier on every attempt
	Exponential Strategy = iota
	// Linear grows the delay by InitialDelay on every attempt
	Linear
)

// BackoffConfig contains configuration for backoff
type BackoffConfig struct {
	Strategy     Strategy      `json:"strategy"`
	InitialDelay time.Duration `json:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay"`
	Multiplier   float64       `json:"multiplier"`
	MaxAttempts  int           `json:"max_attempts"`
	Jitter       bool          `json:"jitter"`
}

// DefaultBackoffConfig returns a sensible default configuration
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Strategy:     Exponential,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		MaxAttempts:  5,
		Jitter:       true,
	}
}

// ReconnectBackoffConfig returns the linear schedule used between session reconnects:
// delay(n) = min(n * base, max)
func ReconnectBackoffConfig(base, max time.Duration, maxAttempts int) BackoffConfig {
	return BackoffConfig{
		Strategy:     Linear,
		InitialDelay: base,
		MaxDelay:     max,
		MaxAttempts:  maxAttempts,
	}
}

// Backoff implements exponential or linear backoff with optional jitter
type Backoff struct {
	config BackoffConfig
}

// NewBackoff creates a new backoff instance
func NewBackoff(config BackoffConfig) *Backoff {
	return &Backoff{
		config: config,
	}
}

// MaxAttempts returns the configured attempt ceiling
func (b *Backoff) MaxAttempts() int {
	return b.config.MaxAttempts
}

// RetryWithPredicate executes the operation with backoff, using a predicate to determine if errors are retryable
func (b *Backoff) RetryWithPredicate(ctx context.Context, operation func() error, isRetryable func(error) bool) error {
	var lastErr error

	for attempt := 1; attempt <= b.config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := operation()
		if err == nil {
			return nil
		}

		lastErr = err

		if !isRetryable(err) {
			return err
		}

		// Don't wait after the last attempt
		if attempt == b.config.MaxAttempts {
			break
		}

		timer := time.NewTimer(b.calculateDelay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}

// calculateDelay computes the delay for the given attempt with optional jitter
func (b *Backoff) calculateDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	var delay float64
	switch b.config.Strategy {
	case Linear:
		delay = float64(b.config.InitialDelay) * float64(attempt)
	default:
		delay = float64(b.config.InitialDelay)
		for i := 1; i < attempt; i++ {
			delay *= b.config.Multiplier
		}
	}

	if b.config.MaxDelay > 0 && delay > float64(b.config.MaxDelay) {
		delay = float64(b.config.MaxDelay)
	}

	// +-25% randomness
	if b.config.Jitter {
		jitter := delay * 0.25
		delay += (secureFloat64() - 0.5) * 2 * jitter

		if delay < 0 {
			delay = float64(b.config.InitialDelay)
		}
		if b.config.MaxDelay > 0 && delay > float64(b.config.MaxDelay) {
			delay = float64(b.config.MaxDelay)
		}
	}

	return time.Duration(delay)
}

// GetNextDelay returns the delay that would be used for the given attempt
func (b *Backoff) GetNextDelay(attempt int) time.Duration {
	return b.calculateDelay(attempt)
}

// secureFloat64 generates a cryptographically secure float64 between 0 and 1
func secureFloat64() float64 {
	max := big.NewInt(0).SetUint64(math.MaxUint64)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return float64(time.Now().UnixNano()%1000000) / 1000000.0
	}
	return float64(n.Uint64()) / float64(math.MaxUint64)
}
