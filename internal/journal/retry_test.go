package journal

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryableDBError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"locked", errors.New("database is locked"), true},
		{"table locked", errors.New("database table is locked"), true},
		{"io", errors.New("disk I/O error"), true},
		{"cannot open", errors.New("unable to open database file: no such file"), true},
		{"constraint", errors.New("UNIQUE constraint failed"), false},
		{"cancelled", fmt.Errorf("wrapped: %w", context.Canceled), false},
		{"deadline", context.DeadlineExceeded, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryableDBError(tt.err))
		})
	}
}

func TestRetryableOperation_RetriesLockedThenSucceeds(t *testing.T) {
	calls := 0
	err := retryableOperation(context.Background(), func() error {
		calls++
		if calls < 2 {
			return errors.New("database is locked")
		}
		return nil
	}, "test op")

	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryableOperation_NonRetryableStopsImmediately(t *testing.T) {
	calls := 0
	err := retryableOperation(context.Background(), func() error {
		calls++
		return errors.New("no such table: x")
	}, "test op")

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "test op failed")
	assert.Equal(t, 1, calls)
}
