package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rerrors "github.com/otherjamesbrown/recap-bot/pkg/errors"
)

func fastPolicy() Policy {
	return Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, BackoffFactor: 2}
}

func TestCalculateBackoff(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 1*time.Second, p.CalculateBackoff(0))
	assert.Equal(t, 2*time.Second, p.CalculateBackoff(1))
	assert.Equal(t, 4*time.Second, p.CalculateBackoff(2))
	assert.Equal(t, 10*time.Second, p.CalculateBackoff(5))
}

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	var waits []time.Duration
	err := Do(context.Background(), fastPolicy(), func(attempt int, err error, wait time.Duration) {
		waits = append(waits, wait)
	}, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return rerrors.FromStatus("fireflies", "search", 503, "")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, waits)
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(), nil, func(ctx context.Context) error {
		calls++
		return rerrors.FromStatus("slack", "post", 401, "invalid_auth")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, rerrors.IsUnauthorized(err))
}

func TestDo_Exhausted(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(), nil, func(ctx context.Context) error {
		calls++
		return context.DeadlineExceeded
	})

	var ex *ExhaustedError
	require.True(t, errors.As(err, &ex))
	assert.Equal(t, 3, ex.Attempts)
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDo_CancelInterruptsBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 3, InitialBackoff: time.Hour, BackoffFactor: 2}

	done := make(chan error, 1)
	go func() {
		done <- Do(ctx, p, nil, func(ctx context.Context) error {
			return rerrors.FromStatus("calendar", "events", 500, "")
		})
	}()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Do did not return after cancel")
	}
}
