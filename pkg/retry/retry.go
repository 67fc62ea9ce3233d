// Package retry runs collaborator calls under a bounded exponential backoff.
package retry

import (
	"context"
	"fmt"
	"time"

	rerrors "github.com/otherjamesbrown/recap-bot/pkg/errors"
)

// Policy defines how many times a call is attempted and how long to wait between tries.
type Policy struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	BackoffFactor  float64       `yaml:"backoff_factor"`
}

// DefaultPolicy is three attempts waiting 1s then 2s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     10 * time.Second,
		BackoffFactor:  2.0,
	}
}

// CalculateBackoff returns the wait after the given zero-based retry.
func (p Policy) CalculateBackoff(retry int) time.Duration {
	backoff := p.InitialBackoff
	for i := 0; i < retry; i++ {
		backoff = time.Duration(float64(backoff) * p.BackoffFactor)
		if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	return backoff
}

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Notify is called before each backoff sleep.
type Notify func(attempt int, err error, wait time.Duration)

// Do calls fn until it succeeds, returns a non-retryable error, or the policy
// runs out. Cancellation of ctx interrupts the backoff sleep.
func Do(ctx context.Context, p Policy, notify Notify, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !rerrors.IsRetryableError(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		wait := p.CalculateBackoff(attempt - 1)
		if notify != nil {
			notify(attempt, err, wait)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return &ExhaustedError{Attempts: attempts, Last: err}
}
