package generation

import (
	"context"
	"errors"
	"time"

	"github.com/PabloGalante/agent-dash/internal/domain"
)

// RetryPolicy decides which failures are retried and how long to wait.
// The wait before retry n (0-based) is InitialDelay * 2^n.
type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	IsRetryable  func(error) bool

	// Sleep waits for d. Nil means a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry is called before each wait.
	OnRetry func(attempt int, delay time.Duration, err error)
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   3,
		InitialDelay: time.Second,
		IsRetryable:  IsOverloaded,
	}
}

// IsOverloaded is the only retryable failure class.
func IsOverloaded(err error) bool {
	return errors.Is(err, domain.ErrBackendOverloaded)
}

// Retry invokes call until it succeeds, fails with a non-retryable error, or
// the policy's retry budget is spent. The last error is returned unchanged.
func Retry[T any](ctx context.Context, p RetryPolicy, call func(ctx context.Context) (T, error)) (T, error) {
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	for attempt := 0; ; attempt++ {
		v, err := call(ctx)
		if err == nil {
			return v, nil
		}
		if p.IsRetryable == nil || !p.IsRetryable(err) || attempt >= p.MaxRetries {
			var zero T
			return zero, err
		}

		delay := p.InitialDelay * time.Duration(1<<attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}
		if serr := sleep(ctx, delay); serr != nil {
			var zero T
			return zero, errors.Join(err, serr)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
