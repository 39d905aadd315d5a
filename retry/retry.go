package retry

import (
	"context"
	"time"
)

// Policy bounds how an operation is retried.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	// Retryable selects the errors worth another attempt. Nil retries nothing.
	Retryable func(error) bool
	// OnRetry is called before each wait.
	OnRetry func(attempt int, delay time.Duration, err error)
	// Sleep waits for d or until ctx is done. Defaults to a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Directory is the retry budget for directory writes racing replication:
// 4 attempts, 2s initial delay, doubling.
func Directory(retryable func(error) bool) Policy {
	return Policy{
		MaxAttempts:  4,
		InitialDelay: 2 * time.Second,
		Multiplier:   2,
		Retryable:    retryable,
	}
}

// Do runs op until it succeeds, returns a non-retryable error, or the attempt
// budget is spent. The last error is returned.
func Do(ctx context.Context, op func(ctx context.Context) error, policy Policy) error {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	multiplier := policy.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	sleep := policy.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	delay := policy.InitialDelay
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if attempt == attempts || policy.Retryable == nil || !policy.Retryable(err) {
			return err
		}

		if policy.OnRetry != nil {
			policy.OnRetry(attempt, delay, err)
		}
		if serr := sleep(ctx, delay); serr != nil {
			return err
		}
		delay = time.Duration(float64(delay) * multiplier)
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
