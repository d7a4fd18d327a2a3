package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/alejandrodnm/perpbot/internal/domain"
)

// withSequenceRetry runs fn and, if it fails with an account sequence
// mismatch, waits delay and retries up to attempts more times. Any other
// error is returned immediately.
func withSequenceRetry[T any](ctx context.Context, attempts int, delay time.Duration, op string, fn func() (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		v, err := fn()
		if err == nil {
			return v, nil
		}
		if !domain.IsSequenceMismatch(err) || attempt >= attempts {
			return zero, err
		}
		slog.Warn("account sequence mismatch, retrying",
			"op", op,
			"attempt", attempt+1,
			"max_retries", attempts,
			"delay", delay,
		)
		if err := sleepCtx(ctx, delay); err != nil {
			return zero, err
		}
	}
}

// sleepCtx waits d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
