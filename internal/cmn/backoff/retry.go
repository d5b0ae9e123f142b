package backoff

import (
	"context"
	"time"

	"github.com/geetools/exportsched/internal/cmn/logger"
	"github.com/geetools/exportsched/internal/cmn/logger/tag"
)

type (
	// Operation to retry
	Operation func(ctx context.Context) error

	// IsRetriableFunc reports whether err is worth another attempt.
	IsRetriableFunc func(err error) bool
)

// Retry runs op until it succeeds, returns a non-retriable error, or the
// policy gives up. The last error from op is returned in the latter cases.
// If isRetriable is nil, all errors are considered retriable.
func Retry(ctx context.Context, op Operation, policy Policy, isRetriable IsRetriableFunc) error {
	if isRetriable == nil {
		isRetriable = func(_ error) bool { return true }
	}

	retrier := NewRetrier(policy)
	attempt := 0

	for {
		attempt++

		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Debug(ctx, "Retryable operation succeeded", tag.Attempt(attempt))
			}
			return nil
		}

		if !isRetriable(err) {
			return err
		}

		interval, retryErr := retrier.Next()
		if retryErr != nil {
			logger.Warn(ctx, "Retry attempts exhausted", tag.Attempt(attempt), tag.Error(err))
			return err
		}

		logger.Debug(ctx, "Retryable operation failed; scheduling retry",
			tag.Attempt(attempt),
			tag.Interval(interval),
			tag.Error(err),
		)

		if err := Wait(ctx, interval); err != nil {
			return err
		}
	}
}

// Wait blocks for d or until ctx is done. A non-positive d returns
// immediately unless ctx is already done.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
