// Package retry provides the shared retry-with-backoff utility used by every
// external-call client (LLM, record store, forum post, lookup, notification).
package retry

import (
	"context"
	"time"
)

// Policy controls how many times an operation is attempted and how long to
// wait between attempts. The delay grows linearly: attempt n waits n*Delay.
type Policy struct {
	// Attempts is the total attempt budget, including the first call.
	Attempts int
	// Delay is the base backoff unit.
	Delay time.Duration
	// Retryable reports whether an error is worth another attempt.
	// A nil predicate retries every error.
	Retryable func(error) bool
}

// DefaultPolicy matches the budget used by the upstream API wrappers:
// three attempts with a 2s linear backoff.
func DefaultPolicy() Policy {
	return Policy{Attempts: 3, Delay: 2 * time.Second}
}

// Do runs op until it succeeds, the attempt budget is exhausted, the error is
// not retryable, or ctx is cancelled. The last error is returned.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	if p.Attempts < 1 {
		p.Attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
		if attempt == p.Attempts {
			break
		}

		delay := time.Duration(attempt) * p.Delay
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}
