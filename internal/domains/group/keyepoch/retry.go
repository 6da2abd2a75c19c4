package keyepoch

import (
	"context"
	"time"
)

// retryLinear replaces the source's thread-local-timer-plus-fiber-sleep
// retry idiom (spec §9 DESIGN NOTES) with a generic, deadline-cancellable
// helper: up to attempts calls to fn, spaced step*attemptNumber apart (spec
// §5's "rotation publish retries 3x with linear back-off", and spec §4.7's
// upload step "up to three retries spaced 200ms x attempt").
//
// fn returning a nil error stops the loop immediately. The context's
// deadline is checked before every sleep so a caller's inherited 180s
// request deadline aborts retries at the next suspension point rather than
// running them out.
func retryLinear(ctx context.Context, attempts int, step time.Duration, fn func(attempt int) error) error {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(step * time.Duration(attempt)):
		}
	}
	return lastErr
}
