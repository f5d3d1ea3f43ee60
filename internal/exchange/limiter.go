package exchange

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/jpillora/backoff"
	"golang.org/x/time/rate"
)

// Limiter serializes outbound calls to a minimum spacing and retries
// transient failures with doubling backoff. It is the process-wide
// singleton every exchange call, public or signed, passes through via Do.
type Limiter struct {
	gate *rate.Limiter

	maxAttempts   int
	backoffBaseMs int
	backoffCapMs  int
}

// NewLimiter builds the rate-limited retry queue. intervalMs is the minimum spacing between
// consecutive request starts (REQUEST_INTERVAL_MS).
func NewLimiter(intervalMs, maxAttempts, backoffBaseMs, backoffCapMs int) *Limiter {
	return &Limiter{
		gate:          rate.NewLimiter(rate.Every(time.Duration(intervalMs)*time.Millisecond), 1),
		maxAttempts:   maxAttempts,
		backoffBaseMs: backoffBaseMs,
		backoffCapMs:  backoffCapMs,
	}
}

// HTTPStatusError lets callers report the response status without pulling
// in an HTTP client dependency here; the go-binance client surfaces its own
// *common.APIError which the facade translates into one of these before
// calling Do's classifier.
type HTTPStatusError struct {
	StatusCode int
	Err        error
}

func (e *HTTPStatusError) Error() string { return e.Err.Error() }
func (e *HTTPStatusError) Unwrap() error { return e.Err }

// retryable reports whether an error should be retried: everything except
// 4xx-excluding-429 is transient.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode == http.StatusTooManyRequests {
			return true
		}
		if statusErr.StatusCode >= 400 && statusErr.StatusCode < 500 {
			return false
		}
	}
	return true
}

// Do acquires a slot (waiting out the minimum spacing), runs fn, and
// retries on transient failure up to maxAttempts with backoff doubling from
// backoffBaseMs capped at backoffCapMs. The last error is returned after
// the final attempt.
func (l *Limiter) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	b := &backoff.Backoff{
		Min:    time.Duration(l.backoffBaseMs) * time.Millisecond,
		Max:    time.Duration(l.backoffCapMs) * time.Millisecond,
		Factor: 2,
		Jitter: false,
	}

	var lastErr error
	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		if err := l.gate.Wait(ctx); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if !retryable(lastErr) {
			return lastErr
		}

		if attempt == l.maxAttempts {
			break
		}

		wait := b.Duration()
		log.Printf("[exchange] transient error (attempt %d/%d), retrying in %s: %v", attempt, l.maxAttempts, wait, lastErr)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return lastErr
}
