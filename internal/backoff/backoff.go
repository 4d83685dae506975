// Package backoff implements exponential backoff with jitter for retrying
// transient failures against the control plane and providers.
package backoff

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// ErrExhausted is returned when every attempt has failed.
var ErrExhausted = errors.New("max retry attempts exhausted")

// Policy parameterizes the backoff curve. Delay for attempt n (1-indexed) is
// min(Max, Initial * Factor^(n-1)) plus up to Jitter fraction of random slack.
type Policy struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64
	Jitter  float64
}

// DefaultPolicy suits HTTP calls to the control plane: 100ms initial,
// doubling, capped at 5s.
func DefaultPolicy() Policy {
	return Policy{Initial: 100 * time.Millisecond, Max: 5 * time.Second, Factor: 2, Jitter: 0.1}
}

// Delay computes the sleep before retrying after a failed attempt.
func (p Policy) Delay(attempt int) time.Duration {
	return p.delayWith(attempt, rand.Float64()) // #nosec G404 -- jitter needs no crypto randomness
}

func (p Policy) delayWith(attempt int, random float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	base := float64(p.Initial) * math.Pow(p.Factor, exp)
	total := base + base*p.Jitter*random
	return time.Duration(math.Min(float64(p.Max), total))
}

// Sleep waits the backoff delay for attempt, or returns early with ctx.Err()
// on cancellation.
func Sleep(ctx context.Context, p Policy, attempt int) error {
	d := p.Delay(attempt)
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

// Retry runs fn up to maxAttempts times with backoff between failures. fn
// returning a nil error ends the loop; a non-retryable error (reported by
// retryable, which may be nil to retry everything) ends it immediately.
func Retry(ctx context.Context, p Policy, maxAttempts int, retryable func(error) bool, fn func(attempt int) error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err
		if retryable != nil && !retryable(err) {
			return err
		}
		if attempt < maxAttempts {
			if err := Sleep(ctx, p, attempt); err != nil {
				return err
			}
		}
	}
	return errors.Join(ErrExhausted, lastErr)
}
