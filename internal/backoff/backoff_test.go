package backoff

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDelayCurve(t *testing.T) {
	p := Policy{Initial: 100 * time.Millisecond, Max: 500 * time.Millisecond, Factor: 2, Jitter: 0}
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 500 * time.Millisecond}, // clamped
		{10, 500 * time.Millisecond},
	}
	for _, tc := range cases {
		if got := p.delayWith(tc.attempt, 0.5); got != tc.want {
			t.Errorf("attempt %d: delay %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestDelayJitter(t *testing.T) {
	p := Policy{Initial: 100 * time.Millisecond, Max: time.Second, Factor: 2, Jitter: 0.1}
	if got := p.delayWith(1, 1.0); got != 110*time.Millisecond {
		t.Errorf("full jitter delay %v, want 110ms", got)
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	p := Policy{Initial: time.Millisecond, Max: 10 * time.Millisecond, Factor: 2}
	calls := 0
	err := Retry(context.Background(), p, 5, nil, func(attempt int) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if calls != 3 {
		t.Fatalf("fn called %d times, want 3", calls)
	}
}

func TestRetryExhausted(t *testing.T) {
	p := Policy{Initial: time.Millisecond, Max: 5 * time.Millisecond, Factor: 2}
	boom := errors.New("boom")
	err := Retry(context.Background(), p, 3, nil, func(int) error { return boom })
	if !errors.Is(err, ErrExhausted) || !errors.Is(err, boom) {
		t.Fatalf("Retry error = %v, want ErrExhausted wrapping boom", err)
	}
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	p := Policy{Initial: time.Millisecond, Max: 5 * time.Millisecond, Factor: 2}
	fatal := errors.New("bad request")
	calls := 0
	err := Retry(context.Background(), p, 5, func(err error) bool { return !errors.Is(err, fatal) }, func(int) error {
		calls++
		return fatal
	})
	if !errors.Is(err, fatal) {
		t.Fatalf("Retry error = %v, want fatal", err)
	}
	if calls != 1 {
		t.Fatalf("fn called %d times, want 1", calls)
	}
}

func TestRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := Policy{Initial: time.Millisecond, Max: 5 * time.Millisecond, Factor: 2}
	err := Retry(ctx, p, 3, nil, func(int) error { return errors.New("never retried") })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Retry error = %v, want context.Canceled", err)
	}
}
