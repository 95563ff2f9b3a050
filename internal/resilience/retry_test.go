package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

// newTestRetrier returns a retrier with deterministic jitter (factor 1.0)
// that records requested delays instead of sleeping.
func newTestRetrier(t *testing.T, attempts int, base, max time.Duration) (*Retrier, *[]time.Duration) {
	t.Helper()
	r := NewRetrier("test", attempts, base, max)
	r.randFloat = func() float64 { return 1.0 }
	delays := &[]time.Duration{}
	r.sleep = func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
	return r, delays
}

func TestRetrier_EventualSuccess(t *testing.T) {
	r, delays := newTestRetrier(t, 3, time.Second, time.Minute)

	var calls int
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errBoom
		}
		return nil
	})
	if err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
	if calls != 3 {
		t.Fatalf("invoked %d times, want exactly 3", calls)
	}
	if len(*delays) != 2 {
		t.Fatalf("slept %d times, want 2", len(*delays))
	}
}

func TestRetrier_ExhaustionReturnsOriginalError(t *testing.T) {
	r, _ := newTestRetrier(t, 3, time.Second, time.Minute)

	var calls int
	err := r.Do(context.Background(), failingOp(&calls))
	if err != errBoom {
		t.Fatalf("err = %v, want the original error unwrapped", err)
	}
	if calls != 3 {
		t.Fatalf("invoked %d times, want exactly 3", calls)
	}
}

func TestRetrier_BackoffDoublesAndCaps(t *testing.T) {
	r, delays := newTestRetrier(t, 5, time.Second, 3*time.Second)

	var calls int
	_ = r.Do(context.Background(), failingOp(&calls))

	want := []time.Duration{
		time.Second,     // base * 2^0
		2 * time.Second, // base * 2^1
		3 * time.Second, // capped at max
		3 * time.Second,
	}
	if len(*delays) != len(want) {
		t.Fatalf("slept %d times, want %d", len(*delays), len(want))
	}
	for i, d := range *delays {
		if d != want[i] {
			t.Fatalf("delay[%d] = %v, want %v", i, d, want[i])
		}
	}
}

func TestRetrier_JitterRange(t *testing.T) {
	r := NewRetrier("test", 2, 10*time.Second, time.Minute)

	r.randFloat = func() float64 { return 0 }
	if d := r.backoff(0); d != 5*time.Second {
		t.Fatalf("jitter floor delay = %v, want 5s (factor 0.5)", d)
	}
	r.randFloat = func() float64 { return 1 }
	if d := r.backoff(0); d != 10*time.Second {
		t.Fatalf("jitter ceiling delay = %v, want 10s (factor 1.0)", d)
	}
}

func TestRetrier_CancelAbortsWait(t *testing.T) {
	r := NewRetrier("test", 3, time.Hour, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	var calls int
	r.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return sleepCtx(ctx, d)
	}

	err := r.Do(ctx, failingOp(&calls))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Fatalf("invoked %d times, want 1 (no retry after cancel)", calls)
	}
}
