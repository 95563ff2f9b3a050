// Package resilience provides the circuit breaker and retry-with-backoff
// wrappers applied around every fallible network-facing operation. This file
// implements the retry half: capped exponential backoff with jitter.
package resilience

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
)

// Retrier reruns a failed Operation up to MaxAttempts times. The delay before
// retrying attempt n (0-indexed) is min(BaseDelay*2^n, MaxDelay), scaled by a
// uniform random factor in [0.5, 1.0] so independent processes do not retry
// in lockstep. When every attempt fails, the error of the final attempt is
// returned unchanged.
type Retrier struct {
	name        string
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration

	// sleep and randFloat are replaceable in tests.
	sleep     func(ctx context.Context, d time.Duration) error
	randFloat func() float64
}

// NewRetrier constructs a Retrier. name identifies the wrapped operation in
// logs.
func NewRetrier(name string, maxAttempts int, baseDelay, maxDelay time.Duration) *Retrier {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	if maxDelay <= 0 {
		maxDelay = time.Minute
	}
	return &Retrier{
		name:        name,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
		sleep:       sleepCtx,
		randFloat:   rand.Float64,
	}
}

// Do runs op, retrying on failure. Each failed attempt is logged before the
// backoff delay. Context cancellation aborts the wait and returns the
// context error.
func (r *Retrier) Do(ctx context.Context, op Operation) error {
	var lastErr error
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if attempt == r.maxAttempts-1 {
			break
		}

		delay := r.backoff(attempt)
		log.Warn().
			Str("operation", r.name).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Err(lastErr).
			Msg("attempt failed, retrying")

		if err := r.sleep(ctx, delay); err != nil {
			return err
		}
	}

	log.Error().
		Str("operation", r.name).
		Int("attempts", r.maxAttempts).
		Err(lastErr).
		Msg("all retry attempts failed")
	return lastErr
}

// Wrap returns op with the retry policy applied.
func (r *Retrier) Wrap(op Operation) Operation {
	return func(ctx context.Context) error {
		return r.Do(ctx, op)
	}
}

// backoff computes the jittered delay after the given 0-indexed failed
// attempt.
func (r *Retrier) backoff(attempt int) time.Duration {
	delay := r.baseDelay << uint(attempt)
	if delay > r.maxDelay || delay <= 0 {
		delay = r.maxDelay
	}
	factor := 0.5 + r.randFloat()*0.5
	return time.Duration(float64(delay) * factor)
}

// sleepCtx blocks for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
