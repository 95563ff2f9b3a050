// Package resilience provides the circuit breaker and retry-with-backoff
// wrappers applied around every fallible network-facing operation. Both wrap
// an abstract Operation and compose freely; a breaker wrapping a retrier
// counts the whole retry sequence as a single call.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Operation is a fallible, cancelable unit of work.
type Operation func(ctx context.Context) error

// ErrOpen is returned when the breaker rejects a call without invoking the
// wrapped operation. Check with errors.Is.
var ErrOpen = errors.New("circuit breaker open")

// BreakerState is the current position of a circuit breaker.
type BreakerState int

const (
	// StateClosed lets calls through and counts failures.
	StateClosed BreakerState = iota
	// StateOpen rejects calls until the recovery timeout elapses.
	StateOpen
	// StateHalfOpen lets exactly one trial call through.
	StateHalfOpen
)

// String returns the state name for logs.
func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Breaker is a circuit breaker owned by one logical operation. State is
// process-local and resets on restart. Safe for concurrent use.
//
// Lifecycle: CLOSED counts failures up to the threshold, then trips to OPEN.
// OPEN rejects calls fast until the recovery timeout has elapsed since the
// last failure, then the next call runs as a HALF_OPEN trial: success closes
// the breaker and clears the count, failure reopens it.
type Breaker struct {
	name             string
	failureThreshold int
	recoveryTimeout  time.Duration

	// now is replaceable in tests.
	now func() time.Time

	mu           sync.Mutex
	state        BreakerState
	failureCount int
	lastFailure  time.Time
}

// NewBreaker constructs a closed breaker. name identifies the wrapped
// operation in logs and errors.
func NewBreaker(name string, failureThreshold int, recoveryTimeout time.Duration) *Breaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if recoveryTimeout <= 0 {
		recoveryTimeout = time.Minute
	}
	return &Breaker{
		name:             name,
		failureThreshold: failureThreshold,
		recoveryTimeout:  recoveryTimeout,
		now:              time.Now,
	}
}

// Do runs op through the breaker.
func (b *Breaker) Do(ctx context.Context, op Operation) error {
	if err := b.allow(); err != nil {
		return err
	}

	err := op(ctx)
	if err != nil {
		b.onFailure()
		return err
	}
	b.onSuccess()
	return nil
}

// Wrap returns op guarded by the breaker.
func (b *Breaker) Wrap(op Operation) Operation {
	return func(ctx context.Context) error {
		return b.Do(ctx, op)
	}
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// FailureCount returns the consecutive-failure counter.
func (b *Breaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}

// allow decides whether a call may proceed, moving OPEN to HALF_OPEN once
// the recovery timeout has elapsed.
func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return nil
	}
	if b.now().Sub(b.lastFailure) > b.recoveryTimeout {
		b.state = StateHalfOpen
		log.Info().Str("operation", b.name).Msg("circuit breaker half-open, attempting trial call")
		return nil
	}
	return fmt.Errorf("%s: %w", b.name, ErrOpen)
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		log.Info().Str("operation", b.name).Msg("circuit breaker reset to closed")
	}
	b.failureCount = 0
	b.state = StateClosed
}

func (b *Breaker) onFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	b.lastFailure = b.now()

	// A failed trial call reopens immediately regardless of the counter.
	if b.state == StateHalfOpen || b.failureCount >= b.failureThreshold {
		b.state = StateOpen
		log.Warn().
			Str("operation", b.name).
			Int("failure_count", b.failureCount).
			Msg("circuit breaker open")
	}
}
