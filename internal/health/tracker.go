// Package health tracks recent errors and derives health signals for the
// operator status surface. The rolling error log lives in the durable store
// under the recent_errors state key, so it survives restarts.
package health

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/otpwatch/go-otp-forwarder/internal/domain"
	"github.com/otpwatch/go-otp-forwarder/internal/repo"
)

const (
	// retention bounds the audit trail; rateWindow is deliberately shorter
	// so the rate signal reacts within the hour while the log keeps a full
	// day of context.
	retention  = 24 * time.Hour
	rateWindow = time.Hour

	// maxEntries caps the stored log regardless of age.
	maxEntries = 100

	// DefaultMaxErrorsPerHour is the rate above which RateHigh fires.
	DefaultMaxErrorsPerHour = 10
)

// Summary is an aggregate view of the rolling error log.
type Summary struct {
	Total      int                 `json:"total"`
	Types      map[string]int      `json:"types"`
	RecentRate int                 `json:"recent_rate"`
	LastError  *domain.ErrorRecord `json:"last_error,omitempty"`
}

// Tracker records errors into the rolling log and answers rate queries.
type Tracker struct {
	store      *repo.Store
	maxPerHour int
	withStack  bool
	now        func() time.Time
}

// NewTracker constructs a Tracker over the given store. maxPerHour <= 0
// selects the default threshold.
func NewTracker(store *repo.Store, maxPerHour int) *Tracker {
	if maxPerHour <= 0 {
		maxPerHour = DefaultMaxErrorsPerHour
	}
	return &Tracker{
		store:      store,
		maxPerHour: maxPerHour,
		withStack:  true,
		now:        time.Now,
	}
}

// Record appends an error to the rolling log, pruning entries older than the
// retention window and capping the log at the newest entries. Failures to
// persist are logged and swallowed; error tracking never takes the process
// down.
func (t *Tracker) Record(ctx context.Context, errType, message, opContext string) {
	now := t.now().UTC()
	rec := domain.ErrorRecord{
		Type:      errType,
		Message:   message,
		Context:   opContext,
		Timestamp: now,
	}
	if t.withStack {
		rec.Stack = string(debug.Stack())
	}

	var recent []domain.ErrorRecord
	t.store.GetState(ctx, domain.StateRecentErrors, &recent)
	recent = append(recent, rec)

	// Prune the retention window on every write.
	cutoff := now.Add(-retention)
	kept := recent[:0]
	for _, e := range recent {
		if e.Timestamp.After(cutoff) {
			kept = append(kept, e)
		}
	}
	if len(kept) > maxEntries {
		kept = kept[len(kept)-maxEntries:]
	}

	if !t.store.SetState(ctx, domain.StateRecentErrors, kept) {
		log.Error().Str("type", errType).Msg("failed to persist error record")
	}

	log.Error().
		Str("error_type", errType).
		Str("context", opContext).
		Str("message", message).
		Msg("error recorded")
}

// Rate returns the number of errors recorded within the last hour. The rate
// window is intentionally narrower than the retention window.
func (t *Tracker) Rate(ctx context.Context) int {
	var recent []domain.ErrorRecord
	t.store.GetState(ctx, domain.StateRecentErrors, &recent)

	oneHourAgo := t.now().UTC().Add(-rateWindow)
	n := 0
	for _, e := range recent {
		if e.Timestamp.After(oneHourAgo) {
			n++
		}
	}
	return n
}

// RateHigh reports whether the hourly error rate exceeds the configured
// threshold.
func (t *Tracker) RateHigh(ctx context.Context) bool {
	return t.Rate(ctx) > t.maxPerHour
}

// Summary aggregates the rolling log by type and includes the most recent
// entry.
func (t *Tracker) Summary(ctx context.Context) Summary {
	var recent []domain.ErrorRecord
	t.store.GetState(ctx, domain.StateRecentErrors, &recent)

	s := Summary{Types: map[string]int{}, RecentRate: t.Rate(ctx)}
	s.Total = len(recent)
	for _, e := range recent {
		typ := e.Type
		if typ == "" {
			typ = "Unknown"
		}
		s.Types[typ]++
	}
	if len(recent) > 0 {
		last := recent[len(recent)-1]
		last.Stack = "" // stack traces stay in the store, not in summaries
		s.LastError = &last
	}
	return s
}
