// Package monitor runs the poll loop that drives fetching, deduplication,
// and delivery. One logical loop owns all network-facing work; only a single
// fetch/notify cycle is ever in flight. The loop is the outermost error
// boundary: every cycle failure is caught, recorded through the error
// tracker, and the loop continues. Only an operator stop or restart request
// terminates it.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/otpwatch/go-otp-forwarder/internal/domain"
	"github.com/otpwatch/go-otp-forwarder/internal/health"
	"github.com/otpwatch/go-otp-forwarder/internal/repo"
	"github.com/otpwatch/go-otp-forwarder/internal/resilience"
)

// Fetcher is the external fetch collaborator (the browser-automation layer).
// Timeouts are its own responsibility; the loop only observes errors.
type Fetcher interface {
	// Login authenticates against the upstream site. A false ok with a nil
	// error means the site rejected the credentials; message carries detail.
	Login(ctx context.Context) (ok bool, message string, err error)

	// FetchMessages returns zero or more raw candidates. Empty or too-short
	// bodies are filtered by the collaborator, not here.
	FetchMessages(ctx context.Context) ([]domain.SMSCandidate, error)
}

// Notifier is the external notification collaborator. Failure is signaled by
// a non-nil error; the loop does not inspect anything else.
type Notifier interface {
	Notify(ctx context.Context, msg domain.OTPMessage) error
}

// ErrRestartRequested is returned by Run when an operator set the
// restart_requested state flag. The process is expected to exit cleanly and
// let its supervisor restart it.
var ErrRestartRequested = errors.New("restart requested by operator")

// Config tunes the poll loop and its resilience wrappers.
type Config struct {
	PollInterval time.Duration // minimum 5s, default 15s

	LoginRetryAttempts int
	LoginRetryDelay    time.Duration

	// LoginRefresh is the session age past which a cycle re-logins even
	// when fetches keep succeeding, so last_login_time stays current.
	LoginRefresh time.Duration

	FetchRetryAttempts    int
	FetchRetryDelay       time.Duration
	FetchFailureThreshold int
	FetchRecoveryTimeout  time.Duration

	// Retention is the age past which stored records are purged; cleanup
	// runs on its own slower cadence inside the loop.
	Retention    time.Duration
	CleanupEvery time.Duration
}

// withDefaults fills unset fields.
func (c Config) withDefaults() Config {
	if c.PollInterval == 0 {
		c.PollInterval = 15 * time.Second
	}
	if c.PollInterval < 5*time.Second {
		c.PollInterval = 5 * time.Second
	}
	if c.LoginRetryAttempts <= 0 {
		c.LoginRetryAttempts = 3
	}
	if c.LoginRetryDelay <= 0 {
		c.LoginRetryDelay = 5 * time.Second
	}
	if c.LoginRefresh <= 0 {
		c.LoginRefresh = time.Hour
	}
	if c.FetchRetryAttempts <= 0 {
		c.FetchRetryAttempts = 3
	}
	if c.FetchRetryDelay <= 0 {
		c.FetchRetryDelay = time.Second
	}
	if c.FetchFailureThreshold <= 0 {
		c.FetchFailureThreshold = 5
	}
	if c.FetchRecoveryTimeout <= 0 {
		c.FetchRecoveryTimeout = time.Minute
	}
	if c.Retention <= 0 {
		c.Retention = 30 * 24 * time.Hour
	}
	if c.CleanupEvery <= 0 {
		c.CleanupEvery = time.Hour
	}
	return c
}

// Monitor is the poll loop orchestrator. All collaborators are injected; the
// Monitor owns no global state.
type Monitor struct {
	store    *repo.Store
	tracker  *health.Tracker
	fetcher  Fetcher
	notifier Notifier
	cfg      Config

	loginRetrier *resilience.Retrier
	fetchRetrier *resilience.Retrier
	fetchBreaker *resilience.Breaker

	// Session bookkeeping, touched only by the loop goroutine.
	lastLogin time.Time
	needLogin bool
}

// New wires a Monitor. Each wrapped operation gets its own breaker/retrier
// identity so failure counts never bleed across operations.
func New(store *repo.Store, tracker *health.Tracker, fetcher Fetcher, notifier Notifier, cfg Config) *Monitor {
	cfg = cfg.withDefaults()
	return &Monitor{
		store:        store,
		tracker:      tracker,
		fetcher:      fetcher,
		notifier:     notifier,
		cfg:          cfg,
		loginRetrier: resilience.NewRetrier("login", cfg.LoginRetryAttempts, cfg.LoginRetryDelay, time.Minute),
		fetchRetrier: resilience.NewRetrier("fetch", cfg.FetchRetryAttempts, cfg.FetchRetryDelay, 30*time.Second),
		fetchBreaker: resilience.NewBreaker("fetch", cfg.FetchFailureThreshold, cfg.FetchRecoveryTimeout),
	}
}

// FetchBreakerState exposes the fetch breaker position for the status
// surface.
func (m *Monitor) FetchBreakerState() resilience.BreakerState {
	return m.fetchBreaker.State()
}

// Run executes the poll loop until ctx is canceled or an operator requests a
// restart. The initial login happens before the first cycle; a login failure
// is recorded but does not stop the loop, since every cycle re-checks the
// session and logs in again when it is missing, stale, or suspect.
func (m *Monitor) Run(ctx context.Context) error {
	// Default the operator toggle to enabled on first start.
	var enabled bool
	if !m.store.GetState(ctx, domain.StateMonitoringEnabled, &enabled) {
		m.store.SetState(ctx, domain.StateMonitoringEnabled, true)
	}

	if err := m.loginWithRetry(ctx); err != nil {
		log.Warn().Err(err).Msg("initial login failed, will retry during polling")
	}

	log.Info().Dur("interval", m.cfg.PollInterval).Msg("poll loop started")

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()
	cleanup := time.NewTicker(m.cfg.CleanupEvery)
	defer cleanup.Stop()

	m.safeCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("poll loop stopping")
			return ctx.Err()
		case <-cleanup.C:
			m.store.PurgeOlderThan(ctx, m.cfg.Retention)
		case <-ticker.C:
			if m.restartRequested(ctx) {
				log.Info().Msg("restart requested, exiting poll loop")
				return ErrRestartRequested
			}
			m.safeCycle(ctx)
		}
	}
}

// restartRequested consumes the restart_requested flag.
func (m *Monitor) restartRequested(ctx context.Context) bool {
	var req bool
	if !m.store.GetState(ctx, domain.StateRestartRequested, &req) || !req {
		return false
	}
	m.store.DeleteState(ctx, domain.StateRestartRequested)
	return true
}

// safeCycle runs one cycle and keeps the loop alive whatever happens inside.
func (m *Monitor) safeCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.tracker.Record(ctx, "PanicError", fmt.Sprint(r), "poll_cycle")
			pollCycles.WithLabelValues("error").Inc()
			log.Error().Interface("panic", r).Msg("poll cycle panic recovered")
		}
	}()

	start := time.Now()
	outcome := m.cycle(ctx)
	pollCycles.WithLabelValues(outcome).Inc()
	log.Debug().
		Str("outcome", outcome).
		Dur("duration", time.Since(start)).
		Msg("poll cycle completed")
}

// cycle performs one fetch/dedup/deliver pass and reports its outcome label.
func (m *Monitor) cycle(ctx context.Context) string {
	force := m.consumeForceFetch(ctx)

	enabled := true
	m.store.GetState(ctx, domain.StateMonitoringEnabled, &enabled)
	if !enabled && !force {
		log.Debug().Msg("monitoring disabled, skipping cycle")
		return "skipped"
	}

	m.ensureLogin(ctx)

	if err := m.fetchAndStore(ctx); err != nil {
		fetchErrors.Inc()
		// The session may have expired; re-establish it before the next
		// fetch instead of hammering the breaker with a dead session.
		m.needLogin = true
		if errors.Is(err, resilience.ErrOpen) {
			log.Warn().Err(err).Msg("fetch rejected by circuit breaker")
		}
		// The fetch failed, but earlier cycles may have left unsent records
		// behind; still try to deliver them.
		m.deliverUnsent(ctx)
		return "error"
	}

	m.deliverUnsent(ctx)
	return "ok"
}

// consumeForceFetch clears and reports the operator's one-shot fetch
// request.
func (m *Monitor) consumeForceFetch(ctx context.Context) bool {
	var req domain.ForceFetchRequest
	if !m.store.GetState(ctx, domain.StateForceFetch, &req) {
		return false
	}
	m.store.DeleteState(ctx, domain.StateForceFetch)
	log.Info().Str("requested_by", req.RequestedBy).Msg("forced fetch requested")
	return true
}

// ensureLogin refreshes the upstream session when it was never established,
// has aged past LoginRefresh, or the previous fetch failed. A failed
// re-login is recorded and the cycle proceeds; the existing session may
// still be usable and the breaker guards the fetch path.
func (m *Monitor) ensureLogin(ctx context.Context) {
	stale := m.lastLogin.IsZero() || time.Since(m.lastLogin) >= m.cfg.LoginRefresh
	if !m.needLogin && !stale {
		return
	}

	if err := m.loginWithRetry(ctx); err != nil {
		log.Warn().Err(err).Msg("login refresh failed, attempting fetch with existing session")
		return
	}
	m.needLogin = false
}

// loginWithRetry is the login-specific decorator stack: retry with backoff,
// with the final failure recorded through the error tracker.
func (m *Monitor) loginWithRetry(ctx context.Context) error {
	op := m.tracked("LoginError", "login_with_retry", m.loginRetrier.Wrap(m.login))
	return op(ctx)
}

// login performs a single login attempt and stamps last_login_time on
// success.
func (m *Monitor) login(ctx context.Context) error {
	ok, message, err := m.fetcher.Login(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("login rejected: %s", message)
	}
	m.lastLogin = time.Now()
	m.store.SetState(ctx, domain.StateLastLoginTime, m.lastLogin.UTC().Format(time.RFC3339))
	return nil
}

// fetchAndStore runs the resilience-wrapped fetch and dedup-inserts the
// candidates. Only newly inserted records proceed to delivery; duplicates
// are dropped here, which is the dedup guarantee surfacing at the
// orchestration layer.
func (m *Monitor) fetchAndStore(ctx context.Context) error {
	var candidates []domain.SMSCandidate
	fetch := func(ctx context.Context) error {
		var err error
		candidates, err = m.fetcher.FetchMessages(ctx)
		return err
	}

	// Breaker outside the retrier: the whole retry sequence counts as one
	// call, and an open breaker suppresses the retries entirely.
	op := m.fetchBreaker.Wrap(m.tracked("FetchError", "fetch_messages", m.fetchRetrier.Wrap(fetch)))
	if err := op(ctx); err != nil {
		return err
	}

	m.store.SetState(ctx, domain.StateLastFetchTime, time.Now().UTC().Format(time.RFC3339))

	for _, c := range candidates {
		if !c.Valid() {
			log.Debug().Str("sender", c.Sender).Msg("dropping noise candidate")
			continue
		}
		switch m.store.InsertOTP(ctx, c.Message()) {
		case repo.Inserted:
			otpStored.Inc()
		case repo.Duplicate:
			// Defined outcome, silently dropped.
		case repo.StorageError:
			m.tracker.Record(ctx, "StorageError", "insert failed", "store_otp")
		}
	}
	return nil
}

// deliverUnsent forwards unsent records oldest first. A delivery failure
// stops the pass so ordering is preserved; the record stays unsent and the
// next cycle tries again (at-least-once until acknowledged).
func (m *Monitor) deliverUnsent(ctx context.Context) {
	for _, msg := range m.store.ListUnsent(ctx) {
		if err := m.notifier.Notify(ctx, msg); err != nil {
			m.tracker.Record(ctx, "NotifyError", err.Error(), "send_to_telegram")
			log.Warn().Err(err).Str("otp_id", msg.ID).Msg("notification failed, leaving unsent")
			return
		}
		if m.store.MarkSent(ctx, msg.ID) {
			otpForwarded.Inc()
		}
	}
}

// tracked records the wrapped operation's failure through the error tracker
// before passing the error on unchanged.
func (m *Monitor) tracked(errType, opContext string, op resilience.Operation) resilience.Operation {
	return func(ctx context.Context) error {
		err := op(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			m.tracker.Record(ctx, errType, err.Error(), opContext)
		}
		return err
	}
}
