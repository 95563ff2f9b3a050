// Operator status endpoints.
//
// This file exposes the read-mostly admin surface of the forwarder:
//   - GET  /healthz              (composite health report)
//   - GET  /api/v1/status        (store stats, breaker state, loop timestamps)
//   - GET  /api/v1/otps/recent   (recently stored records, newest first)
//   - GET  /api/v1/errors        (rolling error log summary)
//   - POST /api/v1/fetch         (request an immediate poll cycle)
//
// Handlers are transport-thin: they validate input, call the store, tracker,
// and checker, and translate results into HTTP responses.
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/otpwatch/go-otp-forwarder/internal/domain"
	"github.com/otpwatch/go-otp-forwarder/internal/health"
	"github.com/otpwatch/go-otp-forwarder/internal/repo"
	"github.com/otpwatch/go-otp-forwarder/internal/resilience"
)

// recentLimitMax caps the limit query parameter of the recent-OTPs endpoint.
const recentLimitMax = 100

// StatusStore is the slice of the store the status endpoints need.
type StatusStore interface {
	Stats(ctx context.Context) repo.Stats
	ListRecent(ctx context.Context, limit int) []domain.OTPMessage
	GetState(ctx context.Context, key string, dest any) bool
	SetState(ctx context.Context, key string, value any) bool
}

// HealthChecker produces the composite health report served by /healthz.
type HealthChecker interface {
	Check(ctx context.Context) health.Report
}

// ErrorSummarizer aggregates the rolling error log.
type ErrorSummarizer interface {
	Summary(ctx context.Context) health.Summary
}

// Handlers groups the status API endpoints and their dependencies.
type Handlers struct {
	store        StatusStore
	checker      HealthChecker
	errors       ErrorSummarizer
	breakerState func() resilience.BreakerState
}

// New constructs a Handlers instance bound to the given dependencies.
// breakerState reports the poll loop's fetch breaker and may be nil when no
// poll loop is running (the status endpoint then omits it).
func New(store StatusStore, checker HealthChecker, errors ErrorSummarizer, breakerState func() resilience.BreakerState) *Handlers {
	return &Handlers{store: store, checker: checker, errors: errors, breakerState: breakerState}
}

// Healthz serves the composite health report. Healthy and degraded systems
// answer 200 so a flapping dependency does not take the process out of
// rotation; only an unhealthy overall status maps to 503.
func (h *Handlers) Healthz(c *gin.Context) {
	report := h.checker.Check(c.Request.Context())
	status := http.StatusOK
	if report.Overall == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

// statusResponse is the envelope served by GET /api/v1/status.
type statusResponse struct {
	Stats             repo.Stats `json:"stats"`
	SizeMB            float64    `json:"size_mb"`
	MonitoringEnabled bool       `json:"monitoring_enabled"`
	FetchBreaker      string     `json:"fetch_breaker,omitempty"`
	LastLogin         string     `json:"last_login,omitempty"`
	LastFetch         string     `json:"last_fetch,omitempty"`
}

// Status reports store statistics and the poll loop's operational state.
func (h *Handlers) Status(c *gin.Context) {
	ctx := c.Request.Context()

	resp := statusResponse{
		Stats:             h.store.Stats(ctx),
		MonitoringEnabled: true,
	}
	resp.SizeMB = resp.Stats.SizeMB()
	h.store.GetState(ctx, domain.StateMonitoringEnabled, &resp.MonitoringEnabled)
	h.store.GetState(ctx, domain.StateLastLoginTime, &resp.LastLogin)
	h.store.GetState(ctx, domain.StateLastFetchTime, &resp.LastFetch)
	if h.breakerState != nil {
		resp.FetchBreaker = h.breakerState().String()
	}

	ok(c, resp)
}

// RecentOTPs lists recently stored records, newest first. The limit query
// parameter defaults to 10 and is capped at 100.
func (h *Handlers) RecentOTPs(c *gin.Context) {
	limit := 10
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			Fail(c, http.StatusBadRequest, ErrCodeBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > recentLimitMax {
		limit = recentLimitMax
	}

	otps := h.store.ListRecent(c.Request.Context(), limit)
	ok(c, gin.H{"count": len(otps), "otps": otps})
}

// ErrorsSummary serves the rolling error log aggregate.
func (h *Handlers) ErrorsSummary(c *gin.Context) {
	ok(c, h.errors.Summary(c.Request.Context()))
}

// forceFetchBody is the optional request body of POST /api/v1/fetch.
type forceFetchBody struct {
	RequestedBy string `json:"requested_by"`
}

// ForceFetch writes a one-shot fetch request into bot state. The poll loop
// consumes it on its next tick, so the response is a 202 rather than a
// completion report.
func (h *Handlers) ForceFetch(c *gin.Context) {
	var body forceFetchBody
	// Body is optional; a bare POST requests a fetch on behalf of "api".
	_ = c.ShouldBindJSON(&body)
	if body.RequestedBy == "" {
		body.RequestedBy = "api"
	}

	req := domain.ForceFetchRequest{RequestedBy: body.RequestedBy, Timestamp: time.Now().UTC()}
	if !h.store.SetState(c.Request.Context(), domain.StateForceFetch, req) {
		Fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not record fetch request")
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "requested_by": req.RequestedBy})
}
