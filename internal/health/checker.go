// Package health tracks recent errors and derives health signals for the
// operator status surface. This file composes the component checks into one
// overall status report.
package health

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/otpwatch/go-otp-forwarder/internal/domain"
	"github.com/otpwatch/go-otp-forwarder/internal/repo"
)

// Status orders component health from best to worst. The overall status of a
// report is the worst of its components.
type Status int

const (
	StatusHealthy Status = iota
	StatusDegraded
	StatusUnhealthy
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the status as its name.
func (s Status) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// worst returns the more severe of two statuses.
func worst(a, b Status) Status {
	if b > a {
		return b
	}
	return a
}

// Component is one named check inside a Report.
type Component struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// OperationsComponent reports the recency of the last successful login and
// fetch.
type OperationsComponent struct {
	Status    Status   `json:"status"`
	LastLogin string   `json:"last_login"`
	LastFetch string   `json:"last_fetch"`
	Issues    []string `json:"issues,omitempty"`
}

// ErrorRateComponent reports the hourly error rate against its threshold.
type ErrorRateComponent struct {
	Status    Status `json:"status"`
	Rate      int    `json:"rate"`
	Threshold int    `json:"threshold"`
}

// StorageComponent reports database size against the degradation thresholds.
type StorageComponent struct {
	Status Status  `json:"status"`
	SizeMB float64 `json:"size_mb"`
	Total  int64   `json:"total_otps"`
}

// Report is a point-in-time snapshot of system health.
type Report struct {
	Timestamp  time.Time           `json:"timestamp"`
	Overall    Status              `json:"overall_status"`
	Database   Component           `json:"database"`
	ErrorRate  ErrorRateComponent  `json:"error_rate"`
	Storage    StorageComponent    `json:"storage"`
	Operations OperationsComponent `json:"operations"`
}

// Size and staleness thresholds for the component checks.
const (
	sizeDegradedMB  = 100
	sizeUnhealthyMB = 500

	loginStaleAfter = 24 * time.Hour
	fetchStaleAfter = time.Hour
)

// Checker composes the database probe, error-rate signal, storage-size
// check, and operational-recency check into a single report.
type Checker struct {
	store   *repo.Store
	tracker *Tracker

	now func() time.Time
}

// NewChecker constructs a Checker over the shared store and tracker.
func NewChecker(store *repo.Store, tracker *Tracker) *Checker {
	return &Checker{store: store, tracker: tracker, now: time.Now}
}

// Check runs every component check and folds the results into the overall
// status.
func (c *Checker) Check(ctx context.Context) Report {
	r := Report{
		Timestamp:  c.now().UTC(),
		Database:   c.checkDatabase(ctx),
		ErrorRate:  c.checkErrorRate(ctx),
		Storage:    c.checkStorage(ctx),
		Operations: c.checkOperations(ctx),
	}
	r.Overall = worst(worst(r.Database.Status, r.ErrorRate.Status),
		worst(r.Storage.Status, r.Operations.Status))
	return r
}

// checkDatabase performs a write/read/delete round trip with a throwaway
// key.
func (c *Checker) checkDatabase(ctx context.Context) Component {
	key := "health_check_" + uuid.NewString()

	if !c.store.SetState(ctx, key, "probe") {
		return Component{Status: StatusUnhealthy, Message: "state write failed"}
	}
	var got string
	if !c.store.GetState(ctx, key, &got) || got != "probe" {
		return Component{Status: StatusUnhealthy, Message: "state read/write test failed"}
	}
	c.store.DeleteState(ctx, key)
	return Component{Status: StatusHealthy, Message: "database operations successful"}
}

func (c *Checker) checkErrorRate(ctx context.Context) ErrorRateComponent {
	rate := c.tracker.Rate(ctx)
	status := StatusHealthy
	if rate > c.tracker.maxPerHour {
		status = StatusUnhealthy
	}
	return ErrorRateComponent{Status: status, Rate: rate, Threshold: c.tracker.maxPerHour}
}

func (c *Checker) checkStorage(ctx context.Context) StorageComponent {
	st := c.store.Stats(ctx)
	sizeMB := st.SizeMB()

	status := StatusHealthy
	if sizeMB > sizeDegradedMB {
		status = StatusDegraded
	}
	if sizeMB > sizeUnhealthyMB {
		status = StatusUnhealthy
	}
	return StorageComponent{Status: status, SizeMB: sizeMB, Total: st.Total}
}

// checkOperations flags stale login/fetch timestamps. Absent or unparsable
// values are reported as "Never" without degrading the status.
func (c *Checker) checkOperations(ctx context.Context) OperationsComponent {
	op := OperationsComponent{Status: StatusHealthy, LastLogin: "Never", LastFetch: "Never"}
	now := c.now().UTC()

	var lastLogin, lastFetch string
	c.store.GetState(ctx, domain.StateLastLoginTime, &lastLogin)
	c.store.GetState(ctx, domain.StateLastFetchTime, &lastFetch)

	if lastLogin != "" {
		op.LastLogin = lastLogin
		if ts, err := time.Parse(time.RFC3339, lastLogin); err == nil {
			if now.Sub(ts) > loginStaleAfter {
				op.Status = worst(op.Status, StatusDegraded)
				op.Issues = append(op.Issues, fmt.Sprintf("login older than %s", loginStaleAfter))
			}
		}
	}
	if lastFetch != "" {
		op.LastFetch = lastFetch
		if ts, err := time.Parse(time.RFC3339, lastFetch); err == nil {
			if now.Sub(ts) > fetchStaleAfter {
				op.Status = worst(op.Status, StatusDegraded)
				op.Issues = append(op.Issues, fmt.Sprintf("fetch older than %s", fetchStaleAfter))
			}
		}
	}
	return op
}
