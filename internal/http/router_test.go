package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/otpwatch/go-otp-forwarder/internal/config"
	"github.com/otpwatch/go-otp-forwarder/internal/domain"
	"github.com/otpwatch/go-otp-forwarder/internal/health"
	"github.com/otpwatch/go-otp-forwarder/internal/repo"
	"github.com/otpwatch/go-otp-forwarder/internal/resilience"
)

// newTestAPI stands up a router over a fresh store.
func newTestAPI(t *testing.T) (*gin.Engine, *repo.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	path := filepath.Join(t.TempDir(), "api.db")
	db, err := repo.OpenSQLite(path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store := repo.New(db, path)
	tracker := health.NewTracker(store, health.DefaultMaxErrorsPerHour)
	checker := health.NewChecker(store, tracker)

	r := gin.New()
	RegisterRoutes(r, store, checker, tracker,
		func() resilience.BreakerState { return resilience.StateClosed },
		config.Config{RateRPS: 1000, RateBurst: 1000})
	return r, store
}

func get(t *testing.T, r *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealthzHealthy(t *testing.T) {
	r, _ := newTestAPI(t)

	w := get(t, r, "/healthz")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var report map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report["overall_status"] != "healthy" {
		t.Fatalf("overall_status = %v", report["overall_status"])
	}
}

func TestStatusEndpoint(t *testing.T) {
	r, store := newTestAPI(t)

	ctx := context.Background()
	store.InsertOTP(ctx, domain.OTPMessage{ID: "aaaa", Timestamp: "t", Sender: "s", Text: "hello"})
	store.SetState(ctx, domain.StateLastFetchTime, time.Now().UTC().Format(time.RFC3339))

	w := get(t, r, "/api/v1/status")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp struct {
		Stats             repo.Stats `json:"stats"`
		MonitoringEnabled bool       `json:"monitoring_enabled"`
		FetchBreaker      string     `json:"fetch_breaker"`
		LastFetch         string     `json:"last_fetch"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Stats.Total != 1 {
		t.Errorf("stats.total = %d, want 1", resp.Stats.Total)
	}
	if !resp.MonitoringEnabled {
		t.Error("monitoring should default to enabled")
	}
	if resp.FetchBreaker != "closed" {
		t.Errorf("fetch_breaker = %q", resp.FetchBreaker)
	}
	if resp.LastFetch == "" {
		t.Error("last_fetch should be populated")
	}
}

func TestRecentOTPsLimit(t *testing.T) {
	r, store := newTestAPI(t)

	ctx := context.Background()
	for _, id := range []string{"m1", "m2", "m3"} {
		store.InsertOTP(ctx, domain.OTPMessage{ID: id, Timestamp: "t", Sender: "s", Text: "body " + id})
	}

	w := get(t, r, "/api/v1/otps/recent?limit=2")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp struct {
		Count int                 `json:"count"`
		OTPs  []domain.OTPMessage `json:"otps"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 2 {
		t.Fatalf("count = %d, want 2", resp.Count)
	}
	// Newest first.
	if resp.OTPs[0].ID != "m3" || resp.OTPs[1].ID != "m2" {
		t.Fatalf("order = [%s %s]", resp.OTPs[0].ID, resp.OTPs[1].ID)
	}
}

func TestRecentOTPsRejectsBadLimit(t *testing.T) {
	r, _ := newTestAPI(t)

	w := get(t, r, "/api/v1/otps/recent?limit=zero")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), "bad_request") {
		t.Fatalf("body = %s", w.Body.String())
	}
}

func TestErrorsEndpoint(t *testing.T) {
	r, store := newTestAPI(t)

	tracker := health.NewTracker(store, health.DefaultMaxErrorsPerHour)
	tracker.Record(context.Background(), "FetchError", "boom", "fetch_messages")

	w := get(t, r, "/api/v1/errors")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp health.Summary
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 || resp.Types["FetchError"] != 1 {
		t.Fatalf("summary = %+v", resp)
	}
}

func TestForceFetchWritesState(t *testing.T) {
	r, store := newTestAPI(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/fetch",
		strings.NewReader(`{"requested_by":"ops"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var pending domain.ForceFetchRequest
	if !store.GetState(context.Background(), domain.StateForceFetch, &pending) {
		t.Fatal("force fetch request not persisted")
	}
	if pending.RequestedBy != "ops" {
		t.Fatalf("requested_by = %q", pending.RequestedBy)
	}
}

func TestForceFetchDefaultsRequester(t *testing.T) {
	r, store := newTestAPI(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/fetch", nil))
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d", w.Code)
	}

	var pending domain.ForceFetchRequest
	store.GetState(context.Background(), domain.StateForceFetch, &pending)
	if pending.RequestedBy != "api" {
		t.Fatalf("requested_by = %q, want api", pending.RequestedBy)
	}
}

func TestUnknownRouteEnvelope(t *testing.T) {
	r, _ := newTestAPI(t)

	w := get(t, r, "/nope")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "not_found") {
		t.Fatalf("body = %s", w.Body.String())
	}
}
