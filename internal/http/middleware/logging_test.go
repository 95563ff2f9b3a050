package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), Logger(), Recovery())
	return r
}

func TestRequestIDGenerated(t *testing.T) {
	r := newRouter()
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if rid := w.Header().Get("X-Request-ID"); rid == "" {
		t.Fatal("expected generated X-Request-ID header")
	}
}

func TestRequestIDPropagated(t *testing.T) {
	r := newRouter()
	r.GET("/ping", func(c *gin.Context) {
		rid, _ := c.Get("requestID")
		c.String(http.StatusOK, "%v", rid)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Header().Get("X-Request-ID") != "abc-123" {
		t.Fatalf("header = %q, want abc-123", w.Header().Get("X-Request-ID"))
	}
	if w.Body.String() != "abc-123" {
		t.Fatalf("context value = %q, want abc-123", w.Body.String())
	}
}

func TestRecoveryReturnsJSON500(t *testing.T) {
	r := newRouter()
	r.GET("/boom", func(c *gin.Context) { panic("kaboom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if !strings.Contains(w.Body.String(), "internal_error") {
		t.Fatalf("body = %q, want internal_error code", w.Body.String())
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("500 response should still carry the request ID")
	}
}

func TestLoggerFromFallback(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if LoggerFrom(c) == nil {
		t.Fatal("LoggerFrom must never return nil")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 4); got != "abcd…" {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("abc", 0); got != "abc" {
		t.Fatalf("truncate with max 0 = %q", got)
	}
}
