// Package httpapi wires the HTTP transport (Gin) to the store, health
// checker, and error tracker behind the operator status API. It centralizes
// cross-cutting concerns: correlation IDs, structured logging, panic
// recovery, metrics, rate limiting, and CORS.
//
// Middleware ordering is deliberate (RequestID → logging → recovery) so that
// panics and errors always carry the correlation ID.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/otpwatch/go-otp-forwarder/internal/config"
	"github.com/otpwatch/go-otp-forwarder/internal/health"
	"github.com/otpwatch/go-otp-forwarder/internal/http/handlers"
	"github.com/otpwatch/go-otp-forwarder/internal/http/middleware"
	"github.com/otpwatch/go-otp-forwarder/internal/repo"
	"github.com/otpwatch/go-otp-forwarder/internal/resilience"
)

// RegisterRoutes attaches all middleware and endpoints to the given Gin
// engine. breakerState reports the poll loop's fetch breaker; it may be nil
// when the API is served without a running loop (tests do this).
func RegisterRoutes(r *gin.Engine, store *repo.Store, checker *health.Checker, tracker *health.Tracker, breakerState func() resilience.BreakerState, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// Correlate requests and logs first, then log, then recover, so every
	// panic is logged with its request ID.
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())

	// Global body size limit (64 KiB). The only writable endpoint takes a
	// tiny JSON body.
	r.Use(limitBody(64 << 10))

	// Prometheus metrics and the scrape endpoint.
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Token-bucket rate limiter per client IP.
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByIP())
	r.Use(rl.Handler())

	// CORS posture: allow all when no allowlist is configured.
	if len(cfg.CORSAllowedOrigins) == 0 {
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	} else {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORSAllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	h := handlers.New(store, checker, tracker, breakerState)

	r.GET("/healthz", h.Healthz)

	api := r.Group("/api/v1")
	{
		api.GET("/status", h.Status)
		api.GET("/otps/recent", h.RecentOTPs)
		api.GET("/errors", h.ErrorsSummary)
		api.POST("/fetch", h.ForceFetch)
	}
}

// limitBody caps the request body size for all endpoints using
// http.MaxBytesReader. Requests exceeding the cap error on body read.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
