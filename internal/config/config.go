// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes the Telegram
// credentials, poll loop tuning, resilience thresholds, database path, and
// HTTP server settings.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration values for the application.
type Config struct {
	// Telegram
	BotToken     string  // TELEGRAM_BOT_TOKEN
	AdminChatIDs []int64 // TELEGRAM_ADMIN_CHAT_IDS, comma-separated

	// Upstream relay
	UpstreamBaseURL string // UPSTREAM_BASE_URL
	UpstreamAPIKey  string // UPSTREAM_API_KEY, optional

	// Poll loop
	PollInterval time.Duration // >= 5s
	OTPRetention time.Duration // purge records older than this

	// Resilience
	LoginRetryAttempts    int
	LoginRetryDelay       time.Duration
	FetchFailureThreshold int
	FetchRecoveryTimeout  time.Duration
	MaxErrorsPerHour      int

	// Storage
	DBPath string // SQLite path

	// Server
	Port    string // just the number
	GinMode string // debug|release|test

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORSAllowedOrigins []string
}

// minPollInterval is the floor enforced on POLL_INTERVAL. Polling the
// upstream site faster than this gets the account flagged.
const minPollInterval = 5 * time.Second

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Telegram
		BotToken:     getenv("TELEGRAM_BOT_TOKEN", ""),
		AdminChatIDs: getint64s("TELEGRAM_ADMIN_CHAT_IDS"),

		// Upstream relay
		UpstreamBaseURL: strings.TrimRight(getenv("UPSTREAM_BASE_URL", ""), "/"),
		UpstreamAPIKey:  getenv("UPSTREAM_API_KEY", ""),

		// Poll loop
		PollInterval: getdur("POLL_INTERVAL", 15*time.Second),
		OTPRetention: getdur("OTP_RETENTION", 30*24*time.Hour),

		// Resilience
		LoginRetryAttempts:    getint("LOGIN_RETRY_ATTEMPTS", 3),
		LoginRetryDelay:       getdur("LOGIN_RETRY_DELAY", 5*time.Second),
		FetchFailureThreshold: getint("FETCH_FAILURE_THRESHOLD", 5),
		FetchRecoveryTimeout:  getdur("FETCH_RECOVERY_TIMEOUT", time.Minute),
		MaxErrorsPerHour:      getint("MAX_ERRORS_PER_HOUR", 10),

		// Storage
		DBPath: getenv("DB_PATH", "data/otp.db"),

		// Server
		Port:    getenv("PORT", "8080"),
		GinMode: strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORSAllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.PollInterval < minPollInterval {
		cfg.PollInterval = minPollInterval
	}

	// --- validation ---
	if strings.TrimSpace(cfg.BotToken) == "" {
		return cfg, errors.New("TELEGRAM_BOT_TOKEN must not be empty")
	}
	if len(cfg.AdminChatIDs) == 0 {
		return cfg, errors.New("TELEGRAM_ADMIN_CHAT_IDS must list at least one chat id")
	}
	if strings.TrimSpace(cfg.UpstreamBaseURL) == "" {
		return cfg, errors.New("UPSTREAM_BASE_URL must not be empty")
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.OTPRetention <= 0 {
		return cfg, errors.New("OTP_RETENTION must be > 0")
	}
	if cfg.LoginRetryAttempts < 1 {
		return cfg, errors.New("LOGIN_RETRY_ATTEMPTS must be >= 1")
	}
	if cfg.LoginRetryDelay <= 0 {
		return cfg, errors.New("LOGIN_RETRY_DELAY must be > 0")
	}
	if cfg.FetchFailureThreshold < 1 {
		return cfg, errors.New("FETCH_FAILURE_THRESHOLD must be >= 1")
	}
	if cfg.FetchRecoveryTimeout <= 0 {
		return cfg, errors.New("FETCH_RECOVERY_TIMEOUT must be > 0")
	}
	if cfg.MaxErrorsPerHour < 1 {
		return cfg, errors.New("MAX_ERRORS_PER_HOUR must be >= 1")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// getint64s parses a comma-separated list of int64 values, skipping blanks
// and unparsable entries.
func getint64s(k string) []int64 {
	var out []int64
	for _, part := range splitCSV(os.Getenv(k)) {
		if n, err := strconv.ParseInt(part, 10, 64); err == nil {
			out = append(out, n)
		}
	}
	return out
}

// splitCSV splits a comma-separated string, trimming whitespace and dropping
// empty entries. Returns nil for an empty input.
func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
