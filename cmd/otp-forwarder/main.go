// Command otp-forwarder polls an upstream SMS relay, stores each message
// exactly once, and forwards it to the configured Telegram admin chats. A
// small Gin API exposes health, stats, and operator controls alongside the
// poll loop.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/otpwatch/go-otp-forwarder/internal/config"
	"github.com/otpwatch/go-otp-forwarder/internal/health"
	httpapi "github.com/otpwatch/go-otp-forwarder/internal/http"
	"github.com/otpwatch/go-otp-forwarder/internal/monitor"
	"github.com/otpwatch/go-otp-forwarder/internal/notify"
	"github.com/otpwatch/go-otp-forwarder/internal/repo"
	"github.com/otpwatch/go-otp-forwarder/internal/sysutil"
)

// Exit codes. The supervisor restarts the process on exitRestart.
const (
	exitOK      = 0
	exitFailure = 1
	exitRestart = 3
)

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return exitFailure
	}

	sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty)
	gin.SetMode(cfg.GinMode)

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Error().Err(err).Str("path", cfg.DBPath).Msg("open database")
		return exitFailure
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Error().Err(err).Msg("migrate database")
		return exitFailure
	}
	store := repo.New(db, cfg.DBPath)

	tracker := health.NewTracker(store, cfg.MaxErrorsPerHour)
	checker := health.NewChecker(store, tracker)
	notifier := notify.NewTelegramClient(cfg.BotToken, cfg.AdminChatIDs)
	fetcher := newUpstreamClient(cfg.UpstreamBaseURL, cfg.UpstreamAPIKey)

	mon := monitor.New(store, tracker, fetcher, notifier, monitor.Config{
		PollInterval:          cfg.PollInterval,
		LoginRetryAttempts:    cfg.LoginRetryAttempts,
		LoginRetryDelay:       cfg.LoginRetryDelay,
		FetchFailureThreshold: cfg.FetchFailureThreshold,
		FetchRecoveryTimeout:  cfg.FetchRecoveryTimeout,
		Retention:             cfg.OTPRetention,
	})

	r := gin.New()
	httpapi.RegisterRoutes(r, store, checker, tracker, mon.FetchBreakerState, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srvErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("status api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
	}()

	monErr := make(chan error, 1)
	go func() {
		monErr <- mon.Run(ctx)
	}()

	exit := exitOK
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-srvErr:
		log.Error().Err(err).Msg("status api failed")
		exit = exitFailure
	case err := <-monErr:
		switch {
		case errors.Is(err, monitor.ErrRestartRequested):
			log.Info().Msg("restart requested, exiting for supervisor restart")
			exit = exitRestart
		case err != nil && !errors.Is(err, context.Canceled):
			log.Error().Err(err).Msg("poll loop failed")
			exit = exitFailure
		}
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("status api shutdown")
	}

	log.Info().Int("exit", exit).Msg("forwarder stopped")
	return exit
}
