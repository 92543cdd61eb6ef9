// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Command api is the entry point for the Bazaar authentication API server.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Connect to PostgreSQL (pgxpool).
//  4. Connect to Redis.
//  5. Run database migrations (idempotent).
//  6. Wire the auth service, mailer and OAuth provider.
//  7. Start the expiry janitor.
//  8. Start HTTP server with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/taibuivan/bazaar/internal/api"
	"github.com/taibuivan/bazaar/internal/platform/clock"
	"github.com/taibuivan/bazaar/internal/platform/config"
	"github.com/taibuivan/bazaar/internal/platform/constants"
	"github.com/taibuivan/bazaar/internal/platform/mail"
	"github.com/taibuivan/bazaar/internal/platform/metrics"
	"github.com/taibuivan/bazaar/internal/platform/middleware"
	"github.com/taibuivan/bazaar/internal/platform/migration"
	pgstore "github.com/taibuivan/bazaar/internal/platform/postgres"
	redisstore "github.com/taibuivan/bazaar/internal/platform/redis"
	"github.com/taibuivan/bazaar/internal/platform/sec"
	"github.com/taibuivan/bazaar/internal/users/auth"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	log := newLogger(slog.LevelInfo)
	slog.SetDefault(log)

	log.Info("service_initializing", slog.String("version", constants.AppVersion))

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		log = newLogger(slog.LevelDebug)
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
		slog.Bool("mail_enabled", cfg.MailEnabled()),
		slog.Bool("google_enabled", cfg.GoogleEnabled()),
	)

	// Root context for startup. Use a 30s deadline so misconfiguration is
	// caught quickly rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// ── 3. PostgreSQL ─────────────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, pgstore.PoolConfig{
		DSN:      cfg.DatabaseURL,
		MaxConns: cfg.DatabaseMaxConns,
	}, log)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing_postgres_pool")
		pool.Close()
	}()

	// ── 4. Redis ──────────────────────────────────────────────────────────
	rdb, err := redisstore.NewClient(startupCtx, redisstore.Options{
		URL:      cfg.RedisURL,
		PoolSize: cfg.RedisPoolSize,
	}, log)
	must(log, err, "connect to redis")
	defer func() {
		log.Info("closing_redis_client")
		if cerr := rdb.Close(); cerr != nil {
			log.Error("redis_close_failed", slog.Any("error", cerr))
		}
	}()

	// ── 5. Migrations ─────────────────────────────────────────────────────
	must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")

	// ── 6. Auth Wiring ────────────────────────────────────────────────────
	systemClock := clock.System{}
	collector := metrics.New()

	tokens, err := sec.NewTokenService(cfg.JWTSecret, cfg.JWTRefreshSecret, systemClock)
	must(log, err, "initialize token service")

	authService, err := auth.NewService(auth.Dependencies{
		Store:     auth.NewPostgresStore(pool),
		Tokens:    tokens,
		Hasher:    sec.NewPasswordHasher(cfg.BcryptCost),
		Mailer:    newMailer(cfg, log),
		Clock:     systemClock,
		Metrics:   collector,
		AppOrigin: cfg.AppOrigin,
	})
	must(log, err, "initialize auth service")

	var oauthProvider auth.OAuthProvider
	if cfg.GoogleEnabled() {
		oauthProvider = auth.NewGoogleProvider(auth.GoogleConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			CallbackURL:  cfg.GoogleCallbackURL,
		})
	}

	janitor := auth.NewJanitor(authService, cfg.CleanupInterval, log, collector)

	authHandler := auth.NewHandler(authService, oauthProvider, auth.HandlerConfig{
		Production: cfg.IsProduction(),
		AppOrigin:  cfg.AppOrigin,
		Janitor:    janitor,
	})

	// ── 7. Background Jobs ────────────────────────────────────────────────
	// Cancelled on shutdown; also stops the per-IP limiter sweep.
	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	go janitor.Run(appCtx)

	// ── 8. HTTP Server ────────────────────────────────────────────────────
	liveness, readiness := api.NewHealthHandlers(api.HealthDependencies{
		CheckDatabase: func(context context.Context) error {
			return pgstore.Ping(context, pool)
		},
		CheckCache: func(context context.Context) error {
			return redisstore.Ping(context, rdb)
		},
	}, log)

	server := api.NewServer(appCtx, cfg, log, tokens, api.Handlers{
		Liveness:    liveness,
		Readiness:   readiness,
		Auth:        authHandler,
		AuthLimiter: middleware.NewWindowLimiter(rdb, cfg.AuthRateLimit, cfg.AuthRateWindow),
		Metrics:     collector,
	})

	// ── 9. Graceful Shutdown ──────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until OS signal or server error.
	select {
	case sig := <-quit:
		log.Info("shutdown_signal_received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server_startup_failed", slog.Any("error", err))
	}

	appCancel()

	// Give in-flight requests enough time to complete.
	shutdownTimeout := constants.ShutdownTimeout
	log.Info("server_shutting_down", slog.Duration("timeout", shutdownTimeout))

	if err := server.Shutdown(shutdownTimeout); err != nil {
		log.Error("shutdown_failed", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("server_stopped")
}

// newLogger builds the JSON logger every startup path shares.
func newLogger(level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With(slog.String("app", constants.AppName))
}

// newMailer picks SMTP delivery when configured and falls back to logging.
func newMailer(cfg *config.Config, log *slog.Logger) mail.Mailer {
	if !cfg.MailEnabled() {
		log.Warn("smtp_not_configured", slog.String("fallback", "log"))
		return mail.NewLogMailer(log)
	}

	return mail.NewSMTPMailer(mail.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
	}, log)
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is intentionally limited to startup wiring. After startup, all errors
// must be returned and handled explicitly (never panic).
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup_failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
