// Command server runs the balance & session engine HTTP API.
//
// Startup order:
//  1. Load .env (best effort) and the validated config.
//  2. Configure zerolog (level, optional pretty console output).
//  3. Open SQLite, run migrations, attach the gorm OTel plugin.
//  4. Set up OpenTelemetry tracing (no-op unless OTEL_ENABLED).
//  5. Build the engine deps (guard, limiter, cache, executor), wire routes.
//  6. Start the cron scheduler (chip resets, operation-record GC).
//  7. Serve until SIGINT/SIGTERM, then drain gracefully.
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
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/retroplay/arcade-backend/internal/config"
	httpapi "github.com/retroplay/arcade-backend/internal/http"
	"github.com/retroplay/arcade-backend/internal/jobs"
	"github.com/retroplay/arcade-backend/internal/observability"
	"github.com/retroplay/arcade-backend/internal/repo"
	"github.com/retroplay/arcade-backend/internal/services"
	"github.com/retroplay/arcade-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Persistence
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("db_path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("run migrations")
	}

	// Tracing
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("setup tracing")
	}
	if cfg.OTEL.Enabled {
		if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			log.Fatal().Err(err).Msg("attach gorm tracing plugin")
		}
	}

	// Engine wiring
	deps := httpapi.BuildDeps(db, cfg)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, deps, cfg)

	// Background jobs: chip resets and operation-record GC.
	reset := &services.ResetService{
		DB:         db,
		Exec:       deps.Executor,
		Guard:      deps.Guard,
		DailyChips: cfg.DailyChips,
		BatchLimit: 500,
	}
	sched := jobs.NewScheduler(db, reset)
	sched.Start(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("tracer shutdown")
	}
	log.Info().Msg("server stopped")
}
