// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, idempotency, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/retroplay/arcade-backend/internal/cache"
	"github.com/retroplay/arcade-backend/internal/config"
	"github.com/retroplay/arcade-backend/internal/guard"
	"github.com/retroplay/arcade-backend/internal/http/handlers"
	"github.com/retroplay/arcade-backend/internal/http/middleware"
	"github.com/retroplay/arcade-backend/internal/limiter"
	"github.com/retroplay/arcade-backend/internal/repo"
	"github.com/retroplay/arcade-backend/internal/services"
)

// Deps carries the engine singletons the router builds once and shares with
// the background jobs (the reset service reuses the executor and guard).
type Deps struct {
	Guard    *guard.Guard
	Limiter  *limiter.Limiter
	Cache    *cache.BalanceCache
	Executor *services.Executor
}

// BuildDeps constructs the per-process engine state: the account lock table,
// the class limiter, the balance cache, and the executor bound to all three.
func BuildDeps(db *gorm.DB, cfg config.Config) *Deps {
	g := guard.New(cfg.LockTimeout)
	bc := cache.New(cfg.CacheTTL)
	lim := limiter.New(map[limiter.Class]limiter.Policy{
		limiter.ClassRead:  policyFromConfig(cfg.Limits.Read),
		limiter.ClassPlay:  policyFromConfig(cfg.Limits.Play),
		limiter.ClassAdmin: policyFromConfig(cfg.Limits.Admin),
	})
	exec := &services.Executor{
		DB:           db,
		Guard:        g,
		Cache:        bc,
		DefaultChips: cfg.DefaultChips,
		RecordTTL:    cfg.OperationTTL,
	}
	return &Deps{Guard: g, Limiter: lim, Cache: bc, Executor: exec}
}

// policyFromConfig converts a config class limit into a limiter policy.
func policyFromConfig(cl config.ClassLimit) limiter.Policy {
	return limiter.Policy{
		Window:   cl.Window,
		Max:      cl.Max,
		Block:    cl.Block,
		Debounce: cl.Debounce,
	}
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), identity,
// idempotency and rate limiting, CORS and security headers, health and
// metrics endpoints, and then mounts the versioned public API under /api/v*.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Identity: resolve the account from X-Account-ID
//  4. RedactingLogger: structured logs with PII scrubbing
//  5. Recovery: capture panics after logger
//  6. Body size limiter
//  7. Metrics
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Rate limiter (per account/IP, bypass on replay)
//  10. gzip, CORS and Security headers
//
// Per-route, each endpoint additionally charges the caller's class budget
// (read, play or admin) through the sliding-window limiter.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, deps *Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Resolve the caller's account identity
	r.Use(middleware.Identity())

	// 4) Structured logging with redaction (never log the admin capability)
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{
			"X-Admin-Token",
		},
	}))

	// 5) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 6) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
		},
		func(ctx context.Context, requestRef string, now time.Time) (bool, error) {
			rec, err := repo.GetOperation(ctx, db, requestRef, now)
			if err != nil || rec == nil {
				return false, nil
			}
			return true, nil
		},
	))

	// 9) Token-bucket rate limiter per account/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByAccountOrIP())
	r.Use(rl.Handler())

	// 10) Response compression
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Account-ID", "X-Admin-Token", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Account-ID", "X-Admin-Token", middleware.HeaderIdempotencyKey},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Swagger UI (opt-in)
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Dependency injection: services ← executor/db/cache
	balSvc := &services.BalanceService{
		DB:           db,
		Cache:        deps.Cache,
		DefaultChips: cfg.DefaultChips,
	}
	sessSvc := &services.SessionService{
		DB:           db,
		Exec:         deps.Executor,
		Guard:        deps.Guard,
		LivesPerChip: cfg.SessionLives,
	}
	adminSvc := &services.AdminService{DB: db, Exec: deps.Executor}
	h := handlers.New(balSvc, deps.Executor, sessSvc, adminSvc)

	readGate := middleware.ClassLimit(deps.Limiter, limiter.ClassRead)
	playGate := middleware.ClassLimit(deps.Limiter, limiter.ClassPlay)
	adminGate := middleware.ClassLimit(deps.Limiter, limiter.ClassAdmin)

	// Public API
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	api := groupWithPrefix(r, apiBase)
	{
		// Balance (read class)
		api.GET("/balance", readGate, h.GetBalance)

		// Operations (play class)
		ops := api.Group("/operations", playGate)
		{
			ops.POST("/spend-chip", h.SpendChip)
			ops.POST("/add-chips", h.AddChips)
			ops.POST("/spend-token", h.SpendToken)
			ops.POST("/add-token", h.AddToken)
		}

		// Sessions
		api.POST("/sessions", playGate, h.StartSession)
		api.GET("/sessions/:id", readGate, h.GetSession)
		api.POST("/sessions/:id/lose-life", playGate, h.LoseLife)
		api.POST("/sessions/:id/pause", playGate, h.PauseSession)
		api.POST("/sessions/:id/resume", playGate, h.ResumeSession)
		api.POST("/sessions/:id/end", playGate, h.EndSession)

		// Admin (token-gated, strictest class)
		admin := api.Group("/admin", adminAuth(cfg.AdminToken), adminGate)
		{
			admin.POST("/grants", h.PostGrant)
			admin.GET("/audit", h.ListAudit)
		}
	}
}

// adminAuth gates the privileged group behind the configured token. An empty
// configured token disables the surface entirely (always 401).
func adminAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader("X-Admin-Token")
		if token == "" || got == "" ||
			subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			handlers.Fail(c, http.StatusUnauthorized, handlers.ErrCodeUnauthorized, "admin token required")
			return
		}
		c.Next()
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
