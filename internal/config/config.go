// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database paths, balance defaults, rate
// limiting, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "arcade-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// ClassLimit is the sliding-window budget for one action class.
type ClassLimit struct {
	Window   time.Duration // window length
	Max      int           // max requests per window
	Block    time.Duration // block duration once Max is exceeded
	Debounce time.Duration // minimum spacing between two requests
}

// LimitsConfig groups the per-class request budgets. Admin is the
// strictest class: fewest requests, longest block.
type LimitsConfig struct {
	Read  ClassLimit
	Play  ClassLimit
	Admin ClassLimit
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// App
	DBPath       string        // SQLite path
	DefaultChips int64         // starting allotment for new accounts
	DailyChips   int64         // allotment restored by the 24h chip reset
	SessionLives int           // lives a session starts with
	CacheTTL     time.Duration // balance read-cache TTL
	LockTimeout  time.Duration // force-release age for abandoned account locks
	OperationTTL time.Duration // retention of idempotency records
	AdminToken   string        // privileged-path token; empty disables admin routes

	// Edge rate limiting (token bucket per caller)
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Per-account class limits (sliding window)
	Limits LimitsConfig

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
}

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
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath:       getenv("DB_PATH", "arcade.db"),
		DefaultChips: getint64("DEFAULT_CHIPS", 5),
		DailyChips:   getint64("DAILY_CHIPS", 5),
		SessionLives: getint("SESSION_LIVES", 3),
		CacheTTL:     getdur("CACHE_TTL", 5*time.Second),
		LockTimeout:  getdur("LOCK_TIMEOUT", 10*time.Second),
		OperationTTL: getdur("OPERATION_TTL", 24*time.Hour),
		AdminToken:   getenv("ADMIN_TOKEN", ""),

		// Edge rate limiting
		RateRPS:   getfloat("RATE_RPS", 20.0),
		RateBurst: getint("RATE_BURST", 40),

		// Per-account class limits
		Limits: LimitsConfig{
			Read: ClassLimit{
				Window:   getdur("LIMIT_READ_WINDOW", time.Minute),
				Max:      getint("LIMIT_READ_MAX", 120),
				Block:    getdur("LIMIT_READ_BLOCK", time.Minute),
				Debounce: getdur("LIMIT_READ_DEBOUNCE", 0),
			},
			Play: ClassLimit{
				Window:   getdur("LIMIT_PLAY_WINDOW", time.Minute),
				Max:      getint("LIMIT_PLAY_MAX", 30),
				Block:    getdur("LIMIT_PLAY_BLOCK", 2*time.Minute),
				Debounce: getdur("LIMIT_PLAY_DEBOUNCE", 300*time.Millisecond),
			},
			Admin: ClassLimit{
				Window:   getdur("LIMIT_ADMIN_WINDOW", time.Minute),
				Max:      getint("LIMIT_ADMIN_MAX", 10),
				Block:    getdur("LIMIT_ADMIN_BLOCK", 10*time.Minute),
				Debounce: getdur("LIMIT_ADMIN_DEBOUNCE", time.Second),
			},
		},

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "arcade-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
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

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.DefaultChips < 0 || cfg.DailyChips < 0 {
		return cfg, errors.New("DEFAULT_CHIPS and DAILY_CHIPS must be >= 0")
	}
	if cfg.SessionLives < 1 {
		return cfg, errors.New("SESSION_LIVES must be >= 1")
	}
	if cfg.CacheTTL < 0 || cfg.CacheTTL > 10*time.Second {
		return cfg, errors.New("CACHE_TTL must be between 0 and 10s")
	}
	if cfg.LockTimeout <= 0 {
		return cfg, errors.New("LOCK_TIMEOUT must be > 0")
	}
	if cfg.OperationTTL <= 0 {
		return cfg, errors.New("OPERATION_TTL must be > 0")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	for _, cl := range []ClassLimit{cfg.Limits.Read, cfg.Limits.Play, cfg.Limits.Admin} {
		if cl.Window <= 0 || cl.Max < 1 || cl.Block <= 0 || cl.Debounce < 0 {
			return cfg, errors.New("class limits need positive window, max and block, and non-negative debounce")
		}
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
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

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getint64(k string, def int64) int64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
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

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
