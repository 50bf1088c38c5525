// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, storage, rate limiting, the generative
// model, and observability.
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
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "go-tryon-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// SessionConfig governs the lifetime of anonymous sessions.
type SessionConfig struct {
	Duration      time.Duration // initial session lifetime
	SweepInterval time.Duration // how often expired sessions are reaped
}

// RateLimitConfig configures fixed-window admission control.
//
// Backend selects the limiter implementation: "memory" keeps counters in a
// process-local map; "mongo" shares them through a transactional collection
// so multiple instances enforce one global window.
type RateLimitConfig struct {
	MaxRequests int           // RATE_MAX_REQUESTS
	Window      time.Duration // RATE_WINDOW
	Backend     string        // memory|mongo
	MongoURI    string        // RATE_MONGO_URI (mongo backend only)
	MongoDB     string        // RATE_MONGO_DB
}

// GeminiConfig configures the external generative model client.
type GeminiConfig struct {
	APIKey     string  // GEMINI_API_KEY
	Model      string  // GEMINI_MODEL
	RequestRPS float64 // client-side pacing of outbound calls
}

// S3Config configures the blob store backend.
type S3Config struct {
	Bucket string // S3_BUCKET; empty selects the in-memory store (dev/tests)
	Region string // AWS_REGION
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 60s (generation calls are slow)
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	APIBasePath string // base path for API routes

	// App
	DBPath        string        // SQLite path for session records
	Session       SessionConfig // session lifetime and reaping
	BlobSweep     time.Duration // blob retention sweep cadence
	MaxUploadSize int64         // per-request upload cap in bytes

	// Rate limiting
	RateLimit RateLimitConfig

	// Domain collaborators
	Gemini GeminiConfig
	S3     S3Config

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
		WriteTimeout:      getdur("WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath: getenv("DB_PATH", "tryon.db"),
		Session: SessionConfig{
			Duration:      getdur("SESSION_DURATION", 2*time.Hour),
			SweepInterval: getdur("SESSION_SWEEP_INTERVAL", time.Hour),
		},
		BlobSweep:     getdur("BLOB_SWEEP_INTERVAL", 6*time.Hour),
		MaxUploadSize: int64(getint("MAX_UPLOAD_BYTES", 10<<20)),

		// Rate limiting
		RateLimit: RateLimitConfig{
			MaxRequests: getint("RATE_MAX_REQUESTS", 10),
			Window:      getdur("RATE_WINDOW", time.Minute),
			Backend:     strings.ToLower(getenv("RATE_BACKEND", "memory")),
			MongoURI:    getenv("RATE_MONGO_URI", ""),
			MongoDB:     getenv("RATE_MONGO_DB", "tryon"),
		},

		// Domain collaborators
		Gemini: GeminiConfig{
			APIKey:     getenv("GEMINI_API_KEY", ""),
			Model:      getenv("GEMINI_MODEL", "gemini-2.0-flash-exp"),
			RequestRPS: getfloat("GEMINI_RPS", 2.0),
		},
		S3: S3Config{
			Bucket: getenv("S3_BUCKET", ""),
			Region: getenv("AWS_REGION", "us-east-1"),
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
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-tryon-backend"),
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
	if cfg.Session.Duration <= 0 {
		return cfg, errors.New("SESSION_DURATION must be > 0")
	}
	if cfg.Session.SweepInterval <= 0 {
		return cfg, errors.New("SESSION_SWEEP_INTERVAL must be > 0")
	}
	if cfg.BlobSweep <= 0 {
		return cfg, errors.New("BLOB_SWEEP_INTERVAL must be > 0")
	}
	if cfg.MaxUploadSize <= 0 {
		return cfg, errors.New("MAX_UPLOAD_BYTES must be > 0")
	}
	if cfg.RateLimit.MaxRequests < 1 {
		return cfg, errors.New("RATE_MAX_REQUESTS must be >= 1")
	}
	if cfg.RateLimit.Window <= 0 {
		return cfg, errors.New("RATE_WINDOW must be > 0")
	}
	switch cfg.RateLimit.Backend {
	case "memory", "mongo":
	default:
		return cfg, errors.New("RATE_BACKEND must be one of: memory, mongo")
	}
	if cfg.RateLimit.Backend == "mongo" && strings.TrimSpace(cfg.RateLimit.MongoURI) == "" {
		return cfg, errors.New("RATE_MONGO_URI must be set when RATE_BACKEND is mongo")
	}
	if cfg.Gemini.RequestRPS <= 0 {
		return cfg, errors.New("GEMINI_RPS must be > 0")
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
