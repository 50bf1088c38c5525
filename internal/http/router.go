// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging, panic recovery, metrics, CORS,
// security headers, and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-tryon-backend/internal/blob"
	"github.com/tbourn/go-tryon-backend/internal/config"
	"github.com/tbourn/go-tryon-backend/internal/domain"
	"github.com/tbourn/go-tryon-backend/internal/events"
	"github.com/tbourn/go-tryon-backend/internal/http/handlers"
	"github.com/tbourn/go-tryon-backend/internal/http/middleware"
	"github.com/tbourn/go-tryon-backend/internal/ratelimit"
	"github.com/tbourn/go-tryon-backend/internal/repo"
	"github.com/tbourn/go-tryon-backend/internal/services"
)

// sessionRepoShim adapts the repository free functions to the
// services.SessionRepo interface expected by SessionService. This keeps
// services decoupled from the concrete repo package while reusing existing
// functions.
type sessionRepoShim struct{}

// CreateSession proxies repo.CreateSession.
func (sessionRepoShim) CreateSession(ctx context.Context, db *gorm.DB, lifetime time.Duration) (*domain.Session, error) {
	return repo.CreateSession(ctx, db, lifetime)
}

// GetSession proxies repo.GetSession.
func (sessionRepoShim) GetSession(ctx context.Context, db *gorm.DB, id string, now time.Time) (*domain.Session, error) {
	return repo.GetSession(ctx, db, id, now)
}

// AddPhoto proxies repo.AddPhoto.
func (sessionRepoShim) AddPhoto(ctx context.Context, db *gorm.DB, sessionID string, photo domain.SessionPhoto) (*domain.SessionPhoto, error) {
	return repo.AddPhoto(ctx, db, sessionID, photo)
}

// ListPhotos proxies repo.ListPhotos.
func (sessionRepoShim) ListPhotos(ctx context.Context, db *gorm.DB, sessionID string) ([]domain.SessionPhoto, error) {
	return repo.ListPhotos(ctx, db, sessionID)
}

// ExtendSession proxies repo.ExtendSession.
func (sessionRepoShim) ExtendSession(ctx context.Context, db *gorm.DB, id string, delta time.Duration, now time.Time) (time.Time, error) {
	return repo.ExtendSession(ctx, db, id, delta, now)
}

// ListExpired proxies repo.ListExpired.
func (sessionRepoShim) ListExpired(ctx context.Context, db *gorm.DB, now time.Time) ([]domain.Session, error) {
	return repo.ListExpired(ctx, db, now)
}

// DeleteSession proxies repo.DeleteSession.
func (sessionRepoShim) DeleteSession(ctx context.Context, db *gorm.DB, id string) error {
	return repo.DeleteSession(ctx, db, id)
}

// NewSessionService constructs the session service over the gorm-backed
// repository. The command wiring reuses it so the background sweeper and
// the HTTP layer share one service.
func NewSessionService(db *gorm.DB, blobs blob.Store, em *events.Emitter, lifetime time.Duration) *services.SessionService {
	return services.NewSessionService(db, sessionRepoShim{}, blobs, em, lifetime)
}

// Deps carries the collaborators the router injects into services and
// handlers.
type Deps struct {
	DB      *gorm.DB
	Blobs   blob.Store
	Model   services.ModelClient
	Limiter ratelimit.Limiter
	Events  *events.Emitter
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given
// Gin engine, then mounts the versioned public API under cfg.APIBasePath.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured access logs
//  4. Recovery: capture panics after logger
//  5. Body size limiter and gzip
//  6. Metrics
//  7. CORS and security headers
//
// Rate limiting is applied per route to the mutating endpoints (photo
// upload, try-on) rather than globally; reads are cheap and unlimited.
func RegisterRoutes(r *gin.Engine, cfg config.Config, d Deps) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging
	r.Use(middleware.Logger())

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Body cap (uploads plus headroom) and response compression
	r.Use(limitBody(cfg.MaxUploadSize + (1 << 20)))
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) CORS posture (safe defaults: allow all if none configured)
	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"X-Request-ID", "X-RateLimit-Remaining", "Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.CORS.AllowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.CORS.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

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

	// Dependency injection: services ← repo/db/collaborators
	sessionSvc := NewSessionService(d.DB, d.Blobs, d.Events, cfg.Session.Duration)
	tryonSvc := services.NewTryOnService(sessionSvc, d.Blobs, d.Model, d.Events)
	h := handlers.New(sessionSvc, tryonSvc, d.Blobs, cfg.MaxUploadSize)

	rl := middleware.RateLimit(d.Limiter, middleware.KeyByIP())

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		api.POST("/sessions", h.CreateSession)
		api.GET("/sessions/:id", h.GetSession)
		api.DELETE("/sessions/:id", h.DeleteSession)
		api.PUT("/sessions/:id/extend", h.ExtendSession)

		api.POST("/sessions/:id/photos", rl, h.UploadPhoto)
		api.GET("/sessions/:id/photos", h.ListPhotos)

		api.POST("/sessions/:id/tryon", rl, h.TryOn)
	}
}

// limitBody returns a Gin middleware that caps the request body size for
// all endpoints to maxBytes using http.MaxBytesReader. Requests exceeding
// the cap will cause downstream body reads to error.
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
