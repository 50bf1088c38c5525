// Command server runs the virtual try-on backend: an HTTP API over
// anonymous photo sessions, a Gemini-backed generation pipeline, and the
// periodic cleanup sweeps that keep session records and blobs from
// accumulating.
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
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tbourn/go-tryon-backend/internal/blob"
	"github.com/tbourn/go-tryon-backend/internal/config"
	"github.com/tbourn/go-tryon-backend/internal/events"
	"github.com/tbourn/go-tryon-backend/internal/gemini"
	httpapi "github.com/tbourn/go-tryon-backend/internal/http"
	"github.com/tbourn/go-tryon-backend/internal/observability"
	"github.com/tbourn/go-tryon-backend/internal/ratelimit"
	"github.com/tbourn/go-tryon-backend/internal/repo"
	"github.com/tbourn/go-tryon-backend/internal/sweep"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	_ = godotenv.Load()
	cfg := config.MustLoad()

	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Tracing
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownOTel(c)
	}()

	// Record store
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("migrate database failed")
	}

	// Blob store
	var blobs blob.Store
	if cfg.S3.Bucket != "" {
		s3Store, err := blob.NewS3Store(ctx, cfg.S3.Bucket, cfg.S3.Region)
		if err != nil {
			log.Fatal().Err(err).Msg("s3 setup failed")
		}
		blobs = s3Store
	} else {
		log.Warn().Msg("S3_BUCKET not set; using in-memory blob store")
		blobs = blob.NewMemoryStore()
	}

	// Generative model
	model, err := gemini.NewClient(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, cfg.Gemini.RequestRPS)
	if err != nil {
		log.Fatal().Err(err).Msg("gemini setup failed")
	}
	defer model.Close()

	// Rate limiter
	policy := ratelimit.Policy{MaxRequests: cfg.RateLimit.MaxRequests, Window: cfg.RateLimit.Window}
	var limiter ratelimit.Limiter
	switch cfg.RateLimit.Backend {
	case "mongo":
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.RateLimit.MongoURI))
		if err != nil {
			log.Fatal().Err(err).Msg("mongo connect failed")
		}
		defer func() { _ = client.Disconnect(context.Background()) }()
		if err := client.Ping(ctx, nil); err != nil {
			log.Fatal().Err(err).Msg("mongo ping failed")
		}
		ml := ratelimit.NewMongoLimiter(client, cfg.RateLimit.MongoDB, policy, log.Logger)
		if err := ml.EnsureIndexes(ctx); err != nil {
			log.Fatal().Err(err).Msg("mongo index setup failed")
		}
		limiter = ml
	default:
		mem := ratelimit.NewMemoryLimiter(policy)
		defer mem.Stop()
		limiter = mem
	}

	emitter := events.NewEmitter(log.Logger)

	// HTTP
	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, cfg, httpapi.Deps{
		DB:      db,
		Blobs:   blobs,
		Model:   model,
		Limiter: limiter,
		Events:  emitter,
	})

	// Background sweeps
	sweeper := &sweep.Sweeper{
		Sessions:     httpapi.NewSessionService(db, blobs, emitter, cfg.Session.Duration),
		Blobs:        blobs,
		Events:       emitter,
		Log:          log.Logger,
		SessionEvery: cfg.Session.SweepInterval,
		BlobEvery:    cfg.BlobSweep,
	}
	go sweeper.Run(ctx)

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
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown incomplete")
	}
}

// setupLogging configures the global zerolog logger from config.
func setupLogging(cfg config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}
