package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/supplytrace-backend/api/controllers"
	"github.com/angelmondragon/supplytrace-backend/api/middleware"
	"github.com/angelmondragon/supplytrace-backend/pkg/config"
	"github.com/angelmondragon/supplytrace-backend/pkg/logger"
	"github.com/angelmondragon/supplytrace-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/supplytrace-backend/pkg/redis"
)

const jsonBodyLimit = 1 << 20

// RedisStore backs idempotent replays and per-IP rate limits.
type RedisStore interface {
	pkgredis.IdempotencyStore
	middleware.RateLimiter
	Ping(ctx context.Context) error
}

// Deps carries everything the router mounts. Redis and Ledger are optional:
// without Redis, idempotency and rate limits are off; without the chain
// ledger, /api/ledger/verify answers 404.
type Deps struct {
	Config       *config.Config
	Logger       *logger.Logger
	HTTPMetrics  *metrics.HTTPMetrics
	Gatherer     prometheus.Gatherer
	Database     controllers.Pinger
	Redis        RedisStore
	Submissions  controllers.EventSubmitter
	Events       controllers.EventReader
	Products     controllers.ProductService
	Verification controllers.VerificationService
	Ledger       controllers.ChainVerifier
}

func NewRouter(d Deps) http.Handler {
	cfg, logg := d.Config, d.Logger

	var (
		idempotencyStore pkgredis.IdempotencyStore
		limiter          middleware.RateLimiter
		redisPinger      controllers.Pinger
	)
	if d.Redis != nil {
		idempotencyStore, limiter, redisPinger = d.Redis, d.Redis, d.Redis
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, d.HTTPMetrics),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)

	health := controllers.HealthDeps{Env: cfg.App.Env, Database: d.Database, Redis: redisPinger}
	r.Get("/health", controllers.Health(health))
	r.Get("/health/live", controllers.HealthLive(health))
	r.Get("/health/ready", controllers.HealthReady(health, logg))
	if d.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(d.Gatherer))
	}

	idempotent := middleware.Idempotency(idempotencyStore, cfg.Eventing.IdempotencyTTL, logg)
	submissionLimit := middleware.RateLimit(middleware.RateLimitPolicy{
		Name:   "submissions",
		Limit:  cfg.RateLimit.SubmissionsPerIP,
		Window: cfg.RateLimit.Window,
	}, limiter, logg)
	callbackLimit := middleware.RateLimit(middleware.RateLimitPolicy{
		Name:   "callbacks",
		Limit:  cfg.RateLimit.CallbacksPerIP,
		Window: cfg.RateLimit.Window,
	}, limiter, logg)
	uploads := controllers.UploadLimits{
		MaxFiles:    cfg.Evidence.MaxFiles,
		MaxFileSize: cfg.Evidence.MaxUploadBytes(),
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/events", func(r chi.Router) {
			r.With(
				submissionLimit,
				middleware.BodyLimit(uploads.MaxFileSize+jsonBodyLimit),
				idempotent,
			).Post("/", controllers.SubmitEvent(d.Submissions, uploads, logg))
			r.Get("/product/{productId}", controllers.ListProductEvents(d.Events, logg))
			r.Get("/{eventId}", controllers.GetEvent(d.Events, logg))
		})

		r.Route("/products", func(r chi.Router) {
			r.Get("/", controllers.ListProducts(d.Products, logg))
			r.With(middleware.BodyLimit(jsonBodyLimit), idempotent).Post("/", controllers.CreateProduct(d.Products, logg))
			r.Get("/{productId}", controllers.GetProduct(d.Products, logg))
		})

		r.Route("/verification", func(r chi.Router) {
			r.Get("/event/{eventId}", controllers.GetVerificationResult(d.Verification, logg))
			r.With(
				callbackLimit,
				middleware.BodyLimit(jsonBodyLimit),
				middleware.CallbackAuth(cfg.Callback, logg),
			).Post("/callback", controllers.VerificationCallback(d.Verification, logg))
		})

		r.Get("/ledger/verify", controllers.VerifyLedger(d.Ledger, logg))
	})

	return r
}
