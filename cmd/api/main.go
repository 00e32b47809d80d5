package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/supplytrace-backend/api/controllers"
	"github.com/angelmondragon/supplytrace-backend/api/routes"
	"github.com/angelmondragon/supplytrace-backend/internal/events"
	"github.com/angelmondragon/supplytrace-backend/internal/evidence"
	"github.com/angelmondragon/supplytrace-backend/internal/ledger"
	product "github.com/angelmondragon/supplytrace-backend/internal/products"
	"github.com/angelmondragon/supplytrace-backend/internal/submission"
	"github.com/angelmondragon/supplytrace-backend/internal/verification"
	"github.com/angelmondragon/supplytrace-backend/pkg/config"
	"github.com/angelmondragon/supplytrace-backend/pkg/db"
	"github.com/angelmondragon/supplytrace-backend/pkg/logger"
	"github.com/angelmondragon/supplytrace-backend/pkg/metrics"
	"github.com/angelmondragon/supplytrace-backend/pkg/migrate"
	"github.com/angelmondragon/supplytrace-backend/pkg/outbox"
	"github.com/angelmondragon/supplytrace-backend/pkg/redis"
	"github.com/angelmondragon/supplytrace-backend/pkg/storage/gcs"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)

	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := context.Background()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	requireResource(ctx, logg, "dev migrations", migrate.MaybeRunDev(ctx, cfg, logg, dbClient))

	var redisStore routes.RedisStore
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(ctx, cfg.Redis, logg)
		requireResource(ctx, logg, "redis", err)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(ctx, "error closing redis", err)
			}
		}()
		redisStore = redisClient
	} else {
		logg.Warn(ctx, "redis not configured; idempotency keys and rate limits disabled")
	}

	evidenceStore, closeEvidence := buildEvidenceStore(ctx, cfg, logg)
	defer closeEvidence()

	eventRepo := events.NewRepository(dbClient.DB())
	productRepo := product.NewRepository(dbClient.DB())
	jobRepo := verification.NewJobRepository(dbClient.DB(), cfg.Verification.MaxAttempts)
	emitter := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	var (
		ledgerClient ledger.Ledger
		chainCheck   controllers.ChainVerifier
	)
	if cfg.Ledger.UseChain() {
		chain, err := ledger.NewChainLedger(ledger.NewRepository(dbClient.DB()), logg, ledger.WithAppendAttempts(cfg.Ledger.AppendRetries))
		requireResource(ctx, logg, "chain ledger", err)
		ledgerClient, chainCheck = chain, chain
	} else {
		logg.Warn(ctx, "ledger running in mock mode")
		ledgerClient = ledger.NewMockLedger()
	}

	submissionService, err := submission.NewService(submission.ServiceParams{
		TxRunner: dbClient,
		Events:   eventRepo,
		Products: productRepo,
		Jobs:     jobRepo,
		Outbox:   emitter,
		Evidence: evidenceStore,
		Ledger:   ledgerClient,
		Metrics:  metrics.NewSubmissionMetrics(prometheus.DefaultRegisterer),
		Logger:   logg,
		Options: submission.Options{
			EvidenceTimeout:   cfg.Evidence.Timeout,
			LedgerTimeout:     cfg.Ledger.Timeout,
			VerificationDelay: cfg.Verification.Delay,
		},
	})
	requireResource(ctx, logg, "submission service", err)

	eventService, err := events.NewService(eventRepo)
	requireResource(ctx, logg, "event service", err)

	productService, err := product.NewService(product.ServiceParams{
		Repo:     productRepo,
		Events:   eventRepo,
		TxRunner: dbClient,
		Outbox:   emitter,
		Logger:   logg,
	})
	requireResource(ctx, logg, "product service", err)

	verificationService, err := verification.NewService(verification.ServiceParams{
		TxRunner: dbClient,
		Events:   eventRepo,
		Products: productRepo,
		Results:  verification.NewResultRepository(dbClient.DB()),
		Jobs:     jobRepo,
		Outbox:   emitter,
		Metrics:  metrics.NewVerificationMetrics(prometheus.DefaultRegisterer),
		Logger:   logg,
	})
	requireResource(ctx, logg, "verification service", err)

	handler := routes.NewRouter(routes.Deps{
		Config:       cfg,
		Logger:       logg,
		HTTPMetrics:  metrics.NewHTTPMetrics(prometheus.DefaultRegisterer),
		Gatherer:     prometheus.DefaultGatherer,
		Database:     dbClient,
		Redis:        redisStore,
		Submissions:  submissionService,
		Events:       eventService,
		Products:     productService,
		Verification: verificationService,
		Ledger:       chainCheck,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"addr":        addr,
		"serviceKind": cfg.Service.Kind,
		"evidence":    evidenceMode(cfg),
		"ledger":      ledgerMode(cfg),
	})
	logg.Info(runCtx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(runCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-runCtx.Done():
		logg.Info(runCtx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(runCtx, "api server shutdown failed", err)
		}
	}
}

// buildEvidenceStore picks GCS when a bucket is configured. In auto mode a
// GCS bootstrap failure falls back to the mock store instead of aborting.
func buildEvidenceStore(ctx context.Context, cfg *config.Config, logg *logger.Logger) (evidence.Store, func()) {
	noop := func() {}
	if !cfg.Evidence.UseReal() {
		logg.Warn(ctx, "evidence store running in mock mode")
		return evidence.NewMockStore(), noop
	}

	client, err := gcs.NewClient(ctx, cfg.GCP, cfg.Evidence, logg)
	if err != nil {
		if strings.EqualFold(strings.TrimSpace(cfg.Evidence.Mode), config.ModeReal) {
			requireResource(ctx, logg, "gcs", err)
		}
		logg.Error(ctx, "gcs unavailable, falling back to mock evidence store", err)
		return evidence.NewMockStore(), noop
	}
	store, err := evidence.NewGCSStore(client, cfg.Evidence.ObjectPrefix, logg)
	requireResource(ctx, logg, "evidence store", err)
	return store, func() {
		if err := client.Close(); err != nil {
			logg.Error(ctx, "error closing gcs client", err)
		}
	}
}

func evidenceMode(cfg *config.Config) string {
	if cfg.Evidence.UseReal() {
		return "gcs"
	}
	return "mock"
}

func ledgerMode(cfg *config.Config) string {
	if cfg.Ledger.UseChain() {
		return "chain"
	}
	return "mock"
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
