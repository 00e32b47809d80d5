package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/supplytrace-backend/internal/events"
	product "github.com/angelmondragon/supplytrace-backend/internal/products"
	"github.com/angelmondragon/supplytrace-backend/internal/verification"
	"github.com/angelmondragon/supplytrace-backend/pkg/config"
	"github.com/angelmondragon/supplytrace-backend/pkg/db"
	"github.com/angelmondragon/supplytrace-backend/pkg/instance"
	"github.com/angelmondragon/supplytrace-backend/pkg/logger"
	"github.com/angelmondragon/supplytrace-backend/pkg/metrics"
	"github.com/angelmondragon/supplytrace-backend/pkg/migrate"
	"github.com/angelmondragon/supplytrace-backend/pkg/outbox"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "verification-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "verification-worker"

	logg = logger.New(logger.Options{
		ServiceName: "verification-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	requireResource(ctx, logg, "dev migrations", migrate.MaybeRunDev(ctx, cfg, logg, dbClient))

	verificationMetrics := metrics.NewVerificationMetrics(prometheus.DefaultRegisterer)
	jobRepo := verification.NewJobRepository(dbClient.DB(), cfg.Verification.MaxAttempts)

	service, err := verification.NewService(verification.ServiceParams{
		TxRunner: dbClient,
		Events:   events.NewRepository(dbClient.DB()),
		Products: product.NewRepository(dbClient.DB()),
		Results:  verification.NewResultRepository(dbClient.DB()),
		Jobs:     jobRepo,
		Outbox:   outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Metrics:  verificationMetrics,
		Logger:   logg,
	})
	requireResource(ctx, logg, "verification service", err)

	runner, err := verification.NewRunner(verification.RunnerParams{
		Jobs:         jobRepo,
		Verdicts:     service,
		Analyzer:     verification.NewRandomAnalyzer(cfg.Verification.VerifiedRatio),
		WorkerID:     instance.ID(cfg.Verification.WorkerID),
		PollInterval: cfg.Verification.PollInterval,
		Metrics:      verificationMetrics,
		Logger:       logg,
	})
	requireResource(ctx, logg, "verification runner", err)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"workerId":    instance.ID(cfg.Verification.WorkerID),
	})
	logg.Info(runCtx, "starting verification worker")

	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error {
		return runner.Run(groupCtx)
	})
	group.Go(func() error {
		return metrics.Serve(groupCtx, cfg.App.MetricsAddr, prometheus.DefaultGatherer)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "verification worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(runCtx, "verification worker shutting down gracefully")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
