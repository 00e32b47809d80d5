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

	"github.com/angelmondragon/supplytrace-backend/internal/cron"
	"github.com/angelmondragon/supplytrace-backend/internal/verification"
	"github.com/angelmondragon/supplytrace-backend/pkg/config"
	"github.com/angelmondragon/supplytrace-backend/pkg/db"
	"github.com/angelmondragon/supplytrace-backend/pkg/logger"
	"github.com/angelmondragon/supplytrace-backend/pkg/metrics"
	"github.com/angelmondragon/supplytrace-backend/pkg/migrate"
	"github.com/angelmondragon/supplytrace-backend/pkg/outbox"
	"github.com/angelmondragon/supplytrace-backend/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	var lock cron.Lock = &cron.LocalLock{}
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(ctx, cfg.Redis, logg)
		requireResource(ctx, logg, "redis", err)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logg.Error(ctx, "error closing redis", err)
			}
		}()
		redisLock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName(cfg.App.Env)), cfg.Cron.LockTTL)
		requireResource(ctx, logg, "cron lock", err)
		lock = redisLock
	} else {
		logg.Warn(ctx, "redis not configured; cron lock is process local")
	}

	verificationMetrics := metrics.NewVerificationMetrics(prometheus.DefaultRegisterer)
	jobRepo := verification.NewJobRepository(dbClient.DB(), cfg.Verification.MaxAttempts)

	orphans, err := cron.NewOrphanRequeueJob(cron.OrphanRequeueJobParams{
		Logger:  logg,
		Jobs:    jobRepo,
		Metrics: verificationMetrics,
	})
	requireResource(ctx, logg, "orphan requeue job", err)

	stale, err := cron.NewStaleReclaimJob(cron.StaleReclaimJobParams{
		Logger:     logg,
		Jobs:       jobRepo,
		Metrics:    verificationMetrics,
		StaleAfter: cfg.Verification.StaleAfter,
	})
	requireResource(ctx, logg, "stale reclaim job", err)

	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:        logg,
		DB:            dbClient,
		Repository:    outbox.NewRepository(dbClient.DB()),
		RetentionDays: cfg.Outbox.RetentionDays,
	})
	requireResource(ctx, logg, "outbox retention job", err)

	registry, err := cron.NewRegistry(orphans, stale, retention)
	requireResource(ctx, logg, "cron registry", err)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	requireResource(ctx, logg, "cron service", err)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(runCtx, "starting cron worker")

	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error {
		return service.Run(groupCtx)
	})
	group.Go(func() error {
		return metrics.Serve(groupCtx, cfg.App.MetricsAddr, prometheus.DefaultGatherer)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(runCtx, "cron worker shutting down gracefully")
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf("cron-worker:%s", env)
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
