package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/supplytrace-backend/pkg/logger"
	"github.com/angelmondragon/supplytrace-backend/pkg/metrics"
)

const (
	defaultOrphanBatch = 500
	defaultStaleAfter  = 2 * time.Minute
)

type orphanRequeuer interface {
	RequeueOrphans(ctx context.Context, limit int, now time.Time) (int64, error)
}

type staleReclaimer interface {
	ReclaimStale(ctx context.Context, cutoff, now time.Time) (int64, error)
}

type OrphanRequeueJobParams struct {
	Logger  *logger.Logger
	Jobs    orphanRequeuer
	Metrics *metrics.VerificationMetrics
	Batch   int
}

// NewOrphanRequeueJob queues verification for pending events that have no
// job row.
func NewOrphanRequeueJob(params OrphanRequeueJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Jobs == nil {
		return nil, errors.New("job repository required")
	}
	batch := params.Batch
	if batch <= 0 {
		batch = defaultOrphanBatch
	}
	return &orphanRequeueJob{
		logg:    params.Logger,
		jobs:    params.Jobs,
		metrics: params.Metrics,
		batch:   batch,
		now:     time.Now,
	}, nil
}

type orphanRequeueJob struct {
	logg    *logger.Logger
	jobs    orphanRequeuer
	metrics *metrics.VerificationMetrics
	batch   int
	now     func() time.Time
}

func (j *orphanRequeueJob) Name() string { return "verification-orphan-requeue" }

func (j *orphanRequeueJob) Run(ctx context.Context) error {
	n, err := j.jobs.RequeueOrphans(ctx, j.batch, j.now().UTC())
	if err != nil {
		return fmt.Errorf("requeue orphans: %w", err)
	}
	if n > 0 {
		j.metrics.IncJobs("requeued", int(n))
		j.logg.Warn(j.logg.WithField(ctx, "requeued", n), "cron.verification.orphans_requeued")
	}
	return nil
}

type StaleReclaimJobParams struct {
	Logger     *logger.Logger
	Jobs       staleReclaimer
	Metrics    *metrics.VerificationMetrics
	StaleAfter time.Duration
}

// NewStaleReclaimJob returns running jobs whose lock outlived StaleAfter to
// the queue, recovering work from crashed runners.
func NewStaleReclaimJob(params StaleReclaimJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Jobs == nil {
		return nil, errors.New("job repository required")
	}
	staleAfter := params.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	return &staleReclaimJob{
		logg:       params.Logger,
		jobs:       params.Jobs,
		metrics:    params.Metrics,
		staleAfter: staleAfter,
		now:        time.Now,
	}, nil
}

type staleReclaimJob struct {
	logg       *logger.Logger
	jobs       staleReclaimer
	metrics    *metrics.VerificationMetrics
	staleAfter time.Duration
	now        func() time.Time
}

func (j *staleReclaimJob) Name() string { return "verification-stale-reclaim" }

func (j *staleReclaimJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	n, err := j.jobs.ReclaimStale(ctx, now.Add(-j.staleAfter), now)
	if err != nil {
		return fmt.Errorf("reclaim stale jobs: %w", err)
	}
	if n > 0 {
		j.metrics.IncJobs("reclaimed", int(n))
		j.logg.Warn(j.logg.WithField(ctx, "reclaimed", n), "cron.verification.stale_reclaimed")
	}
	return nil
}
