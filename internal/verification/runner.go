package verification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/supplytrace-backend/pkg/db"
	"github.com/angelmondragon/supplytrace-backend/pkg/db/models"
	"github.com/angelmondragon/supplytrace-backend/pkg/enums"
	"github.com/angelmondragon/supplytrace-backend/pkg/logger"
	"github.com/angelmondragon/supplytrace-backend/pkg/metrics"
)

const defaultPollInterval = time.Second

type jobQueue interface {
	ClaimNext(ctx context.Context, workerID string, now time.Time) (*models.VerificationJob, error)
	MarkFailed(ctx context.Context, job *models.VerificationJob, cause error, now time.Time) (bool, error)
	MarkDead(ctx context.Context, eventID uuid.UUID, cause error, now time.Time) error
}

type verdictWriter interface {
	Subject(ctx context.Context, job *models.VerificationJob) (Subject, error)
	CompleteJob(ctx context.Context, job *models.VerificationJob, report Report) error
	ApplyVerdict(ctx context.Context, v Verdict) (*models.VerificationResult, error)
}

// Runner drains the verification queue.
type Runner struct {
	jobs     jobQueue
	verdicts verdictWriter
	analyzer Analyzer
	workerID string
	poll     time.Duration
	metrics  *metrics.VerificationMetrics
	logg     *logger.Logger
	now      func() time.Time
}

type RunnerParams struct {
	Jobs         jobQueue
	Verdicts     verdictWriter
	Analyzer     Analyzer
	WorkerID     string
	PollInterval time.Duration
	Metrics      *metrics.VerificationMetrics
	Logger       *logger.Logger
}

func NewRunner(p RunnerParams) (*Runner, error) {
	switch {
	case p.Jobs == nil:
		return nil, errors.New("job queue required")
	case p.Verdicts == nil:
		return nil, errors.New("verdict writer required")
	case p.Analyzer == nil:
		return nil, errors.New("analyzer required")
	case p.WorkerID == "":
		return nil, errors.New("worker id required")
	}
	poll := p.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	return &Runner{
		jobs:     p.Jobs,
		verdicts: p.Verdicts,
		analyzer: p.Analyzer,
		workerID: p.WorkerID,
		poll:     poll,
		metrics:  p.Metrics,
		logg:     p.Logger,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Run processes due jobs until ctx is cancelled, sleeping between empty polls.
func (r *Runner) Run(ctx context.Context) error {
	r.info(ctx, "verification.runner.start")
	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()

	for {
		r.drain(ctx)
		select {
		case <-ctx.Done():
			r.info(ctx, "verification.runner.stop")
			return nil
		case <-ticker.C:
		}
	}
}

func (r *Runner) drain(ctx context.Context) {
	for ctx.Err() == nil {
		processed, err := r.ProcessNext(ctx)
		if err != nil {
			r.error(ctx, "verification.runner.claim_failed", err)
			return
		}
		if !processed {
			return
		}
	}
}

// ProcessNext claims and resolves a single job. It reports whether a job was
// claimed; a returned error means the queue itself could not be read.
func (r *Runner) ProcessNext(ctx context.Context) (bool, error) {
	job, err := r.jobs.ClaimNext(ctx, r.workerID, r.now())
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	jobCtx := ctx
	if r.logg != nil {
		jobCtx = r.logg.WithFields(r.logg.WithEventID(ctx, job.EventID.String()), map[string]any{
			"attempt":   job.Attempts,
			"worker_id": r.workerID,
		})
	}

	subject, err := r.verdicts.Subject(jobCtx, job)
	if err != nil {
		if db.IsNotFound(err) {
			r.error(jobCtx, "verification.job.event_missing", err)
			if markErr := r.jobs.MarkDead(jobCtx, job.EventID, err, r.now()); markErr != nil {
				r.error(jobCtx, "verification.job.mark_failed", markErr)
			}
			r.metrics.IncJobs("failed", 1)
			return true, nil
		}
		r.retry(jobCtx, job, err)
		return true, nil
	}

	report := r.analyze(jobCtx, subject)
	if err := r.verdicts.CompleteJob(jobCtx, job, report); err != nil {
		r.retry(jobCtx, job, err)
		return true, nil
	}

	r.metrics.IncJobs("succeeded", 1)
	return true, nil
}

// analyze never fails: analyzer errors and panics resolve to a failed report.
func (r *Runner) analyze(ctx context.Context, subject Subject) (report Report) {
	start := time.Now()
	defer func() {
		r.metrics.ObserveAnalysis(time.Since(start))
		if rec := recover(); rec != nil {
			err := fmt.Errorf("analyzer panic: %v", rec)
			r.error(ctx, "verification.analyzer.panic", err)
			report = FailedReport(err)
		}
	}()

	report, err := r.analyzer.Analyze(ctx, subject)
	if err != nil {
		r.error(ctx, "verification.analyzer.failed", err)
		return FailedReport(err)
	}
	if !report.Status.IsTerminal() {
		return FailedReport(fmt.Errorf("analyzer returned %q", report.Status))
	}
	return report
}

func (r *Runner) retry(ctx context.Context, job *models.VerificationJob, cause error) {
	r.error(ctx, "verification.job.persist_failed", cause)
	terminal, err := r.jobs.MarkFailed(ctx, job, cause, r.now())
	if err != nil {
		r.error(ctx, "verification.job.mark_failed", err)
		return
	}
	if terminal {
		r.metrics.IncJobs("failed", 1)
		r.giveUp(ctx, job, cause)
		return
	}
	r.metrics.IncJobs("retried", 1)
}

// giveUp makes one last attempt to resolve the event as failed once its job
// is out of attempts, so the event does not stay pending.
func (r *Runner) giveUp(ctx context.Context, job *models.VerificationJob, cause error) {
	report := FailedReport(cause)
	if _, err := r.verdicts.ApplyVerdict(ctx, Verdict{
		EventID:  job.EventID,
		Status:   report.Status,
		Analysis: report.Analysis,
		Score:    &report.Score,
		Source:   enums.VerificationSourceWorker,
	}); err != nil {
		r.error(ctx, "verification.job.final_verdict_failed", err)
	}
}

func (r *Runner) info(ctx context.Context, msg string) {
	if r.logg != nil {
		r.logg.Info(ctx, msg)
	}
}

func (r *Runner) error(ctx context.Context, msg string, err error) {
	if r.logg != nil {
		r.logg.Error(ctx, msg, err)
	}
}
