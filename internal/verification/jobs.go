package verification

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/supplytrace-backend/internal/repo"
	"github.com/angelmondragon/supplytrace-backend/pkg/db"
	"github.com/angelmondragon/supplytrace-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/supplytrace-backend/pkg/db/types"
	"github.com/angelmondragon/supplytrace-backend/pkg/enums"
)

const (
	defaultMaxAttempts = 5
	retryBaseDelay     = 5 * time.Second
	retryMaxDelay      = 5 * time.Minute
	maxJobErrorLen     = 1024
)

// JobRepository is the durable verification queue. One row per event.
type JobRepository struct {
	repo.Base
	maxAttempts int
}

func NewJobRepository(conn *gorm.DB, maxAttempts int) *JobRepository {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &JobRepository{Base: repo.NewBase(conn), maxAttempts: maxAttempts}
}

// WithTx returns a repository bound to the provided transaction.
func (r *JobRepository) WithTx(tx *gorm.DB) *JobRepository {
	return &JobRepository{Base: r.Bind(tx), maxAttempts: r.maxAttempts}
}

// MaxAttempts is the number of claims before a job is marked failed.
func (r *JobRepository) MaxAttempts() int {
	return r.maxAttempts
}

// NewJob builds a queued job for the event, runnable at availableAt.
func NewJob(event *models.SupplyEvent, availableAt time.Time) *models.VerificationJob {
	return &models.VerificationJob{
		EventID:          event.ID,
		ProductID:        event.ProductID,
		EvidenceLocators: dbtypes.StringArray{event.EvidenceLocator},
		Status:           enums.JobStatusQueued,
		AvailableAt:      availableAt.UTC(),
	}
}

// Enqueue inserts the job unless one already exists for the event.
func (r *JobRepository) Enqueue(ctx context.Context, job *models.VerificationJob) error {
	if job.Status == "" {
		job.Status = enums.JobStatusQueued
	}
	return r.DB(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(job).Error
}

func (r *JobRepository) FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.VerificationJob, error) {
	var job models.VerificationJob
	if err := r.DB(ctx).First(&job, "event_id = ?", eventID).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// ClaimNext locks the oldest runnable job for workerID. It returns nil when
// nothing is due. On Postgres concurrent claimers skip each other's rows; the
// conditional update keeps other dialects from double-claiming.
func (r *JobRepository) ClaimNext(ctx context.Context, workerID string, now time.Time) (*models.VerificationJob, error) {
	now = now.UTC()
	var claimed *models.VerificationJob

	err := r.DB(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("status = ? AND available_at <= ?", enums.JobStatusQueued, now).
			Order("available_at ASC")
		if db.IsPostgres(tx) {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}

		var job models.VerificationJob
		if err := q.Take(&job).Error; err != nil {
			if db.IsNotFound(err) {
				return nil
			}
			return err
		}

		res := tx.Model(&models.VerificationJob{}).
			Where("event_id = ? AND status = ?", job.EventID, enums.JobStatusQueued).
			Updates(map[string]any{
				"status":     enums.JobStatusRunning,
				"attempts":   gorm.Expr("attempts + 1"),
				"locked_at":  now,
				"locked_by":  workerID,
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		job.Status = enums.JobStatusRunning
		job.Attempts++
		job.LockedAt = &now
		job.LockedBy = &workerID
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// MarkSucceeded completes a running job.
func (r *JobRepository) MarkSucceeded(ctx context.Context, eventID uuid.UUID, now time.Time) error {
	now = now.UTC()
	return r.DB(ctx).
		Model(&models.VerificationJob{}).
		Where("event_id = ?", eventID).
		Updates(map[string]any{
			"status":       enums.JobStatusSucceeded,
			"completed_at": now,
			"locked_at":    nil,
			"locked_by":    nil,
			"last_error":   nil,
			"updated_at":   now,
		}).Error
}

// MarkFailed records a failed attempt. The job is requeued with exponential
// backoff until attempts reach the maximum, then it is marked failed. It
// reports whether the job is terminal.
func (r *JobRepository) MarkFailed(ctx context.Context, job *models.VerificationJob, cause error, now time.Time) (bool, error) {
	now = now.UTC()
	msg := truncate(cause)
	updates := map[string]any{
		"locked_at":  nil,
		"locked_by":  nil,
		"last_error": msg,
		"updated_at": now,
	}

	terminal := job.Attempts >= r.maxAttempts
	if terminal {
		updates["status"] = enums.JobStatusFailed
		updates["completed_at"] = now
	} else {
		updates["status"] = enums.JobStatusQueued
		updates["available_at"] = now.Add(RetryDelay(job.Attempts))
	}

	err := r.DB(ctx).
		Model(&models.VerificationJob{}).
		Where("event_id = ?", job.EventID).
		Updates(updates).Error
	return terminal, err
}

// MarkDead fails the job immediately, regardless of attempts left.
func (r *JobRepository) MarkDead(ctx context.Context, eventID uuid.UUID, cause error, now time.Time) error {
	now = now.UTC()
	return r.DB(ctx).
		Model(&models.VerificationJob{}).
		Where("event_id = ?", eventID).
		Updates(map[string]any{
			"status":       enums.JobStatusFailed,
			"completed_at": now,
			"locked_at":    nil,
			"locked_by":    nil,
			"last_error":   truncate(cause),
			"updated_at":   now,
		}).Error
}

// ReclaimStale returns running jobs locked before cutoff to the queue.
func (r *JobRepository) ReclaimStale(ctx context.Context, cutoff, now time.Time) (int64, error) {
	now = now.UTC()
	res := r.DB(ctx).
		Model(&models.VerificationJob{}).
		Where("status = ? AND locked_at < ?", enums.JobStatusRunning, cutoff.UTC()).
		Updates(map[string]any{
			"status":       enums.JobStatusQueued,
			"locked_at":    nil,
			"locked_by":    nil,
			"available_at": now,
			"updated_at":   now,
		})
	return res.RowsAffected, res.Error
}

// RequeueOrphans enqueues jobs for pending events that have none, oldest
// first, up to limit.
func (r *JobRepository) RequeueOrphans(ctx context.Context, limit int, now time.Time) (int64, error) {
	var orphans []models.SupplyEvent
	if err := r.DB(ctx).
		Table("supply_events AS e").
		Select("e.*").
		Joins("LEFT JOIN verification_jobs j ON j.event_id = e.id").
		Where("e.verification_status = ? AND j.event_id IS NULL", enums.VerificationStatusPending).
		Order("e.created_at ASC").
		Limit(limit).
		Find(&orphans).Error; err != nil {
		return 0, err
	}
	if len(orphans) == 0 {
		return 0, nil
	}

	jobs := make([]*models.VerificationJob, 0, len(orphans))
	for i := range orphans {
		jobs = append(jobs, NewJob(&orphans[i], now))
	}
	res := r.DB(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(&jobs)
	return res.RowsAffected, res.Error
}

// RetryDelay is the backoff after the given attempt: 5s doubling, capped at 5m.
func RetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := retryBaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= retryMaxDelay {
			return retryMaxDelay
		}
	}
	return d
}

func truncate(err error) *string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if len(msg) > maxJobErrorLen {
		msg = msg[:maxJobErrorLen]
	}
	return &msg
}
