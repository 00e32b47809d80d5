package verification

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/supplytrace-backend/internal/repo"
	"github.com/angelmondragon/supplytrace-backend/pkg/db/models"
)

// ResultRepository persists the latest verdict per event.
type ResultRepository struct {
	repo.Base
}

func NewResultRepository(conn *gorm.DB) *ResultRepository {
	return &ResultRepository{Base: repo.NewBase(conn)}
}

func (r *ResultRepository) WithTx(tx *gorm.DB) *ResultRepository {
	return &ResultRepository{Base: r.Bind(tx)}
}

// Upsert writes result, replacing any earlier verdict for the same event.
func (r *ResultRepository) Upsert(ctx context.Context, result *models.VerificationResult) error {
	now := time.Now().UTC()
	if result.ID == uuid.Nil {
		result.ID = uuid.New()
	}
	if result.VerifiedAt.IsZero() {
		result.VerifiedAt = now
	}
	result.CreatedAt = now
	result.UpdatedAt = now

	return r.DB(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "event_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"status", "analysis", "score", "confidence", "source", "verified_at", "updated_at",
			}),
		}).
		Create(result).Error
}

func (r *ResultRepository) FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.VerificationResult, error) {
	var result models.VerificationResult
	if err := r.DB(ctx).First(&result, "event_id = ?", eventID).Error; err != nil {
		return nil, err
	}
	return &result, nil
}
