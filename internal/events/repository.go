package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/supplytrace-backend/internal/repo"
	"github.com/angelmondragon/supplytrace-backend/pkg/db/models"
	"github.com/angelmondragon/supplytrace-backend/pkg/enums"
)

const newestFirst = "recorded_at DESC, created_at DESC"

// Repository persists supply events.
type Repository struct {
	repo.Base
}

func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(conn)}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Bind(tx)}
}

// Create inserts the event as pending. ID and RecordedAt are filled when unset.
func (r *Repository) Create(ctx context.Context, event *models.SupplyEvent) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.RecordedAt.IsZero() {
		event.RecordedAt = time.Now().UTC()
	}
	event.VerificationStatus = enums.VerificationStatusPending
	return r.DB(ctx).Create(event).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.SupplyEvent, error) {
	var event models.SupplyEvent
	if err := r.DB(ctx).First(&event, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

// ListByProduct returns every event for the product, newest first.
func (r *Repository) ListByProduct(ctx context.Context, productID string) ([]models.SupplyEvent, error) {
	return r.list(ctx, productID, 0)
}

// ListRecentByProduct returns at most limit events, newest first.
func (r *Repository) ListRecentByProduct(ctx context.Context, productID string, limit int) ([]models.SupplyEvent, error) {
	return r.list(ctx, productID, limit)
}

func (r *Repository) list(ctx context.Context, productID string, limit int) ([]models.SupplyEvent, error) {
	events := []models.SupplyEvent{}
	q := r.DB(ctx).Where("product_id = ?", productID).Order(newestFirst)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// UpdateVerificationStatus overwrites the verdict. Returns gorm.ErrRecordNotFound
// when the event does not exist.
func (r *Repository) UpdateVerificationStatus(ctx context.Context, id uuid.UUID, status enums.VerificationStatus) error {
	res := r.DB(ctx).
		Model(&models.SupplyEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"verification_status": status,
			"updated_at":          time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CountByProduct is used to check the events_count invariant.
func (r *Repository) CountByProduct(ctx context.Context, productID string) (int64, error) {
	var n int64
	err := r.DB(ctx).Model(&models.SupplyEvent{}).Where("product_id = ?", productID).Count(&n).Error
	return n, err
}
