package product

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/supplytrace-backend/internal/repo"
	"github.com/angelmondragon/supplytrace-backend/pkg/db/models"
	"github.com/angelmondragon/supplytrace-backend/pkg/enums"
	"github.com/angelmondragon/supplytrace-backend/pkg/pagination"
)

// Repository persists the per-product aggregate.
type Repository struct {
	repo.Base
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(conn)}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{Base: r.Bind(tx)}
}

// DefaultBatchID is the batch label given to products created implicitly by
// their first event.
func DefaultBatchID(productID string) string {
	return "batch_" + productID
}

// UpsertFromEvent creates the product on its first event or folds the event
// into the existing row. The counter is incremented in SQL so concurrent
// submissions never lose an increment; batch_id and created_at are preserved.
func (r *Repository) UpsertFromEvent(ctx context.Context, event *models.SupplyEvent) error {
	now := time.Now().UTC()
	eventID := event.ID
	row := models.Product{
		ProductID:          event.ProductID,
		BatchID:            DefaultBatchID(event.ProductID),
		CurrentStage:       event.Stage,
		LastUpdated:        now,
		Submitter:          event.Submitter,
		VerificationStatus: enums.VerificationStatusPending,
		EventsCount:        1,
		LatestEventID:      &eventID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	return r.DB(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "product_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"events_count":        gorm.Expr("products.events_count + 1"),
			"current_stage":       event.Stage,
			"last_updated":        now,
			"submitter":           event.Submitter,
			"verification_status": enums.VerificationStatusPending,
			"latest_event_id":     eventID,
			"updated_at":          now,
		}),
	}).Create(&row).Error
}

// Create inserts an explicitly registered product. A duplicate product_id
// surfaces as a unique violation.
func (r *Repository) Create(ctx context.Context, product *models.Product) error {
	now := time.Now().UTC()
	if product.LastUpdated.IsZero() {
		product.LastUpdated = now
	}
	product.CreatedAt = now
	product.UpdatedAt = now
	return r.DB(ctx).Create(product).Error
}

func (r *Repository) FindByProductID(ctx context.Context, productID string) (*models.Product, error) {
	var product models.Product
	if err := r.DB(ctx).First(&product, "product_id = ?", productID).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// List returns products most recently updated first. Without paging params
// every product is returned.
func (r *Repository) List(ctx context.Context, params pagination.Params) ([]models.Product, error) {
	rows := []models.Product{}
	q := r.DB(ctx).Order("last_updated DESC").Order("product_id DESC")

	if params.Paged() {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, err
		}
		if cursor != nil {
			q = q.Where("last_updated < ? OR (last_updated = ? AND product_id < ?)", cursor.At, cursor.At, cursor.Key)
		}
		q = q.Limit(pagination.LimitWithBuffer(params.Limit))
	}

	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ApplyVerdict sets the rollup only while eventID is still the product's most
// recent event. It reports whether the row changed.
func (r *Repository) ApplyVerdict(ctx context.Context, productID string, eventID uuid.UUID, status enums.VerificationStatus) (bool, error) {
	res := r.DB(ctx).
		Model(&models.Product{}).
		Where("product_id = ? AND latest_event_id = ?", productID, eventID).
		Updates(map[string]any{
			"verification_status": status,
			"updated_at":          time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
