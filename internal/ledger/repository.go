package ledger

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/supplytrace-backend/internal/repo"
	"github.com/angelmondragon/supplytrace-backend/pkg/db"
	"github.com/angelmondragon/supplytrace-backend/pkg/db/models"
)

// Repository persists ledger entries.
type Repository struct {
	repo.Base
}

func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(conn)}
}

// Tip returns the newest entry, or nil when the chain is empty.
func (r *Repository) Tip(ctx context.Context) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := r.DB(ctx).Order("sequence DESC").Limit(1).Take(&entry).Error
	if db.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *Repository) Create(ctx context.Context, entry *models.LedgerEntry) error {
	return r.DB(ctx).Create(entry).Error
}

// ListAfter returns up to limit entries with sequence greater than after, oldest first.
func (r *Repository) ListAfter(ctx context.Context, after int64, limit int) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	if err := r.DB(ctx).
		Where("sequence > ?", after).
		Order("sequence ASC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *Repository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.DB(ctx).Model(&models.LedgerEntry{}).Count(&n).Error
	return n, err
}
