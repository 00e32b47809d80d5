package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/supplytrace-backend/pkg/enums"
)

// Product is the per-product aggregate derived from its supply events.
type Product struct {
	ProductID          string                   `gorm:"column:product_id;primaryKey"`
	BatchID            string                   `gorm:"column:batch_id;not null"`
	CurrentStage       enums.Stage              `gorm:"column:current_stage;type:text;not null"`
	LastUpdated        time.Time                `gorm:"column:last_updated;not null;index:idx_products_last_updated,sort:desc"`
	Submitter          string                   `gorm:"column:submitter;not null"`
	VerificationStatus enums.VerificationStatus `gorm:"column:verification_status;type:text;not null;default:pending"`
	EventsCount        int64                    `gorm:"column:events_count;not null;default:0"`
	LatestEventID      *uuid.UUID               `gorm:"column:latest_event_id;type:uuid"`
	CreatedAt          time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
