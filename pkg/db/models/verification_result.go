package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/supplytrace-backend/pkg/enums"
)

// VerificationResult stores the latest verdict for an event, from either the
// worker or the external callback.
type VerificationResult struct {
	ID         uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	EventID    uuid.UUID                `gorm:"column:event_id;type:uuid;not null;uniqueIndex:ux_verification_results_event"`
	Status     enums.VerificationStatus `gorm:"column:status;type:text;not null"`
	Analysis   string                   `gorm:"column:analysis;not null"`
	Score      *int                     `gorm:"column:score"`
	Confidence *float64                 `gorm:"column:confidence"`
	Source     enums.VerificationSource `gorm:"column:source;type:text;not null"`
	VerifiedAt time.Time                `gorm:"column:verified_at;not null"`
	CreatedAt  time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
