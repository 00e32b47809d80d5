package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/angelmondragon/supplytrace-backend/pkg/db/types"
	"github.com/angelmondragon/supplytrace-backend/pkg/enums"
)

// VerificationJob is a durable queue row; one per event.
type VerificationJob struct {
	EventID          uuid.UUID           `gorm:"column:event_id;type:uuid;primaryKey"`
	ProductID        string              `gorm:"column:product_id;not null"`
	EvidenceLocators dbtypes.StringArray `gorm:"column:evidence_locators;type:jsonb;not null"`
	Status           enums.JobStatus     `gorm:"column:status;type:text;not null;index:idx_verification_jobs_claim,priority:1"`
	Attempts         int                 `gorm:"column:attempts;not null;default:0"`
	AvailableAt      time.Time           `gorm:"column:available_at;not null;index:idx_verification_jobs_claim,priority:2"`
	LockedAt         *time.Time          `gorm:"column:locked_at"`
	LockedBy         *string             `gorm:"column:locked_by"`
	LastError        *string             `gorm:"column:last_error"`
	CompletedAt      *time.Time          `gorm:"column:completed_at"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
