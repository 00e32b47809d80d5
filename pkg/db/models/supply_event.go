package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/supplytrace-backend/pkg/enums"
)

// SupplyEvent is one recorded stage transition for a product. Everything but
// VerificationStatus is fixed at creation.
type SupplyEvent struct {
	ID                 uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	ProductID          string                   `gorm:"column:product_id;not null;index:idx_supply_events_product_recorded,priority:1"`
	Stage              enums.Stage              `gorm:"column:stage;type:text;not null"`
	Submitter          string                   `gorm:"column:submitter;not null"`
	RecordedAt         time.Time                `gorm:"column:recorded_at;not null;index:idx_supply_events_product_recorded,priority:2,sort:desc"`
	Temperature        *float64                 `gorm:"column:temperature"`
	Notes              *string                  `gorm:"column:notes"`
	Latitude           *float64                 `gorm:"column:latitude"`
	Longitude          *float64                 `gorm:"column:longitude"`
	EvidenceLocator    string                   `gorm:"column:evidence_locator;not null"`
	TransactionLocator string                   `gorm:"column:transaction_locator;not null"`
	EvidenceDegraded   bool                     `gorm:"column:evidence_degraded;not null;default:false"`
	LedgerDegraded     bool                     `gorm:"column:ledger_degraded;not null;default:false"`
	VerificationStatus enums.VerificationStatus `gorm:"column:verification_status;type:text;not null;default:pending"`
	CreatedAt          time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

// HasLocation reports whether both coordinates were recorded.
func (e SupplyEvent) HasLocation() bool {
	return e.Latitude != nil && e.Longitude != nil
}

// Degraded reports whether either locator was synthesized by a fallback.
func (e SupplyEvent) Degraded() bool {
	return e.EvidenceDegraded || e.LedgerDegraded
}
