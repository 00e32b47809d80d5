package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/supplytrace-backend/pkg/enums"
)

// Location is an optional GPS fix attached to a supply event.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// SupplyEventRecorded is emitted when a submission commits.
type SupplyEventRecorded struct {
	EventID            uuid.UUID   `json:"event_id"`
	ProductID          string      `json:"product_id"`
	Stage              enums.Stage `json:"stage"`
	Submitter          string      `json:"submitter"`
	RecordedAt         time.Time   `json:"recorded_at"`
	Temperature        *float64    `json:"temperature,omitempty"`
	Location           *Location   `json:"location,omitempty"`
	EvidenceLocator    string      `json:"evidence_locator"`
	TransactionLocator string      `json:"transaction_locator"`
	Degraded           bool        `json:"degraded"`
	EventsCount        int64       `json:"events_count"`
}

// SupplyEventVerified is emitted whenever a verdict is written for an event.
type SupplyEventVerified struct {
	EventID    uuid.UUID                `json:"event_id"`
	ProductID  string                   `json:"product_id"`
	Status     enums.VerificationStatus `json:"status"`
	Source     enums.VerificationSource `json:"source"`
	Score      *int                     `json:"score,omitempty"`
	VerifiedAt time.Time                `json:"verified_at"`
	// ProductRolledUp is true when the verdict also became the product's status.
	ProductRolledUp bool `json:"product_rolled_up"`
}

// ProductRegistered is emitted when a product is created explicitly.
type ProductRegistered struct {
	ProductID    string      `json:"product_id"`
	BatchID      string      `json:"batch_id"`
	CurrentStage enums.Stage `json:"current_stage"`
	Submitter    string      `json:"submitter"`
}
