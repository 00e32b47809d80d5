package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/supplytrace-backend/pkg/db/models"
	"github.com/angelmondragon/supplytrace-backend/pkg/enums"
)

// EventDTO is the client representation of a supply event.
type EventDTO struct {
	ID              uuid.UUID                `json:"id"`
	ProductID       string                   `json:"productId"`
	Stage           enums.Stage              `json:"stage"`
	Submitter       string                   `json:"submitter"`
	Timestamp       time.Time                `json:"timestamp"`
	Metadata        MetadataDTO              `json:"metadata"`
	IPFSHash        string                   `json:"ipfsHash"`
	TransactionHash string                   `json:"transactionHash"`
	AIVerified      enums.VerificationStatus `json:"aiVerified"`
	Degraded        bool                     `json:"degraded"`
}

type MetadataDTO struct {
	Temperature *float64     `json:"temperature,omitempty"`
	Notes       *string      `json:"notes,omitempty"`
	Location    *LocationDTO `json:"location,omitempty"`
}

type LocationDTO struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// SummaryDTO is the trimmed form embedded in product detail.
type SummaryDTO struct {
	ID         uuid.UUID                `json:"id"`
	Stage      enums.Stage              `json:"stage"`
	Submitter  string                   `json:"submitter"`
	Timestamp  time.Time                `json:"timestamp"`
	AIVerified enums.VerificationStatus `json:"aiVerified"`
}

func FromModel(e models.SupplyEvent) EventDTO {
	dto := EventDTO{
		ID:              e.ID,
		ProductID:       e.ProductID,
		Stage:           e.Stage,
		Submitter:       e.Submitter,
		Timestamp:       e.RecordedAt,
		IPFSHash:        e.EvidenceLocator,
		TransactionHash: e.TransactionLocator,
		AIVerified:      e.VerificationStatus,
		Degraded:        e.Degraded(),
		Metadata: MetadataDTO{
			Temperature: e.Temperature,
			Notes:       e.Notes,
		},
	}
	if e.HasLocation() {
		dto.Metadata.Location = &LocationDTO{Lat: *e.Latitude, Lng: *e.Longitude}
	}
	return dto
}

func FromModels(list []models.SupplyEvent) []EventDTO {
	out := make([]EventDTO, 0, len(list))
	for _, e := range list {
		out = append(out, FromModel(e))
	}
	return out
}

func SummariesFromModels(list []models.SupplyEvent) []SummaryDTO {
	out := make([]SummaryDTO, 0, len(list))
	for _, e := range list {
		out = append(out, SummaryDTO{
			ID:         e.ID,
			Stage:      e.Stage,
			Submitter:  e.Submitter,
			Timestamp:  e.RecordedAt,
			AIVerified: e.VerificationStatus,
		})
	}
	return out
}
