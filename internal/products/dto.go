package product

import (
	"time"

	"github.com/angelmondragon/supplytrace-backend/internal/events"
	"github.com/angelmondragon/supplytrace-backend/pkg/db/models"
	"github.com/angelmondragon/supplytrace-backend/pkg/enums"
)

// ProductDTO represents the product aggregate returned to clients.
type ProductDTO struct {
	ProductID          string                   `json:"productId"`
	BatchID            string                   `json:"batchId"`
	CurrentStage       enums.Stage              `json:"currentStage"`
	LastUpdated        time.Time                `json:"lastUpdated"`
	VerificationStatus enums.VerificationStatus `json:"verificationStatus"`
	EventsCount        int64                    `json:"eventsCount"`
	Submitter          string                   `json:"submitter"`
}

// DetailDTO is a product with its most recent events.
type DetailDTO struct {
	ProductDTO
	RecentEvents []events.SummaryDTO `json:"recentEvents"`
}

// ListResult carries one page of products.
type ListResult struct {
	Products   []models.Product
	NextCursor string
}

// Detail is the service-level product view.
type Detail struct {
	Product      models.Product
	RecentEvents []models.SupplyEvent
}

func FromModel(p models.Product) ProductDTO {
	return ProductDTO{
		ProductID:          p.ProductID,
		BatchID:            p.BatchID,
		CurrentStage:       p.CurrentStage,
		LastUpdated:        p.LastUpdated,
		VerificationStatus: p.VerificationStatus,
		EventsCount:        p.EventsCount,
		Submitter:          p.Submitter,
	}
}

func FromModels(list []models.Product) []ProductDTO {
	out := make([]ProductDTO, 0, len(list))
	for _, p := range list {
		out = append(out, FromModel(p))
	}
	return out
}

func DetailFromModel(d Detail) DetailDTO {
	return DetailDTO{
		ProductDTO:   FromModel(d.Product),
		RecentEvents: events.SummariesFromModels(d.RecentEvents),
	}
}
