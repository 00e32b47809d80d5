package verification

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/supplytrace-backend/pkg/db/models"
	"github.com/angelmondragon/supplytrace-backend/pkg/enums"
)

// ResultDTO is the stored verdict as returned to clients.
type ResultDTO struct {
	EventID    uuid.UUID                `json:"eventId"`
	Status     enums.VerificationStatus `json:"status"`
	AIAnalysis string                   `json:"aiAnalysis"`
	Score      *int                     `json:"score,omitempty"`
	Confidence *float64                 `json:"confidence,omitempty"`
	Source     enums.VerificationSource `json:"source"`
	VerifiedAt time.Time                `json:"verifiedAt"`
}

func ResultFromModel(r models.VerificationResult) ResultDTO {
	return ResultDTO{
		EventID:    r.EventID,
		Status:     r.Status,
		AIAnalysis: r.Analysis,
		Score:      r.Score,
		Confidence: r.Confidence,
		Source:     r.Source,
		VerifiedAt: r.VerifiedAt,
	}
}
