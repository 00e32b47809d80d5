package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/supplytrace-backend/api/middleware"
	"github.com/angelmondragon/supplytrace-backend/api/responses"
	"github.com/angelmondragon/supplytrace-backend/api/validators"
	"github.com/angelmondragon/supplytrace-backend/internal/verification"
	"github.com/angelmondragon/supplytrace-backend/pkg/db/models"
	"github.com/angelmondragon/supplytrace-backend/pkg/logger"
)

// VerificationService stores and serves verdicts.
type VerificationService interface {
	HandleCallback(ctx context.Context, input verification.CallbackInput) (*models.VerificationResult, error)
	GetResult(ctx context.Context, rawEventID string) (*models.VerificationResult, error)
}

func GetVerificationResult(svc VerificationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := svc.GetResult(r.Context(), chi.URLParam(r, "eventId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, verification.ResultFromModel(*result))
	}
}

type verificationCallbackRequest struct {
	EventID    string `json:"eventId" validate:"required"`
	Status     string `json:"status" validate:"required"`
	AIAnalysis string `json:"aiAnalysis" validate:"max=10000"`
}

// VerificationCallback accepts a verdict from an external verifier and
// mirrors it onto the event.
func VerificationCallback(svc VerificationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload verificationCallbackRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.HandleCallback(r.Context(), verification.CallbackInput{
			EventID:  payload.EventID,
			Status:   payload.Status,
			Analysis: payload.AIAnalysis,
			Verifier: middleware.VerifierFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, verification.ResultFromModel(*result))
	}
}
