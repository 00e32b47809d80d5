package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/supplytrace-backend/api/responses"
	"github.com/angelmondragon/supplytrace-backend/api/validators"
	product "github.com/angelmondragon/supplytrace-backend/internal/products"
	"github.com/angelmondragon/supplytrace-backend/pkg/db/models"
	"github.com/angelmondragon/supplytrace-backend/pkg/enums"
	"github.com/angelmondragon/supplytrace-backend/pkg/logger"
	"github.com/angelmondragon/supplytrace-backend/pkg/pagination"
)

// NextCursorHeader carries the cursor of the following page of products.
const NextCursorHeader = "X-Next-Cursor"

// ProductService serves the product aggregate.
type ProductService interface {
	List(ctx context.Context, params pagination.Params) (*product.ListResult, error)
	Get(ctx context.Context, productID string) (*product.Detail, error)
	Create(ctx context.Context, input product.CreateProductInput) (*models.Product, error)
}

// ListProducts returns products most recently updated first. Paging is
// opt-in through limit/cursor.
func ListProducts(svc ProductService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", 0, 0, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if result.NextCursor != "" {
			w.Header().Set(NextCursorHeader, result.NextCursor)
		}
		responses.WriteSuccess(w, product.FromModels(result.Products))
	}
}

func GetProduct(svc ProductService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		detail, err := svc.Get(r.Context(), chi.URLParam(r, "productId"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, product.DetailFromModel(*detail))
	}
}

type createProductRequest struct {
	ProductID    string  `json:"productId" validate:"required,max=128"`
	BatchID      string  `json:"batchId" validate:"required,max=128"`
	Submitter    string  `json:"submitter" validate:"required,max=256"`
	CurrentStage *string `json:"currentStage"`
}

// CreateProduct registers a product explicitly; an existing productId is a
// conflict.
func CreateProduct(svc ProductService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload createProductRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := product.CreateProductInput{
			ProductID: payload.ProductID,
			BatchID:   payload.BatchID,
			Submitter: payload.Submitter,
		}
		if payload.CurrentStage != nil {
			stage := enums.Stage(strings.TrimSpace(*payload.CurrentStage))
			input.CurrentStage = &stage
		}

		created, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, product.FromModel(*created))
	}
}
