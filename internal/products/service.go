package product

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/angelmondragon/supplytrace-backend/pkg/db"
	"github.com/angelmondragon/supplytrace-backend/pkg/db/models"
	"github.com/angelmondragon/supplytrace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/supplytrace-backend/pkg/errors"
	"github.com/angelmondragon/supplytrace-backend/pkg/logger"
	"github.com/angelmondragon/supplytrace-backend/pkg/outbox"
	"github.com/angelmondragon/supplytrace-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/supplytrace-backend/pkg/pagination"
)

// RecentEventsLimit is how many events accompany a product detail.
const RecentEventsLimit = 5

type recentEvents interface {
	ListRecentByProduct(ctx context.Context, productID string, limit int) ([]models.SupplyEvent, error)
}

// CreateProductInput holds the validated payload to register a product.
type CreateProductInput struct {
	ProductID    string
	BatchID      string
	Submitter    string
	CurrentStage *enums.Stage
}

// Service serves product read paths and explicit registration.
type Service struct {
	repo   *Repository
	events recentEvents
	tx     db.TxRunner
	outbox outbox.Emitter
	logg   *logger.Logger
}

type ServiceParams struct {
	Repo     *Repository
	Events   recentEvents
	TxRunner db.TxRunner
	Outbox   outbox.Emitter
	Logger   *logger.Logger
}

func NewService(p ServiceParams) (*Service, error) {
	switch {
	case p.Repo == nil:
		return nil, errors.New("product repository required")
	case p.Events == nil:
		return nil, errors.New("events repository required")
	case p.TxRunner == nil:
		return nil, errors.New("tx runner required")
	case p.Outbox == nil:
		return nil, errors.New("outbox emitter required")
	}
	return &Service{repo: p.Repo, events: p.Events, tx: p.TxRunner, outbox: p.Outbox, logg: p.Logger}, nil
}

// List returns products most recently updated first. With paging params the
// result carries the cursor of the next page, if any.
func (s *Service) List(ctx context.Context, params pagination.Params) (*ListResult, error) {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Validation("cursor is invalid")
	}

	rows, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list products")
	}

	result := &ListResult{Products: rows}
	if params.Paged() {
		limit := pagination.NormalizeLimit(params.Limit)
		if len(rows) > limit {
			last := rows[limit-1]
			result.Products = rows[:limit]
			result.NextCursor = pagination.EncodeCursor(pagination.Cursor{At: last.LastUpdated, Key: last.ProductID})
		}
	}
	return result, nil
}

// Get returns the product and its most recent events.
func (s *Service) Get(ctx context.Context, productID string) (*Detail, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, pkgerrors.Validation("productId is required")
	}

	product, err := s.repo.FindByProductID(ctx, productID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
	}

	recent, err := s.events.ListRecentByProduct(ctx, productID, RecentEventsLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load recent events")
	}
	if recent == nil {
		recent = []models.SupplyEvent{}
	}
	return &Detail{Product: *product, RecentEvents: recent}, nil
}

// Create registers a product ahead of its first event. The stage defaults to farm.
func (s *Service) Create(ctx context.Context, input CreateProductInput) (*models.Product, error) {
	input.ProductID = strings.TrimSpace(input.ProductID)
	input.BatchID = strings.TrimSpace(input.BatchID)
	input.Submitter = strings.TrimSpace(input.Submitter)

	var problems []string
	if input.ProductID == "" {
		problems = append(problems, "productId is required")
	}
	if input.BatchID == "" {
		problems = append(problems, "batchId is required")
	}
	if input.Submitter == "" {
		problems = append(problems, "submitter is required")
	}
	stage := enums.StageFarm
	if input.CurrentStage != nil {
		if !input.CurrentStage.IsValid() {
			problems = append(problems, "currentStage is invalid")
		} else {
			stage = *input.CurrentStage
		}
	}
	if len(problems) > 0 {
		return nil, pkgerrors.Validation(problems...)
	}

	product := &models.Product{
		ProductID:          input.ProductID,
		BatchID:            input.BatchID,
		CurrentStage:       stage,
		Submitter:          input.Submitter,
		VerificationStatus: enums.VerificationStatusPending,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, product); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventProductRegistered,
			AggregateType: enums.AggregateProduct,
			AggregateID:   product.ProductID,
			Actor:         &outbox.ActorRef{Submitter: product.Submitter},
			Data: payloads.ProductRegistered{
				ProductID:    product.ProductID,
				BatchID:      product.BatchID,
				CurrentStage: product.CurrentStage,
				Submitter:    product.Submitter,
			},
		})
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "product already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create product")
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithProductID(ctx, product.ProductID), "product.registered")
	}
	return product, nil
}
