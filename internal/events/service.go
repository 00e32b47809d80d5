package events

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/supplytrace-backend/pkg/db"
	"github.com/angelmondragon/supplytrace-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/supplytrace-backend/pkg/errors"
)

type reader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.SupplyEvent, error)
	ListByProduct(ctx context.Context, productID string) ([]models.SupplyEvent, error)
}

// Service serves event read paths.
type Service struct {
	repo reader
}

func NewService(repo reader) (*Service, error) {
	if repo == nil {
		return nil, errors.New("events repository required")
	}
	return &Service{repo: repo}, nil
}

// ListByProduct returns the product's events newest first. Unknown products
// yield an empty slice.
func (s *Service) ListByProduct(ctx context.Context, productID string) ([]models.SupplyEvent, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return nil, pkgerrors.Validation("productId is required")
	}
	list, err := s.repo.ListByProduct(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list events")
	}
	if list == nil {
		list = []models.SupplyEvent{}
	}
	return list, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.SupplyEvent, error) {
	event, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "event not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load event")
	}
	return event, nil
}
