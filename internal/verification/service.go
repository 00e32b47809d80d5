package verification

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/supplytrace-backend/internal/events"
	product "github.com/angelmondragon/supplytrace-backend/internal/products"
	"github.com/angelmondragon/supplytrace-backend/pkg/db"
	"github.com/angelmondragon/supplytrace-backend/pkg/db/models"
	"github.com/angelmondragon/supplytrace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/supplytrace-backend/pkg/errors"
	"github.com/angelmondragon/supplytrace-backend/pkg/logger"
	"github.com/angelmondragon/supplytrace-backend/pkg/metrics"
	"github.com/angelmondragon/supplytrace-backend/pkg/outbox"
	"github.com/angelmondragon/supplytrace-backend/pkg/outbox/payloads"
)

// Verdict is a resolved verification outcome for one event.
type Verdict struct {
	EventID    uuid.UUID
	Status     enums.VerificationStatus
	Analysis   string
	Score      *int
	Confidence *float64
	Source     enums.VerificationSource
}

// DefaultCallbackAnalysis is stored when a callback carries no analysis.
const DefaultCallbackAnalysis = "AI verification completed"

// CallbackInput is the verdict posted by an external verifier.
type CallbackInput struct {
	EventID  string
	Status   string
	Analysis string
	Verifier string
}

// Service writes verdicts and serves stored results.
type Service struct {
	tx       db.TxRunner
	events   *events.Repository
	products *product.Repository
	results  *ResultRepository
	jobs     *JobRepository
	outbox   outbox.Emitter
	metrics  *metrics.VerificationMetrics
	logg     *logger.Logger
	now      func() time.Time
}

type ServiceParams struct {
	TxRunner db.TxRunner
	Events   *events.Repository
	Products *product.Repository
	Results  *ResultRepository
	Jobs     *JobRepository
	Outbox   outbox.Emitter
	Metrics  *metrics.VerificationMetrics
	Logger   *logger.Logger
}

func NewService(p ServiceParams) (*Service, error) {
	switch {
	case p.TxRunner == nil:
		return nil, errors.New("tx runner required")
	case p.Events == nil:
		return nil, errors.New("events repository required")
	case p.Products == nil:
		return nil, errors.New("product repository required")
	case p.Results == nil:
		return nil, errors.New("results repository required")
	case p.Jobs == nil:
		return nil, errors.New("job repository required")
	case p.Outbox == nil:
		return nil, errors.New("outbox emitter required")
	}
	return &Service{
		tx:       p.TxRunner,
		events:   p.Events,
		products: p.Products,
		results:  p.Results,
		jobs:     p.Jobs,
		outbox:   p.Outbox,
		metrics:  p.Metrics,
		logg:     p.Logger,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// ApplyVerdict records v in one transaction: the event status, the stored
// result, the product rollup and the outbox event. Later verdicts overwrite
// earlier ones.
func (s *Service) ApplyVerdict(ctx context.Context, v Verdict) (*models.VerificationResult, error) {
	var result *models.VerificationResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = s.applyTx(ctx, tx, v)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.recorded(ctx, v)
	return result, nil
}

// CompleteJob applies the analyzer report for a claimed job and closes the job
// in the same transaction.
func (s *Service) CompleteJob(ctx context.Context, job *models.VerificationJob, report Report) error {
	score := report.Score
	v := Verdict{
		EventID:  job.EventID,
		Status:   report.Status,
		Analysis: report.Analysis,
		Score:    &score,
		Source:   enums.VerificationSourceWorker,
	}
	if report.Confidence > 0 {
		confidence := report.Confidence
		v.Confidence = &confidence
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.applyTx(ctx, tx, v); err != nil {
			return err
		}
		return s.jobs.WithTx(tx).MarkSucceeded(ctx, job.EventID, s.now())
	})
	if err != nil {
		return err
	}
	s.recorded(ctx, v)
	return nil
}

func (s *Service) applyTx(ctx context.Context, tx *gorm.DB, v Verdict) (*models.VerificationResult, error) {
	if !v.Status.IsTerminal() {
		return nil, pkgerrors.Validation("status must be verified or failed")
	}

	eventRepo := s.events.WithTx(tx)
	event, err := eventRepo.FindByID(ctx, v.EventID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "event not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load event")
	}

	if err := eventRepo.UpdateVerificationStatus(ctx, event.ID, v.Status); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update event status")
	}

	now := s.now()
	result := &models.VerificationResult{
		EventID:    event.ID,
		Status:     v.Status,
		Analysis:   v.Analysis,
		Score:      v.Score,
		Confidence: v.Confidence,
		Source:     v.Source,
		VerifiedAt: now,
	}
	if err := s.results.WithTx(tx).Upsert(ctx, result); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store verification result")
	}

	rolledUp, err := s.products.WithTx(tx).ApplyVerdict(ctx, event.ProductID, event.ID, v.Status)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "apply product rollup")
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventSupplyEventVerified,
		AggregateType: enums.AggregateSupplyEvent,
		AggregateID:   event.ID.String(),
		Actor:         &outbox.ActorRef{Source: string(v.Source)},
		Data: payloads.SupplyEventVerified{
			EventID:         event.ID,
			ProductID:       event.ProductID,
			Status:          v.Status,
			Source:          v.Source,
			Score:           v.Score,
			VerifiedAt:      now,
			ProductRolledUp: rolledUp,
		},
		OccurredAt: now,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit verification event")
	}
	return result, nil
}

func (s *Service) recorded(ctx context.Context, v Verdict) {
	s.metrics.IncVerdict(string(v.Status), string(v.Source))
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithFields(s.logg.WithEventID(ctx, v.EventID.String()), map[string]any{
		"verdict": v.Status,
		"source":  v.Source,
	})
	s.logg.Info(logCtx, "verification.verdict.applied")
}

// HandleCallback validates and applies a verdict posted by an external
// verifier.
func (s *Service) HandleCallback(ctx context.Context, input CallbackInput) (*models.VerificationResult, error) {
	var problems []string
	eventID, err := uuid.Parse(strings.TrimSpace(input.EventID))
	if err != nil {
		problems = append(problems, "eventId must be a valid id")
	}
	status, err := enums.ParseVerificationStatus(strings.TrimSpace(input.Status))
	if err != nil || !status.IsTerminal() {
		problems = append(problems, "status must be verified or failed")
	}
	if len(problems) > 0 {
		return nil, pkgerrors.Validation(problems...)
	}

	analysis := strings.TrimSpace(input.Analysis)
	if analysis == "" {
		analysis = DefaultCallbackAnalysis
	}
	if verifier := strings.TrimSpace(input.Verifier); verifier != "" {
		analysis = verifier + ": " + analysis
	}
	return s.ApplyVerdict(ctx, Verdict{
		EventID:  eventID,
		Status:   status,
		Analysis: analysis,
		Source:   enums.VerificationSourceCallback,
	})
}

// GetResult returns the stored verdict for an event.
func (s *Service) GetResult(ctx context.Context, rawEventID string) (*models.VerificationResult, error) {
	eventID, err := uuid.Parse(strings.TrimSpace(rawEventID))
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "verification result not found")
	}
	result, err := s.results.FindByEventID(ctx, eventID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "verification result not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load verification result")
	}
	return result, nil
}

// Subject loads what the analyzer needs for a claimed job.
func (s *Service) Subject(ctx context.Context, job *models.VerificationJob) (Subject, error) {
	event, err := s.events.FindByID(ctx, job.EventID)
	if err != nil {
		return Subject{}, err
	}
	return Subject{
		EventID:          event.ID,
		ProductID:        event.ProductID,
		EvidenceLocators: append([]string(nil), job.EvidenceLocators...),
		Latitude:         event.Latitude,
		Longitude:        event.Longitude,
	}, nil
}
