// Package submission records supply events: it resolves evidence, appends to
// the ledger and commits the event, the product rollup, the verification job
// and the outbox event together.
package submission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/supplytrace-backend/internal/events"
	"github.com/angelmondragon/supplytrace-backend/internal/evidence"
	"github.com/angelmondragon/supplytrace-backend/internal/ledger"
	product "github.com/angelmondragon/supplytrace-backend/internal/products"
	"github.com/angelmondragon/supplytrace-backend/internal/verification"
	"github.com/angelmondragon/supplytrace-backend/pkg/db"
	"github.com/angelmondragon/supplytrace-backend/pkg/db/models"
	"github.com/angelmondragon/supplytrace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/supplytrace-backend/pkg/errors"
	"github.com/angelmondragon/supplytrace-backend/pkg/logger"
	"github.com/angelmondragon/supplytrace-backend/pkg/metrics"
	"github.com/angelmondragon/supplytrace-backend/pkg/outbox"
	"github.com/angelmondragon/supplytrace-backend/pkg/outbox/payloads"
)

const (
	defaultDependencyTimeout = 10 * time.Second
	metadataLocatorPrefix    = "metadata_"
)

// Input is a submission as received from the transport.
type Input struct {
	ProductID   string   `json:"productId" validate:"required,max=128"`
	Stage       string   `json:"stage" validate:"required,stage"`
	Submitter   string   `json:"submitter" validate:"required,max=256"`
	Temperature *float64 `json:"temperature" validate:"omitempty,finite"`
	Notes       *string  `json:"notes" validate:"omitempty,max=2000"`
	Latitude    *float64 `json:"latitude" validate:"omitempty,finite,gte=-90,lte=90"`
	Longitude   *float64 `json:"longitude" validate:"omitempty,finite,gte=-180,lte=180"`
}

// Result identifies the recorded event. Verification is always pending here.
type Result struct {
	EventID            uuid.UUID
	TransactionLocator string
	EvidenceLocator    string
	VerificationStatus enums.VerificationStatus
	Degraded           bool
}

// Options bounds calls to the provenance dependencies.
type Options struct {
	EvidenceTimeout   time.Duration
	LedgerTimeout     time.Duration
	VerificationDelay time.Duration
}

type Service struct {
	tx       db.TxRunner
	events   *events.Repository
	products *product.Repository
	jobs     *verification.JobRepository
	outbox   outbox.Emitter
	evidence evidence.Store
	ledger   ledger.Ledger
	metrics  *metrics.SubmissionMetrics
	logg     *logger.Logger
	opts     Options
	now      func() time.Time
}

type ServiceParams struct {
	TxRunner db.TxRunner
	Events   *events.Repository
	Products *product.Repository
	Jobs     *verification.JobRepository
	Outbox   outbox.Emitter
	Evidence evidence.Store
	Ledger   ledger.Ledger
	Metrics  *metrics.SubmissionMetrics
	Logger   *logger.Logger
	Options  Options
	Clock    func() time.Time
}

func NewService(p ServiceParams) (*Service, error) {
	switch {
	case p.TxRunner == nil:
		return nil, errors.New("tx runner required")
	case p.Events == nil:
		return nil, errors.New("events repository required")
	case p.Products == nil:
		return nil, errors.New("product repository required")
	case p.Jobs == nil:
		return nil, errors.New("job repository required")
	case p.Outbox == nil:
		return nil, errors.New("outbox emitter required")
	case p.Evidence == nil:
		return nil, errors.New("evidence store required")
	case p.Ledger == nil:
		return nil, errors.New("ledger required")
	}
	opts := p.Options
	if opts.EvidenceTimeout <= 0 {
		opts.EvidenceTimeout = defaultDependencyTimeout
	}
	if opts.LedgerTimeout <= 0 {
		opts.LedgerTimeout = defaultDependencyTimeout
	}
	if opts.VerificationDelay < 0 {
		opts.VerificationDelay = 0
	}
	clock := p.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		tx:       p.TxRunner,
		events:   p.Events,
		products: p.Products,
		jobs:     p.Jobs,
		outbox:   p.Outbox,
		evidence: p.Evidence,
		ledger:   p.Ledger,
		metrics:  p.Metrics,
		logg:     p.Logger,
		opts:     opts,
		now:      func() time.Time { return clock().UTC() },
	}, nil
}

// Submit records one supply event. Only the first blob is stored. Evidence
// and ledger failures fall back to synthesized locators and mark the event
// degraded; storage failures abort the submission.
func (s *Service) Submit(ctx context.Context, input Input, blobs []evidence.Blob) (*Result, error) {
	input = normalize(input)
	if err := check(input); err != nil {
		s.metrics.IncSubmission("invalid")
		return nil, err
	}

	now := s.now()
	ctx = s.withProduct(ctx, input.ProductID)

	evidenceLocator, evidenceDegraded := s.resolveEvidence(ctx, blobs, now)

	record := ledger.Record{
		ProductID:        input.ProductID,
		Stage:            input.Stage,
		ActorID:          input.Submitter,
		Temperature:      input.Temperature,
		Notes:            input.Notes,
		EvidenceLocators: []string{evidenceLocator},
		Timestamp:        now,
	}
	if input.Latitude != nil && input.Longitude != nil {
		record.Location = &ledger.Location{Latitude: *input.Latitude, Longitude: *input.Longitude}
	}
	txLocator, ledgerDegraded := s.appendLedger(ctx, record)

	event := &models.SupplyEvent{
		ID:                 uuid.New(),
		ProductID:          input.ProductID,
		Stage:              enums.Stage(input.Stage),
		Submitter:          input.Submitter,
		RecordedAt:         now,
		Temperature:        input.Temperature,
		Notes:              input.Notes,
		Latitude:           input.Latitude,
		Longitude:          input.Longitude,
		EvidenceLocator:    evidenceLocator,
		TransactionLocator: txLocator,
		EvidenceDegraded:   evidenceDegraded,
		LedgerDegraded:     ledgerDegraded,
	}

	if err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.commit(ctx, tx, event)
	}); err != nil {
		s.metrics.IncSubmission("error")
		s.error(ctx, "submission.commit_failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record supply event")
	}

	s.metrics.IncSubmission("accepted")
	if s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithEventID(ctx, event.ID.String()), map[string]any{
			"stage":    event.Stage,
			"degraded": event.Degraded(),
		})
		s.logg.Info(logCtx, "submission.recorded")
	}

	return &Result{
		EventID:            event.ID,
		TransactionLocator: txLocator,
		EvidenceLocator:    evidenceLocator,
		VerificationStatus: enums.VerificationStatusPending,
		Degraded:           event.Degraded(),
	}, nil
}

func (s *Service) commit(ctx context.Context, tx *gorm.DB, event *models.SupplyEvent) error {
	if err := s.events.WithTx(tx).Create(ctx, event); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	products := s.products.WithTx(tx)
	if err := products.UpsertFromEvent(ctx, event); err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	current, err := products.FindByProductID(ctx, event.ProductID)
	if err != nil {
		return fmt.Errorf("reload product: %w", err)
	}

	job := verification.NewJob(event, event.RecordedAt.Add(s.opts.VerificationDelay))
	if err := s.jobs.WithTx(tx).Enqueue(ctx, job); err != nil {
		return fmt.Errorf("enqueue verification: %w", err)
	}

	data := payloads.SupplyEventRecorded{
		EventID:            event.ID,
		ProductID:          event.ProductID,
		Stage:              event.Stage,
		Submitter:          event.Submitter,
		RecordedAt:         event.RecordedAt,
		Temperature:        event.Temperature,
		EvidenceLocator:    event.EvidenceLocator,
		TransactionLocator: event.TransactionLocator,
		Degraded:           event.Degraded(),
		EventsCount:        current.EventsCount,
	}
	if event.HasLocation() {
		data.Location = &payloads.Location{Latitude: *event.Latitude, Longitude: *event.Longitude}
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventSupplyEventRecorded,
		AggregateType: enums.AggregateSupplyEvent,
		AggregateID:   event.ID.String(),
		Actor:         &outbox.ActorRef{Submitter: event.Submitter},
		Data:          data,
		OccurredAt:    event.RecordedAt,
	})
}

func (s *Service) resolveEvidence(ctx context.Context, blobs []evidence.Blob, now time.Time) (string, bool) {
	if len(blobs) == 0 {
		return fmt.Sprintf("%s%d", metadataLocatorPrefix, now.UnixMilli()), false
	}

	callCtx, cancel := context.WithTimeout(ctx, s.opts.EvidenceTimeout)
	defer cancel()

	start := time.Now()
	locator, err := s.evidence.Put(callCtx, blobs[0])
	s.metrics.ObserveDependency(metrics.DependencyEvidence, time.Since(start))
	if err == nil && locator != "" {
		return locator, false
	}
	if err == nil {
		err = errors.New("evidence store returned an empty locator")
	}

	s.metrics.IncFallback(metrics.DependencyEvidence)
	s.warn(ctx, "submission.evidence.degraded", err)
	return evidence.RandomLocator(), true
}

func (s *Service) appendLedger(ctx context.Context, record ledger.Record) (string, bool) {
	callCtx, cancel := context.WithTimeout(ctx, s.opts.LedgerTimeout)
	defer cancel()

	start := time.Now()
	locator, err := s.ledger.Append(callCtx, record)
	s.metrics.ObserveDependency(metrics.DependencyLedger, time.Since(start))
	if err == nil && locator != "" {
		return locator, false
	}
	if err == nil {
		err = errors.New("ledger returned an empty locator")
	}

	s.metrics.IncFallback(metrics.DependencyLedger)
	s.warn(ctx, "submission.ledger.degraded", err)
	return ledger.RandomLocator(), true
}

func normalize(in Input) Input {
	in.ProductID = strings.TrimSpace(in.ProductID)
	in.Stage = strings.TrimSpace(in.Stage)
	in.Submitter = strings.TrimSpace(in.Submitter)
	if in.Notes != nil {
		notes := strings.TrimSpace(*in.Notes)
		if notes == "" {
			in.Notes = nil
		} else {
			in.Notes = &notes
		}
	}
	return in
}

// check rejects the input before anything is written.
func check(in Input) error {
	msgs := problems(validate.Struct(in))
	switch {
	case in.Latitude != nil && in.Longitude == nil:
		msgs = append(msgs, "longitude is required when latitude is provided")
	case in.Longitude != nil && in.Latitude == nil:
		msgs = append(msgs, "latitude is required when longitude is provided")
	}
	if len(msgs) > 0 {
		return pkgerrors.Validation(msgs...)
	}
	return nil
}

func (s *Service) withProduct(ctx context.Context, productID string) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithProductID(ctx, productID)
}

func (s *Service) warn(ctx context.Context, msg string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), msg)
}

func (s *Service) error(ctx context.Context, msg string, err error) {
	if s.logg != nil {
		s.logg.Error(ctx, msg, err)
	}
}
