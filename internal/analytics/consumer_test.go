package analytics

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/supplytrace-backend/pkg/enums"
	"github.com/angelmondragon/supplytrace-backend/pkg/logger"
	"github.com/angelmondragon/supplytrace-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/supplytrace-backend/pkg/outbox/registry"
)

type memoryIdempotency struct {
	seen     map[string]bool
	checkErr error
	released []string
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{seen: map[string]bool{}}
}

func (m *memoryIdempotency) CheckAndMarkProcessed(_ context.Context, consumer, eventID string) (bool, error) {
	if m.checkErr != nil {
		return false, m.checkErr
	}
	key := consumer + ":" + eventID
	if m.seen[key] {
		return true, nil
	}
	m.seen[key] = true
	return false, nil
}

func (m *memoryIdempotency) Release(_ context.Context, consumer, eventID string) error {
	key := consumer + ":" + eventID
	delete(m.seen, key)
	m.released = append(m.released, key)
	return nil
}

type rowWriterFunc func(ctx context.Context, rows ...*SupplyEventRow) error

func (f rowWriterFunc) Write(ctx context.Context, rows ...*SupplyEventRow) error {
	return f(ctx, rows...)
}

type consumerHarness struct {
	consumer *Consumer
	ids      *memoryIdempotency
	rows     []*SupplyEventRow
	writeErr error
}

func newConsumerHarness(t *testing.T) *consumerHarness {
	t.Helper()
	h := &consumerHarness{ids: newMemoryIdempotency()}
	writer := rowWriterFunc(func(_ context.Context, rows ...*SupplyEventRow) error {
		if h.writeErr != nil {
			return h.writeErr
		}
		h.rows = append(h.rows, rows...)
		return nil
	})
	consumer, err := NewConsumer(ConsumerParams{
		Decoders:    registry.NewSupplyEventDecoders(),
		Writer:      writer,
		Idempotency: h.ids,
		Logger:      logger.New(logger.Options{ServiceName: "analytics-test", Output: io.Discard}),
	})
	require.NoError(t, err)
	h.consumer = consumer
	return h
}

func recordedMessage(t *testing.T, envelopeID string) ([]byte, map[string]string) {
	t.Helper()
	payload := payloads.SupplyEventRecorded{
		EventID:     uuid.New(),
		ProductID:   "P1",
		Stage:       enums.StageFarm,
		Submitter:   "farmer-joe",
		EventsCount: 1,
	}
	body := envelopeBytes(t, envelopeID, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), payload)
	return body, attrsFor(enums.EventSupplyEventRecorded, enums.AggregateSupplyEvent, payload.EventID.String())
}

func TestConsumerInsertsRow(t *testing.T) {
	h := newConsumerHarness(t)
	body, attrs := recordedMessage(t, "env-1")

	outcome := h.consumer.Handle(context.Background(), body, attrs)

	assert.Equal(t, OutcomeInserted, outcome)
	assert.True(t, outcome.Ack())
	require.Len(t, h.rows, 1)
	assert.Equal(t, "env-1", h.rows[0].EnvelopeID)
	assert.Equal(t, "P1", h.rows[0].ProductID)
}

func TestConsumerSkipsDuplicates(t *testing.T) {
	h := newConsumerHarness(t)
	body, attrs := recordedMessage(t, "env-1")

	require.Equal(t, OutcomeInserted, h.consumer.Handle(context.Background(), body, attrs))
	outcome := h.consumer.Handle(context.Background(), body, attrs)

	assert.Equal(t, OutcomeDuplicate, outcome)
	assert.True(t, outcome.Ack())
	assert.Len(t, h.rows, 1)
}

func TestConsumerDropsMalformedMessages(t *testing.T) {
	h := newConsumerHarness(t)

	outcome := h.consumer.Handle(context.Background(), []byte("not json"), map[string]string{"event_type": "supply_event.recorded"})
	assert.Equal(t, OutcomeDropped, outcome)
	assert.True(t, outcome.Ack())

	body := envelopeBytes(t, "env-2", time.Now(), "not an object")
	outcome = h.consumer.Handle(context.Background(), body, attrsFor(enums.EventSupplyEventRecorded, enums.AggregateSupplyEvent, "agg"))
	assert.Equal(t, OutcomeDropped, outcome)
	assert.Empty(t, h.rows)
	assert.Empty(t, h.ids.seen)
}

func TestConsumerReleasesClaimWhenWriteFails(t *testing.T) {
	h := newConsumerHarness(t)
	h.writeErr = errors.New("bigquery down")
	body, attrs := recordedMessage(t, "env-3")

	outcome := h.consumer.Handle(context.Background(), body, attrs)
	assert.Equal(t, OutcomeRetry, outcome)
	assert.False(t, outcome.Ack())
	assert.Equal(t, []string{"analytics:env-3"}, h.ids.released)

	h.writeErr = nil
	assert.Equal(t, OutcomeInserted, h.consumer.Handle(context.Background(), body, attrs))
	assert.Len(t, h.rows, 1)
}

func TestConsumerRetriesWhenIdempotencyStoreFails(t *testing.T) {
	h := newConsumerHarness(t)
	h.ids.checkErr = errors.New("redis down")
	body, attrs := recordedMessage(t, "env-4")

	assert.Equal(t, OutcomeRetry, h.consumer.Handle(context.Background(), body, attrs))
	assert.Empty(t, h.rows)
}

func TestNewConsumerRequiresDependencies(t *testing.T) {
	_, err := NewConsumer(ConsumerParams{})
	assert.Error(t, err)
}
