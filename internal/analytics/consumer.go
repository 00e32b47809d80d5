package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/supplytrace-backend/pkg/enums"
	"github.com/angelmondragon/supplytrace-backend/pkg/logger"
	"github.com/angelmondragon/supplytrace-backend/pkg/metrics"
)

const consumerName = "analytics"

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

type payloadDecoder interface {
	Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (interface{}, error)
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer, eventID string) (bool, error)
	Release(ctx context.Context, consumer, eventID string) error
}

type rowWriter interface {
	Write(ctx context.Context, rows ...*SupplyEventRow) error
}

// Outcome is what the consumer decided for one message.
type Outcome string

const (
	OutcomeInserted  Outcome = "inserted"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeDropped   Outcome = "dropped"
	OutcomeRetry     Outcome = "retry"
)

// Ack reports whether the message should be acknowledged.
func (o Outcome) Ack() bool { return o != OutcomeRetry }

type ConsumerParams struct {
	Decoders    payloadDecoder
	Writer      rowWriter
	Idempotency idempotencyChecker
	Metrics     *metrics.PipelineMetrics
	Logger      *logger.Logger
}

// Consumer writes one BigQuery row per supply event message. Redeliveries are
// skipped through the idempotency claim, which is released when the write
// fails so the redelivery can succeed.
type Consumer struct {
	decoders payloadDecoder
	writer   rowWriter
	manager  idempotencyChecker
	metrics  *metrics.PipelineMetrics
	logg     *logger.Logger
}

func NewConsumer(p ConsumerParams) (*Consumer, error) {
	switch {
	case p.Decoders == nil:
		return nil, errors.New("payload decoders required")
	case p.Writer == nil:
		return nil, errors.New("row writer required")
	case p.Idempotency == nil:
		return nil, errors.New("idempotency manager required")
	case p.Logger == nil:
		return nil, errors.New("logger required")
	}
	return &Consumer{
		decoders: p.Decoders,
		writer:   p.Writer,
		manager:  p.Idempotency,
		metrics:  p.Metrics,
		logg:     p.Logger,
	}, nil
}

// Run consumes the subscription until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context, sub receiver) error {
	c.logg.Info(ctx, "analytics.consumer.start")
	err := sub.Receive(ctx, func(msgCtx context.Context, msg *gcppubsub.Message) {
		msgCtx = c.logg.WithField(msgCtx, "message_id", msg.ID)
		if c.Handle(msgCtx, msg.Data, msg.Attributes).Ack() {
			msg.Ack()
			return
		}
		msg.Nack()
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("receive: %w", err)
	}
	return nil
}

// Handle processes one message body. Malformed messages are dropped because a
// redelivery cannot fix them.
func (c *Consumer) Handle(ctx context.Context, data []byte, attrs map[string]string) Outcome {
	env, err := ParseEnvelope(data, attrs)
	if err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "analytics.envelope.invalid")
		c.metrics.Inc(attrs["event_type"], string(OutcomeDropped))
		return OutcomeDropped
	}

	logCtx := c.logg.WithFields(ctx, map[string]any{
		"envelope_id":  env.EventID,
		"event_type":   env.EventType,
		"aggregate_id": env.AggregateID,
	})
	outcome := c.handle(logCtx, env)
	c.metrics.Inc(string(env.EventType), string(outcome))
	return outcome
}

func (c *Consumer) handle(ctx context.Context, env *Envelope) Outcome {
	payload, err := c.decoders.Decode(env.EventType, env.Version, env.Data)
	if err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "analytics.payload.invalid")
		return OutcomeDropped
	}
	row, err := BuildRow(env, payload)
	if err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "analytics.row.unsupported")
		return OutcomeDropped
	}

	already, err := c.manager.CheckAndMarkProcessed(ctx, consumerName, env.EventID)
	if err != nil {
		c.logg.Error(ctx, "analytics.idempotency.failed", err)
		return OutcomeRetry
	}
	if already {
		c.logg.Debug(ctx, "analytics.duplicate")
		return OutcomeDuplicate
	}

	if err := c.writer.Write(ctx, row); err != nil {
		c.logg.Error(ctx, "analytics.insert.failed", err)
		if relErr := c.manager.Release(context.WithoutCancel(ctx), consumerName, env.EventID); relErr != nil {
			c.logg.Error(ctx, "analytics.idempotency.release_failed", relErr)
		}
		return OutcomeRetry
	}
	c.logg.Debug(ctx, "analytics.inserted")
	return OutcomeInserted
}
