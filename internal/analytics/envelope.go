// Package analytics streams published supply events into BigQuery.
package analytics

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/supplytrace-backend/pkg/enums"
	"github.com/angelmondragon/supplytrace-backend/pkg/outbox"
)

// Envelope is a decoded Pub/Sub message from the supply events topic.
type Envelope struct {
	EventID       string
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   string
	OccurredAt    time.Time
	Version       int
	Data          json.RawMessage
}

// ParseEnvelope reads the stored outbox envelope from data and the routing
// fields from attrs. The envelope event id wins over the attribute.
func ParseEnvelope(data []byte, attrs map[string]string) (*Envelope, error) {
	var stored outbox.PayloadEnvelope
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("decode payload envelope: %w", err)
	}

	eventType, err := enums.ParseOutboxEventType(strings.TrimSpace(attrs["event_type"]))
	if err != nil {
		return nil, fmt.Errorf("event_type: %w", err)
	}
	aggregateType, err := enums.ParseOutboxAggregateType(strings.TrimSpace(attrs["aggregate_type"]))
	if err != nil {
		return nil, fmt.Errorf("aggregate_type: %w", err)
	}
	aggregateID := strings.TrimSpace(attrs["aggregate_id"])
	if aggregateID == "" {
		return nil, errors.New("aggregate_id missing")
	}

	eventID := strings.TrimSpace(stored.EventID)
	if eventID == "" {
		eventID = strings.TrimSpace(attrs["event_id"])
	}
	if eventID == "" {
		return nil, errors.New("event_id missing")
	}

	occurredAt := stored.OccurredAt
	if occurredAt.IsZero() {
		if parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(attrs["created_at"])); err == nil {
			occurredAt = parsed
		}
	}

	version := stored.Version
	if version <= 0 {
		version = 1
	}

	return &Envelope{
		EventID:       eventID,
		EventType:     eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		OccurredAt:    occurredAt.UTC(),
		Version:       version,
		Data:          stored.Data,
	}, nil
}
