package analytics

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/supplytrace-backend/pkg/enums"
	"github.com/angelmondragon/supplytrace-backend/pkg/outbox"
)

func attrsFor(eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, aggregateID string) map[string]string {
	return map[string]string{
		"event_id":       "attr-event",
		"event_type":     string(eventType),
		"aggregate_type": string(aggregate),
		"aggregate_id":   aggregateID,
		"created_at":     "2026-03-01T12:00:00Z",
	}
}

func envelopeBytes(t *testing.T, eventID string, occurredAt time.Time, data any) []byte {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	body, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID,
		OccurredAt: occurredAt,
		Data:       raw,
	})
	require.NoError(t, err)
	return body
}

func TestParseEnvelope(t *testing.T) {
	occurred := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	body := envelopeBytes(t, "env-1", occurred, map[string]string{"product_id": "P1"})

	env, err := ParseEnvelope(body, attrsFor(enums.EventProductRegistered, enums.AggregateProduct, "P1"))
	require.NoError(t, err)

	assert.Equal(t, "env-1", env.EventID)
	assert.Equal(t, enums.EventProductRegistered, env.EventType)
	assert.Equal(t, enums.AggregateProduct, env.AggregateType)
	assert.Equal(t, "P1", env.AggregateID)
	assert.True(t, occurred.Equal(env.OccurredAt))
	assert.Equal(t, 1, env.Version)
	assert.JSONEq(t, `{"product_id":"P1"}`, string(env.Data))
}

func TestParseEnvelopeFallsBackToAttributes(t *testing.T) {
	body := []byte(`{"data":{}}`)

	env, err := ParseEnvelope(body, attrsFor(enums.EventProductRegistered, enums.AggregateProduct, "P1"))
	require.NoError(t, err)

	assert.Equal(t, "attr-event", env.EventID)
	assert.Equal(t, 1, env.Version)
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), env.OccurredAt)
}

func TestParseEnvelopeRejectsBadInput(t *testing.T) {
	good := attrsFor(enums.EventProductRegistered, enums.AggregateProduct, "P1")
	body := envelopeBytes(t, "env-1", time.Now(), map[string]string{})

	cases := map[string]struct {
		body  []byte
		attrs map[string]string
	}{
		"not json":           {body: []byte("{"), attrs: good},
		"unknown event type": {body: body, attrs: withAttr(good, "event_type", "order.created")},
		"unknown aggregate":  {body: body, attrs: withAttr(good, "aggregate_type", "order")},
		"missing aggregate":  {body: body, attrs: withAttr(good, "aggregate_id", " ")},
		"missing event id":   {body: []byte(`{"data":{}}`), attrs: withAttr(good, "event_id", "")},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseEnvelope(tc.body, tc.attrs)
			assert.Error(t, err)
		})
	}
}

func withAttr(attrs map[string]string, key, value string) map[string]string {
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	out[key] = value
	return out
}
