package outbox

import (
	"encoding/json"
	"time"
)

// ActorRef identifies who produced the event. Submitters are free-text
// identities, not accounts.
type ActorRef struct {
	Submitter string `json:"submitter,omitempty"`
	Source    string `json:"source,omitempty"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}
