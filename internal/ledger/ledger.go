// Package ledger assigns transaction locators to supply events by appending
// them to a tamper-evident record.
package ledger

import (
	"context"
	"encoding/json"
	"time"
)

// Ledger appends a record and returns its transaction locator.
type Ledger interface {
	Append(ctx context.Context, rec Record) (string, error)
}

// Location is an optional coordinate pair attached to a record.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Record is the provenance payload written for each event. Field order is
// the canonical encoding order.
type Record struct {
	ProductID        string    `json:"productId"`
	Stage            string    `json:"stage"`
	ActorID          string    `json:"actorId"`
	Temperature      *float64  `json:"temperature,omitempty"`
	Notes            *string   `json:"notes,omitempty"`
	Location         *Location `json:"location,omitempty"`
	EvidenceLocators []string  `json:"evidenceLocators"`
	Timestamp        time.Time `json:"timestamp"`
}

// Canonical returns the byte encoding that is hashed into the chain.
func (r Record) Canonical() ([]byte, error) {
	r.Timestamp = r.Timestamp.UTC()
	if r.EvidenceLocators == nil {
		r.EvidenceLocators = []string{}
	}
	return json.Marshal(r)
}

// canonicalize re-encodes a stored payload. Postgres jsonb does not keep key
// order or whitespace, so stored bytes are decoded back into a Record first.
func canonicalize(payload []byte) ([]byte, error) {
	var rec Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return nil, err
	}
	return rec.Canonical()
}
