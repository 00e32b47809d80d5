package analytics

import (
	"fmt"
	"time"

	cbigquery "cloud.google.com/go/bigquery"

	"github.com/angelmondragon/supplytrace-backend/pkg/outbox/payloads"
)

// SupplyEventRow is one row of the supply events table. Columns that do not
// apply to an event type stay null.
type SupplyEventRow struct {
	EnvelopeID         string                `bigquery:"envelope_id"`
	EventType          string                `bigquery:"event_type"`
	AggregateType      string                `bigquery:"aggregate_type"`
	AggregateID        string                `bigquery:"aggregate_id"`
	OccurredAt         time.Time             `bigquery:"occurred_at"`
	ProductID          string                `bigquery:"product_id"`
	SupplyEventID      cbigquery.NullString  `bigquery:"supply_event_id"`
	Stage              cbigquery.NullString  `bigquery:"stage"`
	Submitter          cbigquery.NullString  `bigquery:"submitter"`
	VerificationStatus cbigquery.NullString  `bigquery:"verification_status"`
	VerificationSource cbigquery.NullString  `bigquery:"verification_source"`
	Score              cbigquery.NullInt64   `bigquery:"score"`
	Temperature        cbigquery.NullFloat64 `bigquery:"temperature"`
	Latitude           cbigquery.NullFloat64 `bigquery:"latitude"`
	Longitude          cbigquery.NullFloat64 `bigquery:"longitude"`
	EventsCount        cbigquery.NullInt64   `bigquery:"events_count"`
	Degraded           cbigquery.NullBool    `bigquery:"degraded"`
	Payload            cbigquery.NullJSON    `bigquery:"payload"`
}

// BuildRow flattens a decoded payload into a row.
func BuildRow(env *Envelope, payload any) (*SupplyEventRow, error) {
	row := &SupplyEventRow{
		EnvelopeID:    env.EventID,
		EventType:     string(env.EventType),
		AggregateType: string(env.AggregateType),
		AggregateID:   env.AggregateID,
		OccurredAt:    env.OccurredAt,
	}
	if len(env.Data) > 0 {
		row.Payload = cbigquery.NullJSON{Valid: true, JSONVal: string(env.Data)}
	}

	switch p := payload.(type) {
	case *payloads.SupplyEventRecorded:
		row.ProductID = p.ProductID
		row.SupplyEventID = nullString(p.EventID.String())
		row.Stage = nullString(string(p.Stage))
		row.Submitter = nullString(p.Submitter)
		row.VerificationStatus = nullString("pending")
		row.EventsCount = cbigquery.NullInt64{Int64: p.EventsCount, Valid: true}
		row.Degraded = cbigquery.NullBool{Bool: p.Degraded, Valid: true}
		if p.Temperature != nil {
			row.Temperature = cbigquery.NullFloat64{Float64: *p.Temperature, Valid: true}
		}
		if p.Location != nil {
			row.Latitude = cbigquery.NullFloat64{Float64: p.Location.Latitude, Valid: true}
			row.Longitude = cbigquery.NullFloat64{Float64: p.Location.Longitude, Valid: true}
		}
	case *payloads.SupplyEventVerified:
		row.ProductID = p.ProductID
		row.SupplyEventID = nullString(p.EventID.String())
		row.VerificationStatus = nullString(string(p.Status))
		row.VerificationSource = nullString(string(p.Source))
		if p.Score != nil {
			row.Score = cbigquery.NullInt64{Int64: int64(*p.Score), Valid: true}
		}
	case *payloads.ProductRegistered:
		row.ProductID = p.ProductID
		row.Stage = nullString(string(p.CurrentStage))
		row.Submitter = nullString(p.Submitter)
	default:
		return nil, fmt.Errorf("unsupported payload %T", payload)
	}
	return row, nil
}

func nullString(v string) cbigquery.NullString {
	return cbigquery.NullString{StringVal: v, Valid: v != ""}
}
