package models

import (
	"encoding/json"
	"time"
)

// LedgerEntry is one link of the append-only hash chain backing transaction
// locators. PrevHash is unique so concurrent appends on the same tip conflict.
type LedgerEntry struct {
	Sequence   int64           `gorm:"column:sequence;primaryKey;autoIncrement"`
	RecordHash string          `gorm:"column:record_hash;not null;uniqueIndex:ux_ledger_entries_record_hash"`
	PrevHash   string          `gorm:"column:prev_hash;not null;uniqueIndex:ux_ledger_entries_prev_hash"`
	Payload    json.RawMessage `gorm:"column:payload;type:jsonb;not null"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
}
