package ledger

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"

	"github.com/angelmondragon/supplytrace-backend/pkg/db"
	"github.com/angelmondragon/supplytrace-backend/pkg/db/models"
	"github.com/angelmondragon/supplytrace-backend/pkg/logger"
)

// GenesisHash is the prev_hash of the first entry.
var GenesisHash = strings.Repeat("0", 64)

const (
	defaultAppendAttempts = 5
	verifyBatchSize       = 500
)

// ErrChainContention is returned when every append attempt lost the race for the tip.
var ErrChainContention = errors.New("ledger tip contention")

type chainStore interface {
	Tip(ctx context.Context) (*models.LedgerEntry, error)
	Create(ctx context.Context, entry *models.LedgerEntry) error
	ListAfter(ctx context.Context, after int64, limit int) ([]models.LedgerEntry, error)
}

// ChainLedger is a hash chain stored in the primary database. Appends are
// serialized by the unique prev_hash constraint.
type ChainLedger struct {
	store    chainStore
	attempts int
	logg     *logger.Logger
	now      func() time.Time
}

type ChainOption func(*ChainLedger)

// WithAppendAttempts bounds retries after losing the tip to a concurrent append.
func WithAppendAttempts(n int) ChainOption {
	return func(c *ChainLedger) {
		if n > 0 {
			c.attempts = n
		}
	}
}

func WithClock(now func() time.Time) ChainOption {
	return func(c *ChainLedger) {
		if now != nil {
			c.now = now
		}
	}
}

func NewChainLedger(store chainStore, logg *logger.Logger, opts ...ChainOption) (*ChainLedger, error) {
	if store == nil {
		return nil, errors.New("ledger repository required")
	}
	c := &ChainLedger{
		store:    store,
		attempts: defaultAppendAttempts,
		logg:     logg,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *ChainLedger) Append(ctx context.Context, rec Record) (string, error) {
	payload, err := rec.Canonical()
	if err != nil {
		return "", fmt.Errorf("encode ledger record: %w", err)
	}

	for attempt := 1; attempt <= c.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		tip, err := c.store.Tip(ctx)
		if err != nil {
			return "", fmt.Errorf("load ledger tip: %w", err)
		}
		prev := GenesisHash
		if tip != nil {
			prev = tip.RecordHash
		}

		hash, err := chainHash(prev, payload)
		if err != nil {
			return "", err
		}
		entry := &models.LedgerEntry{
			RecordHash: hash,
			PrevHash:   prev,
			Payload:    payload,
			CreatedAt:  c.now(),
		}
		err = c.store.Create(ctx, entry)
		if err == nil {
			return Locator(hash), nil
		}
		if !db.IsUniqueViolation(err, "") {
			return "", fmt.Errorf("append ledger entry: %w", err)
		}
		if c.logg != nil {
			logCtx := c.logg.WithFields(ctx, map[string]any{"attempt": attempt, "prev_hash": prev})
			c.logg.Warn(logCtx, "ledger.append.tip_conflict")
		}
	}
	return "", ErrChainContention
}

// VerifyReport summarizes a walk over the chain.
type VerifyReport struct {
	Valid    bool   `json:"valid"`
	Entries  int64  `json:"entries"`
	Tip      string `json:"tip"`
	BrokenAt *int64 `json:"brokenAt,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Verify recomputes every link from genesis and reports the first break.
func (c *ChainLedger) Verify(ctx context.Context) (VerifyReport, error) {
	report := VerifyReport{Valid: true, Tip: Locator(GenesisHash)}
	expectedPrev := GenesisHash
	var after int64

	for {
		entries, err := c.store.ListAfter(ctx, after, verifyBatchSize)
		if err != nil {
			return VerifyReport{}, fmt.Errorf("list ledger entries: %w", err)
		}
		for _, entry := range entries {
			after = entry.Sequence
			report.Entries++

			if entry.PrevHash != expectedPrev {
				return broken(report, entry.Sequence, "prev_hash does not match preceding entry"), nil
			}
			payload, err := canonicalize(entry.Payload)
			if err != nil {
				return broken(report, entry.Sequence, "payload is not a ledger record"), nil
			}
			hash, err := chainHash(entry.PrevHash, payload)
			if err != nil {
				return broken(report, entry.Sequence, err.Error()), nil
			}
			if hash != entry.RecordHash {
				return broken(report, entry.Sequence, "record_hash does not match payload"), nil
			}
			expectedPrev = entry.RecordHash
			report.Tip = Locator(entry.RecordHash)
		}
		if len(entries) < verifyBatchSize {
			return report, nil
		}
	}
}

func broken(report VerifyReport, seq int64, reason string) VerifyReport {
	report.Valid = false
	report.BrokenAt = &seq
	report.Reason = reason
	return report
}

// chainHash is keccak256(prev || payload) in lowercase hex.
func chainHash(prevHex string, payload []byte) (string, error) {
	prev, err := hex.DecodeString(prevHex)
	if err != nil {
		return "", fmt.Errorf("decode prev hash: %w", err)
	}
	h := sha3.NewLegacyKeccak256()
	h.Write(prev)
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Locator formats a record hash as a transaction locator.
func Locator(hash string) string {
	return "0x" + hash
}
