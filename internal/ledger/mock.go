package ledger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync/atomic"
)

// MockLedger hands out random locators without persisting anything. It is
// selected when no real ledger is configured.
type MockLedger struct {
	appended atomic.Int64
}

func NewMockLedger() *MockLedger {
	return &MockLedger{}
}

func (m *MockLedger) Append(ctx context.Context, _ Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.appended.Add(1)
	return RandomLocator(), nil
}

// RandomLocator returns a transaction-shaped locator that refers to nothing:
// "0x" followed by 64 hex characters.
func RandomLocator() string {
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	return Locator(hex.EncodeToString(buf))
}

// Appended reports how many records were accepted.
func (m *MockLedger) Appended() int64 {
	return m.appended.Load()
}
