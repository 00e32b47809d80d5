package evidence

import (
	"context"
	"errors"
	"sync"
)

// MockStore keeps blobs in memory and hands out random locators. It is
// selected when no evidence bucket is configured.
type MockStore struct {
	mu    sync.Mutex
	blobs map[string]Blob
}

func NewMockStore() *MockStore {
	return &MockStore{blobs: map[string]Blob{}}
}

func (m *MockStore) Put(ctx context.Context, blob Blob) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(blob.Data) == 0 {
		return "", errors.New("evidence blob is empty")
	}
	locator := RandomLocator()
	m.mu.Lock()
	m.blobs[locator] = blob
	m.mu.Unlock()
	return locator, nil
}

// Get returns a previously stored blob.
func (m *MockStore) Get(locator string) (Blob, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	blob, ok := m.blobs[locator]
	return blob, ok
}

func (m *MockStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blobs)
}
