// Package evidence stores the files attached to supply events and returns
// locators that identify them.
package evidence

import (
	"context"
	"crypto/rand"
	"strings"
)

// Blob is one uploaded evidence file.
type Blob struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Store persists a blob and returns its locator.
type Store interface {
	Put(ctx context.Context, blob Blob) (string, error)
}

const (
	base36         = "0123456789abcdefghijklmnopqrstuvwxyz"
	locatorBodyLen = 44
)

// RandomLocator returns an opaque content-id shaped locator: "Qm" followed by
// 44 base36 characters.
func RandomLocator() string {
	buf := make([]byte, locatorBodyLen)
	_, _ = rand.Read(buf)

	var b strings.Builder
	b.Grow(2 + locatorBodyLen)
	b.WriteString("Qm")
	for _, v := range buf {
		b.WriteByte(base36[int(v)%len(base36)])
	}
	return b.String()
}
