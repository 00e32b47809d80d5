package evidence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var randomLocatorPattern = regexp.MustCompile(`^Qm[0-9a-z]{44}$`)

type fakeUploader struct {
	bucket  string
	uploads map[string][]byte
	types   map[string]string
	err     error
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{bucket: "evidence-bucket", uploads: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeUploader) Upload(_ context.Context, name, contentType string, data []byte) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if _, ok := f.uploads[name]; ok {
		return false, nil
	}
	f.uploads[name] = data
	f.types[name] = contentType
	return true, nil
}

func (f *fakeUploader) Bucket() string { return f.bucket }

func TestRandomLocatorShape(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		loc := RandomLocator()
		require.Regexp(t, randomLocatorPattern, loc)
		seen[loc] = true
	}
	assert.Len(t, seen, 50)
}

func TestGCSStoreIsContentAddressed(t *testing.T) {
	up := newFakeUploader()
	store, err := NewGCSStore(up, "/evidence/", nil)
	require.NoError(t, err)

	data := []byte("photo-bytes")
	sum := sha256.Sum256(data)
	want := "gs://evidence-bucket/evidence/" + hex.EncodeToString(sum[:])

	first, err := store.Put(context.Background(), Blob{Filename: "a.jpg", ContentType: "image/jpeg", Data: data})
	require.NoError(t, err)
	assert.Equal(t, want, first)

	second, err := store.Put(context.Background(), Blob{Filename: "b.jpg", Data: data})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, up.uploads, 1)
	assert.Equal(t, "image/jpeg", up.types["evidence/"+hex.EncodeToString(sum[:])])
}

func TestGCSStoreDetectsContentType(t *testing.T) {
	up := newFakeUploader()
	store, err := NewGCSStore(up, "", nil)
	require.NoError(t, err)

	_, err = store.Put(context.Background(), Blob{Data: []byte("plain text evidence")})
	require.NoError(t, err)
	for _, ct := range up.types {
		assert.Equal(t, "text/plain; charset=utf-8", ct)
	}
}

func TestGCSStoreErrors(t *testing.T) {
	_, err := NewGCSStore(nil, "", nil)
	require.Error(t, err)

	up := newFakeUploader()
	up.err = errors.New("boom")
	store, err := NewGCSStore(up, "", nil)
	require.NoError(t, err)

	_, err = store.Put(context.Background(), Blob{Data: []byte("x")})
	require.ErrorContains(t, err, "boom")

	_, err = store.Put(context.Background(), Blob{})
	require.Error(t, err)
}

func TestMockStore(t *testing.T) {
	store := NewMockStore()
	loc, err := store.Put(context.Background(), Blob{Filename: "a.png", Data: []byte{1, 2, 3}})
	require.NoError(t, err)
	assert.Regexp(t, randomLocatorPattern, loc)

	blob, ok := store.Get(loc)
	require.True(t, ok)
	assert.Equal(t, "a.png", blob.Filename)
	assert.Equal(t, 1, store.Len())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.Put(ctx, Blob{Data: []byte{1}})
	assert.ErrorIs(t, err, context.Canceled)
}
