package evidence

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/angelmondragon/supplytrace-backend/pkg/logger"
)

type uploader interface {
	Upload(ctx context.Context, name, contentType string, data []byte) (bool, error)
	Bucket() string
}

// GCSStore writes blobs content-addressed by their sha256 digest, so
// re-uploading the same file yields the same locator.
type GCSStore struct {
	client uploader
	prefix string
	logg   *logger.Logger
}

func NewGCSStore(client uploader, prefix string, logg *logger.Logger) (*GCSStore, error) {
	if client == nil {
		return nil, errors.New("gcs client required")
	}
	return &GCSStore{
		client: client,
		prefix: strings.Trim(strings.TrimSpace(prefix), "/"),
		logg:   logg,
	}, nil
}

func (s *GCSStore) Put(ctx context.Context, blob Blob) (string, error) {
	if len(blob.Data) == 0 {
		return "", errors.New("evidence blob is empty")
	}
	sum := sha256.Sum256(blob.Data)
	digest := hex.EncodeToString(sum[:])
	object := s.objectName(digest)

	contentType := strings.TrimSpace(blob.ContentType)
	if contentType == "" {
		contentType = http.DetectContentType(blob.Data)
	}

	created, err := s.client.Upload(ctx, object, contentType, blob.Data)
	if err != nil {
		return "", fmt.Errorf("upload evidence: %w", err)
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"object":   object,
			"bytes":    len(blob.Data),
			"created":  created,
			"filename": blob.Filename,
		})
		s.logg.Debug(logCtx, "evidence.stored")
	}
	return fmt.Sprintf("gs://%s/%s", s.client.Bucket(), object), nil
}

func (s *GCSStore) objectName(digest string) string {
	if s.prefix == "" {
		return digest
	}
	return path.Join(s.prefix, digest)
}
