package gcs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/angelmondragon/supplytrace-backend/pkg/config"
	"github.com/angelmondragon/supplytrace-backend/pkg/gcp"
	"github.com/angelmondragon/supplytrace-backend/pkg/logger"
)

const pingTimeout = 5 * time.Second

var (
	errBucketRequired = errors.New("gcs bucket name is required")
	errNotInitialized = errors.New("gcs client not initialized")
)

// Client writes evidence objects into a single bucket.
type Client struct {
	client *storage.Client
	bucket string
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// NewClient creates a storage client for the evidence bucket and verifies access.
func NewClient(ctx context.Context, gcpCfg config.GCPConfig, cfg config.EvidenceConfig, logg *logger.Logger) (*Client, error) {
	bucket := strings.TrimSpace(cfg.BucketName)
	if bucket == "" {
		return nil, errBucketRequired
	}

	opts := append(gcp.ClientOptions(gcpCfg), option.WithScopes(storage.ScopeReadWrite))
	stClient, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}

	client := &Client{client: stClient, bucket: bucket}
	if err := client.Ping(ctx); err != nil {
		_ = stClient.Close()
		return nil, fmt.Errorf("gcs health check failed: %w", err)
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "bucket", bucket), "gcs client initialized")
	}
	return client, nil
}

// Bucket returns the configured bucket name.
func (c *Client) Bucket() string {
	if c == nil {
		return ""
	}
	return c.bucket
}

// Upload writes data under name unless the object already exists. It reports
// whether a new object was created; an existing object is not an error.
func (c *Client) Upload(ctx context.Context, name, contentType string, data []byte) (bool, error) {
	if c == nil || c.client == nil {
		return false, errNotInitialized
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return false, errors.New("gcs object name is required")
	}

	obj := c.client.Bucket(c.bucket).Object(name).If(storage.Conditions{DoesNotExist: true})
	w := obj.NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return false, fmt.Errorf("writing object %q: %w", name, err)
	}
	if err := w.Close(); err != nil {
		if isPreconditionFailed(err) {
			return false, nil
		}
		return false, fmt.Errorf("closing object %q: %w", name, err)
	}
	return true, nil
}

// Ping checks the bucket is reachable with the configured credentials.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if _, err := c.client.Bucket(c.bucket).Attrs(ctx); err != nil {
		if errors.Is(err, storage.ErrBucketNotExist) {
			return fmt.Errorf("bucket %q does not exist", c.bucket)
		}
		return fmt.Errorf("checking bucket %q: %w", c.bucket, err)
	}
	return nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func isPreconditionFailed(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr != nil {
		return apiErr.Code == http.StatusPreconditionFailed
	}
	return false
}
