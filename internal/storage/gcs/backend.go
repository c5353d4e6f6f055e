// Package gcs implements the settings backend for Google Cloud Storage.
//
// Like S3, Cloud Storage offers no lock here: write access is approximated by
// asking bucket IAM whether the caller may create and delete objects.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/objectfs/viewersettings/internal/storage/stats"
	serrors "github.com/objectfs/viewersettings/pkg/errors"
	"github.com/objectfs/viewersettings/pkg/retry"
	"github.com/objectfs/viewersettings/pkg/types"
)

const component = "gcs-backend"

// WritePermissions are the bucket permissions needed to replace the settings object.
var WritePermissions = []string{"storage.objects.create", "storage.objects.delete"}

// Backend stores one settings object in a Cloud Storage bucket.
type Backend struct {
	client  Client
	bucket  string
	key     string
	id      types.ResourceIdentity
	config  *Config
	retryer *retry.Retryer
	logger  *slog.Logger
	metrics stats.Collector
}

// NewBackend creates a backend for gs://bucket/key.
func NewBackend(client Client, bucket, key string, cfg *Config) (*Backend, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket name cannot be empty")
	}
	if strings.TrimPrefix(key, "/") == "" {
		return nil, fmt.Errorf("object key cannot be empty")
	}
	if client == nil {
		return nil, fmt.Errorf("gcs client cannot be nil")
	}
	if cfg == nil {
		cfg = NewDefaultConfig()
	}

	id := types.ObjectIdentity(types.SchemeGCS, bucket, key)
	logger := slog.Default().With("component", component, "bucket", bucket, "key", id.Key)

	retryer := retry.New(cfg.Retry).WithOnRetry(func(attempt int, err error, delay time.Duration) {
		logger.Warn("Retrying GCS request", "attempt", attempt, "delay", delay, "error", err)
	})

	return &Backend{
		client:  client,
		bucket:  bucket,
		key:     id.Key,
		id:      id,
		config:  cfg,
		retryer: retryer,
		logger:  logger,
	}, nil
}

// Identity implements types.Backend.
func (b *Backend) Identity() types.ResourceIdentity {
	return b.id
}

// Exists reports whether the settings object is present.
func (b *Backend) Exists(ctx context.Context) (bool, error) {
	err := b.do(ctx, "Attrs", func(ctx context.Context) error {
		_, err := b.client.Attrs(ctx, b.bucket, b.key)
		return err
	})
	if serrors.HasCode(err, serrors.ErrCodeObjectNotFound) {
		return false, nil
	}
	return err == nil, err
}

// IsWritableLocation reports whether the caller holds every permission in
// WritePermissions on the bucket.
func (b *Backend) IsWritableLocation(ctx context.Context) (bool, error) {
	var granted []string
	err := b.do(ctx, "TestPermissions", func(ctx context.Context) error {
		var err error
		granted, err = b.client.TestPermissions(ctx, b.bucket, WritePermissions)
		return err
	})
	if serrors.HasCode(err, serrors.ErrCodeAccessDenied) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	held := make(map[string]bool, len(granted))
	for _, p := range granted {
		held[p] = true
	}
	for _, p := range WritePermissions {
		if !held[p] {
			b.logger.Debug("Missing bucket permission", "permission", p)
			return false, nil
		}
	}
	return true, nil
}

// TryAcquireLock returns a placeholder handle when the bucket is writable.
func (b *Backend) TryAcquireLock(ctx context.Context) (types.LockHandle, error) {
	ok, err := b.IsWritableLocation(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, serrors.NewAccessError(serrors.ReasonNotWritable, nil)
	}
	return types.PlaceholderHandle{ID: b.id}, nil
}

// ReadThrough downloads the settings object.
func (b *Backend) ReadThrough(ctx context.Context, h types.LockHandle) ([]byte, error) {
	if err := b.checkHandle(h); err != nil {
		return nil, err
	}
	return b.download(ctx)
}

// WriteThrough uploads the settings object.
func (b *Backend) WriteThrough(ctx context.Context, h types.LockHandle, data []byte) error {
	if err := b.checkHandle(h); err != nil {
		return err
	}
	err := b.do(ctx, "Write", func(ctx context.Context) error {
		return b.client.Write(ctx, b.bucket, b.key, contentType(b.key), data)
	})
	if err != nil {
		return err
	}
	b.metrics.RecordBytesUploaded(int64(len(data)))
	b.logger.Debug("Uploaded settings", "size", len(data))
	return nil
}

// ReadUnlocked downloads the settings object without any permission check.
func (b *Backend) ReadUnlocked(ctx context.Context) ([]byte, error) {
	return b.download(ctx)
}

// Release is a no-op; there is no lock to drop.
func (b *Backend) Release(h types.LockHandle) error {
	return b.checkHandle(h)
}

// Close releases the underlying client.
func (b *Backend) Close() error {
	return b.client.Close()
}

// GetMetrics returns a copy of the request metrics
func (b *Backend) GetMetrics() stats.BackendMetrics {
	return b.metrics.Snapshot()
}

func (b *Backend) download(ctx context.Context) ([]byte, error) {
	var data []byte
	err := b.do(ctx, "Read", func(ctx context.Context) error {
		var err error
		data, err = b.client.Read(ctx, b.bucket, b.key)
		return err
	})
	if err != nil {
		return nil, err
	}
	b.metrics.RecordBytesDownloaded(int64(len(data)))
	return data, nil
}

func (b *Backend) do(ctx context.Context, operation string, call func(context.Context) error) error {
	return b.retryer.DoWithContext(ctx, func(ctx context.Context) error {
		if b.config.RequestTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, b.config.RequestTimeout)
			defer cancel()
		}

		start := time.Now()
		err := call(ctx)
		b.metrics.RecordRequest(time.Since(start), err)
		if err != nil {
			return b.translateError(err, operation)
		}
		return nil
	})
}

func contentType(key string) string {
	ext := path.Ext(key)
	if ext == ".xml" {
		return "application/xml"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

func (b *Backend) checkHandle(h types.LockHandle) error {
	if h == nil || h.Identity() != b.id {
		return serrors.NewError(serrors.ErrCodeInvalidState, "lock handle does not belong to this backend").
			WithComponent(component).WithResource(b.id.String())
	}
	return nil
}

func (b *Backend) translateError(err error, operation string) error {
	code := serrors.ErrCodeStorageRead
	if operation == "Write" {
		code = serrors.ErrCodeStorageWrite
	}

	var apiErr *googleapi.Error
	switch {
	case errors.Is(err, storage.ErrObjectNotExist):
		code = serrors.ErrCodeObjectNotFound
	case errors.Is(err, storage.ErrBucketNotExist):
		code = serrors.ErrCodeBucketNotFound
	case errors.Is(err, context.DeadlineExceeded):
		code = serrors.ErrCodeOperationTimeout
	case errors.Is(err, context.Canceled):
		code = serrors.ErrCodeOperationCanceled
	case errors.As(err, &apiErr):
		switch {
		case apiErr.Code == http.StatusNotFound:
			code = serrors.ErrCodeObjectNotFound
		case apiErr.Code == http.StatusUnauthorized:
			code = serrors.ErrCodeAuthenticationFailed
		case apiErr.Code == http.StatusForbidden:
			code = serrors.ErrCodeAccessDenied
		case apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500:
			code = serrors.ErrCodeNetworkError
		}
	default:
		code = serrors.ErrCodeNetworkError
	}

	return serrors.Wrap(err, code, fmt.Sprintf("%s failed for %s", operation, b.id)).
		WithComponent(component).WithOperation(operation).WithResource(b.id.String())
}
