package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/objectfs/viewersettings/internal/storage/stats"
	serrors "github.com/objectfs/viewersettings/pkg/errors"
	"github.com/objectfs/viewersettings/pkg/retry"
	"github.com/objectfs/viewersettings/pkg/types"
)

const component = "s3-backend"

// Backend stores one settings object in an S3 bucket.
//
// S3 offers no lock. TryAcquireLock hands out a placeholder once the bucket ACL
// grants write access; concurrent writers from other clients are last-writer-wins.
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

// NewBackend creates a backend for s3://bucket/key.
func NewBackend(client Client, bucket, key string, cfg *Config) (*Backend, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket name cannot be empty")
	}
	if strings.TrimPrefix(key, "/") == "" {
		return nil, fmt.Errorf("object key cannot be empty")
	}
	if client == nil {
		return nil, fmt.Errorf("s3 client cannot be nil")
	}
	if cfg == nil {
		cfg = NewDefaultConfig()
	}

	id := types.ObjectIdentity(types.SchemeS3, bucket, key)
	logger := slog.Default().With("component", component, "bucket", bucket, "key", id.Key)

	retryer := retry.New(cfg.Retry).WithOnRetry(func(attempt int, err error, delay time.Duration) {
		logger.Warn("Retrying S3 request", "attempt", attempt, "delay", delay, "error", err)
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
	err := b.do(ctx, "HeadObject", func(ctx context.Context) error {
		_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(b.key),
		})
		return err
	})
	if serrors.HasCode(err, serrors.ErrCodeObjectNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// IsWritableLocation reports whether any bucket ACL grant carries FULL_CONTROL
// or WRITE. A caller denied reading the ACL cannot write either.
func (b *Backend) IsWritableLocation(ctx context.Context) (bool, error) {
	var out *s3.GetBucketAclOutput
	err := b.do(ctx, "GetBucketAcl", func(ctx context.Context) error {
		var err error
		out, err = b.client.GetBucketAcl(ctx, &s3.GetBucketAclInput{Bucket: aws.String(b.bucket)})
		return err
	})
	if serrors.HasCode(err, serrors.ErrCodeAccessDenied) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	for _, grant := range out.Grants {
		if grant.Permission == s3types.PermissionFullControl || grant.Permission == s3types.PermissionWrite {
			return true, nil
		}
	}
	return false, nil
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

	err := b.do(ctx, "PutObject", func(ctx context.Context) error {
		_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(b.bucket),
			Key:           aws.String(b.key),
			Body:          bytes.NewReader(data),
			ContentLength: aws.Int64(int64(len(data))),
			ContentType:   aws.String(b.detectContentType(b.key)),
		})
		return err
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

// Close implements types.Backend.
func (b *Backend) Close() error {
	return nil
}

// GetMetrics returns a copy of the request metrics
func (b *Backend) GetMetrics() stats.BackendMetrics {
	return b.metrics.Snapshot()
}

func (b *Backend) download(ctx context.Context) ([]byte, error) {
	var data []byte
	err := b.do(ctx, "GetObject", func(ctx context.Context) error {
		result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(b.key),
		})
		if err != nil {
			return err
		}
		defer result.Body.Close()

		data, err = io.ReadAll(result.Body)
		if err != nil {
			return serrors.Wrap(err, serrors.ErrCodeNetworkError, "failed to read object body")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	b.metrics.RecordBytesDownloaded(int64(len(data)))
	return data, nil
}

// do runs one S3 call with the request timeout, translating errors and
// retrying transient failures.
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

func (b *Backend) checkHandle(h types.LockHandle) error {
	if h == nil || h.Identity() != b.id {
		return serrors.NewError(serrors.ErrCodeInvalidState, "lock handle does not belong to this backend").
			WithComponent(component).WithResource(b.id.String())
	}
	return nil
}

func (b *Backend) translateError(err error, operation string) error {
	var se *serrors.SettingsError
	if errors.As(err, &se) {
		return err
	}

	code := serrors.ErrCodeStorageRead
	if operation == "PutObject" {
		code = serrors.ErrCodeStorageWrite
	}

	var apiErr smithy.APIError
	switch {
	case isErrorType[*s3types.NoSuchKey](err), isErrorType[*s3types.NotFound](err):
		code = serrors.ErrCodeObjectNotFound
	case isErrorType[*s3types.NoSuchBucket](err):
		code = serrors.ErrCodeBucketNotFound
	case errors.Is(err, context.DeadlineExceeded):
		code = serrors.ErrCodeOperationTimeout
	case errors.Is(err, context.Canceled):
		code = serrors.ErrCodeOperationCanceled
	case errors.As(err, &apiErr):
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			code = serrors.ErrCodeObjectNotFound
		case "NoSuchBucket":
			code = serrors.ErrCodeBucketNotFound
		case "AccessDenied", "Forbidden", "AllAccessDisabled":
			code = serrors.ErrCodeAccessDenied
		case "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
			code = serrors.ErrCodeAuthenticationFailed
		case "SlowDown", "InternalError", "ServiceUnavailable", "RequestTimeout":
			code = serrors.ErrCodeNetworkError
		}
	default:
		// No service response at all: transport failure.
		code = serrors.ErrCodeNetworkError
	}

	se = serrors.Wrap(err, code, fmt.Sprintf("%s failed for %s", operation, b.id)).
		WithComponent(component).WithOperation(operation).WithResource(b.id.String())
	if errors.As(err, &apiErr) {
		se.WithDetail("service_code", apiErr.ErrorCode())
	}
	return se
}

func (b *Backend) detectContentType(key string) string {
	switch {
	case strings.HasSuffix(key, ".json"):
		return "application/json"
	case strings.HasSuffix(key, ".xml"):
		return "application/xml"
	case strings.HasSuffix(key, ".yaml"), strings.HasSuffix(key, ".yml"):
		return "application/yaml"
	case strings.HasSuffix(key, ".txt"):
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}

func isErrorType[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}
