package gcs

import (
	"context"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/iam"
	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/objectfs/viewersettings/pkg/retry"
)

// Config represents Google Cloud Storage backend configuration
type Config struct {
	Project         string        `yaml:"project"`
	Endpoint        string        `yaml:"endpoint"`
	CredentialsFile string        `yaml:"credentials_file"`
	Anonymous       bool          `yaml:"anonymous"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`

	Retry retry.Config `yaml:"-"`
}

// NewDefaultConfig returns a configuration with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{RequestTimeout: 30 * time.Second, Retry: retry.DefaultConfig()}
}

// Client is the subset of Cloud Storage the backend uses.
type Client interface {
	Attrs(ctx context.Context, bucket, key string) (*storage.ObjectAttrs, error)
	Read(ctx context.Context, bucket, key string) ([]byte, error)
	Write(ctx context.Context, bucket, key, contentType string, data []byte) error
	// TestPermissions returns the subset of perms the caller holds on the bucket.
	TestPermissions(ctx context.Context, bucket string, perms []string) ([]string, error)
	Close() error
}

// sdkClient adapts *storage.Client to Client.
type sdkClient struct {
	client *storage.Client
}

// NewClient builds a Cloud Storage client. Without a credentials file the
// application default credentials are used.
func NewClient(ctx context.Context, cfg *Config) (Client, error) {
	if cfg == nil {
		cfg = NewDefaultConfig()
	}

	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	switch {
	case cfg.Anonymous:
		opts = append(opts, option.WithoutAuthentication())
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &sdkClient{client: client}, nil
}

// WrapClient adapts an existing *storage.Client.
func WrapClient(client *storage.Client) Client {
	return &sdkClient{client: client}
}

func (c *sdkClient) Attrs(ctx context.Context, bucket, key string) (*storage.ObjectAttrs, error) {
	return c.client.Bucket(bucket).Object(key).Attrs(ctx)
}

func (c *sdkClient) Read(ctx context.Context, bucket, key string) ([]byte, error) {
	r, err := c.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (c *sdkClient) Write(ctx context.Context, bucket, key, contentType string, data []byte) error {
	w := c.client.Bucket(bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (c *sdkClient) TestPermissions(ctx context.Context, bucket string, perms []string) ([]string, error) {
	return c.bucketIAM(bucket).TestPermissions(ctx, perms)
}

// bucketIAM returns the IAM handle of the bucket's policy.
func (c *sdkClient) bucketIAM(bucket string) *iam.Handle {
	return c.client.Bucket(bucket).IAM()
}

func (c *sdkClient) Close() error {
	return c.client.Close()
}
