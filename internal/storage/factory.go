// Package storage selects and builds settings backends from resource
// locations. The backends themselves live in the fs, s3, gcs and memory
// subpackages.
package storage

import (
	"context"
	"log/slog"
	"sync"

	"github.com/objectfs/viewersettings/internal/config"
	"github.com/objectfs/viewersettings/internal/storage/fs"
	"github.com/objectfs/viewersettings/internal/storage/gcs"
	"github.com/objectfs/viewersettings/internal/storage/memory"
	"github.com/objectfs/viewersettings/internal/storage/s3"
	"github.com/objectfs/viewersettings/pkg/errors"
	"github.com/objectfs/viewersettings/pkg/types"
)

// Factory opens backends for resource identities using one configuration.
// Object-storage clients are created on first use.
type Factory struct {
	cfg    *config.Configuration
	logger *slog.Logger

	mu        sync.Mutex
	s3Client  s3.Client
	gcsClient gcs.Client
	memStore  *memory.Store
}

// FactoryOption customizes a Factory.
type FactoryOption func(*Factory)

// WithS3Client uses client for every S3 backend.
func WithS3Client(client s3.Client) FactoryOption {
	return func(f *Factory) { f.s3Client = client }
}

// WithGCSClient uses client for every GCS backend. The factory does not close it.
func WithGCSClient(client gcs.Client) FactoryOption {
	return func(f *Factory) { f.gcsClient = sharedGCSClient{client} }
}

// WithMemoryStore backs mem:// resources with store.
func WithMemoryStore(store *memory.Store) FactoryOption {
	return func(f *Factory) { f.memStore = store }
}

// NewFactory creates a backend factory. A nil configuration uses the defaults.
func NewFactory(cfg *config.Configuration, opts ...FactoryOption) *Factory {
	if cfg == nil {
		cfg = config.NewDefault()
	}
	f := &Factory{
		cfg:    cfg,
		logger: slog.Default().With("component", "storage-factory"),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.memStore == nil {
		f.memStore = memory.NewStore()
	}
	return f
}

// Resolve turns a user-supplied link into the identity of a settings
// resource. Links naming a directory or bucket get the configured settings
// file name appended.
func (f *Factory) Resolve(link string) (types.ResourceIdentity, error) {
	t, err := DetectType(link)
	if err != nil {
		return types.ResourceIdentity{}, err
	}
	id, err := ParseIdentity(link)
	if err != nil {
		return types.ResourceIdentity{}, err
	}
	if !IsContainer(id) {
		return id, nil
	}

	base := id.String()
	if t == TypeFilesystem {
		base = id.Key
	}
	combined, err := CombinePaths(t, base, f.cfg.Settings.FileName)
	if err != nil {
		return types.ResourceIdentity{}, err
	}
	return ParseIdentity(combined)
}

// Open builds the backend for id.
func (f *Factory) Open(ctx context.Context, id types.ResourceIdentity) (types.Backend, error) {
	switch id.Scheme {
	case types.SchemeFile:
		b, err := fs.NewBackend(id.Key, &fs.Config{
			ShareWithAllUsers: f.cfg.Settings.ShareWithAllUsers,
			TempDir:           f.cfg.Settings.TempDir,
		})
		if err != nil {
			return nil, err
		}
		return b, nil

	case types.SchemeS3:
		client, err := f.s3Conn(ctx)
		if err != nil {
			return nil, err
		}
		s3cfg := f.cfg.Storage.S3
		s3cfg.Retry = f.cfg.RetryPolicy()
		b, err := s3.NewBackend(client, id.Bucket, id.Key, &s3cfg)
		if err != nil {
			return nil, err
		}
		return b, nil

	case types.SchemeGCS:
		client, err := f.gcsConn(ctx)
		if err != nil {
			return nil, err
		}
		gcscfg := f.cfg.Storage.GCS
		gcscfg.Retry = f.cfg.RetryPolicy()
		b, err := gcs.NewBackend(client, id.Bucket, id.Key, &gcscfg)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return b, nil

	case types.SchemeMemory:
		return memory.NewBackend(f.memStore, id.Key, memory.Options{}), nil

	default:
		return nil, errors.NewError(errors.ErrCodeUnknownScheme, "no backend for scheme "+string(id.Scheme)).
			WithComponent("storage-factory").WithResource(id.String())
	}
}

func (f *Factory) s3Conn(ctx context.Context) (s3.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.s3Client != nil {
		return f.s3Client, nil
	}
	client, err := s3.NewClient(ctx, &f.cfg.Storage.S3)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConnectionFailed, "cannot create S3 client").
			WithComponent("storage-factory")
	}
	f.logger.Debug("Created S3 client", "region", f.cfg.Storage.S3.Region, "endpoint", f.cfg.Storage.S3.Endpoint)
	f.s3Client = client
	return client, nil
}

// gcsConn returns the injected client, or a new client per backend since each
// backend closes its own.
func (f *Factory) gcsConn(ctx context.Context) (gcs.Client, error) {
	f.mu.Lock()
	injected := f.gcsClient
	f.mu.Unlock()
	if injected != nil {
		return injected, nil
	}
	client, err := gcs.NewClient(ctx, &f.cfg.Storage.GCS)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConnectionFailed, "cannot create GCS client").
			WithComponent("storage-factory")
	}
	return client, nil
}

type sharedGCSClient struct {
	gcs.Client
}

func (sharedGCSClient) Close() error { return nil }
