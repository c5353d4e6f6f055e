// Package fs implements the settings backend for local and network filesystems.
//
// Write access is guarded by an OS lock on the settings file. On unix it is an
// advisory flock tied to the inode, so the file is never replaced: content is
// staged through a private temporary file and copied into the locked descriptor.
// On Windows the lock is a byte-range lock on that same descriptor, placed past
// the content.
package fs

import (
	"context"
	stderr "errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/objectfs/viewersettings/pkg/errors"
	"github.com/objectfs/viewersettings/pkg/types"
	"github.com/objectfs/viewersettings/pkg/utils"
)

const (
	component = "fs-backend"

	tempPattern = "viewersettings-*.xml"

	// Mode used when the settings file is created.
	createMode fs.FileMode = 0644
	// Mode applied after locking when the file is shared with all users.
	sharedMode fs.FileMode = 0666
)

// Config holds filesystem backend options.
type Config struct {
	// ShareWithAllUsers makes the settings file readable and writable by everyone
	// once locked, so the next user of a shared dataset can take it over.
	ShareWithAllUsers bool `yaml:"share_with_all_users"`

	// TempDir holds staging files. Empty means os.TempDir().
	TempDir string `yaml:"temp_dir"`
}

// Backend stores settings in a single local file.
type Backend struct {
	path   string
	id     types.ResourceIdentity
	config Config
	logger *slog.Logger
}

// handle is the live lock on the settings file: the advisory lock plus the
// read-write descriptor all content passes through.
type handle struct {
	id     types.ResourceIdentity
	unlock func() error
	file   *os.File

	mu       sync.Mutex
	released bool
}

func (h *handle) Identity() types.ResourceIdentity { return h.id }
func (h *handle) Exclusive() bool                  { return true }

// NewBackend creates a filesystem backend for the settings file at path.
func NewBackend(path string, cfg *Config) (*Backend, error) {
	if path == "" {
		return nil, errors.NewError(errors.ErrCodePathInvalid, "settings path cannot be empty").
			WithComponent(component)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodePathInvalid, "cannot resolve settings path").
			WithComponent(component).WithResource(path)
	}
	if cfg == nil {
		cfg = &Config{}
	}

	return &Backend{
		path:   abs,
		id:     types.FileIdentity(abs),
		config: *cfg,
		logger: slog.Default().With("component", component, "path", abs),
	}, nil
}

// Path returns the absolute settings file path.
func (b *Backend) Path() string {
	return b.path
}

// Identity implements types.Backend.
func (b *Backend) Identity() types.ResourceIdentity {
	return b.id
}

// Exists reports whether the settings file holds content. An empty file is
// what a session that never saved leaves behind and counts as absent.
func (b *Backend) Exists(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	info, err := os.Stat(b.path)
	if err != nil {
		if stderr.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, b.translateError(err, "exists")
	}
	return info.Mode().IsRegular() && info.Size() > 0, nil
}

// IsWritableLocation checks the file itself when it exists, or its parent
// directory when it would have to be created.
func (b *Backend) IsWritableLocation(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if _, err := os.Stat(b.path); err == nil {
		return writable(b.path), nil
	} else if !stderr.Is(err, fs.ErrNotExist) {
		return false, b.translateError(err, "stat")
	}
	return writable(filepath.Dir(b.path)), nil
}

// TryAcquireLock opens or creates the settings file and takes a non-blocking
// exclusive advisory lock on it.
func (b *Backend) TryAcquireLock(ctx context.Context) (types.LockHandle, error) {
	ok, err := b.IsWritableLocation(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.NewAccessError(errors.ReasonNotWritable, nil)
	}

	file, err := os.OpenFile(b.path, os.O_RDWR|os.O_CREATE, createMode)
	if err != nil {
		if stderr.Is(err, fs.ErrPermission) {
			return nil, errors.NewAccessError(errors.ReasonNotWritable, err)
		}
		return nil, b.translateError(err, "open")
	}

	unlock, locked, err := tryLockFile(b.path, file)
	if err != nil || !locked {
		_ = file.Close()
		b.logger.Debug("Settings file is locked elsewhere", "error", err)
		return nil, errors.NewAccessError(errors.ReasonLocked, err)
	}

	if b.config.ShareWithAllUsers {
		if err := os.Chmod(b.path, sharedMode); err != nil {
			b.logger.Warn("Failed to share settings file with all users", "error", err)
		}
	}

	b.logger.Debug("Acquired settings lock")
	return &handle{id: b.id, unlock: unlock, file: file}, nil
}

// ReadThrough copies the locked file into a private temporary file and returns
// its content. The lock stays held.
func (b *Backend) ReadThrough(ctx context.Context, h types.LockHandle) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hd, err := b.live(h)
	if err != nil {
		return nil, err
	}
	hd.mu.Lock()
	defer hd.mu.Unlock()

	tmp, cleanup, err := b.stagingFile()
	if err != nil {
		return nil, err
	}
	defer cleanup()

	if _, err := hd.file.Seek(0, io.SeekStart); err != nil {
		return nil, b.translateError(err, "read")
	}
	if _, err := io.Copy(tmp, hd.file); err != nil {
		return nil, b.translateError(err, "read")
	}
	if _, err := hd.file.Seek(0, io.SeekStart); err != nil {
		return nil, b.translateError(err, "read")
	}
	if err := tmp.Close(); err != nil {
		return nil, b.translateError(err, "read")
	}

	data, err := os.ReadFile(tmp.Name())
	if err != nil {
		return nil, b.translateError(err, "read")
	}
	b.logger.Debug("Read settings through lock", "size", utils.FormatBytes(int64(len(data))))
	return data, nil
}

// WriteThrough stages data in a private temporary file, copies it into the
// locked descriptor from offset zero and truncates to the new length. The file
// is never replaced, so the lock stays held.
func (b *Backend) WriteThrough(ctx context.Context, h types.LockHandle, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	hd, err := b.live(h)
	if err != nil {
		return err
	}
	hd.mu.Lock()
	defer hd.mu.Unlock()

	tmp, cleanup, err := b.stagingFile()
	if err != nil {
		return err
	}
	defer cleanup()

	if _, err := tmp.Write(data); err != nil {
		return b.translateError(err, "write")
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return b.translateError(err, "write")
	}

	if _, err := hd.file.Seek(0, io.SeekStart); err != nil {
		return b.translateError(err, "write")
	}
	n, err := io.Copy(hd.file, tmp)
	if err != nil {
		return b.translateError(err, "write")
	}
	if err := hd.file.Truncate(n); err != nil {
		return b.translateError(err, "write")
	}
	if err := hd.file.Sync(); err != nil {
		return b.translateError(err, "write")
	}
	if _, err := hd.file.Seek(0, io.SeekStart); err != nil {
		return b.translateError(err, "write")
	}

	b.logger.Debug("Wrote settings through lock", "size", utils.FormatBytes(n))
	return nil
}

// ReadUnlocked reads the settings file without taking any lock.
func (b *Backend) ReadUnlocked(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(b.path)
	if err != nil {
		return nil, b.translateError(err, "read")
	}
	if len(data) == 0 {
		return nil, errors.NewError(errors.ErrCodeObjectNotFound, "settings file is empty").
			WithComponent(component).WithOperation("read").WithResource(b.path)
	}
	return data, nil
}

// Release closes the descriptor and drops the advisory lock. Releasing twice is a no-op.
func (b *Backend) Release(h types.LockHandle) error {
	hd, ok := h.(*handle)
	if !ok || hd.id != b.id {
		return b.foreignHandle("release")
	}
	hd.mu.Lock()
	defer hd.mu.Unlock()
	if hd.released {
		return nil
	}
	hd.released = true

	err := stderr.Join(hd.unlock(), hd.file.Close())
	if err != nil {
		return b.translateError(err, "release")
	}
	b.logger.Debug("Released settings lock")
	return nil
}

// Close implements types.Backend. Handles must be released individually.
func (b *Backend) Close() error {
	return nil
}

func (b *Backend) live(h types.LockHandle) (*handle, error) {
	hd, ok := h.(*handle)
	if !ok || hd.id != b.id {
		return nil, b.foreignHandle("access")
	}
	hd.mu.Lock()
	released := hd.released
	hd.mu.Unlock()
	if released {
		return nil, errors.NewError(errors.ErrCodeInvalidState, "lock handle already released").
			WithComponent(component).WithResource(b.path)
	}
	return hd, nil
}

func (b *Backend) foreignHandle(op string) error {
	return errors.NewError(errors.ErrCodeInvalidState, "lock handle does not belong to this backend").
		WithComponent(component).WithOperation(op).WithResource(b.path)
}

// stagingFile creates a private temporary file and a cleanup func that closes
// and deletes it.
func (b *Backend) stagingFile() (*os.File, func(), error) {
	tmp, err := os.CreateTemp(b.config.TempDir, tempPattern)
	if err != nil {
		return nil, nil, b.translateError(err, "stage")
	}
	cleanup := func() {
		_ = tmp.Close()
		if err := os.Remove(tmp.Name()); err != nil && !stderr.Is(err, fs.ErrNotExist) {
			b.logger.Warn("Failed to remove staging file", "file", tmp.Name(), "error", err)
		}
	}
	return tmp, cleanup, nil
}

func (b *Backend) translateError(err error, operation string) error {
	var code errors.ErrorCode
	switch {
	case stderr.Is(err, fs.ErrNotExist):
		code = errors.ErrCodeObjectNotFound
	case stderr.Is(err, fs.ErrPermission):
		code = errors.ErrCodePermissionDenied
	case operation == "write" || operation == "stage":
		code = errors.ErrCodeStorageWrite
	default:
		code = errors.ErrCodeStorageRead
	}
	return errors.Wrap(err, code, fmt.Sprintf("%s failed", operation)).
		WithComponent(component).WithOperation(operation).WithResource(b.path)
}
