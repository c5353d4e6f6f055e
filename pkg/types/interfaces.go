package types

import (
	"context"
	"time"

	"github.com/objectfs/viewersettings/pkg/errors"
)

// LockHandle is backend-specific proof of write access to one resource.
type LockHandle interface {
	Identity() ResourceIdentity
	// Exclusive is true when the handle holds a real OS lock. Placeholder
	// handles from object storage return false.
	Exclusive() bool
}

// Backend defines the storage primitives for one settings resource.
type Backend interface {
	Identity() ResourceIdentity

	// Exists reports whether a persisted blob is present.
	Exists(ctx context.Context) (bool, error)
	IsWritableLocation(ctx context.Context) (bool, error)

	// TryAcquireLock never blocks on contention. Access failures are returned
	// as *errors.AccessError with ReasonLocked or ReasonNotWritable.
	TryAcquireLock(ctx context.Context) (LockHandle, error)

	// ReadThrough and WriteThrough keep the lock held across the I/O.
	ReadThrough(ctx context.Context, h LockHandle) ([]byte, error)
	WriteThrough(ctx context.Context, h LockHandle, data []byte) error

	// ReadUnlocked reads without any lock and returns an
	// errors.ErrCodeObjectNotFound error when nothing is stored.
	ReadUnlocked(ctx context.Context) ([]byte, error)

	// Release is idempotent.
	Release(h LockHandle) error
	Close() error
}

// SettingsSource produces and consumes the viewer's settings blob.
type SettingsSource interface {
	SerializeSettings() ([]byte, error)
	ApplySettings(data []byte) error
}

// AccessDeniedHandler is called synchronously during initialization when the
// writable path cannot be taken. Returning true proceeds read-only.
type AccessDeniedHandler func(ctx context.Context, err *errors.AccessError) bool

// MetricsRecorder receives coordinator events.
type MetricsRecorder interface {
	RecordInit(backend string, result InitResult)
	RecordAccessDenied(backend string, reason errors.AccessReason)
	RecordSave(backend, trigger string, duration time.Duration, err error)
	RecordActive(backend string, delta int)
}

// NopMetrics discards all events.
type NopMetrics struct{}

func (NopMetrics) RecordInit(string, InitResult) {}
func (NopMetrics) RecordAccessDenied(string, errors.AccessReason) {}
func (NopMetrics) RecordSave(string, string, time.Duration, error) {}
func (NopMetrics) RecordActive(string, int) {}
