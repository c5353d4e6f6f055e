// Package memory provides a non-persistent settings backend. A Store shared
// by several backends behaves like one filesystem: each key can be locked by
// one backend at a time.
package memory

import (
	"context"
	"sync"

	"github.com/objectfs/viewersettings/pkg/errors"
	"github.com/objectfs/viewersettings/pkg/types"
)

const component = "memory-backend"

// Store holds blobs and lock owners by key.
type Store struct {
	mu      sync.Mutex
	objects map[string][]byte
	locks   map[string]*handle
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		objects: make(map[string][]byte),
		locks:   make(map[string]*handle),
	}
}

// Get returns a copy of the blob stored under key.
func (s *Store) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	return append([]byte(nil), data...), ok
}

// Put stores a copy of data under key, ignoring locks.
func (s *Store) Put(key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = append([]byte(nil), data...)
}

// Locked reports whether key is currently locked.
func (s *Store) Locked(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.locks[key]
	return ok
}

// Options tune a memory backend.
type Options struct {
	// ReadOnly makes IsWritableLocation report false.
	ReadOnly bool
	// NoLock hands out placeholder handles, like the object-storage backends.
	NoLock bool
}

type handle struct {
	id       types.ResourceIdentity
	released bool
}

func (h *handle) Identity() types.ResourceIdentity { return h.id }
func (h *handle) Exclusive() bool                  { return true }

// Backend is a settings backend over a Store.
type Backend struct {
	store *Store
	key   string
	id    types.ResourceIdentity
	opts  Options

	mu       sync.Mutex
	readErr  error
	writeErr error
	writes   int
}

// NewBackend creates a backend for key in store.
func NewBackend(store *Store, key string, opts Options) *Backend {
	return &Backend{
		store: store,
		key:   key,
		id:    types.ResourceIdentity{Scheme: types.SchemeMemory, Key: key},
		opts:  opts,
	}
}

// FailReads makes subsequent reads return err. Nil restores normal reads.
func (b *Backend) FailReads(err error) {
	b.mu.Lock()
	b.readErr = err
	b.mu.Unlock()
}

// FailWrites makes subsequent writes return err. Nil restores normal writes.
func (b *Backend) FailWrites(err error) {
	b.mu.Lock()
	b.writeErr = err
	b.mu.Unlock()
}

// Writes returns how many write-throughs succeeded.
func (b *Backend) Writes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writes
}

// Identity implements types.Backend.
func (b *Backend) Identity() types.ResourceIdentity {
	return b.id
}

// Exists implements types.Backend.
func (b *Backend) Exists(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	data, ok := b.store.Get(b.key)
	return ok && len(data) > 0, nil
}

// IsWritableLocation implements types.Backend.
func (b *Backend) IsWritableLocation(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return !b.opts.ReadOnly, nil
}

// TryAcquireLock implements types.Backend.
func (b *Backend) TryAcquireLock(ctx context.Context) (types.LockHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.opts.ReadOnly {
		return nil, errors.NewAccessError(errors.ReasonNotWritable, nil)
	}
	if b.opts.NoLock {
		return types.PlaceholderHandle{ID: b.id}, nil
	}

	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	if _, held := b.store.locks[b.key]; held {
		return nil, errors.NewAccessError(errors.ReasonLocked, nil)
	}
	h := &handle{id: b.id}
	b.store.locks[b.key] = h
	return h, nil
}

// ReadThrough implements types.Backend.
func (b *Backend) ReadThrough(ctx context.Context, h types.LockHandle) ([]byte, error) {
	if err := b.check(ctx, h); err != nil {
		return nil, err
	}
	return b.read()
}

// WriteThrough implements types.Backend.
func (b *Backend) WriteThrough(ctx context.Context, h types.LockHandle, data []byte) error {
	if err := b.check(ctx, h); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.writeErr != nil {
		return errors.Wrap(b.writeErr, errors.ErrCodeStorageWrite, "write failed").WithComponent(component)
	}
	b.store.Put(b.key, data)
	b.writes++
	return nil
}

// ReadUnlocked implements types.Backend.
func (b *Backend) ReadUnlocked(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return b.read()
}

// Release implements types.Backend.
func (b *Backend) Release(h types.LockHandle) error {
	if h == nil || h.Identity() != b.id {
		return errors.NewError(errors.ErrCodeInvalidState, "lock handle does not belong to this backend").
			WithComponent(component)
	}
	hd, ok := h.(*handle)
	if !ok {
		return nil
	}
	b.store.mu.Lock()
	defer b.store.mu.Unlock()
	if hd.released {
		return nil
	}
	hd.released = true
	if b.store.locks[b.key] == hd {
		delete(b.store.locks, b.key)
	}
	return nil
}

// Close implements types.Backend.
func (b *Backend) Close() error {
	return nil
}

func (b *Backend) read() ([]byte, error) {
	b.mu.Lock()
	readErr := b.readErr
	b.mu.Unlock()
	if readErr != nil {
		return nil, errors.Wrap(readErr, errors.ErrCodeStorageRead, "read failed").WithComponent(component)
	}
	data, ok := b.store.Get(b.key)
	if !ok || len(data) == 0 {
		return nil, errors.NewError(errors.ErrCodeObjectNotFound, "no settings stored").
			WithComponent(component).WithResource(b.key)
	}
	return data, nil
}

func (b *Backend) check(ctx context.Context, h types.LockHandle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if h == nil || h.Identity() != b.id {
		return errors.NewError(errors.ErrCodeInvalidState, "lock handle does not belong to this backend").
			WithComponent(component)
	}
	if hd, ok := h.(*handle); ok {
		b.store.mu.Lock()
		released := hd.released
		b.store.mu.Unlock()
		if released {
			return errors.NewError(errors.ErrCodeInvalidState, "lock handle already released").
				WithComponent(component)
		}
	}
	return nil
}
