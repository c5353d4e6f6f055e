// Package lockreg tracks which settings resources are held for writing by
// this process.
//
// Only filesystem resources are claimed (see Tracks). Object storage has no
// exclusive lock, so several sessions on one object are allowed and the last
// writer wins. Every resource still goes through Do for I/O ordering.
//
// One Registry is shared by every coordinator in a process. It guards two
// things: the identity → handle map, under a single map-wide mutex, and a
// per-identity critical section that serializes all I/O on one resource.
// Code holding an entry's section may take the map mutex, never the reverse.
package lockreg

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/objectfs/viewersettings/pkg/errors"
	"github.com/objectfs/viewersettings/pkg/types"
)

type entry struct {
	section *semaphore.Weighted

	// guarded by Registry.mu
	handle    types.LockHandle
	acquiring bool
	users     int
}

// Registry is the process-wide map of held settings locks.
type Registry struct {
	mu      sync.Mutex
	entries map[types.ResourceIdentity]*entry
	logger  *slog.Logger
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		entries: make(map[types.ResourceIdentity]*entry),
		logger:  slog.Default().With("component", "lock-registry"),
	}
}

// Tracks reports whether id is claimed through Acquire. Only filesystem
// resources are; other schemes use Do alone.
func Tracks(id types.ResourceIdentity) bool {
	return id.Scheme == types.SchemeFile
}

// Acquire claims id for this process and runs tryLock to take the backend
// lock. If the identity is already held or being acquired, it fails with
// ReasonLockedSameProcess without calling tryLock. tryLock runs outside the
// map mutex so slow backends do not stall other identities.
func (r *Registry) Acquire(ctx context.Context, id types.ResourceIdentity, tryLock func(context.Context) (types.LockHandle, error)) (types.LockHandle, error) {
	r.mu.Lock()
	e := r.entry(id)
	if e.handle != nil || e.acquiring {
		r.mu.Unlock()
		r.logger.Debug("Resource already held in this process", "resource", id)
		return nil, errors.NewAccessError(errors.ReasonLockedSameProcess, nil)
	}
	e.acquiring = true
	e.users++
	r.mu.Unlock()

	h, err := tryLock(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	e.acquiring = false
	e.users--
	if err != nil {
		r.reclaim(id, e)
		return nil, err
	}
	e.handle = h
	r.logger.Debug("Registered lock", "resource", id, "exclusive", h.Exclusive())
	return h, nil
}

// Do runs fn inside the critical section for id, passing the handle held by
// this process or nil. Calls for the same identity never overlap; calls for
// different identities run in parallel. Waiting for the section honors ctx.
func (r *Registry) Do(ctx context.Context, id types.ResourceIdentity, fn func(h types.LockHandle) error) error {
	r.mu.Lock()
	e := r.entry(id)
	e.users++
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		e.users--
		r.reclaim(id, e)
		r.mu.Unlock()
	}()

	if err := e.section.Acquire(ctx, 1); err != nil {
		return err
	}
	defer e.section.Release(1)

	r.mu.Lock()
	h := e.handle
	r.mu.Unlock()

	return fn(h)
}

// ReleaseLocked removes h as the held handle for id. It must be called from
// inside Do for id and reports whether h was the registered handle.
func (r *Registry) ReleaseLocked(id types.ResourceIdentity, h types.LockHandle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.handle == nil || e.handle != h {
		return false
	}
	e.handle = nil
	r.reclaim(id, e)
	r.logger.Debug("Unregistered lock", "resource", id)
	return true
}

// Held reports whether this process holds id.
func (r *Registry) Held(id types.ResourceIdentity) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	return ok && e.handle != nil
}

// Len returns the number of held resources.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.handle != nil {
			n++
		}
	}
	return n
}

// entry returns the entry for id, creating it. Callers hold r.mu.
func (r *Registry) entry(id types.ResourceIdentity) *entry {
	e, ok := r.entries[id]
	if !ok {
		e = &entry{section: semaphore.NewWeighted(1)}
		r.entries[id] = e
	}
	return e
}

// reclaim drops an entry nobody uses. Callers hold r.mu.
func (r *Registry) reclaim(id types.ResourceIdentity, e *entry) {
	if e.users == 0 && e.handle == nil && !e.acquiring && r.entries[id] == e {
		delete(r.entries, id)
	}
}
