// Package coordinator ties one settings resource to its storage backend.
//
// A Coordinator is initialized once, either read-write (holding the
// resource's lock, saving periodically and on close) or read-only. When the
// writable path is refused the AccessDeniedHandler decides between a
// read-only session and cancellation.
//
// All backend I/O for one resource runs inside the lock registry's
// per-identity section, so autosave, explicit saves, close and same-process
// read-only loads never interleave.
package coordinator

import (
	"context"
	stderr "errors"
	"log/slog"
	"sync"
	"time"

	"github.com/objectfs/viewersettings/internal/autosave"
	"github.com/objectfs/viewersettings/internal/lockreg"
	"github.com/objectfs/viewersettings/internal/shutdown"
	"github.com/objectfs/viewersettings/pkg/errors"
	"github.com/objectfs/viewersettings/pkg/types"
)

const (
	component = "coordinator"

	// DefaultAutosaveInterval is how often an active read-write session saves.
	DefaultAutosaveInterval = 5 * time.Minute

	triggerAutosave = "autosave"
	triggerExplicit = "explicit"
	triggerClose    = "close"
)

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// WithAutosaveInterval sets the autosave period. Zero or negative disables autosave.
func WithAutosaveInterval(d time.Duration) Option {
	return func(c *Coordinator) { c.interval = d }
}

// WithAccessDeniedHandler sets the callback asked whether to continue
// read-only. Without one, access failures cancel initialization.
func WithAccessDeniedHandler(h types.AccessDeniedHandler) Option {
	return func(c *Coordinator) { c.onAccessDenied = h }
}

// WithShutdownManager registers CloseAndSave as a save-state shutdown hook
// while the coordinator is active.
func WithShutdownManager(m *shutdown.Manager) Option {
	return func(c *Coordinator) { c.shutdown = m }
}

// WithStateListener sets a callback run after every lifecycle transition.
// It is called without internal locks held and must not block.
func WithStateListener(fn func(from, to State)) Option {
	return func(c *Coordinator) { c.onState = fn }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m types.MetricsRecorder) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// Coordinator manages the lifecycle of one settings resource.
type Coordinator struct {
	backend  types.Backend
	registry *lockreg.Registry
	source   types.SettingsSource
	id       types.ResourceIdentity
	label    string

	logger         *slog.Logger
	interval       time.Duration
	onAccessDenied types.AccessDeniedHandler
	shutdown       *shutdown.Manager
	metrics        types.MetricsRecorder
	onState        func(from, to State)

	mu        sync.Mutex
	state     State
	result    types.InitResult
	handle    types.LockHandle
	scheduler *autosave.Scheduler
	unhook    func()
}

// New creates a coordinator for backend's resource. registry is the
// process-wide lock registry shared by all coordinators.
func New(backend types.Backend, registry *lockreg.Registry, source types.SettingsSource, opts ...Option) (*Coordinator, error) {
	if backend == nil {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "backend cannot be nil").WithComponent(component)
	}
	if registry == nil {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "lock registry cannot be nil").WithComponent(component)
	}
	if source == nil {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "settings source cannot be nil").WithComponent(component)
	}

	id := backend.Identity()
	c := &Coordinator{
		backend:  backend,
		registry: registry,
		source:   source,
		id:       id,
		label:    string(id.Scheme),
		interval: DefaultAutosaveInterval,
		metrics:  types.NopMetrics{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("component", component, "resource", id.String())
	if c.metrics == nil {
		c.metrics = types.NopMetrics{}
	}
	return c, nil
}

// Identity returns the managed resource.
func (c *Coordinator) Identity() types.ResourceIdentity {
	return c.id
}

// State returns the current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Result returns the outcome of Initialize, or zero before it finished.
func (c *Coordinator) Result() types.InitResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

// Initialize opens the resource. With readonly set, settings are loaded
// without any lock. Otherwise the resource is locked for this coordinator,
// loaded if present, and autosave starts.
//
// Access failures are passed to the AccessDeniedHandler; the returned result
// is then a read-only variant or Canceled. A second call returns
// errors.ErrAlreadyInitialized without touching storage.
func (c *Coordinator) Initialize(ctx context.Context, readonly bool) (types.InitResult, error) {
	c.mu.Lock()
	if c.state != StateUninitialized {
		c.mu.Unlock()
		return 0, errors.ErrAlreadyInitialized
	}
	c.state = StateInitializing
	c.mu.Unlock()
	c.notify(StateUninitialized, StateInitializing)

	c.logger.Debug("Initializing settings", "readonly", readonly)

	if readonly {
		return c.openReadOnly(ctx)
	}

	h, err := c.acquire(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return c.cancel(), ctxErr
		}
		return c.accessDenied(ctx, asAccessError(err))
	}

	loaded, err := c.load(ctx, h)
	if err != nil {
		c.logger.Error("Failed to load settings through lock", "error", err)
		c.releaseHandle(h)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return c.cancel(), ctxErr
		}
		return c.accessDenied(ctx, errors.NewAccessError(errors.ReasonNotWritable, err))
	}

	result := types.NotLoaded
	if loaded {
		result = types.Loaded
	}
	c.activate(ctx, result, h)
	return result, nil
}

// Save writes the current settings through the held lock without releasing it.
func (c *Coordinator) Save(ctx context.Context) error {
	c.mu.Lock()
	state, result := c.state, c.result
	c.mu.Unlock()

	switch {
	case state.Terminal():
		return errors.ErrClosed
	case state != StateActive:
		return errors.ErrNotActive
	case result.ReadOnly():
		return errors.ErrReadOnly
	}
	return c.save(ctx, triggerExplicit)
}

// CloseAndSave stops autosave, saves a read-write session, releases the lock
// and closes the coordinator. It does nothing unless the coordinator is
// active. ctx bounds the final save only: the coordinator is closed even when
// the save fails, and the save error is returned.
func (c *Coordinator) CloseAndSave(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return nil
	}
	scheduler := c.scheduler
	c.mu.Unlock()

	if scheduler != nil {
		scheduler.Cancel()
	}

	var saveErr error
	closed := false
	err := c.registry.Do(context.WithoutCancel(ctx), c.id, func(types.LockHandle) error {
		c.mu.Lock()
		if c.state != StateActive {
			c.mu.Unlock()
			return nil
		}
		h, readOnly := c.handle, c.result.ReadOnly()
		c.mu.Unlock()

		if !readOnly {
			if saveErr = c.writeThrough(ctx, h, triggerClose); saveErr != nil {
				c.logger.Error("Failed to save settings on close", "error", saveErr)
			}
			if err := c.backend.Release(h); err != nil {
				c.logger.Warn("Failed to release settings lock", "error", err)
			}
			c.unregister(h)
		}

		c.mu.Lock()
		c.state = StateClosed
		c.handle = nil
		unhook := c.unhook
		c.unhook = nil
		c.mu.Unlock()

		if unhook != nil {
			unhook()
		}
		c.notify(StateActive, StateClosed)
		closed = true
		return nil
	})
	if err != nil {
		c.logger.Warn("Failed to enter settings section on close", "error", err)
	}

	// An autosave firing blocked on the section sees the closed state and
	// returns, so waiting here cannot deadlock.
	if scheduler != nil {
		scheduler.Wait()
	}

	if closed {
		c.metrics.RecordActive(c.label, -1)
		c.logger.Info("Closed settings")
	}
	return saveErr
}

func (c *Coordinator) openReadOnly(ctx context.Context) (types.InitResult, error) {
	var data []byte
	err := c.registry.Do(ctx, c.id, func(live types.LockHandle) error {
		var err error
		if live != nil {
			// Another coordinator in this process holds the resource; read
			// through its handle so the read cannot interleave with its writes.
			data, err = c.backend.ReadThrough(ctx, live)
		} else {
			data, err = c.backend.ReadUnlocked(ctx)
		}
		return err
	})

	loaded := false
	switch {
	case err == nil && len(data) > 0:
		if err := c.source.ApplySettings(data); err != nil {
			c.logger.Error("Failed to apply settings", "error", err)
		} else {
			loaded = true
		}
	case err == nil, errors.HasCode(err, errors.ErrCodeObjectNotFound):
	default:
		if ctxErr := ctx.Err(); ctxErr != nil {
			return c.cancel(), ctxErr
		}
		c.logger.Error("Failed to read settings", "error", err)
	}

	result := types.ReadOnlyVariant(loaded)
	c.activate(ctx, result, nil)
	return result, nil
}

// load reads and applies existing settings through h and reports whether
// anything was applied.
func (c *Coordinator) load(ctx context.Context, h types.LockHandle) (bool, error) {
	loaded := false
	err := c.registry.Do(ctx, c.id, func(types.LockHandle) error {
		exists, err := c.backend.Exists(ctx)
		if err != nil || !exists {
			return err
		}
		data, err := c.backend.ReadThrough(ctx, h)
		if err != nil {
			return err
		}
		if len(data) == 0 {
			return nil
		}
		if err := c.source.ApplySettings(data); err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "cannot apply settings").
				WithComponent(component)
		}
		loaded = true
		return nil
	})
	return loaded, err
}

func (c *Coordinator) accessDenied(ctx context.Context, ae *errors.AccessError) (types.InitResult, error) {
	c.metrics.RecordAccessDenied(c.label, ae.Reason)
	c.logger.Warn("Settings resource is not available for writing", "reason", ae.Reason, "error", ae.Cause)

	if c.onAccessDenied == nil || !c.onAccessDenied(ctx, ae) {
		return c.cancel(), nil
	}
	return c.openReadOnly(ctx)
}

func (c *Coordinator) cancel() types.InitResult {
	c.mu.Lock()
	from := c.state
	c.state = StateCanceled
	c.result = types.Canceled
	c.mu.Unlock()
	c.notify(from, StateCanceled)

	c.metrics.RecordInit(c.label, types.Canceled)
	c.logger.Info("Settings initialization canceled")
	return types.Canceled
}

// activate publishes the outcome state, then starts autosave and registers
// the shutdown hook before moving to StateActive. Save and CloseAndSave are
// refused while the outcome state is visible.
func (c *Coordinator) activate(ctx context.Context, result types.InitResult, h types.LockHandle) {
	outcome := stateOf(result)

	c.mu.Lock()
	from := c.state
	c.result = result
	c.state = outcome
	c.handle = h
	c.mu.Unlock()
	c.notify(from, outcome)

	c.mu.Lock()
	if h != nil && c.interval > 0 {
		c.scheduler = autosave.New(c.interval, c.autosave, c.logger)
		c.scheduler.Start(context.WithoutCancel(ctx))
	}
	if c.shutdown != nil {
		c.unhook = c.shutdown.Register("settings:"+c.id.String(), shutdown.PhaseSaveState, c.CloseAndSave)
	}
	c.state = StateActive
	c.mu.Unlock()
	c.notify(outcome, StateActive)

	c.metrics.RecordInit(c.label, result)
	c.metrics.RecordActive(c.label, 1)
	c.logger.Info("Settings initialized", "result", result)
}

func (c *Coordinator) notify(from, to State) {
	if c.onState != nil {
		c.onState(from, to)
	}
}

func (c *Coordinator) autosave(ctx context.Context) error {
	err := c.save(ctx, triggerAutosave)
	if stderr.Is(err, errors.ErrClosed) {
		return nil
	}
	return err
}

func (c *Coordinator) save(ctx context.Context, trigger string) error {
	return c.registry.Do(ctx, c.id, func(types.LockHandle) error {
		c.mu.Lock()
		state, h := c.state, c.handle
		c.mu.Unlock()
		if state != StateActive || h == nil {
			return errors.ErrClosed
		}
		return c.writeThrough(ctx, h, trigger)
	})
}

// writeThrough serializes and writes the settings. Callers are inside the
// resource's section.
func (c *Coordinator) writeThrough(ctx context.Context, h types.LockHandle, trigger string) error {
	start := time.Now()
	err := func() error {
		data, err := c.source.SerializeSettings()
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "cannot serialize settings").
				WithComponent(component)
		}
		return c.backend.WriteThrough(ctx, h, data)
	}()
	duration := time.Since(start)
	c.metrics.RecordSave(c.label, trigger, duration, err)
	if err == nil {
		c.logger.Debug("Saved settings", "trigger", trigger, "duration", duration)
	}
	return err
}

// acquire takes the backend lock. Filesystem resources are claimed in the
// registry first so a second coordinator in this process is refused; object
// storage resources only get a placeholder and are never claimed.
func (c *Coordinator) acquire(ctx context.Context) (types.LockHandle, error) {
	if !lockreg.Tracks(c.id) {
		return c.backend.TryAcquireLock(ctx)
	}
	return c.registry.Acquire(ctx, c.id, c.backend.TryAcquireLock)
}

// unregister drops h from the registry. Callers are inside the resource's section.
func (c *Coordinator) unregister(h types.LockHandle) {
	if lockreg.Tracks(c.id) {
		c.registry.ReleaseLocked(c.id, h)
	}
}

// releaseHandle drops a lock taken during a failed initialization.
func (c *Coordinator) releaseHandle(h types.LockHandle) {
	err := c.registry.Do(context.Background(), c.id, func(types.LockHandle) error {
		if err := c.backend.Release(h); err != nil {
			c.logger.Warn("Failed to release settings lock", "error", err)
		}
		c.unregister(h)
		return nil
	})
	if err != nil {
		c.logger.Warn("Failed to enter settings section on release", "error", err)
	}
}

// asAccessError passes access errors through and reports any other lock
// failure as NOT_WRITABLE.
func asAccessError(err error) *errors.AccessError {
	if ae, ok := errors.AsAccessError(err); ok {
		return ae
	}
	return errors.NewAccessError(errors.ReasonNotWritable, err)
}
