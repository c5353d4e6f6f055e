// Package shutdown runs host shutdown hooks in phase order.
//
// Hooks that persist state register at PhaseSaveState and therefore run before
// hooks that tear that state down, whatever order they were registered in.
package shutdown

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Phase orders hooks; lower phases run first.
type Phase int

const (
	PhaseSaveState Phase = iota - 1
	PhaseDefault
	PhaseTeardown
)

func (p Phase) String() string {
	switch p {
	case PhaseSaveState:
		return "save-state"
	case PhaseDefault:
		return "default"
	case PhaseTeardown:
		return "teardown"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// HookFunc is one shutdown action.
type HookFunc func(ctx context.Context) error

type hook struct {
	id    uint64
	name  string
	phase Phase
	fn    HookFunc
}

// Manager holds the ordered hook list for one host process.
type Manager struct {
	mu     sync.Mutex
	hooks  []hook
	nextID uint64
	ran    bool
	logger *slog.Logger
}

// NewManager creates an empty manager. A nil logger uses slog.Default().
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger.With("component", "shutdown")}
}

// Register adds fn at phase and returns a func that removes it again.
// Within a phase hooks run in registration order.
func (m *Manager) Register(name string, phase Phase, fn HookFunc) (unregister func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := m.nextID
	m.hooks = append(m.hooks, hook{id: id, name: name, phase: phase, fn: fn})

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, h := range m.hooks {
			if h.id == id {
				m.hooks = append(m.hooks[:i], m.hooks[i+1:]...)
				return
			}
		}
	}
}

// Len returns the number of registered hooks.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.hooks)
}

// Run executes every hook once, by ascending phase. A failing or panicking
// hook does not stop the others; all errors are joined. Later calls return nil.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.ran {
		m.mu.Unlock()
		return nil
	}
	m.ran = true
	hooks := append([]hook(nil), m.hooks...)
	m.mu.Unlock()

	sort.SliceStable(hooks, func(i, j int) bool { return hooks[i].phase < hooks[j].phase })

	var errs []error
	for _, h := range hooks {
		m.logger.Debug("Running shutdown hook", "hook", h.name, "phase", h.phase)
		if err := runHook(ctx, h); err != nil {
			m.logger.Error("Shutdown hook failed", "hook", h.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
		}
	}
	return errors.Join(errs...)
}

func runHook(ctx context.Context, h hook) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.fn(ctx)
}
