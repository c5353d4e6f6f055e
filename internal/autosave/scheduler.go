// Package autosave runs a periodic save for one active settings resource.
package autosave

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// SaveFunc performs one save. It is never called concurrently with itself.
type SaveFunc func(ctx context.Context) error

// Scheduler fires a SaveFunc at a fixed interval until canceled.
type Scheduler struct {
	interval time.Duration
	save     SaveFunc
	logger   *slog.Logger

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a scheduler. A nil logger uses slog.Default().
func New(interval time.Duration, save SaveFunc, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		interval: interval,
		save:     save,
		logger:   logger.With("component", "autosave"),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the timer loop. The loop ends when ctx is done or Cancel is
// called. Starting twice, or after Cancel, does nothing.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.isStopped() {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)
}

// Cancel prevents any future firing and returns without waiting. A firing
// already in progress runs to completion.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isStopped() {
		return
	}
	close(s.stopCh)
	if !s.started {
		close(s.done)
	}
}

// Wait blocks until the loop has exited, including any in-flight firing.
// It returns immediately if the scheduler never started.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	waitable := s.started || s.isStopped()
	s.mu.Unlock()
	if waitable {
		<-s.done
	}
}

// Stop cancels the scheduler and waits for it.
func (s *Scheduler) Stop() {
	s.Cancel()
	s.Wait()
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)
	defer s.cancel()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Cancel may have raced the tick.
			select {
			case <-s.stopCh:
				return
			default:
			}
			s.fire(ctx)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context) {
	start := time.Now()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("autosave panicked: %v", r)
			}
		}()
		return s.save(ctx)
	}()
	if err != nil {
		s.logger.Error("Autosave failed", "error", err)
		return
	}
	s.logger.Debug("Autosave completed", "duration", time.Since(start))
}

func (s *Scheduler) isStopped() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}
