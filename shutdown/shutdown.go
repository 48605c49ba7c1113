// Package shutdown coordinates graceful teardown: components register a
// shutdown function with a priority, and the manager runs them in order when
// a termination signal arrives.
package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Func is one registered shutdown step.
type Func struct {
	Name     string
	Priority int // Lower numbers run first
	Func     func(ctx context.Context) error
}

// Manager manages graceful shutdown of the application.
type Manager struct {
	funcs      []Func
	timeout    time.Duration
	signals    []os.Signal
	log        *zap.SugaredLogger
	mutex      sync.Mutex
	shutdownCh chan struct{}
	doneCh     chan struct{}
	once       sync.Once
}

// NewManager creates a new shutdown manager.
func NewManager(timeout time.Duration, log *zap.SugaredLogger) *Manager {
	return &Manager{
		funcs:      make([]Func, 0),
		timeout:    timeout,
		signals:    []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		log:        log,
		shutdownCh: make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Register registers a function to be called during shutdown. Lower
// priorities run first; registration order breaks ties.
func (m *Manager) Register(name string, priority int, fn func(ctx context.Context) error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	f := Func{Name: name, Priority: priority, Func: fn}
	for i, existing := range m.funcs {
		if priority < existing.Priority {
			m.funcs = append(m.funcs[:i], append([]Func{f}, m.funcs[i:]...)...)
			return
		}
	}
	m.funcs = append(m.funcs, f)
}

// Listen starts listening for termination signals.
func (m *Manager) Listen() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, m.signals...)

	go func() {
		sig := <-sigCh
		m.log.Infow("received signal", "signal", sig.String())
		m.Shutdown()
	}()
}

// Shutdown initiates graceful shutdown. Subsequent calls are no-ops.
func (m *Manager) Shutdown() {
	m.once.Do(func() {
		close(m.shutdownCh)
		m.run()
		close(m.doneCh)
	})
}

// Triggered returns a channel closed when shutdown begins.
func (m *Manager) Triggered() <-chan struct{} {
	return m.shutdownCh
}

// Wait blocks until shutdown has completed.
func (m *Manager) Wait() {
	<-m.doneCh
}

// run executes the registered functions sequentially in priority order.
// Each step must finish before the next starts; draining the inbound
// surface before stopping the consumers depends on this ordering.
func (m *Manager) run() {
	m.log.Info("starting graceful shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	m.mutex.Lock()
	funcs := make([]Func, len(m.funcs))
	copy(funcs, m.funcs)
	m.mutex.Unlock()

	var errs []error
	for _, f := range funcs {
		if ctx.Err() != nil {
			m.log.Warn("shutdown timeout reached, skipping remaining steps")
			break
		}

		m.log.Infow("shutting down", "component", f.Name)
		start := time.Now()

		if err := f.Func(ctx); err != nil {
			m.log.Errorw("shutdown step failed", "component", f.Name, "error", err)
			errs = append(errs, fmt.Errorf("shutdown %s failed: %w", f.Name, err))
			continue
		}
		m.log.Infow("component stopped", "component", f.Name, "took", time.Since(start))
	}

	if len(errs) > 0 {
		m.log.Warnw("graceful shutdown completed with errors", "errors", len(errs))
		return
	}
	m.log.Info("graceful shutdown completed")
}
