// Package lifecycle manages graceful shutdown of the multireact server:
// signal interception, root context cancellation, waiting for in-flight work
// and ordered shutdown hooks.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// ShutdownConfig configures the shutdown behavior.
type ShutdownConfig struct {
	GracePeriod  time.Duration // time the main function gets to return after cancellation
	ForceTimeout time.Duration // deadline for all shutdown hooks together
}

// DefaultShutdownConfig returns sensible defaults.
func DefaultShutdownConfig() ShutdownConfig {
	return ShutdownConfig{
		GracePeriod:  10 * time.Second,
		ForceTimeout: 15 * time.Second,
	}
}

// Manager coordinates shutdown of a server process.
type Manager struct {
	config  ShutdownConfig
	logger  *slog.Logger
	stop    chan struct{}
	once    sync.Once
	mu      sync.Mutex
	hooks   []ShutdownHook
	started time.Time
	ran     bool
}

// ShutdownHook is called during shutdown. Name is for logging.
type ShutdownHook struct {
	Name string
	Fn   func(ctx context.Context) error
}

// NewManager creates a lifecycle manager.
func NewManager(config ShutdownConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		config:  config,
		logger:  logger,
		stop:    make(chan struct{}),
		started: time.Now(),
	}
}

// OnShutdown registers a hook to run during shutdown.
// Hooks run in registration order.
func (m *Manager) OnShutdown(name string, fn func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, ShutdownHook{Name: name, Fn: fn})
}

// Stop requests a graceful shutdown. SIGTERM and SIGINT call it.
func (m *Manager) Stop() {
	m.once.Do(func() { close(m.stop) })
}

// Run installs signal handlers and runs mainFn until it returns or a
// shutdown is requested. On shutdown the root context is cancelled, mainFn
// gets the grace period to return, then the hooks run. Returns the exit code.
func (m *Manager) Run(mainFn func(ctx context.Context) error) int {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			m.logger.Info("received signal, starting graceful shutdown",
				"signal", sig.String(),
				"uptime", m.Uptime().String(),
			)
			m.Stop()
		case <-ctx.Done():
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- mainFn(ctx)
	}()

	select {
	case <-m.stop:
		m.logger.Info("shutting down", "uptime", m.Uptime().String())
	case err := <-errCh:
		code := 0
		if err != nil {
			m.logger.Error("server stopped with error", "error", err)
			code = 1
		}
		m.runHooks()
		return code
	}

	cancel()

	code := 0
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Error("server stopped with error", "error", err)
			code = 1
		}
	case <-time.After(m.config.GracePeriod):
		m.logger.Warn("grace period expired with work still running",
			"grace_period", m.config.GracePeriod.String(),
		)
		code = 1
	}

	m.runHooks()
	m.logger.Info("graceful shutdown complete", "uptime", m.Uptime().String())
	return code
}

// runHooks runs every hook once, in order, under the force timeout. A failed
// hook does not stop the rest.
func (m *Manager) runHooks() {
	m.mu.Lock()
	if m.ran {
		m.mu.Unlock()
		return
	}
	m.ran = true
	hooks := make([]ShutdownHook, len(m.hooks))
	copy(hooks, m.hooks)
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), m.config.ForceTimeout)
	defer cancel()

	for _, hook := range hooks {
		m.logger.Info("running shutdown hook", "name", hook.Name)
		if err := hook.Fn(ctx); err != nil {
			m.logger.Error("shutdown hook failed", "name", hook.Name, "error", err)
		}
	}
}

// Uptime returns how long the process has been running.
func (m *Manager) Uptime() time.Duration {
	return time.Since(m.started)
}
