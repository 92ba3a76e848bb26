// Package hooks coordinates graceful shutdown for the mcproxy CLI process.
package hooks

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/inercia/mcproxy/internal/logging"
)

// ShutdownFunc performs cleanup during shutdown. It receives a reason string
// describing why shutdown was triggered.
type ShutdownFunc func(reason string)

// ShutdownManager coordinates graceful shutdown across every running bridge
// instance. It ensures cleanup runs exactly once and reacts to SIGINT/SIGTERM.
// Safe for concurrent use.
type ShutdownManager struct {
	mu       sync.Mutex
	once     sync.Once
	done     chan struct{}
	reason   string
	cleanups []ShutdownFunc
}

// NewShutdownManager creates a new shutdown manager. Signal handling does not
// start until Start() is called.
func NewShutdownManager() *ShutdownManager {
	return &ShutdownManager{
		done: make(chan struct{}),
	}
}

// AddCleanup adds a cleanup function to be called during shutdown, in the
// order added.
func (sm *ShutdownManager) AddCleanup(fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.cleanups = append(sm.cleanups, fn)
}

// Start begins listening for SIGINT/SIGTERM. On receipt, Shutdown is invoked
// automatically. Call after every cleanup function has been registered.
func (sm *ShutdownManager) Start() {
	logger := logging.WithComponent("shutdown")
	logger.Debug("shutdown manager started, listening for signals")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("signal received, initiating shutdown", "signal", sig.String())
		sm.Shutdown("signal:" + sig.String())
	}()
}

// Shutdown triggers graceful shutdown with the given reason. Safe to call
// multiple times; only the first call executes cleanup. Blocks until cleanup
// completes.
func (sm *ShutdownManager) Shutdown(reason string) {
	sm.once.Do(func() {
		sm.doShutdown(reason)
	})
}

func (sm *ShutdownManager) doShutdown(reason string) {
	logger := logging.WithComponent("shutdown")
	logger.Info("starting shutdown sequence", "reason", reason)

	sm.mu.Lock()
	sm.reason = reason
	cleanups := make([]ShutdownFunc, len(sm.cleanups))
	copy(cleanups, sm.cleanups)
	sm.mu.Unlock()

	for i, fn := range cleanups {
		logger.Debug("running cleanup function", "index", i, "total", len(cleanups))
		fn(reason)
	}

	logger.Info("shutdown sequence complete", "reason", reason)
	close(sm.done)
}

// Done returns a channel closed when shutdown is complete.
func (sm *ShutdownManager) Done() <-chan struct{} {
	return sm.done
}

// Reason returns the shutdown reason, or "" if not yet shut down.
func (sm *ShutdownManager) Reason() string {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.reason
}
