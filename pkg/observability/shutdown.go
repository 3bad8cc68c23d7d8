package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultShutdownTimeout bounds the whole shutdown sequence
const DefaultShutdownTimeout = 30 * time.Second

// ShutdownFunc releases one resource during shutdown
type ShutdownFunc func(context.Context) error

type namedShutdown struct {
	name string
	fn   ShutdownFunc
}

// ShutdownManager drains the HTTP server and then releases registered
// resources in reverse registration order.
type ShutdownManager struct {
	logger  *logrus.Logger
	server  *http.Server
	timeout time.Duration

	mu    sync.Mutex
	funcs []namedShutdown
	done  bool
}

// NewShutdownManager creates a new shutdown manager
func NewShutdownManager(logger *logrus.Logger, server *http.Server, timeout time.Duration) *ShutdownManager {
	if logger == nil {
		logger = logrus.New()
	}
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	return &ShutdownManager{
		logger:  logger,
		server:  server,
		timeout: timeout,
	}
}

// Register adds a resource to release during shutdown
func (sm *ShutdownManager) Register(name string, fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.funcs = append(sm.funcs, namedShutdown{name: name, fn: fn})
}

// SetServer sets the HTTP server drained first on shutdown. The manager can
// be created before the server exists so startup resources register early.
func (sm *ShutdownManager) SetServer(server *http.Server) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.server = server
}

// ReleaseOnError runs Shutdown when *errp is non-nil. Defer it right after
// creating the manager so a failed startup releases what it acquired.
func (sm *ShutdownManager) ReleaseOnError(errp *error) {
	if errp == nil || *errp == nil {
		return
	}
	sm.logger.WithError(*errp).Warn("Startup failed, releasing resources")
	if err := sm.Shutdown(); err != nil {
		sm.logger.WithError(err).Error("Release after failed startup incomplete")
	}
}

// Wait blocks until ctx is cancelled (typically by signal.NotifyContext)
// and then runs Shutdown.
func (sm *ShutdownManager) Wait(ctx context.Context) error {
	<-ctx.Done()
	sm.logger.Info("Shutdown signal received, starting graceful shutdown")
	return sm.Shutdown()
}

// Shutdown stops the server and runs every registered func even when an
// earlier one fails. The returned error joins all failures. Only the first
// call does any work.
func (sm *ShutdownManager) Shutdown() error {
	sm.mu.Lock()
	if sm.done {
		sm.mu.Unlock()
		return nil
	}
	sm.done = true
	server := sm.server
	funcs := append([]namedShutdown(nil), sm.funcs...)
	sm.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
	defer cancel()

	var errs []error
	if server != nil {
		if err := server.Shutdown(ctx); err != nil {
			sm.logger.WithError(err).Error("HTTP server shutdown error")
			errs = append(errs, fmt.Errorf("http server: %w", err))
		} else {
			sm.logger.Info("HTTP server shutdown complete")
		}
	}

	for i := len(funcs) - 1; i >= 0; i-- {
		f := funcs[i]
		log := sm.logger.WithField("resource", f.name)
		if err := f.fn(ctx); err != nil {
			log.WithError(err).Error("Shutdown step failed")
			errs = append(errs, fmt.Errorf("%s: %w", f.name, err))
			continue
		}
		log.Debug("Shutdown step complete")
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	sm.logger.Info("Graceful shutdown complete")
	return nil
}
