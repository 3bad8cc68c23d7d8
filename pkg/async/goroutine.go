package async

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"
)

// SafeGo executes fn in a goroutine with a timeout and panic recovery.
// Errors and panics are logged, never propagated.
//
// The context passed to fn is detached from parent's cancellation so work
// scheduled from a request handler survives the response being written.
//
// Example:
//
//	SafeGo(r.Context(), time.Second, "org name cache write", logger, func(ctx context.Context) error {
//	    return client.Set(ctx, key, name, ttl).Err()
//	})
func SafeGo(parent context.Context, timeout time.Duration, taskName string, logger *logrus.Logger, fn func(context.Context) error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	base := context.WithoutCancel(parent)

	go func() {
		ctx, cancel := context.WithTimeout(base, timeout)
		defer cancel()

		log := logger.WithField("task", taskName)
		defer func() {
			if r := recover(); r != nil {
				log.WithFields(logrus.Fields{
					"panic": r,
					"stack": string(debug.Stack()),
				}).Error("Background task panicked")
			}
		}()

		if err := fn(ctx); err != nil {
			log.WithError(err).Warn("Background task failed")
		}
	}()
}
