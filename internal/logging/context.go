package logging

import (
	"context"
	"time"
)

// DetachContext creates a context that won't be cancelled when parent is.
func DetachContext(parent context.Context) context.Context {
	return context.WithoutCancel(parent)
}

// DetachContextWithTimeout creates a detached context with its own timeout.
// Snapshot writes during shutdown use it so they still get their full
// deadline after the run context has been cancelled.
//
//	saveCtx, cancel := logging.DetachContextWithTimeout(ctx, cfg.Timeout)
//	defer cancel()
//	err := manager.Save(saveCtx, snap)
func DetachContextWithTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), timeout)
}
