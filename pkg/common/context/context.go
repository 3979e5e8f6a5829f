// Package context holds the cancellation helpers job bodies use at their
// safe points.
package context

import "context"

// IsCanceled returns true if the context has been canceled
func IsCanceled(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// Checkpoint returns nil while ctx is live. Once ctx is done it returns the
// cancellation cause, falling back to ctx.Err() when no cause was recorded.
// Job bodies call it between remote reads so an aborted job stops early.
func Checkpoint(ctx context.Context) error {
	if !IsCanceled(ctx) {
		return nil
	}
	if cause := context.Cause(ctx); cause != nil {
		return cause
	}
	return ctx.Err()
}
