// Package platform adapts process signals to context cancellation
package platform

import (
	"context"
	"os/signal"
)

// NewShutdownContext returns a context cancelled by the first shutdown
// signal. A second signal is not intercepted, so it terminates the process.
func NewShutdownContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, shutdownSignals...)
	go func() {
		<-ctx.Done()
		stop()
	}()
	return ctx, stop
}
