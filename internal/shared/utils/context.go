package utils

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// WithContextSigtermCallback returns a copy of the parent context that is
// canceled when SIGINT or SIGTERM is received. The callback runs once on the
// first signal, before cancellation.
func WithContextSigtermCallback(ctx context.Context, f func()) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		receivedSignal := make(chan os.Signal, 1)
		signal.Notify(receivedSignal, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(receivedSignal)

		select {
		case <-ctx.Done():
		case <-receivedSignal:
			if f != nil {
				f()
			}
			cancel()
		}
	}()
	return ctx
}
