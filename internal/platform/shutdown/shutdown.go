package shutdown

import (
	"context"
	"os/signal"
	"syscall"
)

// NotifyContext is cancelled on SIGINT or SIGTERM. A second signal after cancellation falls
// through to the default handler and kills the process.
func NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// Drain runs stop and waits for it until ctx ends. It reports whether stop finished in time;
// when it did not, stop keeps running in the background.
func Drain(ctx context.Context, stop func()) bool {
	if stop == nil {
		return true
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		stop()
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
