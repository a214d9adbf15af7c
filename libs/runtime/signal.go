package runtime

import (
	"context"
	"os/signal"
	"syscall"
)

// SignalContext derives a context from parent that ends on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
