package runtime

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"
)

// SignalContext is cancelled on SIGINT or SIGTERM so servers and the outbox loop can drain.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// Drain runs the shutdown steps in order under one shared deadline. Every step
// runs even after an earlier one fails; nil steps are skipped.
func Drain(timeout time.Duration, steps ...func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	for _, step := range steps {
		if step == nil {
			continue
		}
		if err := step(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
