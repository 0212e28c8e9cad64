package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"
)

// SignalContext is cancelled on SIGINT or SIGTERM; servers use it to start graceful shutdown.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// Stopper is one component to stop on shutdown.
type Stopper struct {
	Name string
	Stop func(context.Context) error
}

// Shutdown stops components in order under one shared deadline. A failing component is logged and the rest still
// run.
func Shutdown(logger *slog.Logger, timeout time.Duration, stoppers ...Stopper) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	for _, s := range stoppers {
		start := time.Now()
		if err := s.Stop(ctx); err != nil {
			logger.Error("shutdown failed", "component", s.Name, "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
			continue
		}
		logger.Info("stopped", "component", s.Name, "duration_ms", time.Since(start).Milliseconds())
	}
	return errors.Join(errs...)
}
