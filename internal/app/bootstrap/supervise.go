package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/application"
	"golang.org/x/sync/errgroup"
)

func connectPolicy(cfg Config) application.RetryPolicy {
	return application.RetryPolicy{
		MaxRetries:   cfg.ConnectMaxRetries,
		InitialDelay: cfg.ConnectRetryDelay,
		MaxDelay:     cfg.ConnectRetryDelay,
		Multiplier:   1,
	}
}

// waitFor calls fn until it succeeds or the policy runs out of retries.
// Dependencies started alongside the service may take a while to accept
// connections.
func waitFor(ctx context.Context, logger *slog.Logger, name string, policy application.RetryPolicy, fn func(context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		delay, ok := policy.NextDelay(attempt)
		if !ok {
			return fmt.Errorf("%s unavailable after %d attempts: %w", name, attempt+1, err)
		}
		logger.WarnContext(ctx, "dependency not ready, retrying",
			"module", "bootstrap",
			"dependency", name,
			"attempt", attempt+1,
			"retry_in", delay.String(),
			"error", err,
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// runLoops runs every loop until ctx ends or one of them fails, and returns
// only after all of them have stopped.
func runLoops(ctx context.Context, loops ...func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, loop := range loops {
		loop := loop
		g.Go(func() error {
			if err := loop(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}
