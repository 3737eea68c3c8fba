package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/domain"
	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/metrics"
)

type Message struct {
	ID     string
	Stream string
	Values map[string]any
}

type Consumer interface {
	Poll(ctx context.Context, max int) ([]Message, error)
	Ack(ctx context.Context, ids ...string) error
}

type EventHandler interface {
	HandleNoteCreated(ctx context.Context, env domain.EventEnvelope) error
}

// DefaultMaxDeliveries bounds how often one entry is handed to the handler
// before it is acknowledged as dead.
const DefaultMaxDeliveries = 5

// ConsumerWorker drains the notes stream into an EventHandler. Entries are
// acknowledged after successful handling; a handler failure leaves the entry
// pending so it is read again, up to maxDeliveries times.
type ConsumerWorker struct {
	logger        *slog.Logger
	consumer      Consumer
	handler       EventHandler
	interval      time.Duration
	batchSize     int
	maxDeliveries int
	failures      map[string]int
}

func NewConsumerWorker(logger *slog.Logger, consumer Consumer, handler EventHandler, interval time.Duration, batchSize int) *ConsumerWorker {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &ConsumerWorker{
		logger: logger, consumer: consumer, handler: handler, interval: interval, batchSize: batchSize,
		maxDeliveries: DefaultMaxDeliveries,
		failures:      map[string]int{},
	}
}

func (w *ConsumerWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if _, err := w.processOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.ErrorContext(ctx, "consumer iteration failed",
				"module", "events.consumer_worker",
				"layer", "adapter",
				"operation", "process_once",
				"outcome", "failure",
				"error", err,
			)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *ConsumerWorker) processOnce(ctx context.Context) (int, error) {
	msgs, err := w.consumer.Poll(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}
	handled := 0
	for _, msg := range msgs {
		env, err := domain.ParseStreamEntry(msg.Values)
		if err != nil {
			metrics.IncProcessedEvent("malformed")
			w.logger.WarnContext(ctx, "dropping undecodable stream entry",
				"module", "events.consumer_worker",
				"entry_id", msg.ID,
				"error", err,
			)
			if ackErr := w.consumer.Ack(ctx, msg.ID); ackErr != nil {
				return handled, ackErr
			}
			continue
		}
		if err := w.handler.HandleNoteCreated(ctx, env); err != nil {
			w.failures[msg.ID]++
			attempts := w.failures[msg.ID]
			if attempts < w.maxDeliveries {
				metrics.IncProcessedEvent("failed")
				w.logger.WarnContext(ctx, "failed to handle notes.created",
					"module", "events.consumer_worker",
					"entry_id", msg.ID,
					"trace_id", env.TraceID,
					"attempts", attempts,
					"error", err,
				)
				continue
			}
			metrics.IncProcessedEvent("dead_lettered")
			w.logger.ErrorContext(ctx, "giving up on notes.created entry",
				"module", "events.consumer_worker",
				"entry_id", msg.ID,
				"trace_id", env.TraceID,
				"attempts", attempts,
				"error", err,
			)
			if ackErr := w.consumer.Ack(ctx, msg.ID); ackErr != nil {
				return handled, ackErr
			}
			delete(w.failures, msg.ID)
			continue
		}
		if err := w.consumer.Ack(ctx, msg.ID); err != nil {
			return handled, err
		}
		delete(w.failures, msg.ID)
		handled++
	}
	return handled, nil
}
