package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/metrics"
	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/ports"
)

// OutboxWorker redelivers envelopes whose inline publication was exhausted.
// Each redelivery keeps the trace id and advances the retry count by one.
// The last count sent per record is remembered so a row whose bookkeeping
// could not be stored is never redelivered with a repeated count.
type OutboxWorker struct {
	logger    *slog.Logger
	outbox    ports.OutboxRepository
	publisher ports.EventPublisher
	interval  time.Duration
	batchSize int
	nowFn     func() time.Time
	lastSent  map[uuid.UUID]int
}

func NewOutboxWorker(logger *slog.Logger, outbox ports.OutboxRepository, publisher ports.EventPublisher, interval time.Duration, batchSize int) *OutboxWorker {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxWorker{
		logger: logger, outbox: outbox, publisher: publisher, interval: interval, batchSize: batchSize,
		nowFn:    func() time.Time { return time.Now().UTC() },
		lastSent: map[uuid.UUID]int{},
	}
}

func (w *OutboxWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		if err := w.processOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.ErrorContext(ctx, "outbox iteration failed",
				"module", "events.outbox_worker",
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

func (w *OutboxWorker) processOnce(ctx context.Context) error {
	records, err := w.outbox.FetchUnpublished(ctx, w.batchSize)
	if err != nil {
		return err
	}
	for _, rec := range records {
		env := rec.Envelope
		if sent, ok := w.lastSent[rec.OutboxID]; ok && sent > env.RetryCount {
			env.RetryCount = sent
		}
		env = env.Retry()
		w.lastSent[rec.OutboxID] = env.RetryCount
		now := w.nowFn()

		ack, err := w.publisher.Publish(ctx, env)
		if err != nil {
			metrics.IncOutboxRedelivery(metrics.OutcomeFailure)
			if markErr := w.outbox.MarkFailed(ctx, rec.OutboxID, env.RetryCount, err.Error(), now); markErr != nil {
				w.logger.ErrorContext(ctx, "failed to record outbox delivery failure",
					"module", "events.outbox_worker",
					"layer", "adapter",
					"trace_id", env.TraceID,
					"retry_count", env.RetryCount,
					"error", markErr,
				)
				return markErr
			}
			continue
		}
		metrics.IncOutboxRedelivery(metrics.OutcomeSuccess)
		w.logger.InfoContext(ctx, "outbox event redelivered",
			"module", "events.outbox_worker",
			"trace_id", env.TraceID,
			"note_id", env.NoteID,
			"retry_count", env.RetryCount,
			"entry_id", ack.EntryID,
		)
		if markErr := w.outbox.MarkPublished(ctx, rec.OutboxID, ack.EntryID, env.RetryCount, now); markErr != nil {
			w.logger.ErrorContext(ctx, "failed to mark outbox event published",
				"module", "events.outbox_worker",
				"layer", "adapter",
				"trace_id", env.TraceID,
				"entry_id", ack.EntryID,
				"error", markErr,
			)
			return markErr
		}
		delete(w.lastSent, rec.OutboxID)
	}
	return nil
}
