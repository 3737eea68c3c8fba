package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/domain"
	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/metrics"
	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/ports"
)

// CreateNote validates, persists, invalidates the listing cache and publishes
// a notes.created event. Once the note is stored the call succeeds; event
// delivery problems are reported through the returned Delivery.
func (s *Service) CreateNote(ctx context.Context, req CreateNoteRequest, idempotencyKey string) (CreateResult, error) {
	title, content := domain.NormalizeNoteInput(req.Title, req.Content)
	if err := domain.ValidateNoteInput(title, content); err != nil {
		return CreateResult{}, &StageError{Stage: StageValidating, Err: err}
	}
	normalized := CreateNoteRequest{Title: title, Content: content}

	replay, err := s.reserveIdempotency(ctx, idempotencyKey, normalized)
	if err != nil {
		return CreateResult{}, err
	}
	if replay != nil {
		return *replay, nil
	}

	note, err := s.notes.Create(ctx, ports.CreateNoteParams{Title: title, Content: content})
	if err != nil {
		s.releaseIdempotency(context.WithoutCancel(ctx), idempotencyKey)
		return CreateResult{}, &StageError{Stage: StagePersisting, Err: err}
	}
	metrics.IncNotesCreated()

	// The note exists from here on. A caller that goes away must not cut the
	// event attempt short, or a retried request would look like a new note.
	detached := context.WithoutCancel(ctx)
	s.invalidateListing(detached, note)
	delivery := s.publishCreated(detached, note)

	result := CreateResult{Note: note, Delivery: delivery}
	s.completeIdempotency(detached, idempotencyKey, result)
	return result, nil
}

// ListNotes returns every note, newest first, through the listing cache.
func (s *Service) ListNotes(ctx context.Context) ([]domain.Note, error) {
	if s.cache == nil {
		return s.notes.ListAll(ctx)
	}
	return s.cache.GetAll(ctx, s.notes.ListAll)
}

func (s *Service) invalidateListing(ctx context.Context, note domain.Note) {
	if s.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.InvalidateTimeout)
	defer cancel()
	if err := s.cache.Invalidate(ctx); err != nil {
		metrics.IncCacheInvalidationFailure()
		s.logger.WarnContext(ctx, "listing cache invalidation failed",
			"operation", "create_note",
			"stage", string(StageCacheInvalidating),
			"outcome", "failure",
			"note_id", note.ID,
			"error", err,
		)
	}
}

func (s *Service) publishCreated(ctx context.Context, note domain.Note) Delivery {
	env := domain.BuildEnvelope(note, s.traceIDFn(), 0)
	delivery := Delivery{TraceID: env.TraceID}

	var lastErr error
	for retry := 0; ; retry++ {
		delivery.Attempts++
		delivery.RetryCount = env.RetryCount
		ack, err := s.publisher.Publish(ctx, env)
		if err == nil {
			delivery.Status = DeliveryDelivered
			delivery.Stream = ack.Stream
			delivery.EntryID = ack.EntryID
			return delivery
		}
		lastErr = err

		delay, ok := s.cfg.Retry.NextDelay(retry)
		if !ok {
			break
		}
		s.logger.WarnContext(ctx, "retrying event publish",
			"operation", "create_note",
			"stage", string(StagePublishing),
			"note_id", note.ID,
			"trace_id", env.TraceID,
			"retry_count", env.RetryCount+1,
			"delay", delay,
			"error", err,
		)
		if err := s.sleep(ctx, delay); err != nil {
			lastErr = errors.Join(lastErr, err)
			break
		}
		metrics.IncPublishRetries()
		env = env.Retry()
	}

	metrics.IncPublishExhausted()
	delivery.Err = fmt.Errorf("%w: trace %s after %d attempts: %w",
		domain.ErrPublishPermanent, env.TraceID, delivery.Attempts, lastErr)
	s.logger.ErrorContext(ctx, "event publish retries exhausted",
		"operation", "create_note",
		"stage", string(StagePublishing),
		"outcome", "failure",
		"note_id", note.ID,
		"trace_id", env.TraceID,
		"retry_count", env.RetryCount,
		"error", delivery.Err,
	)

	delivery.Status = DeliveryFailed
	if s.outbox == nil {
		return delivery
	}
	if err := s.outbox.Enqueue(ctx, env, lastErr.Error(), s.nowFn()); err != nil {
		s.logger.ErrorContext(ctx, "event outbox enqueue failed",
			"operation", "create_note",
			"outcome", "failure",
			"note_id", note.ID,
			"trace_id", env.TraceID,
			"error", err,
		)
		return delivery
	}
	s.logger.InfoContext(ctx, "event queued for redelivery",
		"operation", "create_note",
		"note_id", note.ID,
		"trace_id", env.TraceID,
		"retry_count", env.RetryCount,
	)
	delivery.Status = DeliveryQueued
	return delivery
}
