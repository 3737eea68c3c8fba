package application

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/domain"
	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/metrics"
)

// HandleNoteCreated processes one event read back from the stream. Entries
// repeated by producer retries share a trace id and are handled once.
func (s *Service) HandleNoteCreated(ctx context.Context, env domain.EventEnvelope) error {
	now := s.nowFn()
	if s.eventDedup != nil {
		dup, err := s.eventDedup.IsDuplicate(ctx, env.TraceID, now)
		if err != nil {
			return err
		}
		if dup {
			metrics.IncProcessedEvent("duplicate")
			s.logger.DebugContext(ctx, "skipping duplicate event",
				"operation", "handle_note_created",
				"trace_id", env.TraceID,
				"retry_count", env.RetryCount,
			)
			return nil
		}
	}

	if s.relay != nil {
		raw, err := json.Marshal(env)
		if err != nil {
			return fmt.Errorf("encode event %s: %w", env.TraceID, err)
		}
		if err := s.relay.Publish(ctx, env.Event, raw, strconv.FormatInt(env.NoteID, 10)); err != nil {
			return fmt.Errorf("relay event %s: %w", env.TraceID, err)
		}
	}

	if s.eventDedup != nil {
		if err := s.eventDedup.MarkProcessed(ctx, env.TraceID, env.Event, now.Add(s.cfg.EventDedupTTL)); err != nil {
			return err
		}
	}
	metrics.IncProcessedEvent("processed")
	s.logger.InfoContext(ctx, "note created event processed",
		"operation", "handle_note_created",
		"outcome", "success",
		"note_id", env.NoteID,
		"title", env.Note.Title,
		"trace_id", env.TraceID,
		"retry_count", env.RetryCount,
		"schema_version", env.SchemaVersion,
	)
	return nil
}
