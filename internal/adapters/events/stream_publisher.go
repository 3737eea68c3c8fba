package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/domain"
	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/metrics"
	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/ports"
)

const (
	DefaultStreamName     = "notes_stream"
	DefaultPublishTimeout = 2 * time.Second
)

// StreamPublisher appends envelopes to one named stream. It makes a single
// attempt per call; retries belong to the caller so that the trace id and
// retry count stay under its control.
type StreamPublisher struct {
	appender StreamAppender
	stream   string
	timeout  time.Duration
	logger   *slog.Logger
}

func NewStreamPublisher(appender StreamAppender, stream string, timeout time.Duration, logger *slog.Logger) *StreamPublisher {
	if stream == "" {
		stream = DefaultStreamName
	}
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StreamPublisher{
		appender: appender,
		stream:   stream,
		timeout:  timeout,
		logger:   logger.With("module", "events.stream_publisher", "layer", "adapter"),
	}
}

func (p *StreamPublisher) Publish(ctx context.Context, env domain.EventEnvelope) (ports.PublishAck, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	entryID, err := p.appender.Append(attemptCtx, p.stream, env)
	elapsed := time.Since(start)
	if err != nil {
		metrics.ObservePublish(p.appender.Mode(), metrics.OutcomeFailure, elapsed)
		p.logger.WarnContext(ctx, "stream append failed",
			"operation", "publish",
			"outcome", "failure",
			"stream", p.stream,
			"mode", p.appender.Mode(),
			"trace_id", env.TraceID,
			"note_id", env.NoteID,
			"retry_count", env.RetryCount,
			"error", err,
		)
		return ports.PublishAck{}, fmt.Errorf("%w: append to %s via %s appender: %w",
			domain.ErrPublishTransient, p.stream, p.appender.Mode(), err)
	}
	metrics.ObservePublish(p.appender.Mode(), metrics.OutcomeSuccess, elapsed)
	p.logger.DebugContext(ctx, "event appended",
		"operation", "publish",
		"outcome", "success",
		"stream", p.stream,
		"entry_id", entryID,
		"trace_id", env.TraceID,
		"retry_count", env.RetryCount,
	)
	return ports.PublishAck{Stream: p.stream, EntryID: entryID}, nil
}

func (p *StreamPublisher) Stream() string { return p.stream }

func (p *StreamPublisher) Mode() string { return p.appender.Mode() }

var _ ports.EventPublisher = (*StreamPublisher)(nil)
