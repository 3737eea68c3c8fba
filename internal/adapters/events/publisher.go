package events

import (
	"context"
	"log/slog"

	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/ports"
)

// LoggingPublisher is the relay used when no downstream bus is configured.
type LoggingPublisher struct {
	logger *slog.Logger
}

func NewLoggingPublisher(logger *slog.Logger) *LoggingPublisher {
	return &LoggingPublisher{logger: logger}
}

func (p *LoggingPublisher) Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error {
	p.logger.InfoContext(ctx, "event relayed",
		"module", "events.relay",
		"layer", "adapter",
		"operation", "publish",
		"outcome", "success",
		"event_type", eventType,
		"partition_key", partitionKey,
		"payload_bytes", len(payload),
	)
	return nil
}

var _ ports.MessagePublisher = (*LoggingPublisher)(nil)
