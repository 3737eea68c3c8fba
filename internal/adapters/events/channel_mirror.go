package events

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/domain"
	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/ports"
)

type channelPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// ChannelMirror also announces every appended event on a pub/sub channel for
// subscribers that predate the stream. The mirror is fire-and-forget: its
// failures are logged and never reach the caller.
type ChannelMirror struct {
	next    ports.EventPublisher
	client  channelPublisher
	channel string
	logger  *slog.Logger
}

func NewChannelMirror(next ports.EventPublisher, client channelPublisher, channel string, logger *slog.Logger) *ChannelMirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChannelMirror{
		next:    next,
		client:  client,
		channel: channel,
		logger:  logger.With("module", "events.channel_mirror", "layer", "adapter"),
	}
}

func (m *ChannelMirror) Publish(ctx context.Context, env domain.EventEnvelope) (ports.PublishAck, error) {
	ack, err := m.next.Publish(ctx, env)
	if err != nil {
		return ack, err
	}
	if pubErr := m.client.Publish(ctx, m.channel, env.Payload()).Err(); pubErr != nil {
		m.logger.WarnContext(ctx, "legacy channel publish failed",
			"operation", "mirror",
			"outcome", "failure",
			"channel", m.channel,
			"trace_id", env.TraceID,
			"error", pubErr,
		)
	}
	return ack, nil
}

var _ ports.EventPublisher = (*ChannelMirror)(nil)
