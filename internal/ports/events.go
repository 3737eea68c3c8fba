package ports

import (
	"context"

	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/domain"
)

// PublishAck identifies the log entry that accepted an envelope.
type PublishAck struct {
	Stream  string
	EntryID string
}

// EventPublisher appends envelopes to the ordered event log.
// Failures wrap domain.ErrPublishTransient.
type EventPublisher interface {
	Publish(ctx context.Context, env domain.EventEnvelope) (PublishAck, error)
}

// MessagePublisher forwards already-encoded events to a downstream bus.
type MessagePublisher interface {
	Publish(ctx context.Context, eventType string, payload []byte, partitionKey string) error
}
