package postgres

import (
	"encoding/json"
	"fmt"

	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/domain"
	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/ports"
)

func toDomainNote(m noteModel) domain.Note {
	return domain.Note{ID: m.ID, Title: m.Title, Content: m.Content, CreatedAt: m.CreatedAt.UTC()}
}

func toOutboxRecord(m noteOutboxModel) (ports.OutboxRecord, error) {
	var env domain.EventEnvelope
	if err := json.Unmarshal([]byte(m.Envelope), &env); err != nil {
		return ports.OutboxRecord{}, fmt.Errorf("decode outbox %s: %w", m.OutboxID, err)
	}
	// retry_count tracks redeliveries; the stored envelope keeps its first value.
	env.RetryCount = m.RetryCount
	return ports.OutboxRecord{
		OutboxID:    m.OutboxID,
		Envelope:    env,
		Attempts:    m.Attempts,
		LastError:   m.LastError,
		LastErrorAt: m.LastErrorAt,
		FirstSeenAt: m.FirstSeenAt,
	}, nil
}
