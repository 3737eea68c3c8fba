package postgres

import (
	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/ports"
	"gorm.io/gorm"
)

type Repositories struct {
	Notes       ports.NoteRepository
	Outbox      ports.OutboxRepository
	EventDedup  ports.EventDedupRepository
	Idempotency ports.IdempotencyRepository
}

func NewRepositories(db *gorm.DB) Repositories {
	return Repositories{
		Notes:       &noteRepository{db: db},
		Outbox:      &outboxRepository{db: db},
		EventDedup:  &eventDedupRepository{db: db},
		Idempotency: &idempotencyRepository{db: db},
	}
}
