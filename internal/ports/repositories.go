package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/domain"
)

type CreateNoteParams struct {
	Title   string
	Content string
}

// NoteRepository is the durable note store. Create assigns id and created_at
// together with the write; ListAll returns newest first.
type NoteRepository interface {
	Create(ctx context.Context, params CreateNoteParams) (domain.Note, error)
	ListAll(ctx context.Context) ([]domain.Note, error)
}

type OutboxRecord struct {
	OutboxID    uuid.UUID
	Envelope    domain.EventEnvelope
	Attempts    int
	LastError   *string
	LastErrorAt *time.Time
	FirstSeenAt time.Time
}

// OutboxRepository holds envelopes whose inline publication was exhausted.
type OutboxRepository interface {
	Enqueue(ctx context.Context, env domain.EventEnvelope, reason string, at time.Time) error
	FetchUnpublished(ctx context.Context, limit int) ([]OutboxRecord, error)
	MarkPublished(ctx context.Context, outboxID uuid.UUID, entryID string, retryCount int, at time.Time) error
	MarkFailed(ctx context.Context, outboxID uuid.UUID, retryCount int, errMsg string, at time.Time) error
}

type EventDedupRepository interface {
	IsDuplicate(ctx context.Context, eventID string, now time.Time) (bool, error)
	MarkProcessed(ctx context.Context, eventID, eventType string, expiresAt time.Time) error
}

const (
	IdempotencyStatusReserved  = "reserved"
	IdempotencyStatusCompleted = "completed"
)

type IdempotencyRecord struct {
	Key          string
	RequestHash  string
	Status       string
	ResponseCode int
	ResponseBody []byte
	ExpiresAt    time.Time
}

type IdempotencyRepository interface {
	Get(ctx context.Context, key string, now time.Time) (*IdempotencyRecord, error)
	Reserve(ctx context.Context, key, requestHash string, expiresAt time.Time) error
	Complete(ctx context.Context, key string, responseCode int, responseBody []byte, at time.Time) error
	Release(ctx context.Context, key string) error
}
