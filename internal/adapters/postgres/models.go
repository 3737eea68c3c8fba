package postgres

import (
	"time"

	"github.com/google/uuid"
)

type noteModel struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Title     string    `gorm:"column:title"`
	Content   string    `gorm:"column:content"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (noteModel) TableName() string { return "notes" }

type noteOutboxModel struct {
	OutboxID    uuid.UUID  `gorm:"column:outbox_id;type:uuid;primaryKey"`
	EventType   string     `gorm:"column:event_type"`
	NoteID      int64      `gorm:"column:note_id"`
	TraceID     string     `gorm:"column:trace_id"`
	RetryCount  int        `gorm:"column:retry_count"`
	Envelope    string     `gorm:"column:envelope"`
	Reason      string     `gorm:"column:reason"`
	Attempts    int        `gorm:"column:attempts"`
	EntryID     *string    `gorm:"column:entry_id"`
	CreatedAt   time.Time  `gorm:"column:created_at"`
	FirstSeenAt time.Time  `gorm:"column:first_seen_at"`
	PublishedAt *time.Time `gorm:"column:published_at"`
	LastError   *string    `gorm:"column:last_error"`
	LastErrorAt *time.Time `gorm:"column:last_error_at"`
}

func (noteOutboxModel) TableName() string { return "note_event_outbox" }

type noteIdempotencyModel struct {
	IdempotencyKey string    `gorm:"column:idempotency_key;primaryKey"`
	RequestHash    string    `gorm:"column:request_hash"`
	Status         string    `gorm:"column:status"`
	ResponseCode   int       `gorm:"column:response_code"`
	ResponseBody   *string   `gorm:"column:response_body"`
	ExpiresAt      time.Time `gorm:"column:expires_at"`
	CreatedAt      time.Time `gorm:"column:created_at"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (noteIdempotencyModel) TableName() string { return "note_idempotency" }

type noteEventDedupModel struct {
	EventID     string    `gorm:"column:event_id;primaryKey"`
	EventType   string    `gorm:"column:event_type"`
	ProcessedAt time.Time `gorm:"column:processed_at"`
	ExpiresAt   time.Time `gorm:"column:expires_at"`
}

func (noteEventDedupModel) TableName() string { return "note_event_dedup" }
