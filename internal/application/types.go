package application

import (
	"fmt"
	"time"

	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/domain"
)

type Config struct {
	ServiceName       string
	Retry             RetryPolicy
	InvalidateTimeout time.Duration
	IdempotencyTTL    time.Duration
	EventDedupTTL     time.Duration
}

type CreateNoteRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

const (
	DeliveryDelivered = "delivered"
	DeliveryQueued    = "queued"
	DeliveryFailed    = "failed"
)

// Delivery reports what happened to the event of a created note.
type Delivery struct {
	Status     string `json:"status"`
	TraceID    string `json:"trace_id"`
	Stream     string `json:"stream,omitempty"`
	EntryID    string `json:"entry_id,omitempty"`
	Attempts   int    `json:"attempts"`
	RetryCount int    `json:"retry_count"`
	Err        error  `json:"-"`
}

type CreateResult struct {
	Note     domain.Note `json:"note"`
	Delivery Delivery    `json:"delivery"`
	Replayed bool        `json:"-"`
}

// Stage names a step of note creation.
type Stage string

const (
	StageValidating        Stage = "validating"
	StagePersisting        Stage = "persisting"
	StageCacheInvalidating Stage = "cache_invalidating"
	StagePublishing        Stage = "publishing"
	StageCompleted         Stage = "completed"
)

// StageError is the terminal failure of a creation request. Only validation
// and persistence failures end a request this way.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("create note: %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
