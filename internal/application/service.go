package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/ports"
)

type Service struct {
	cfg         Config
	notes       ports.NoteRepository
	cache       ports.NoteListCache
	publisher   ports.EventPublisher
	outbox      ports.OutboxRepository
	idempotency ports.IdempotencyRepository
	eventDedup  ports.EventDedupRepository
	relay       ports.MessagePublisher
	logger      *slog.Logger
	nowFn       func() time.Time
	traceIDFn   func() string
	sleep       func(ctx context.Context, d time.Duration) error
}

// Dependencies are the collaborators of Service. Notes, Cache and Publisher
// are required for the write path; Outbox and Idempotency are optional.
// EventDedup and Relay are only needed by processes that consume the stream.
type Dependencies struct {
	Config      Config
	Notes       ports.NoteRepository
	Cache       ports.NoteListCache
	Publisher   ports.EventPublisher
	Outbox      ports.OutboxRepository
	Idempotency ports.IdempotencyRepository
	EventDedup  ports.EventDedupRepository
	Relay       ports.MessagePublisher
	Logger      *slog.Logger
}

func NewService(deps Dependencies) *Service {
	cfg := deps.Config
	if cfg.ServiceName == "" {
		cfg.ServiceName = "M04-Notes-Service"
	}
	if cfg.Retry.MaxRetries <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.InvalidateTimeout <= 0 {
		cfg.InvalidateTimeout = 2 * time.Second
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 24 * time.Hour
	}
	if cfg.EventDedupTTL <= 0 {
		cfg.EventDedupTTL = 7 * 24 * time.Hour
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		cfg:         cfg,
		notes:       deps.Notes,
		cache:       deps.Cache,
		publisher:   deps.Publisher,
		outbox:      deps.Outbox,
		idempotency: deps.Idempotency,
		eventDedup:  deps.EventDedup,
		relay:       deps.Relay,
		logger:      logger.With("module", "application.notes", "layer", "application"),
		nowFn:       func() time.Time { return time.Now().UTC() },
		traceIDFn:   uuid.NewString,
		sleep:       sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
