package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/domain"
	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/ports"
	"gorm.io/gorm"
)

type outboxRepository struct {
	db *gorm.DB
}

func (r *outboxRepository) Enqueue(ctx context.Context, env domain.EventEnvelope, reason string, at time.Time) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	rec := noteOutboxModel{
		OutboxID:    uuid.New(),
		EventType:   env.Event,
		NoteID:      env.NoteID,
		TraceID:     env.TraceID,
		RetryCount:  env.RetryCount,
		Envelope:    string(raw),
		Reason:      reason,
		CreatedAt:   at,
		FirstSeenAt: at,
	}
	return storageError("enqueue outbox", r.db.WithContext(ctx).Create(&rec).Error)
}

func (r *outboxRepository) FetchUnpublished(ctx context.Context, limit int) ([]ports.OutboxRecord, error) {
	var rows []noteOutboxModel
	if err := r.db.WithContext(ctx).Where("published_at IS NULL").Order("created_at asc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, storageError("fetch outbox", err)
	}
	out := make([]ports.OutboxRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := toOutboxRecord(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *outboxRepository) MarkPublished(ctx context.Context, outboxID uuid.UUID, entryID string, retryCount int, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&noteOutboxModel{}).Where("outbox_id = ?", outboxID).Updates(map[string]any{
		"published_at": at,
		"entry_id":     entryID,
		"retry_count":  retryCount,
		"attempts":     gorm.Expr("attempts + 1"),
	}).Error
	return storageError("mark outbox published", err)
}

func (r *outboxRepository) MarkFailed(ctx context.Context, outboxID uuid.UUID, retryCount int, errMsg string, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&noteOutboxModel{}).Where("outbox_id = ?", outboxID).Updates(map[string]any{
		"retry_count":   retryCount,
		"attempts":      gorm.Expr("attempts + 1"),
		"last_error":    errMsg,
		"last_error_at": at,
	}).Error
	return storageError("mark outbox failed", err)
}

var _ ports.OutboxRepository = (*outboxRepository)(nil)
