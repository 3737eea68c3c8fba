package postgres

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/domain"
	"gorm.io/gorm"
)

func TestToOutboxRecordUsesStoredRetryCount(t *testing.T) {
	note := domain.Note{ID: 12, Title: "t", Content: "c", CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)}
	env := domain.BuildEnvelope(note, "trace-12", 3)
	raw, err := json.Marshal(env)
	require.NoError(t, err)

	id := uuid.New()
	rec, err := toOutboxRecord(noteOutboxModel{OutboxID: id, Envelope: string(raw), RetryCount: 5, Attempts: 2})
	require.NoError(t, err)
	assert.Equal(t, id, rec.OutboxID)
	assert.Equal(t, "trace-12", rec.Envelope.TraceID)
	assert.Equal(t, 5, rec.Envelope.RetryCount)
	assert.Equal(t, 2, rec.Attempts)
	assert.Equal(t, note.Title, rec.Envelope.Note.Title)
	assert.True(t, note.CreatedAt.Equal(rec.Envelope.Note.CreatedAt))
}

func TestToOutboxRecordRejectsCorruptEnvelope(t *testing.T) {
	_, err := toOutboxRecord(noteOutboxModel{OutboxID: uuid.New(), Envelope: "{"})
	assert.Error(t, err)
}

func TestToDomainNoteNormalisesToUTC(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	n := toDomainNote(noteModel{ID: 1, Title: "a", Content: "b", CreatedAt: time.Date(2024, 1, 1, 12, 0, 0, 0, loc)})
	assert.Equal(t, time.UTC, n.CreatedAt.Location())
	assert.Equal(t, 11, n.CreatedAt.Hour())
}

func TestErrorHelpers(t *testing.T) {
	assert.True(t, isUniqueViolation(gorm.ErrDuplicatedKey))
	assert.True(t, isUniqueViolation(errors.New(`ERROR: duplicate key value violates unique constraint "note_idempotency_pkey"`)))
	assert.False(t, isUniqueViolation(errors.New("connection reset")))
	assert.False(t, isUniqueViolation(nil))

	assert.NoError(t, storageError("op", nil))
	err := storageError("insert note", fmt.Errorf("dial tcp: refused"))
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
	assert.Contains(t, err.Error(), "insert note")
}
