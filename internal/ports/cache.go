package ports

import (
	"context"

	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/domain"
)

// ListFunc recomputes the full note listing from the source of truth.
type ListFunc func(ctx context.Context) ([]domain.Note, error)

// NoteListCache memoizes the full listing. GetAll serves a live entry without
// calling compute; Invalidate drops the entry unconditionally.
type NoteListCache interface {
	GetAll(ctx context.Context, compute ListFunc) ([]domain.Note, error)
	Invalidate(ctx context.Context) error
}
