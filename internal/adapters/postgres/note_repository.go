package postgres

import (
	"context"

	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/domain"
	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/ports"
	"gorm.io/gorm"
)

type noteRepository struct {
	db *gorm.DB
}

// Create lets the database assign id and created_at in the same statement
// that writes the row.
func (r *noteRepository) Create(ctx context.Context, params ports.CreateNoteParams) (domain.Note, error) {
	var row noteModel
	err := r.db.WithContext(ctx).Raw(
		`INSERT INTO notes (title, content) VALUES (?, ?) RETURNING id, title, content, created_at`,
		params.Title, params.Content,
	).Scan(&row).Error
	if err != nil {
		return domain.Note{}, storageError("insert note", err)
	}
	return toDomainNote(row), nil
}

func (r *noteRepository) ListAll(ctx context.Context) ([]domain.Note, error) {
	var rows []noteModel
	if err := r.db.WithContext(ctx).Order("created_at desc, id desc").Find(&rows).Error; err != nil {
		return nil, storageError("list notes", err)
	}
	out := make([]domain.Note, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainNote(row))
	}
	return out, nil
}

var _ ports.NoteRepository = (*noteRepository)(nil)
