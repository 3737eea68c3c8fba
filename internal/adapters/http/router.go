package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/application"
	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/domain"
)

// NoteService is the part of the application the HTTP surface drives.
type NoteService interface {
	CreateNote(ctx context.Context, req application.CreateNoteRequest, idempotencyKey string) (application.CreateResult, error)
	ListNotes(ctx context.Context) ([]domain.Note, error)
}

// ReadinessCheck reports whether one dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

type Handler struct {
	service NoteService
	checks  map[string]ReadinessCheck
	logger  *slog.Logger
}

func NewHandler(service NoteService, checks map[string]ReadinessCheck, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, checks: checks, logger: logger}
}

func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware(handler.logger))
	r.Use(loggingMiddleware(handler.logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { writeMessage(w, http.StatusOK, "ok") })
	r.Get("/readyz", handler.ready)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	notes := func(r chi.Router) {
		r.Get("/", handler.listNotes)
		r.Post("/", handler.createNote)
	}
	r.Route("/notes", notes)
	r.Route("/api/notes", notes)
	return r
}
