package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/application"
	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/domain"
)

const (
	maxBodyBytes          = 1 << 20
	maxIdempotencyKeySize = 255
)

func (h *Handler) listNotes(w http.ResponseWriter, r *http.Request) {
	notes, err := h.service.ListNotes(r.Context())
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if notes == nil {
		notes = []domain.Note{}
	}
	writeJSON(w, http.StatusOK, notes)
}

func (h *Handler) createNote(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCreateRequest(w, r)
	if err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			writeValidation(w, verr)
			return
		}
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), requestIDFromContext(r.Context()))
		return
	}

	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if len(key) > maxIdempotencyKeySize {
		writeError(w, http.StatusBadRequest, "INVALID_IDEMPOTENCY_KEY",
			fmt.Sprintf("Idempotency-Key must not exceed %d bytes", maxIdempotencyKeySize), requestIDFromContext(r.Context()))
		return
	}

	res, err := h.service.CreateNote(r.Context(), req, key)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	header := w.Header()
	header.Set("X-Event-Delivery", res.Delivery.Status)
	header.Set("X-Trace-Id", res.Delivery.TraceID)
	if res.Delivery.EntryID != "" {
		header.Set("X-Stream-Entry-Id", res.Delivery.EntryID)
	}
	if res.Replayed {
		header.Set("Idempotent-Replayed", "true")
	}
	writeJSON(w, http.StatusCreated, res.Note)
}

func (h *Handler) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	failures := map[string]string{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			failures[name] = err.Error()
		}
	}
	if len(failures) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "error",
			"code":   "NOT_READY",
			"checks": failures,
		})
		return
	}
	writeMessage(w, http.StatusOK, "ready")
}

func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		writeValidation(w, verr)
		return
	}
	status, code, msg := mapDomainError(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			"module", "http",
			"layer", "adapter",
			"path", r.URL.Path,
			"request_id", requestIDFromContext(r.Context()),
			"error", err,
		)
	}
	writeError(w, status, code, msg, requestIDFromContext(r.Context()))
}

// decodeCreateRequest accepts a JSON body or a classic form post. Fields of
// the wrong JSON type are reported like any other validation failure.
func decodeCreateRequest(w http.ResponseWriter, r *http.Request) (application.CreateNoteRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		var err error
		if mediaType == "multipart/form-data" {
			err = r.ParseMultipartForm(maxBodyBytes)
		} else {
			err = r.ParseForm()
		}
		if err != nil {
			return application.CreateNoteRequest{}, fmt.Errorf("malformed form body: %w", err)
		}
		return application.CreateNoteRequest{
			Title:   r.PostForm.Get("title"),
			Content: r.PostForm.Get("content"),
		}, nil
	}

	var req application.CreateNoteRequest
	err := json.NewDecoder(r.Body).Decode(&req)
	var typeErr *json.UnmarshalTypeError
	switch {
	case err == nil, errors.Is(err, io.EOF):
		return req, nil
	case errors.As(err, &typeErr) && typeErr.Field != "":
		return application.CreateNoteRequest{}, &domain.ValidationError{Fields: []domain.FieldError{{
			Field:   typeErr.Field,
			Message: fmt.Sprintf("The %s field must be a string.", typeErr.Field),
		}}}
	default:
		return application.CreateNoteRequest{}, fmt.Errorf("malformed JSON body: %w", err)
	}
}
