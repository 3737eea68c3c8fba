package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/domain"
	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/ports"
)

func hashRequest(v any) string {
	raw, _ := json.Marshal(v)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// reserveIdempotency claims key for this request. A completed earlier request
// with the same body is returned for replay.
func (s *Service) reserveIdempotency(ctx context.Context, key string, request any) (*CreateResult, error) {
	if key == "" || s.idempotency == nil {
		return nil, nil
	}
	hash := hashRequest(request)
	now := s.nowFn()

	existing, err := s.idempotency.Get(ctx, key, now)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.RequestHash != hash {
			return nil, fmt.Errorf("%w: key %q was used with a different request", domain.ErrIdempotencyConflict, key)
		}
		if existing.Status != ports.IdempotencyStatusCompleted {
			return nil, fmt.Errorf("%w: key %q is still in flight", domain.ErrIdempotencyConflict, key)
		}
		var replay CreateResult
		if err := json.Unmarshal(existing.ResponseBody, &replay); err != nil {
			return nil, fmt.Errorf("%w: stored response for key %q: %v", domain.ErrIdempotencyConflict, key, err)
		}
		replay.Replayed = true
		return &replay, nil
	}

	if err := s.idempotency.Reserve(ctx, key, hash, now.Add(s.cfg.IdempotencyTTL)); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *Service) completeIdempotency(ctx context.Context, key string, result CreateResult) {
	if key == "" || s.idempotency == nil {
		return
	}
	body, _ := json.Marshal(result)
	if err := s.idempotency.Complete(ctx, key, http.StatusCreated, body, s.nowFn()); err != nil {
		s.logger.WarnContext(ctx, "idempotency completion failed",
			"operation", "create_note",
			"outcome", "failure",
			"note_id", result.Note.ID,
			"error", err,
		)
	}
}

func (s *Service) releaseIdempotency(ctx context.Context, key string) {
	if key == "" || s.idempotency == nil {
		return
	}
	if err := s.idempotency.Release(ctx, key); err != nil {
		s.logger.WarnContext(ctx, "idempotency release failed",
			"operation", "create_note",
			"outcome", "failure",
			"error", err,
		)
	}
}
