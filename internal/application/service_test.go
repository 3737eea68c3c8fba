package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/domain"
)

func TestCreateNotePersistsInvalidatesAndPublishes(t *testing.T) {
	h := newHarness()

	res, err := h.svc.CreateNote(context.Background(), CreateNoteRequest{Title: "  A ", Content: "B"}, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Note.ID)
	assert.Equal(t, "A", res.Note.Title)
	assert.Equal(t, "B", res.Note.Content)
	assert.False(t, res.Note.CreatedAt.IsZero())

	assert.Equal(t, 1, h.cache.invalidations)
	require.Len(t, h.publisher.seen, 1)
	env := h.publisher.seen[0]
	assert.Equal(t, domain.EventNoteCreated, env.Event)
	assert.Equal(t, int64(1), env.NoteID)
	assert.Equal(t, 0, env.RetryCount)
	assert.Equal(t, "trace-1", env.TraceID)

	assert.Equal(t, DeliveryDelivered, res.Delivery.Status)
	assert.Equal(t, "trace-1", res.Delivery.TraceID)
	assert.Equal(t, "1-0", res.Delivery.EntryID)
	assert.Equal(t, 1, res.Delivery.Attempts)
	assert.NoError(t, res.Delivery.Err)
	assert.Empty(t, h.sleeps)
}

func TestCreateNotePayloadRoundTrip(t *testing.T) {
	h := newHarness()
	res, err := h.svc.CreateNote(context.Background(), CreateNoteRequest{Title: "shopping", Content: "milk"}, "")
	require.NoError(t, err)

	var snap domain.NoteSnapshot
	require.NoError(t, json.Unmarshal(h.publisher.seen[0].Payload(), &snap))
	assert.Equal(t, res.Note.ID, snap.ID)
	assert.Equal(t, res.Note.Title, snap.Title)
	assert.Equal(t, res.Note.Content, snap.Content)
	assert.True(t, res.Note.CreatedAt.Equal(snap.CreatedAt))
}

func TestCreateNoteValidationHasNoSideEffects(t *testing.T) {
	cases := []struct {
		name  string
		req   CreateNoteRequest
		field string
	}{
		{name: "empty title", req: CreateNoteRequest{Title: "", Content: "x"}, field: "title"},
		{name: "blank title", req: CreateNoteRequest{Title: "   ", Content: "x"}, field: "title"},
		{name: "long title", req: CreateNoteRequest{Title: strings.Repeat("é", domain.MaxTitleLength+1), Content: "x"}, field: "title"},
		{name: "empty content", req: CreateNoteRequest{Title: "x", Content: ""}, field: "content"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness()
			_, err := h.svc.CreateNote(context.Background(), tc.req, "key-1")
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)

			var stageErr *StageError
			require.ErrorAs(t, err, &stageErr)
			assert.Equal(t, StageValidating, stageErr.Stage)

			var vErr *domain.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Contains(t, vErr.ByField(), tc.field)

			assert.Zero(t, h.notes.count())
			assert.Empty(t, h.publisher.seen)
			assert.Zero(t, h.cache.invalidations)
			assert.Empty(t, h.idempotency.records)
		})
	}
}

func TestCreateNoteTitleAtLimitIsAccepted(t *testing.T) {
	h := newHarness()
	_, err := h.svc.CreateNote(context.Background(), CreateNoteRequest{Title: strings.Repeat("é", domain.MaxTitleLength), Content: "x"}, "")
	require.NoError(t, err)
}

func TestCreateNoteStorageFailureStopsBeforeCacheAndPublish(t *testing.T) {
	h := newHarness()
	h.notes.failErr = fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, errDBDown)

	_, err := h.svc.CreateNote(context.Background(), CreateNoteRequest{Title: "a", Content: "b"}, "key-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StagePersisting, stageErr.Stage)

	assert.Zero(t, h.cache.invalidations)
	assert.Empty(t, h.publisher.seen)
	assert.Empty(t, h.idempotency.records, "key is released so the client can retry")
}

func TestCreateNoteCacheFailureStillPublishes(t *testing.T) {
	h := newHarness()
	h.cache.failErr = domain.ErrCacheUnavailable

	res, err := h.svc.CreateNote(context.Background(), CreateNoteRequest{Title: "a", Content: "b"}, "")
	require.NoError(t, err)
	assert.Equal(t, DeliveryDelivered, res.Delivery.Status)
	assert.Len(t, h.publisher.seen, 1)
}

func TestCreateNoteRetriesKeepTraceAndIncrementRetryCount(t *testing.T) {
	h := newHarness()
	h.publisher.fails = 2

	res, err := h.svc.CreateNote(context.Background(), CreateNoteRequest{Title: "a", Content: "b"}, "")
	require.NoError(t, err)

	require.Len(t, h.publisher.seen, 3)
	for i, env := range h.publisher.seen {
		assert.Equal(t, "trace-1", env.TraceID)
		assert.Equal(t, i, env.RetryCount)
	}
	assert.Equal(t, DeliveryDelivered, res.Delivery.Status)
	assert.Equal(t, 3, res.Delivery.Attempts)
	assert.Equal(t, 2, res.Delivery.RetryCount)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, h.sleeps)
}

func TestCreateNoteSucceedsWhenLogIsUnreachable(t *testing.T) {
	h := newHarness()
	h.publisher.always = true

	res, err := h.svc.CreateNote(context.Background(), CreateNoteRequest{Title: "a", Content: "b"}, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Note.ID)
	assert.Equal(t, 1, h.notes.count())

	assert.Len(t, h.publisher.seen, 4)
	assert.Equal(t, 4, res.Delivery.Attempts)
	assert.ErrorIs(t, res.Delivery.Err, domain.ErrPublishPermanent)
	assert.ErrorIs(t, res.Delivery.Err, domain.ErrPublishTransient)
	assert.Equal(t, DeliveryQueued, res.Delivery.Status)

	require.Len(t, h.outbox.queued, 1)
	assert.Equal(t, "trace-1", h.outbox.queued[0].TraceID)
	assert.Equal(t, 3, h.outbox.queued[0].RetryCount)
}

func TestCreateNoteReportsFailedDeliveryWhenOutboxRejects(t *testing.T) {
	h := newHarness()
	h.publisher.always = true
	h.outbox.failErr = errDBDown

	res, err := h.svc.CreateNote(context.Background(), CreateNoteRequest{Title: "a", Content: "b"}, "")
	require.NoError(t, err)
	assert.Equal(t, DeliveryFailed, res.Delivery.Status)
	assert.ErrorIs(t, res.Delivery.Err, domain.ErrPublishPermanent)
}

func TestCreateNoteWithoutOutboxReportsFailedDelivery(t *testing.T) {
	h := newHarness()
	h.svc.outbox = nil
	h.publisher.always = true

	res, err := h.svc.CreateNote(context.Background(), CreateNoteRequest{Title: "a", Content: "b"}, "")
	require.NoError(t, err)
	assert.Equal(t, DeliveryFailed, res.Delivery.Status)
}

func TestCreateNoteIgnoresCancellationAfterPersist(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	h.notes.onSave = cancel

	res, err := h.svc.CreateNote(ctx, CreateNoteRequest{Title: "a", Content: "b"}, "")
	require.NoError(t, err)
	assert.Equal(t, DeliveryDelivered, res.Delivery.Status)
	require.Len(t, h.publisher.ctxErr, 1)
	assert.NoError(t, h.publisher.ctxErr[0])
	assert.Error(t, ctx.Err())
}

func TestCreateNoteIDsUniqueAndTimestampsNonDecreasing(t *testing.T) {
	h := newHarness()
	var prev domain.Note
	seen := map[int64]bool{}
	for i := 0; i < 20; i++ {
		res, err := h.svc.CreateNote(context.Background(), CreateNoteRequest{Title: fmt.Sprintf("n%d", i), Content: "c"}, "")
		require.NoError(t, err)
		assert.False(t, seen[res.Note.ID])
		seen[res.Note.ID] = true
		if i > 0 {
			assert.False(t, res.Note.CreatedAt.Before(prev.CreatedAt))
		}
		prev = res.Note
	}
	traces := map[string]bool{}
	for _, env := range h.publisher.seen {
		traces[env.TraceID] = true
	}
	assert.Len(t, traces, 20)
}

func TestListNotesServesCacheAndSeesNewNotes(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_, err := h.svc.CreateNote(ctx, CreateNoteRequest{Title: "A", Content: "B"}, "")
	require.NoError(t, err)

	first, err := h.svc.ListNotes(ctx)
	require.NoError(t, err)
	second, err := h.svc.ListNotes(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, h.notes.lists)

	_, err = h.svc.CreateNote(ctx, CreateNoteRequest{Title: "C", Content: "D"}, "")
	require.NoError(t, err)
	third, err := h.svc.ListNotes(ctx)
	require.NoError(t, err)
	require.Len(t, third, 2)
	assert.Equal(t, "C", third[0].Title)
	assert.Equal(t, 2, h.notes.lists)
}

func TestCreateNoteIdempotentReplay(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	req := CreateNoteRequest{Title: "A", Content: "B"}

	first, err := h.svc.CreateNote(ctx, req, "key-1")
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	again, err := h.svc.CreateNote(ctx, CreateNoteRequest{Title: " A", Content: "B "}, "key-1")
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, first.Note.ID, again.Note.ID)
	assert.True(t, first.Note.CreatedAt.Equal(again.Note.CreatedAt))
	assert.Equal(t, first.Delivery.TraceID, again.Delivery.TraceID)
	assert.Equal(t, 1, h.notes.count())
	assert.Len(t, h.publisher.seen, 1)

	_, err = h.svc.CreateNote(ctx, CreateNoteRequest{Title: "other", Content: "B"}, "key-1")
	assert.ErrorIs(t, err, domain.ErrIdempotencyConflict)
}

func TestCreateNoteInFlightKeyConflicts(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	req := CreateNoteRequest{Title: "A", Content: "B"}
	require.NoError(t, h.idempotency.Reserve(ctx, "key-1", hashRequest(req), time.Now().Add(time.Hour)))

	_, err := h.svc.CreateNote(ctx, req, "key-1")
	assert.ErrorIs(t, err, domain.ErrIdempotencyConflict)
	assert.Zero(t, h.notes.count())
}

func TestHandleNoteCreatedRelaysOncePerTrace(t *testing.T) {
	h := newHarness()
	relay := &recordingRelay{}
	h.svc.relay = relay
	h.svc.eventDedup = &memDedup{}
	ctx := context.Background()

	note := domain.Note{ID: 4, Title: "t", Content: "c", CreatedAt: time.Now().UTC()}
	env := domain.BuildEnvelope(note, "trace-x", 0)
	require.NoError(t, h.svc.HandleNoteCreated(ctx, env))
	require.NoError(t, h.svc.HandleNoteCreated(ctx, env.Retry()))

	require.Len(t, relay.msgs, 1)
	assert.Equal(t, domain.EventNoteCreated, relay.msgs[0].eventType)
	assert.Equal(t, "4", relay.msgs[0].key)
	var decoded domain.EventEnvelope
	require.NoError(t, json.Unmarshal(relay.msgs[0].payload, &decoded))
	assert.Equal(t, "trace-x", decoded.TraceID)
}

func TestHandleNoteCreatedRelayFailureIsRetryable(t *testing.T) {
	h := newHarness()
	relay := &recordingRelay{err: errors.New("broker down")}
	dedup := &memDedup{}
	h.svc.relay = relay
	h.svc.eventDedup = dedup
	ctx := context.Background()

	env := domain.BuildEnvelope(domain.Note{ID: 1, Title: "t", Content: "c", CreatedAt: time.Now().UTC()}, "trace-y", 0)
	require.Error(t, h.svc.HandleNoteCreated(ctx, env))
	assert.Empty(t, dedup.seen)

	relay.err = nil
	require.NoError(t, h.svc.HandleNoteCreated(ctx, env))
	assert.Len(t, relay.msgs, 1)
}
