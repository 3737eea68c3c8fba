package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/domain"
	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/ports"
)

type memNotes struct {
	mu      sync.Mutex
	nextID  int64
	notes   []domain.Note
	clock   func() time.Time
	failErr error
	onSave  func()
	lists   int
}

func newMemNotes() *memNotes {
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	var tick int64
	return &memNotes{clock: func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Millisecond)
	}}
}

func (m *memNotes) Create(_ context.Context, p ports.CreateNoteParams) (domain.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return domain.Note{}, m.failErr
	}
	m.nextID++
	n := domain.Note{ID: m.nextID, Title: p.Title, Content: p.Content, CreatedAt: m.clock()}
	m.notes = append(m.notes, n)
	if m.onSave != nil {
		m.onSave()
	}
	return n, nil
}

func (m *memNotes) ListAll(context.Context) ([]domain.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists++
	out := append([]domain.Note(nil), m.notes...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memNotes) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.notes)
}

// memCache is a single-slot listing cache without expiry.
type memCache struct {
	mu            sync.Mutex
	entry         []domain.Note
	live          bool
	invalidations int
	failErr       error
}

func (c *memCache) GetAll(ctx context.Context, compute ports.ListFunc) ([]domain.Note, error) {
	c.mu.Lock()
	if c.live {
		out := append([]domain.Note(nil), c.entry...)
		c.mu.Unlock()
		return out, nil
	}
	c.mu.Unlock()
	notes, err := compute(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.entry, c.live = notes, true
	c.mu.Unlock()
	return notes, nil
}

func (c *memCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidations++
	if c.failErr != nil {
		return c.failErr
	}
	c.entry, c.live = nil, false
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	fails  int
	always bool
	seen   []domain.EventEnvelope
	ctxErr []error
}

func (p *fakePublisher) Publish(ctx context.Context, env domain.EventEnvelope) (ports.PublishAck, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, env)
	p.ctxErr = append(p.ctxErr, ctx.Err())
	if p.always || p.fails > 0 {
		p.fails--
		return ports.PublishAck{}, fmt.Errorf("%w: dial tcp: connection refused", domain.ErrPublishTransient)
	}
	return ports.PublishAck{Stream: "notes_stream", EntryID: fmt.Sprintf("%d-0", len(p.seen))}, nil
}

type memOutbox struct {
	mu      sync.Mutex
	queued  []domain.EventEnvelope
	failErr error
}

func (o *memOutbox) Enqueue(_ context.Context, env domain.EventEnvelope, _ string, _ time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failErr != nil {
		return o.failErr
	}
	o.queued = append(o.queued, env)
	return nil
}

func (o *memOutbox) FetchUnpublished(context.Context, int) ([]ports.OutboxRecord, error) {
	return nil, nil
}

func (o *memOutbox) MarkPublished(context.Context, uuid.UUID, string, int, time.Time) error {
	return nil
}

func (o *memOutbox) MarkFailed(context.Context, uuid.UUID, int, string, time.Time) error {
	return nil
}

type memIdempotency struct {
	mu      sync.Mutex
	records map[string]ports.IdempotencyRecord
}

func newMemIdempotency() *memIdempotency {
	return &memIdempotency{records: map[string]ports.IdempotencyRecord{}}
}

func (m *memIdempotency) Get(_ context.Context, key string, now time.Time) (*ports.IdempotencyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	if !ok || now.After(rec.ExpiresAt) {
		return nil, nil
	}
	return &rec, nil
}

func (m *memIdempotency) Reserve(_ context.Context, key, hash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[key]; ok {
		return domain.ErrIdempotencyConflict
	}
	m.records[key] = ports.IdempotencyRecord{Key: key, RequestHash: hash, Status: ports.IdempotencyStatusReserved, ExpiresAt: expiresAt}
	return nil
}

func (m *memIdempotency) Complete(_ context.Context, key string, code int, body []byte, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[key]
	if !ok {
		return domain.ErrNotFound
	}
	rec.Status = ports.IdempotencyStatusCompleted
	rec.ResponseCode = code
	rec.ResponseBody = body
	m.records[key] = rec
	return nil
}

func (m *memIdempotency) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	return nil
}

type memDedup struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

func (d *memDedup) IsDuplicate(_ context.Context, id string, now time.Time) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	exp, ok := d.seen[id]
	return ok && now.Before(exp), nil
}

func (d *memDedup) MarkProcessed(_ context.Context, id, _ string, expiresAt time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen == nil {
		d.seen = map[string]time.Time{}
	}
	d.seen[id] = expiresAt
	return nil
}

type relayed struct {
	eventType string
	payload   []byte
	key       string
}

type recordingRelay struct {
	mu   sync.Mutex
	msgs []relayed
	err  error
}

func (r *recordingRelay) Publish(_ context.Context, eventType string, payload []byte, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, relayed{eventType: eventType, payload: payload, key: key})
	return nil
}

type harness struct {
	svc         *Service
	notes       *memNotes
	cache       *memCache
	publisher   *fakePublisher
	outbox      *memOutbox
	idempotency *memIdempotency
	sleeps      []time.Duration
}

func newHarness() *harness {
	h := &harness{
		notes:       newMemNotes(),
		cache:       &memCache{},
		publisher:   &fakePublisher{},
		outbox:      &memOutbox{},
		idempotency: newMemIdempotency(),
	}
	h.svc = NewService(Dependencies{
		Config: Config{
			Retry: RetryPolicy{MaxRetries: 3, InitialDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond, Multiplier: 2},
		},
		Notes:       h.notes,
		Cache:       h.cache,
		Publisher:   h.publisher,
		Outbox:      h.outbox,
		Idempotency: h.idempotency,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	var n int
	h.svc.traceIDFn = func() string {
		n++
		return fmt.Sprintf("trace-%d", n)
	}
	h.svc.sleep = func(_ context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return nil
	}
	return h
}

var errDBDown = errors.New("dial tcp 127.0.0.1:5432: connection refused")
