package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/domain"
	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/metrics"
	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/ports"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultListingKey = "notes.all"
	DefaultListingTTL = 30 * time.Second
)

var errStaleListing = errors.New("listing computed before last invalidation")

// ReadCache memoizes the full note listing under a single Redis key.
//
// Misses are collapsed per process with singleflight. A version counter next
// to the entry is bumped by every invalidation; a recompute only stores its
// result if the counter is unchanged since the recompute started, so a slow
// recompute can never overwrite a newer invalidation.
type ReadCache struct {
	client     redis.UniversalClient
	key        string
	versionKey string
	ttl        time.Duration
	group      singleflight.Group
	logger     *slog.Logger
}

func NewReadCache(client redis.UniversalClient, key string, ttl time.Duration, logger *slog.Logger) *ReadCache {
	if key == "" {
		key = DefaultListingKey
	}
	if ttl <= 0 {
		ttl = DefaultListingTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReadCache{
		client:     client,
		key:        key,
		versionKey: key + ":version",
		ttl:        ttl,
		logger:     logger.With("module", "cache.read_cache", "layer", "adapter"),
	}
}

func (c *ReadCache) GetAll(ctx context.Context, compute ports.ListFunc) ([]domain.Note, error) {
	if notes, ok := c.lookup(ctx); ok {
		metrics.IncCacheHit()
		return notes, nil
	}
	metrics.IncCacheMiss()

	v, err, _ := c.group.Do(c.key, func() (any, error) {
		flightCtx := context.WithoutCancel(ctx)
		if notes, ok := c.lookup(flightCtx); ok {
			return notes, nil
		}
		version, versionErr := c.version(flightCtx)
		notes, err := compute(flightCtx)
		if err != nil {
			return nil, err
		}
		if versionErr == nil {
			c.store(flightCtx, version, notes)
		}
		return notes, nil
	})
	if err != nil {
		return nil, err
	}
	shared := v.([]domain.Note)
	return append(make([]domain.Note, 0, len(shared)), shared...), nil
}

func (c *ReadCache) Invalidate(ctx context.Context) error {
	_, err := c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, c.key)
		p.Incr(ctx, c.versionKey)
		return nil
	})
	c.group.Forget(c.key)
	if err != nil {
		return fmt.Errorf("%w: invalidate %s: %v", domain.ErrCacheUnavailable, c.key, err)
	}
	return nil
}

func (c *ReadCache) lookup(ctx context.Context) ([]domain.Note, bool) {
	raw, err := c.client.Get(ctx, c.key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WarnContext(ctx, "cache read failed, recomputing",
				"operation", "get_all",
				"outcome", "degraded",
				"key", c.key,
				"error", err,
			)
		}
		return nil, false
	}
	var notes []domain.Note
	if err := json.Unmarshal(raw, &notes); err != nil {
		c.logger.WarnContext(ctx, "cache entry undecodable, recomputing",
			"operation", "get_all",
			"outcome", "degraded",
			"key", c.key,
			"error", err,
		)
		return nil, false
	}
	return notes, true
}

func (c *ReadCache) version(ctx context.Context) (int64, error) {
	return readVersion(ctx, c.client, c.versionKey)
}

func (c *ReadCache) store(ctx context.Context, version int64, notes []domain.Note) {
	if notes == nil {
		notes = []domain.Note{}
	}
	raw, err := json.Marshal(notes)
	if err != nil {
		return
	}
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := readVersion(ctx, tx, c.versionKey)
		if err != nil {
			return err
		}
		if current != version {
			return errStaleListing
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, c.key, raw, c.ttl)
			return nil
		})
		return err
	}, c.versionKey)
	switch {
	case err == nil:
	case errors.Is(err, errStaleListing), errors.Is(err, redis.TxFailedErr):
		c.logger.DebugContext(ctx, "skipped storing stale listing", "operation", "store", "key", c.key)
	default:
		c.logger.WarnContext(ctx, "cache write failed",
			"operation", "store",
			"outcome", "failure",
			"key", c.key,
			"error", err,
		)
	}
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readVersion(ctx context.Context, client stringGetter, key string) (int64, error) {
	v, err := client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return v, err
}

var _ ports.NoteListCache = (*ReadCache)(nil)
