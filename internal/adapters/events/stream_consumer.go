package events

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// StreamConsumer reads a stream through a consumer group. Each poll cycle
// walks the entries delivered to this consumer but not yet acknowledged once,
// then reads new ones, so a failing entry never starves the rest of the log.
type StreamConsumer struct {
	client        redis.UniversalClient
	stream        string
	group         string
	consumer      string
	block         time.Duration
	readPending   bool
	pendingCursor string
}

// NewStreamConsumer builds a group reader. A negative block makes reads
// return immediately when nothing is available.
func NewStreamConsumer(client redis.UniversalClient, stream, group, consumer string, block time.Duration) *StreamConsumer {
	return &StreamConsumer{
		client:        client,
		stream:        stream,
		group:         group,
		consumer:      consumer,
		block:         block,
		readPending:   true,
		pendingCursor: "0",
	}
}

// EnsureGroup creates the consumer group, and the stream with it, if absent.
func (c *StreamConsumer) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s on %s: %w", c.group, c.stream, err)
	}
	return nil
}

func (c *StreamConsumer) Poll(ctx context.Context, max int) ([]Message, error) {
	if max <= 0 {
		max = 1
	}
	if c.readPending {
		pending, err := c.read(ctx, c.pendingCursor, max, -1)
		if err != nil {
			return nil, err
		}
		if len(pending) > 0 {
			c.pendingCursor = pending[len(pending)-1].ID
			return pending, nil
		}
		c.readPending = false
		c.pendingCursor = "0"
	}
	fresh, err := c.read(ctx, ">", max, c.block)
	if err != nil {
		return nil, err
	}
	c.readPending = true
	return fresh, nil
}

func (c *StreamConsumer) read(ctx context.Context, start string, max int, block time.Duration) ([]Message, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.stream, start},
		Count:    int64(max),
		Block:    block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var out []Message
	for _, s := range streams {
		for _, m := range s.Messages {
			out = append(out, Message{ID: m.ID, Stream: s.Stream, Values: m.Values})
		}
	}
	return out, nil
}

func (c *StreamConsumer) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return c.client.XAck(ctx, c.stream, c.group, ids...).Err()
}

var _ Consumer = (*StreamConsumer)(nil)
