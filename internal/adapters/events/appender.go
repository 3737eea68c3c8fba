package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/domain"
)

const (
	ModeAuto       = "auto"
	ModeStructured = "structured"
	ModeFlat       = "flat"
)

var ErrNoStreamCapability = errors.New("client exposes no stream append capability")

// StreamAppender appends one envelope as a stream entry and returns the entry
// id assigned by the log service. The producer never picks its own id.
type StreamAppender interface {
	Append(ctx context.Context, stream string, env domain.EventEnvelope) (string, error)
	Mode() string
}

// structuredClient accepts a field mapping directly.
type structuredClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// commandClient can only execute raw commands.
type commandClient interface {
	Do(ctx context.Context, args ...interface{}) *redis.Cmd
}

// SelectAppender probes client once and returns the richest appender it
// supports. An explicit mode skips the probe but still requires the
// capability.
func SelectAppender(client any, mode string, maxLen int64) (StreamAppender, error) {
	switch mode {
	case "", ModeAuto:
		if c, ok := client.(structuredClient); ok {
			return &StructuredAppender{client: c, maxLen: maxLen}, nil
		}
		if c, ok := client.(commandClient); ok {
			return &FlatCommandAppender{client: c, maxLen: maxLen}, nil
		}
		return nil, fmt.Errorf("%w: %T", ErrNoStreamCapability, client)
	case ModeStructured:
		c, ok := client.(structuredClient)
		if !ok {
			return nil, fmt.Errorf("%w: %T has no structured append", ErrNoStreamCapability, client)
		}
		return &StructuredAppender{client: c, maxLen: maxLen}, nil
	case ModeFlat:
		c, ok := client.(commandClient)
		if !ok {
			return nil, fmt.Errorf("%w: %T has no command execution", ErrNoStreamCapability, client)
		}
		return &FlatCommandAppender{client: c, maxLen: maxLen}, nil
	default:
		return nil, fmt.Errorf("unknown stream mode %q", mode)
	}
}

// StructuredAppender uses the typed XADD API.
type StructuredAppender struct {
	client structuredClient
	maxLen int64
}

func (a *StructuredAppender) Mode() string { return ModeStructured }

func (a *StructuredAppender) Append(ctx context.Context, stream string, env domain.EventEnvelope) (string, error) {
	args := &redis.XAddArgs{
		Stream: stream,
		ID:     "*",
		Values: []any{
			domain.FieldEvent, env.Event,
			domain.FieldNoteID, env.NoteID,
			domain.FieldTraceID, env.TraceID,
			domain.FieldRetryCount, env.RetryCount,
			domain.FieldPayload, env.Payload(),
			domain.FieldSchemaVersion, env.SchemaVersion,
			domain.FieldOccurredAt, env.OccurredAt.Format(time.RFC3339Nano),
		},
	}
	if a.maxLen > 0 {
		args.MaxLen = a.maxLen
		args.Approx = true
	}
	return a.client.XAdd(ctx, args).Result()
}

// FlatCommandAppender issues a raw XADD with the envelope flattened into
// alternating name/value strings in domain field order.
type FlatCommandAppender struct {
	client commandClient
	maxLen int64
}

func (a *FlatCommandAppender) Mode() string { return ModeFlat }

func (a *FlatCommandAppender) Append(ctx context.Context, stream string, env domain.EventEnvelope) (string, error) {
	fields := env.Fields()
	args := make([]any, 0, 6+2*len(fields))
	args = append(args, "XADD", stream)
	if a.maxLen > 0 {
		args = append(args, "MAXLEN", "~", a.maxLen)
	}
	args = append(args, "*")
	for _, f := range fields {
		args = append(args, f.Name, f.Value)
	}
	return a.client.Do(ctx, args...).Text()
}
