package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

const (
	EventNoteCreated = "notes.created"

	// EnvelopeSchemaVersion identifies the typed stream entry generation.
	// Entries appended before the field existed decode as LegacySchemaVersion.
	EnvelopeSchemaVersion = "2"
	LegacySchemaVersion   = "1"
)

// Stream field names, in append order.
const (
	FieldEvent         = "event"
	FieldNoteID        = "note_id"
	FieldTraceID       = "trace_id"
	FieldRetryCount    = "retry_count"
	FieldPayload       = "payload"
	FieldSchemaVersion = "schema_version"
	FieldOccurredAt    = "occurred_at"
)

// NoteSnapshot is the note as it was when the event was built. It is the
// JSON document carried in the payload field.
type NoteSnapshot struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// EventEnvelope describes one "note created" fact independent of transport.
// Values are never mutated after construction; Retry returns a copy.
type EventEnvelope struct {
	SchemaVersion string       `json:"schema_version"`
	Event         string       `json:"event"`
	NoteID        int64        `json:"note_id"`
	Note          NoteSnapshot `json:"note"`
	TraceID       string       `json:"trace_id"`
	RetryCount    int          `json:"retry_count"`
	OccurredAt    time.Time    `json:"occurred_at"`
}

// StreamField is one name/value pair of a flattened stream entry.
type StreamField struct {
	Name  string
	Value string
}

// BuildEnvelope snapshots a persisted note into an envelope. A note without
// an identifier, an empty trace id or a negative retry count is a caller bug
// and panics.
func BuildEnvelope(note Note, traceID string, retryCount int) EventEnvelope {
	if note.ID <= 0 || note.CreatedAt.IsZero() {
		panic("domain: BuildEnvelope requires a persisted note")
	}
	if traceID == "" {
		panic("domain: BuildEnvelope requires a trace id")
	}
	if retryCount < 0 {
		panic("domain: BuildEnvelope retry count must be >= 0")
	}
	return EventEnvelope{
		SchemaVersion: EnvelopeSchemaVersion,
		Event:         EventNoteCreated,
		NoteID:        note.ID,
		Note: NoteSnapshot{
			ID:        note.ID,
			Title:     note.Title,
			Content:   note.Content,
			CreatedAt: note.CreatedAt.UTC(),
		},
		TraceID:    traceID,
		RetryCount: retryCount,
		OccurredAt: note.CreatedAt.UTC(),
	}
}

// Retry returns the envelope for the next publish attempt of the same event.
func (e EventEnvelope) Retry() EventEnvelope {
	e.RetryCount++
	return e
}

// Payload is the JSON encoding of the note snapshot.
func (e EventEnvelope) Payload() []byte {
	raw, _ := json.Marshal(e.Note)
	return raw
}

// Fields flattens the envelope in the documented stream field order.
func (e EventEnvelope) Fields() []StreamField {
	return []StreamField{
		{Name: FieldEvent, Value: e.Event},
		{Name: FieldNoteID, Value: strconv.FormatInt(e.NoteID, 10)},
		{Name: FieldTraceID, Value: e.TraceID},
		{Name: FieldRetryCount, Value: strconv.Itoa(e.RetryCount)},
		{Name: FieldPayload, Value: string(e.Payload())},
		{Name: FieldSchemaVersion, Value: e.SchemaVersion},
		{Name: FieldOccurredAt, Value: e.OccurredAt.Format(time.RFC3339Nano)},
	}
}

// ParseStreamEntry rebuilds an envelope from the field map of a stream
// entry, as returned by a stream read.
func ParseStreamEntry(values map[string]any) (EventEnvelope, error) {
	get := func(name string) (string, error) {
		raw, ok := values[name]
		if !ok {
			return "", fmt.Errorf("%w: stream entry missing %s", ErrInvalidInput, name)
		}
		s, ok := raw.(string)
		if !ok {
			return "", fmt.Errorf("%w: stream entry field %s is %T", ErrInvalidInput, name, raw)
		}
		return s, nil
	}

	event, err := get(FieldEvent)
	if err != nil {
		return EventEnvelope{}, err
	}
	if event != EventNoteCreated {
		return EventEnvelope{}, fmt.Errorf("%w: unsupported event %q", ErrInvalidInput, event)
	}
	rawNoteID, err := get(FieldNoteID)
	if err != nil {
		return EventEnvelope{}, err
	}
	noteID, err := strconv.ParseInt(rawNoteID, 10, 64)
	if err != nil {
		return EventEnvelope{}, fmt.Errorf("%w: note_id %q", ErrInvalidInput, rawNoteID)
	}
	traceID, err := get(FieldTraceID)
	if err != nil {
		return EventEnvelope{}, err
	}
	rawRetry, err := get(FieldRetryCount)
	if err != nil {
		return EventEnvelope{}, err
	}
	retryCount, err := strconv.Atoi(rawRetry)
	if err != nil || retryCount < 0 {
		return EventEnvelope{}, fmt.Errorf("%w: retry_count %q", ErrInvalidInput, rawRetry)
	}
	rawPayload, err := get(FieldPayload)
	if err != nil {
		return EventEnvelope{}, err
	}
	var snapshot NoteSnapshot
	if err := json.Unmarshal([]byte(rawPayload), &snapshot); err != nil {
		return EventEnvelope{}, fmt.Errorf("%w: payload: %v", ErrInvalidInput, err)
	}
	if snapshot.ID != noteID {
		return EventEnvelope{}, fmt.Errorf("%w: payload id %d does not match note_id %d", ErrInvalidInput, snapshot.ID, noteID)
	}

	env := EventEnvelope{
		SchemaVersion: LegacySchemaVersion,
		Event:         event,
		NoteID:        noteID,
		Note:          snapshot,
		TraceID:       traceID,
		RetryCount:    retryCount,
		OccurredAt:    snapshot.CreatedAt,
	}
	if v, ok := values[FieldSchemaVersion].(string); ok && v != "" {
		env.SchemaVersion = v
	}
	if v, ok := values[FieldOccurredAt].(string); ok && v != "" {
		if at, perr := time.Parse(time.RFC3339Nano, v); perr == nil {
			env.OccurredAt = at
		}
	}
	return env, nil
}
