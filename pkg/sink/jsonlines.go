package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Sternrassler/zoomphone-tap/pkg/state"
	"github.com/Sternrassler/zoomphone-tap/pkg/streams"
)

// Singer message types.
const (
	MessageSchema = "SCHEMA"
	MessageRecord = "RECORD"
	MessageState  = "STATE"
)

type schemaMessage struct {
	Type               string          `json:"type"`
	Stream             string          `json:"stream"`
	Schema             json.RawMessage `json:"schema"`
	KeyProperties      []string        `json:"key_properties"`
	BookmarkProperties []string        `json:"bookmark_properties,omitempty"`
}

type recordMessage struct {
	Type          string         `json:"type"`
	Stream        string         `json:"stream"`
	Record        streams.Record `json:"record"`
	TimeExtracted string         `json:"time_extracted"`
}

type stateMessage struct {
	Type  string       `json:"type"`
	Value *state.State `json:"value"`
}

// JSONLines writes one Singer message per line.
type JSONLines struct {
	mu      sync.Mutex
	enc     *json.Encoder
	closer  io.Closer
	schemas map[string]bool
}

// NewJSONLines writes to w. If w is an io.Closer it is closed by Close.
func NewJSONLines(w io.Writer) *JSONLines {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	j := &JSONLines{enc: enc, schemas: make(map[string]bool)}
	if c, ok := w.(io.Closer); ok {
		j.closer = c
	}
	return j
}

// WriteSchema implements Sink.
func (j *JSONLines) WriteSchema(_ context.Context, s Schema) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	keys := s.KeyProperties
	if keys == nil {
		keys = []string{}
	}
	if err := j.enc.Encode(schemaMessage{
		Type:               MessageSchema,
		Stream:             s.Stream,
		Schema:             s.Schema,
		KeyProperties:      keys,
		BookmarkProperties: s.BookmarkProperties,
	}); err != nil {
		return fmt.Errorf("write %s schema: %w", s.Stream, err)
	}
	j.schemas[s.Stream] = true
	return nil
}

// WriteRecord implements Sink.
func (j *JSONLines) WriteRecord(_ context.Context, stream string, rec streams.Record, extractedAt time.Time) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.schemas[stream] {
		return fmt.Errorf("%w: %s", ErrUnknownStream, stream)
	}
	if err := j.enc.Encode(recordMessage{
		Type:          MessageRecord,
		Stream:        stream,
		Record:        rec,
		TimeExtracted: extractedAt.UTC().Format(time.RFC3339Nano),
	}); err != nil {
		return fmt.Errorf("write %s record: %w", stream, err)
	}
	recordsWritten.WithLabelValues("jsonl", stream).Inc()
	return nil
}

// WriteState implements Sink.
func (j *JSONLines) WriteState(_ context.Context, s *state.State) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.enc.Encode(stateMessage{Type: MessageState, Value: s}); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

// Close implements Sink.
func (j *JSONLines) Close() error {
	if j.closer == nil {
		return nil
	}
	return j.closer.Close()
}
