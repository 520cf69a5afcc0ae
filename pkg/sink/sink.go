// Package sink emits extracted records.
//
// Two sinks are provided: JSONLines writes Singer SCHEMA, RECORD and STATE
// messages to a writer (usually stdout) and SQLite upserts records into one
// table per stream.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Sternrassler/zoomphone-tap/pkg/state"
	"github.com/Sternrassler/zoomphone-tap/pkg/streams"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrUnknownStream is returned when a record arrives before its schema.
var ErrUnknownStream = errors.New("record for stream without schema")

var recordsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "zoomphone_sink_records_written_total",
	Help: "Total records written by sink and stream",
}, []string{"sink", "stream"})

// Schema announces a stream before its records.
type Schema struct {
	Stream             string
	Schema             json.RawMessage
	KeyProperties      []string
	BookmarkProperties []string
}

// Sink receives the output of a sync run. Implementations need not be safe
// for concurrent use.
type Sink interface {
	WriteSchema(ctx context.Context, s Schema) error
	WriteRecord(ctx context.Context, stream string, rec streams.Record, extractedAt time.Time) error
	WriteState(ctx context.Context, s *state.State) error
	Close() error
}
