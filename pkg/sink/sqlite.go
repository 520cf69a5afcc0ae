package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/Sternrassler/zoomphone-tap/pkg/state"
	"github.com/Sternrassler/zoomphone-tap/pkg/streams"
)

// ErrMissingKey is returned for a record whose primary key is empty.
var ErrMissingKey = errors.New("record has no primary key value")

// SQLite stores each stream in its own table keyed by the primary key. A
// record seen twice replaces the earlier copy. Schemas and the latest state
// are kept in the _schemas and _state tables.
type SQLite struct {
	db   *sql.DB
	path string

	mu   sync.Mutex
	keys map[string][]string
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &SQLite{db: db, path: path, keys: make(map[string][]string)}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS _schemas (
			stream TEXT PRIMARY KEY,
			schema TEXT NOT NULL,
			key_properties TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS _state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Path returns the database file path.
func (s *SQLite) Path() string { return s.path }

// WriteSchema implements Sink. It creates the stream table if needed.
func (s *SQLite) WriteSchema(ctx context.Context, sc Schema) error {
	if len(sc.KeyProperties) == 0 {
		return fmt.Errorf("%s: stream has no key properties", sc.Stream)
	}
	keys, err := json.Marshal(sc.KeyProperties)
	if err != nil {
		return fmt.Errorf("encode key properties: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			pk TEXT PRIMARY KEY,
			record TEXT NOT NULL,
			extracted_at TEXT NOT NULL
		)`, quoteIdent(sc.Stream))); err != nil {
		return fmt.Errorf("create table %s: %w", sc.Stream, err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO _schemas (stream, schema, key_properties, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(stream) DO UPDATE SET
			schema = excluded.schema,
			key_properties = excluded.key_properties,
			updated_at = excluded.updated_at
	`, sc.Stream, string(sc.Schema), string(keys), nowString()); err != nil {
		return fmt.Errorf("store %s schema: %w", sc.Stream, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.mu.Lock()
	s.keys[sc.Stream] = append([]string(nil), sc.KeyProperties...)
	s.mu.Unlock()
	return nil
}

// WriteRecord implements Sink.
func (s *SQLite) WriteRecord(ctx context.Context, stream string, rec streams.Record, extractedAt time.Time) error {
	s.mu.Lock()
	keys, ok := s.keys[stream]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStream, stream)
	}

	pk := rec.Key(keys)
	if strings.Trim(pk, "|") == "" {
		return fmt.Errorf("%s: %w", stream, ErrMissingKey)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s record: %w", stream, err)
	}

	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (pk, record, extracted_at)
		VALUES (?, ?, ?)
		ON CONFLICT(pk) DO UPDATE SET
			record = excluded.record,
			extracted_at = excluded.extracted_at
	`, quoteIdent(stream)), pk, string(data), extractedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("upsert %s record: %w", stream, err)
	}
	recordsWritten.WithLabelValues("sqlite", stream).Inc()
	return nil
}

// WriteState implements Sink.
func (s *SQLite) WriteState(ctx context.Context, st *state.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO _state (id, value, updated_at)
		VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, string(data), nowString()); err != nil {
		return fmt.Errorf("store state: %w", err)
	}
	return nil
}

// Record returns the stored record with primary key pk.
func (s *SQLite) Record(ctx context.Context, stream, pk string) (streams.Record, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT record FROM %s WHERE pk = ?`, quoteIdent(stream)), pk).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("get %s record: %w", stream, err)
	}
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var rec streams.Record
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode %s record: %w", stream, err)
	}
	return rec, nil
}

// Count returns the number of records stored for stream.
func (s *SQLite) Count(ctx context.Context, stream string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, quoteIdent(stream))).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", stream, err)
	}
	return n, nil
}

// State returns the last written state, or an empty state.
func (s *SQLite) State(ctx context.Context) (*state.State, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM _state WHERE id = 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return state.New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("get state: %w", err)
	}
	st := state.New()
	if err := json.Unmarshal([]byte(raw), st); err != nil {
		return nil, err
	}
	return st, nil
}

// Close implements Sink.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func nowString() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
