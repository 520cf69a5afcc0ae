// Package state keeps replication bookmarks between sync runs.
//
// State marshals to the Singer shape
//
//	{"bookmarks": {"sms_sessions": {"replication_key": "last_access_time", "replication_key_value": "..."}}}
//
// so it can be emitted as a STATE message and fed back in on the next run.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNoBookmark is returned when a stream has never been synced.
var ErrNoBookmark = errors.New("no bookmark")

// Bookmark is the resume point of one incremental stream.
type Bookmark struct {
	ReplicationKey string `json:"replication_key"`
	Value          string `json:"replication_key_value"`
}

// Store loads and persists State.
type Store interface {
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, s *State) error
}

// State holds the bookmarks of all streams. It is safe for concurrent use.
type State struct {
	mu        sync.RWMutex
	bookmarks map[string]Bookmark
}

// New returns an empty state.
func New() *State {
	return &State{bookmarks: make(map[string]Bookmark)}
}

// Lookup returns the bookmark of stream, or ErrNoBookmark.
func (s *State) Lookup(stream string) (Bookmark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookmarks[stream]
	if !ok || b.Value == "" {
		return Bookmark{}, fmt.Errorf("%s: %w", stream, ErrNoBookmark)
	}
	return b, nil
}

// Set replaces the bookmark of stream.
func (s *State) Set(stream string, b Bookmark) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookmarks[stream] = b
}

// Advance moves the bookmark of stream forward to value if value is later
// than the current one. Values that parse as timestamps are compared as
// times, anything else lexically. It reports whether the bookmark moved.
func (s *State) Advance(stream, key, value string) bool {
	if value == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.bookmarks[stream]
	if ok && current.Value != "" && !later(value, current.Value) {
		return false
	}
	s.bookmarks[stream] = Bookmark{ReplicationKey: key, Value: value}
	return true
}

// Promote advances the bookmark of stream to the one held in progress, if
// any. It reports whether the bookmark moved.
func (s *State) Promote(stream string, progress *State) bool {
	b, err := progress.Lookup(stream)
	if err != nil {
		return false
	}
	return s.Advance(stream, b.ReplicationKey, b.Value)
}

// StartingTimestamp is where an incremental stream resumes: the bookmark if
// it parses, else fallback (usually the configured start date).
func (s *State) StartingTimestamp(stream string, fallback time.Time) time.Time {
	b, err := s.Lookup(stream)
	if err != nil {
		return fallback
	}
	ts, err := parseTime(b.Value)
	if err != nil {
		return fallback
	}
	return ts
}

// Len returns the number of bookmarked streams.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bookmarks)
}

// Snapshot returns a copy of all bookmarks.
func (s *State) Snapshot() map[string]Bookmark {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Bookmark, len(s.bookmarks))
	for k, v := range s.bookmarks {
		out[k] = v
	}
	return out
}

type document struct {
	Bookmarks map[string]Bookmark `json:"bookmarks"`
}

// MarshalJSON implements json.Marshaler.
func (s *State) MarshalJSON() ([]byte, error) {
	return json.Marshal(document{Bookmarks: s.Snapshot()})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *State) UnmarshalJSON(data []byte) error {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("decode state: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookmarks = make(map[string]Bookmark, len(doc.Bookmarks))
	for k, v := range doc.Bookmarks {
		s.bookmarks[k] = v
	}
	return nil
}

func later(a, b string) bool {
	ta, errA := parseTime(a)
	tb, errB := parseTime(b)
	if errA == nil && errB == nil {
		return ta.After(tb)
	}
	return a > b
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
