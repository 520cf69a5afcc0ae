package state

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestState_Advance(t *testing.T) {
	tests := []struct {
		name      string
		initial   string
		value     string
		wantMoved bool
		want      string
	}{
		{"first value", "", "2024-01-05T10:00:00Z", true, "2024-01-05T10:00:00Z"},
		{"later value", "2024-01-05T10:00:00Z", "2024-01-06T00:00:00Z", true, "2024-01-06T00:00:00Z"},
		{"earlier value", "2024-01-05T10:00:00Z", "2024-01-04T00:00:00Z", false, "2024-01-05T10:00:00Z"},
		{"equal value", "2024-01-05T10:00:00Z", "2024-01-05T10:00:00Z", false, "2024-01-05T10:00:00Z"},
		{"offset compared as time", "2024-01-05T10:00:00Z", "2024-01-05T11:30:00+02:00", false, "2024-01-05T10:00:00Z"},
		{"empty value ignored", "2024-01-05T10:00:00Z", "", false, "2024-01-05T10:00:00Z"},
		{"non-timestamp lexical", "b", "c", true, "c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			if tt.initial != "" {
				s.Set("sms_sessions", Bookmark{ReplicationKey: "last_access_time", Value: tt.initial})
			}

			if got := s.Advance("sms_sessions", "last_access_time", tt.value); got != tt.wantMoved {
				t.Errorf("Advance() = %v, want %v", got, tt.wantMoved)
			}
			b, err := s.Lookup("sms_sessions")
			if err != nil {
				t.Fatalf("Lookup() error = %v", err)
			}
			if b.Value != tt.want {
				t.Errorf("Value = %q, want %q", b.Value, tt.want)
			}
		})
	}
}

func TestState_LookupMissing(t *testing.T) {
	_, err := New().Lookup("call_history")
	if !errors.Is(err, ErrNoBookmark) {
		t.Errorf("Lookup() error = %v, want ErrNoBookmark", err)
	}
}

func TestState_Promote(t *testing.T) {
	s := New()
	s.Set("call_history", Bookmark{ReplicationKey: "start_time", Value: "2024-01-15T09:00:00Z"})

	progress := New()
	if s.Promote("call_history", progress) {
		t.Error("Promote() with empty progress = true, want false")
	}

	progress.Advance("call_history", "start_time", "2024-02-25T10:00:00Z")
	progress.Advance("call_history", "start_time", "2024-02-20T10:00:00Z")
	if !s.Promote("call_history", progress) {
		t.Error("Promote() = false, want true")
	}
	if b, _ := s.Lookup("call_history"); b.Value != "2024-02-25T10:00:00Z" {
		t.Errorf("Value = %q, want 2024-02-25T10:00:00Z", b.Value)
	}

	older := New()
	older.Advance("call_history", "start_time", "2024-01-01T00:00:00Z")
	if s.Promote("call_history", older) {
		t.Error("Promote() with older progress = true, want false")
	}
}

func TestState_StartingTimestamp(t *testing.T) {
	fallback := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	s := New()
	s.Set("call_history", Bookmark{ReplicationKey: "start_time", Value: "2024-03-10T08:15:00Z"})
	s.Set("sms_sessions", Bookmark{ReplicationKey: "last_access_time", Value: "garbage"})

	tests := []struct {
		stream string
		want   time.Time
	}{
		{"call_history", time.Date(2024, 3, 10, 8, 15, 0, 0, time.UTC)},
		{"sms_sessions", fallback},
		{"users", fallback},
	}
	for _, tt := range tests {
		if got := s.StartingTimestamp(tt.stream, fallback); !got.Equal(tt.want) {
			t.Errorf("StartingTimestamp(%q) = %v, want %v", tt.stream, got, tt.want)
		}
	}
}

func TestState_JSONShape(t *testing.T) {
	s := New()
	s.Set("call_history", Bookmark{ReplicationKey: "start_time", Value: "2024-03-10T08:15:00Z"})

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"bookmarks":{"call_history":{"replication_key":"start_time","replication_key_value":"2024-03-10T08:15:00Z"}}}`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}

	restored := New()
	if err := json.Unmarshal(data, restored); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	b, err := restored.Lookup("call_history")
	if err != nil || b.Value != "2024-03-10T08:15:00Z" {
		t.Errorf("restored bookmark = %+v, %v", b, err)
	}
}

func TestState_EmptyMarshal(t *testing.T) {
	data, err := json.Marshal(New())
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `{"bookmarks":{}}` {
		t.Errorf("Marshal() = %s, want {\"bookmarks\":{}}", data)
	}
}
