package pagination

import (
	"net/url"
	"testing"
	"time"
)

// fixedClock pins "now" for date-window decisions.
func fixedClock(ts string) Clock {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return t }
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("url.Parse(%q) error = %v", raw, err)
	}
	return u
}

func TestTokenOnly_Params(t *testing.T) {
	s := NewTokenOnly(100)

	tests := []struct {
		name   string
		cursor *Cursor
		want   string
	}{
		{"first request", nil, "page_size=100"},
		{"empty cursor", &Cursor{}, "page_size=100"},
		{"with token", &Cursor{NextPageToken: "abc123"}, "next_page_token=abc123&page_size=100"},
		{"empty token", &Cursor{NextPageToken: ""}, "page_size=100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Params(Context{}, tt.cursor).Encode()
			if got != tt.want {
				t.Errorf("Params() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTokenOnly_Extract(t *testing.T) {
	s := NewTokenOnly(100)

	tests := []struct {
		name      string
		body      string
		wantToken string
		wantMore  bool
	}{
		{"token present", `{"next_page_token":"abc123","users":[]}`, "abc123", true},
		{"token empty", `{"next_page_token":"","users":[{"id":"1"}]}`, "", false},
		{"token missing", `{"users":[]}`, "", false},
		{"token null", `{"next_page_token":null}`, "", false},
		{"not json", `<html>`, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, err := s.Extract([]byte(tt.body), nil)
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if sig.NextPageToken != tt.wantToken {
				t.Errorf("NextPageToken = %q, want %q", sig.NextPageToken, tt.wantToken)
			}
			if sig.HasMore != tt.wantMore {
				t.Errorf("HasMore = %v, want %v", sig.HasMore, tt.wantMore)
			}
		})
	}
}

func TestTokenOnly_DefaultPageSize(t *testing.T) {
	if got := NewTokenOnly(0).PageSize(); got != DefaultPageSize {
		t.Errorf("PageSize() = %d, want %d", got, DefaultPageSize)
	}
}

func TestSinglePage(t *testing.T) {
	s := NewSinglePage()

	for _, cursor := range []*Cursor{nil, {NextPageToken: "abc", LastTo: "2024-01-01T00:00:00Z"}} {
		if got := s.Params(Context{Partition: map[string]string{"id": "1"}}, cursor); len(got) != 0 {
			t.Errorf("Params() = %v, want empty", got)
		}
	}

	for _, body := range []string{`{}`, `{"next_page_token":"abc","page_count":9}`, ``} {
		sig, err := s.Extract([]byte(body), mustURL(t, "https://api.zoom.us/v2/phone/call_history/1"))
		if err != nil {
			t.Fatalf("Extract() error = %v", err)
		}
		if sig.HasMore {
			t.Errorf("Extract(%q).HasMore = true, want false", body)
		}
	}

	if s.Windowed() {
		t.Error("SinglePage should not be windowed")
	}
	if s.MoreWindows("2024-01-01T00:00:00Z") {
		t.Error("SinglePage.MoreWindows() = true, want false")
	}
}

func TestStrategies_FirstRequestNeverCarriesToken(t *testing.T) {
	clock := fixedClock("2024-06-15T12:00:00Z")
	strategies := map[string]Strategy{
		"token_only":     NewTokenOnly(100),
		"token_window":   NewTokenWithDateRange(DateRangeConfig{PageSize: 100, Clock: clock}),
		"page_count":     NewPageCountWithDateRange(DateRangeConfig{PageSize: 300, Clock: clock}),
		"single_page":    NewSinglePage(),
		"token_resuming": NewTokenWithDateRange(DateRangeConfig{Clock: clock}),
	}

	for name, s := range strategies {
		t.Run(name, func(t *testing.T) {
			ctx := Context{}
			if name == "token_resuming" {
				ctx.Start = mustParse(t, "2024-03-10T00:00:00Z")
			}
			params := s.Params(ctx, nil)
			if params.Has(ParamNextPageToken) {
				t.Errorf("first request params %q carry a continuation token", params.Encode())
			}
		})
	}
}

func TestStrategies_ParamsIdempotent(t *testing.T) {
	clock := fixedClock("2024-06-15T12:00:00Z")
	cursors := []*Cursor{
		nil,
		{NextPageToken: "tok", LastFrom: "2024-01-01T00:00:00Z", LastTo: "2024-02-01T00:00:00Z"},
		{LastTo: "2024-01-31T23:59:59Z", LastPageInBatch: true},
	}
	strategies := []Strategy{
		NewTokenOnly(50),
		NewTokenWithDateRange(DateRangeConfig{Clock: clock}),
		NewPageCountWithDateRange(DateRangeConfig{PageSize: 300, Clock: clock}),
		NewSinglePage(),
	}

	for _, s := range strategies {
		for _, c := range cursors {
			first := s.Params(Context{}, c).Encode()
			second := s.Params(Context{}, c).Encode()
			if first != second {
				t.Errorf("%T.Params not idempotent: %q != %q", s, first, second)
			}
		}
	}
}
