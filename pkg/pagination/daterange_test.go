package pagination

import (
	"errors"
	"testing"
	"time"
)

const smsURL = "https://api.zoom.us/v2/phone/sms/sessions?from=2024-01-01T00:00:00Z&to=2024-01-31T23:59:59Z&page_size=100"

func TestDateRange_InitialParams(t *testing.T) {
	clock := fixedClock("2024-06-15T12:34:56Z")

	tests := []struct {
		name     string
		ctx      Context
		history  int
		wantFrom string
		wantTo   string
	}{
		{
			name:     "history window",
			history:  6,
			wantFrom: "2023-12-16T00:00:00Z",
			wantTo:   "2024-01-01T00:00:00Z",
		},
		{
			name:     "history window default",
			wantFrom: "2023-12-16T00:00:00Z",
			wantTo:   "2024-01-01T00:00:00Z",
		},
		{
			name:     "one month history",
			history:  1,
			wantFrom: "2024-05-16T00:00:00Z",
			wantTo:   "2024-06-01T00:00:00Z",
		},
		{
			name:     "resume bookmark kept as is",
			ctx:      Context{Start: time.Date(2024, 3, 10, 8, 15, 0, 0, time.UTC)},
			wantFrom: "2024-03-10T08:15:00Z",
			wantTo:   "2024-04-01T00:00:00Z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, s := range []Strategy{
				NewTokenWithDateRange(DateRangeConfig{PageSize: 100, HistoryMonths: tt.history, Clock: clock}),
				NewPageCountWithDateRange(DateRangeConfig{PageSize: 100, HistoryMonths: tt.history, Clock: clock}),
			} {
				params := s.Params(tt.ctx, nil)
				if got := params.Get(ParamFrom); got != tt.wantFrom {
					t.Errorf("%T from = %s, want %s", s, got, tt.wantFrom)
				}
				if got := params.Get(ParamTo); got != tt.wantTo {
					t.Errorf("%T to = %s, want %s", s, got, tt.wantTo)
				}
				if got := params.Get(ParamPageSize); got != "100" {
					t.Errorf("%T page_size = %s, want 100", s, got)
				}
			}
		})
	}
}

func TestDateRange_ParamsFromCursor(t *testing.T) {
	clock := fixedClock("2024-06-15T12:00:00Z")
	s := NewPageCountWithDateRange(DateRangeConfig{PageSize: 300, Clock: clock})

	tests := []struct {
		name   string
		cursor *Cursor
		want   string
	}{
		{
			name: "valid token replays window",
			cursor: &Cursor{
				NextPageToken: "abc123",
				LastFrom:      "2024-01-01T00:00:00Z",
				LastTo:        "2024-01-31T23:59:59Z",
			},
			want: "from=2024-01-01T00%3A00%3A00Z&next_page_token=abc123&page_size=300&to=2024-01-31T23%3A59%3A59Z",
		},
		{
			name: "last page in batch advances month",
			cursor: &Cursor{
				NextPageToken:   "abc123",
				LastFrom:        "2024-01-01T00:00:00Z",
				LastTo:          "2024-01-31T23:59:59Z",
				LastPageInBatch: true,
			},
			want: "from=2024-01-31T23%3A59%3A59Z&page_size=300&to=2024-02-29T23%3A59%3A59Z",
		},
		{
			name:   "no token advances month",
			cursor: &Cursor{LastFrom: "2024-03-01T00:00:00Z", LastTo: "2024-04-01T00:00:00Z"},
			want:   "from=2024-04-01T00%3A00%3A00Z&page_size=300&to=2024-05-01T00%3A00%3A00Z",
		},
		{
			name:   "missing dates fall back to initial window",
			cursor: &Cursor{LastPageInBatch: true},
			want:   "from=2023-12-16T00%3A00%3A00Z&page_size=300&to=2024-01-01T00%3A00%3A00Z",
		},
		{
			name:   "malformed last_to falls back to initial window",
			cursor: &Cursor{LastTo: "not-a-date"},
			want:   "from=2023-12-16T00%3A00%3A00Z&page_size=300&to=2024-01-01T00%3A00%3A00Z",
		},
		{
			name:   "token with malformed window restarts at initial window",
			cursor: &Cursor{NextPageToken: "t", LastFrom: "garbage", LastTo: "2024-13-99"},
			want:   "from=2023-12-16T00%3A00%3A00Z&page_size=300&to=2024-01-01T00%3A00%3A00Z",
		},
		{
			name:   "token with one malformed bound restarts at initial window",
			cursor: &Cursor{NextPageToken: "t", LastFrom: "2024-01-01T00:00:00Z", LastTo: "soon"},
			want:   "from=2023-12-16T00%3A00%3A00Z&page_size=300&to=2024-01-01T00%3A00%3A00Z",
		},
		{
			name:   "token without window is followed",
			cursor: &Cursor{NextPageToken: "t"},
			want:   "next_page_token=t&page_size=300",
		},
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

func TestDateRange_MonthBoundaryLeapYear(t *testing.T) {
	s := NewTokenWithDateRange(DateRangeConfig{Clock: fixedClock("2024-06-15T12:00:00Z")})

	params := s.Params(Context{}, &Cursor{LastTo: "2024-01-31T23:59:59Z", LastPageInBatch: true})

	if got := params.Get(ParamFrom); got != "2024-01-31T23:59:59Z" {
		t.Errorf("from = %s, want 2024-01-31T23:59:59Z", got)
	}
	if got := params.Get(ParamTo); got != "2024-02-29T23:59:59Z" {
		t.Errorf("to = %s, want 2024-02-29T23:59:59Z", got)
	}
}

func TestTokenWithDateRange_Extract(t *testing.T) {
	tests := []struct {
		name      string
		now       string
		url       string
		body      string
		wantToken string
		wantMore  bool
	}{
		{
			name:      "token present",
			now:       "2024-06-15T12:00:00Z",
			url:       smsURL,
			body:      `{"next_page_token":"abc123","sms_sessions":[{"id":"1"},{"id":"2"}]}`,
			wantToken: "abc123",
			wantMore:  true,
		},
		{
			name:     "no token and window in the past advances",
			now:      "2024-06-15T12:00:00Z",
			url:      smsURL,
			body:     `{"sms_sessions":[{"id":"1"}]}`,
			wantMore: true,
		},
		{
			name:     "no token and window reaching the future stops",
			now:      "2024-01-20T00:00:00Z",
			url:      smsURL,
			body:     `{"sms_sessions":[{"id":"1"}]}`,
			wantMore: false,
		},
		{
			name:     "window ending exactly now stops",
			now:      "2024-01-31T23:59:59Z",
			url:      smsURL,
			body:     `{"next_page_token":""}`,
			wantMore: false,
		},
		{
			name:      "page_count is ignored",
			now:       "2024-06-15T12:00:00Z",
			url:       "https://api.zoom.us/v2/phone/sms/sessions",
			body:      `{"next_page_token":"abc123","page_count":5}`,
			wantToken: "abc123",
			wantMore:  true,
		},
		{
			name:     "no window and no token stops",
			now:      "2024-06-15T12:00:00Z",
			url:      "https://api.zoom.us/v2/phone/sms/sessions",
			body:     `{"page_count":5}`,
			wantMore: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewTokenWithDateRange(DateRangeConfig{Clock: fixedClock(tt.now)})
			sig, err := s.Extract([]byte(tt.body), mustURL(t, tt.url))
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if sig.NextPageToken != tt.wantToken {
				t.Errorf("NextPageToken = %q, want %q", sig.NextPageToken, tt.wantToken)
			}
			if sig.HasMore != tt.wantMore {
				t.Errorf("HasMore = %v, want %v", sig.HasMore, tt.wantMore)
			}
			if sig.PageCount != nil {
				t.Errorf("PageCount = %d, want nil", *sig.PageCount)
			}
		})
	}
}

func TestTokenWithDateRange_ExtractWindow(t *testing.T) {
	s := NewTokenWithDateRange(DateRangeConfig{Clock: fixedClock("2024-06-15T12:00:00Z")})

	sig, err := s.Extract([]byte(`{"next_page_token":"abc"}`), mustURL(t, smsURL))
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if sig.LastFrom != "2024-01-01T00:00:00Z" {
		t.Errorf("LastFrom = %s, want 2024-01-01T00:00:00Z", sig.LastFrom)
	}
	if sig.LastTo != "2024-01-31T23:59:59Z" {
		t.Errorf("LastTo = %s, want 2024-01-31T23:59:59Z", sig.LastTo)
	}
}

func TestPageCountWithDateRange_Extract(t *testing.T) {
	const callURL = "https://api.zoom.us/v2/phone/call_history?from=2024-01-01T00:00:00Z&to=2024-02-01T00:00:00Z"

	tests := []struct {
		name      string
		now       string
		url       string
		body      string
		wantCount int
		wantMore  bool
	}{
		{
			name:      "pages reported",
			now:       "2024-06-15T12:00:00Z",
			url:       callURL,
			body:      `{"next_page_token":"def456","page_count":5,"call_logs":[{"id":"1"}]}`,
			wantCount: 5,
			wantMore:  true,
		},
		{
			name:      "misleading token with zero pages and no window",
			now:       "2024-06-15T12:00:00Z",
			url:       "https://api.zoom.us/v2/phone/call_history",
			body:      `{"next_page_token":"misleading_token","page_count":0,"call_logs":[{"id":"1"}]}`,
			wantCount: 0,
			wantMore:  false,
		},
		{
			name:      "misleading token with zero pages in current window",
			now:       "2024-01-15T00:00:00Z",
			url:       callURL,
			body:      `{"next_page_token":"def456","page_count":0}`,
			wantCount: 0,
			wantMore:  false,
		},
		{
			name:      "empty past window advances",
			now:       "2024-06-15T12:00:00Z",
			url:       callURL,
			body:      `{"next_page_token":"def456","page_count":0,"call_logs":[]}`,
			wantCount: 0,
			wantMore:  true,
		},
		{
			name:      "missing page_count counts as zero",
			now:       "2024-01-15T00:00:00Z",
			url:       callURL,
			body:      `{"next_page_token":"def456"}`,
			wantCount: 0,
			wantMore:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewPageCountWithDateRange(DateRangeConfig{PageSize: 300, Clock: fixedClock(tt.now)})
			sig, err := s.Extract([]byte(tt.body), mustURL(t, tt.url))
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if sig.PageCount == nil {
				t.Fatal("PageCount = nil, want value")
			}
			if *sig.PageCount != tt.wantCount {
				t.Errorf("PageCount = %d, want %d", *sig.PageCount, tt.wantCount)
			}
			if sig.HasMore != tt.wantMore {
				t.Errorf("HasMore = %v, want %v", sig.HasMore, tt.wantMore)
			}
		})
	}
}

func TestDateRange_ExtractRejectsUnparseableWindow(t *testing.T) {
	for _, s := range []Strategy{
		NewTokenWithDateRange(DateRangeConfig{}),
		NewPageCountWithDateRange(DateRangeConfig{}),
	} {
		_, err := s.Extract([]byte(`{}`), mustURL(t, "https://api.zoom.us/v2/phone/call_history?from=2024-01-01&to=soon"))
		if err == nil {
			t.Errorf("%T.Extract() expected error for unparseable window", s)
		}
		var parseErr *time.ParseError
		if !errors.As(err, &parseErr) {
			t.Errorf("%T.Extract() error = %v, want wrapped *time.ParseError", s, err)
		}
	}
}

func TestDateRange_MalformedCursorRequestExtracts(t *testing.T) {
	s := NewPageCountWithDateRange(DateRangeConfig{PageSize: 300, Clock: fixedClock("2024-06-15T12:00:00Z")})
	cursor := &Cursor{NextPageToken: "t", LastFrom: "garbage", LastTo: "2024-13-99"}

	params := s.Params(Context{}, cursor)
	requestURL := mustURL(t, "https://api.zoom.us/v2/phone/call_history?"+params.Encode())
	sig, err := s.Extract([]byte(`{"next_page_token":"u","page_count":2}`), requestURL)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if sig.LastFrom != "2023-12-16T00:00:00Z" || sig.LastTo != "2024-01-01T00:00:00Z" {
		t.Errorf("window = [%s, %s), want initial window", sig.LastFrom, sig.LastTo)
	}
}

func TestDateRange_MoreWindows(t *testing.T) {
	s := NewTokenWithDateRange(DateRangeConfig{Clock: fixedClock("2024-06-15T12:00:00Z")})

	tests := []struct {
		to   string
		want bool
	}{
		{"2024-06-01T00:00:00Z", true},
		{"2024-06-15T12:00:00Z", false},
		{"2024-07-01T00:00:00Z", false},
		{"", false},
		{"not-a-date", false},
	}
	for _, tt := range tests {
		if got := s.MoreWindows(tt.to); got != tt.want {
			t.Errorf("MoreWindows(%q) = %v, want %v", tt.to, got, tt.want)
		}
	}
}

func TestDateRange_Defaults(t *testing.T) {
	cfg := NewTokenWithDateRange(DateRangeConfig{}).Config()
	if cfg.PageSize != DefaultPageSize {
		t.Errorf("PageSize = %d, want %d", cfg.PageSize, DefaultPageSize)
	}
	if cfg.HistoryMonths != DefaultHistoryMonths {
		t.Errorf("HistoryMonths = %d, want %d", cfg.HistoryMonths, DefaultHistoryMonths)
	}
	if !NewPageCountWithDateRange(DateRangeConfig{}).Windowed() {
		t.Error("PageCountWithDateRange should be windowed")
	}
}
