package pagination

import (
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// DefaultHistoryMonths is how far back a first sync reaches when no start date
// or bookmark exists.
const DefaultHistoryMonths = 6

// DateRangeConfig configures the windowed strategies.
type DateRangeConfig struct {
	// PageSize is sent as page_size on every request.
	PageSize int

	// HistoryMonths bounds a first sync: the initial window opens this many
	// months before today.
	HistoryMonths int

	// Clock supplies "now". Defaults to time.Now.
	Clock Clock
}

func (c DateRangeConfig) withDefaults() DateRangeConfig {
	if c.PageSize <= 0 {
		c.PageSize = DefaultPageSize
	}
	if c.HistoryMonths <= 0 {
		c.HistoryMonths = DefaultHistoryMonths
	}
	return c
}

// dateRange holds the request-building and window logic shared by both
// windowed strategies.
type dateRange struct {
	cfg DateRangeConfig
}

func (d dateRange) params(ctx Context, cursor *Cursor) url.Values {
	params := url.Values{}
	params.Set(ParamPageSize, strconv.Itoa(d.cfg.PageSize))

	if cursor.hasValidToken() {
		switch {
		case cursor.hasDateRange():
			params.Set(ParamNextPageToken, cursor.NextPageToken)
			params.Set(ParamFrom, cursor.LastFrom)
			params.Set(ParamTo, cursor.LastTo)
			return params
		case cursor.LastFrom == "" && cursor.LastTo == "":
			params.Set(ParamNextPageToken, cursor.NextPageToken)
			return params
		}
		// The token belongs to a window that cannot be read back, so both
		// are dropped and paging restarts at the initial window.
		cursor = nil
	}

	w, ok := d.followingWindow(cursor)
	if !ok {
		w = InitialWindow(d.initialStart(ctx))
	}
	params.Set(ParamFrom, FormatTimestamp(w.From))
	params.Set(ParamTo, FormatTimestamp(w.To))
	return params
}

// followingWindow derives the window after the one recorded in cursor. A cursor
// without a usable last_to has no window yet; the caller falls back to the
// initial window instead of failing.
func (d dateRange) followingWindow(cursor *Cursor) (Window, bool) {
	if cursor == nil || cursor.LastTo == "" {
		return Window{}, false
	}
	to, err := ParseTimestamp(cursor.LastTo)
	if err != nil {
		return Window{}, false
	}
	return Window{To: to}.Next(), true
}

// initialStart picks the first window's start: the resume point when there is
// one, otherwise midnight of (today + 1 day - HistoryMonths). The extra day
// keeps the floored start inside the API's history limit.
func (d dateRange) initialStart(ctx Context) time.Time {
	if !ctx.Start.IsZero() {
		return ctx.Start.UTC()
	}
	now := d.cfg.Clock.now()
	return startOfDay(AddMonths(now.AddDate(0, 0, 1), -d.cfg.HistoryMonths))
}

// requestedWindow reads from/to back out of the URL that was requested.
// Missing values are returned empty; present but unparseable values are an
// error, since guessing could page the wrong range or never stop.
func (d dateRange) requestedWindow(requestURL *url.URL) (from, to string, err error) {
	if requestURL == nil {
		return "", "", nil
	}
	query := requestURL.Query()
	from, to = query.Get(ParamFrom), query.Get(ParamTo)
	if from != "" {
		if _, err := ParseTimestamp(from); err != nil {
			return "", "", fmt.Errorf("requested window: %w", err)
		}
	}
	if to != "" {
		if _, err := ParseTimestamp(to); err != nil {
			return "", "", fmt.Errorf("requested window: %w", err)
		}
	}
	return from, to, nil
}

// MoreWindows reports whether the window ending at to lies entirely in the
// past, i.e. there is at least one more month to request.
func (d dateRange) MoreWindows(to string) bool {
	if to == "" {
		return false
	}
	t, err := ParseTimestamp(to)
	if err != nil {
		return false
	}
	return t.Before(d.cfg.Clock.now())
}

// TokenWithDateRange pages through monthly windows, following next_page_token
// inside each one. A missing token ends the window, not the stream.
type TokenWithDateRange struct {
	dateRange
}

// NewTokenWithDateRange creates a token-driven windowed strategy.
func NewTokenWithDateRange(cfg DateRangeConfig) *TokenWithDateRange {
	return &TokenWithDateRange{dateRange{cfg: cfg.withDefaults()}}
}

// Config returns the effective configuration.
func (s *TokenWithDateRange) Config() DateRangeConfig { return s.cfg }

// Params implements Strategy.
func (s *TokenWithDateRange) Params(ctx Context, cursor *Cursor) url.Values {
	return s.params(ctx, cursor)
}

// Extract implements Strategy. Any page_count in the body is ignored.
func (s *TokenWithDateRange) Extract(body []byte, requestURL *url.URL) (Signal, error) {
	from, to, err := s.requestedWindow(requestURL)
	if err != nil {
		return Signal{}, err
	}
	token := nextPageToken(body)
	hasMore := token != ""
	if !hasMore {
		hasMore = s.MoreWindows(to)
	}
	return Signal{NextPageToken: token, LastFrom: from, LastTo: to, HasMore: hasMore}, nil
}

// Windowed implements Strategy.
func (s *TokenWithDateRange) Windowed() bool { return true }

// PageCountWithDateRange pages through monthly windows using the reported
// page_count to find the end of each window. The token is still followed
// inside a window but never trusted to signal the end: this endpoint returns a
// non-empty token even on its final page.
type PageCountWithDateRange struct {
	dateRange
}

// NewPageCountWithDateRange creates a page-count-driven windowed strategy.
func NewPageCountWithDateRange(cfg DateRangeConfig) *PageCountWithDateRange {
	return &PageCountWithDateRange{dateRange{cfg: cfg.withDefaults()}}
}

// Config returns the effective configuration.
func (s *PageCountWithDateRange) Config() DateRangeConfig { return s.cfg }

// Params implements Strategy.
func (s *PageCountWithDateRange) Params(ctx Context, cursor *Cursor) url.Values {
	return s.params(ctx, cursor)
}

// Extract implements Strategy.
func (s *PageCountWithDateRange) Extract(body []byte, requestURL *url.URL) (Signal, error) {
	from, to, err := s.requestedWindow(requestURL)
	if err != nil {
		return Signal{}, err
	}
	// A missing page_count reports no pages, so the window is over.
	count := pageCount(body)
	if count == nil {
		count = new(int)
	}
	hasMore := *count > 0
	if !hasMore {
		hasMore = s.MoreWindows(to)
	}
	return Signal{
		NextPageToken: nextPageToken(body),
		LastFrom:      from,
		LastTo:        to,
		PageCount:     count,
		HasMore:       hasMore,
	}, nil
}

// Windowed implements Strategy.
func (s *PageCountWithDateRange) Windowed() bool { return true }
