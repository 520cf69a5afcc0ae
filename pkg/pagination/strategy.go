package pagination

import (
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"
)

// DefaultPageSize is the page size used when a strategy is configured without one.
const DefaultPageSize = 100

// Strategy builds request parameters and interprets responses for one class of
// endpoint. Implementations must be free of side effects so that a retried
// request can rebuild exactly the same parameters.
type Strategy interface {
	// Params returns the query parameters for the request that follows cursor.
	// A nil cursor asks for the first page of the stream.
	Params(ctx Context, cursor *Cursor) url.Values

	// Extract reads the pagination signal out of a response body. requestURL is
	// the URL that produced the body; windowed strategies recover from/to from it.
	Extract(body []byte, requestURL *url.URL) (Signal, error)

	// Windowed reports whether the strategy pages through monthly date windows,
	// which tells the paginator to keep per-window page bookkeeping.
	Windowed() bool

	// MoreWindows reports whether another date window follows the one ending
	// at lastTo. It is only consulted once a window has been paged through.
	MoreWindows(lastTo string) bool
}

// TokenOnly follows next_page_token with no date windowing.
type TokenOnly struct {
	pageSize int
}

// NewTokenOnly creates a token-only strategy.
func NewTokenOnly(pageSize int) *TokenOnly {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &TokenOnly{pageSize: pageSize}
}

// PageSize returns the configured page size.
func (s *TokenOnly) PageSize() int { return s.pageSize }

// Params implements Strategy.
func (s *TokenOnly) Params(_ Context, cursor *Cursor) url.Values {
	params := url.Values{}
	params.Set(ParamPageSize, strconv.Itoa(s.pageSize))
	if cursor != nil && cursor.NextPageToken != "" {
		params.Set(ParamNextPageToken, cursor.NextPageToken)
	}
	return params
}

// Extract implements Strategy.
func (s *TokenOnly) Extract(body []byte, _ *url.URL) (Signal, error) {
	token := nextPageToken(body)
	return Signal{NextPageToken: token, HasMore: token != ""}, nil
}

// Windowed implements Strategy.
func (s *TokenOnly) Windowed() bool { return false }

// MoreWindows implements Strategy.
func (s *TokenOnly) MoreWindows(string) bool { return false }

// SinglePage is for endpoints that answer with exactly one object.
type SinglePage struct{}

// NewSinglePage creates a single-page strategy.
func NewSinglePage() SinglePage { return SinglePage{} }

// Params implements Strategy. It always returns an empty set.
func (SinglePage) Params(Context, *Cursor) url.Values { return url.Values{} }

// Extract implements Strategy. It never signals a continuation.
func (SinglePage) Extract([]byte, *url.URL) (Signal, error) { return Signal{}, nil }

// Windowed implements Strategy.
func (SinglePage) Windowed() bool { return false }

// MoreWindows implements Strategy.
func (SinglePage) MoreWindows(string) bool { return false }

// nextPageToken returns the body's next_page_token, or "" when the field is
// missing, null or not a string.
func nextPageToken(body []byte) string {
	res := gjson.GetBytes(body, ParamNextPageToken)
	if res.Type != gjson.String {
		return ""
	}
	return res.Str
}

// pageCount returns the body's page_count, or nil when it is missing or not a number.
func pageCount(body []byte) *int {
	res := gjson.GetBytes(body, "page_count")
	if res.Type != gjson.Number {
		return nil
	}
	n := int(res.Int())
	return &n
}
