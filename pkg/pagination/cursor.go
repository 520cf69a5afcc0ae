package pagination

import (
	"net/url"
	"time"
)

// Query parameter names understood by the Zoom Phone API.
const (
	ParamPageSize      = "page_size"
	ParamNextPageToken = "next_page_token"
	ParamFrom          = "from"
	ParamTo            = "to"
)

// Clock returns the current time. Strategies and paginators take one so tests
// can pin "now".
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c().UTC()
}

// Context carries the per-stream inputs a strategy may need to build a request.
type Context struct {
	// Partition identifies a child request, e.g. {"id": "<call id>"}.
	Partition map[string]string

	// Start is the resume point for incremental streams (bookmark or configured
	// start date). Zero means the stream has never been synced.
	Start time.Time
}

// Cursor is the opaque state handed back after each page and replayed into the
// next request. A nil Cursor means "start of stream".
type Cursor struct {
	// NextPageToken is the continuation token issued by the API.
	NextPageToken string `json:"next_page_token,omitempty"`

	// LastFrom and LastTo are the date window of the request that produced
	// this cursor.
	LastFrom string `json:"last_from,omitempty"`
	LastTo   string `json:"last_to,omitempty"`

	// LastPageInBatch is true once the current date window has been paged through.
	LastPageInBatch bool `json:"last_page_in_batch,omitempty"`

	// PageCount is the number of pages the API reported for the current window.
	PageCount *int `json:"page_count,omitempty"`
}

// IsZero reports whether the cursor carries no state at all.
func (c *Cursor) IsZero() bool {
	return c == nil || (c.NextPageToken == "" && c.LastFrom == "" && c.LastTo == "" &&
		!c.LastPageInBatch && c.PageCount == nil)
}

// Equal reports whether two cursors would produce the same next request.
func (c *Cursor) Equal(other *Cursor) bool {
	if c == nil || other == nil {
		return c == other
	}
	if c.NextPageToken != other.NextPageToken || c.LastFrom != other.LastFrom ||
		c.LastTo != other.LastTo || c.LastPageInBatch != other.LastPageInBatch {
		return false
	}
	if c.PageCount == nil || other.PageCount == nil {
		return c.PageCount == other.PageCount
	}
	return *c.PageCount == *other.PageCount
}

// hasValidToken reports whether the next request should stay in the current
// window and follow the continuation token.
func (c *Cursor) hasValidToken() bool {
	return c != nil && c.NextPageToken != "" && !c.LastPageInBatch
}

// hasDateRange reports whether both window bounds are present and parse.
func (c *Cursor) hasDateRange() bool {
	if c == nil || c.LastFrom == "" || c.LastTo == "" {
		return false
	}
	if _, err := ParseTimestamp(c.LastFrom); err != nil {
		return false
	}
	_, err := ParseTimestamp(c.LastTo)
	return err == nil
}

// Signal is what a strategy reads out of one response.
type Signal struct {
	NextPageToken string
	LastFrom      string
	LastTo        string

	// PageCount is nil unless the strategy trusts the reported page count.
	PageCount *int

	// HasMore is the strategy's own verdict on whether another request is needed.
	HasMore bool
}

// Page is a response as seen by the paginator: the URL that was actually
// requested and the raw body.
type Page struct {
	URL  *url.URL
	Body []byte
}
