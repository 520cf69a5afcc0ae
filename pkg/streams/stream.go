// Package streams describes the Zoom Phone endpoints the tap extracts: where
// each one lives, how its records are unwrapped from the response body, how it
// paginates, and how parent records fan out into detail requests.
package streams

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/Sternrassler/zoomphone-tap/pkg/pagination"
)

var (
	// ErrUnknownStream is returned when a stream name is not registered.
	ErrUnknownStream = errors.New("unknown stream")

	// ErrMissingPartition is returned when a path placeholder has no value.
	ErrMissingPartition = errors.New("missing partition value")
)

// Paging selects the pagination strategy of a stream.
type Paging int

const (
	// PagingToken follows next_page_token only.
	PagingToken Paging = iota

	// PagingTokenWindow follows next_page_token inside monthly date windows.
	PagingTokenWindow

	// PagingPageCountWindow trusts page_count inside monthly date windows.
	PagingPageCountWindow

	// PagingSingle issues exactly one request.
	PagingSingle
)

// String returns the paging mode name.
func (p Paging) String() string {
	switch p {
	case PagingToken:
		return "token"
	case PagingTokenWindow:
		return "token_date_range"
	case PagingPageCountWindow:
		return "page_count_date_range"
	case PagingSingle:
		return "single_page"
	default:
		return fmt.Sprintf("paging(%d)", int(p))
	}
}

// Descriptor is the static definition of one stream.
type Descriptor struct {
	// Name is the stream name used for selection, state and output.
	Name string

	// Path is appended to the API base URL. Placeholders like {id} are filled
	// from the partition of a child request.
	Path string

	// RecordsPath is a gjson path to the records array, or "@this" when the
	// whole body is a single record.
	RecordsPath string

	PrimaryKeys []string

	// ReplicationKey names the record field used as bookmark. Empty for full
	// table streams.
	ReplicationKey string

	// Parent is the name of the stream whose records drive this one.
	Parent string

	Paging        Paging
	PageSize      int
	HistoryMonths int

	// ChildContext derives the partition handed to child streams. A false
	// return skips the record.
	ChildContext func(Record) (map[string]string, bool)

	// PostProcess cleans a record before it is emitted.
	PostProcess func(Record) Record

	// Cacheable marks detail responses that never change once written.
	Cacheable bool

	schemaFile string
}

// Incremental reports whether the stream keeps a bookmark.
func (d Descriptor) Incremental() bool {
	return d.ReplicationKey != ""
}

// IsChild reports whether the stream is driven by a parent stream.
func (d Descriptor) IsChild() bool {
	return d.Parent != ""
}

// NewStrategy returns a fresh pagination strategy for one sync of the stream.
func (d Descriptor) NewStrategy(clock pagination.Clock) pagination.Strategy {
	cfg := pagination.DateRangeConfig{
		PageSize:      d.PageSize,
		HistoryMonths: d.HistoryMonths,
		Clock:         clock,
	}
	switch d.Paging {
	case PagingTokenWindow:
		return pagination.NewTokenWithDateRange(cfg)
	case PagingPageCountWindow:
		return pagination.NewPageCountWithDateRange(cfg)
	case PagingSingle:
		return pagination.NewSinglePage()
	default:
		return pagination.NewTokenOnly(d.PageSize)
	}
}

// URLPath fills the path placeholders from partition. Values are escaped as
// single path segments.
func (d Descriptor) URLPath(partition map[string]string) (string, error) {
	path := d.Path
	for key, value := range partition {
		placeholder := "{" + key + "}"
		if !strings.Contains(path, placeholder) {
			continue
		}
		if value == "" {
			return "", fmt.Errorf("%s: %w: %s", d.Name, ErrMissingPartition, key)
		}
		path = strings.ReplaceAll(path, placeholder, url.PathEscape(value))
	}
	if start := strings.Index(path, "{"); start >= 0 {
		end := strings.Index(path[start:], "}")
		key := path[start+1:]
		if end > 0 {
			key = path[start+1 : start+end]
		}
		return "", fmt.Errorf("%s: %w: %s", d.Name, ErrMissingPartition, key)
	}
	return path, nil
}

// Validate checks a set of descriptors for consistency.
func Validate(descriptors []Descriptor) error {
	names := make(map[string]bool, len(descriptors))
	for _, d := range descriptors {
		if d.Name == "" {
			return errors.New("stream without name")
		}
		if names[d.Name] {
			return fmt.Errorf("duplicate stream %q", d.Name)
		}
		names[d.Name] = true
	}
	for _, d := range descriptors {
		if d.Parent != "" {
			if !names[d.Parent] {
				return fmt.Errorf("%s: parent %w: %q", d.Name, ErrUnknownStream, d.Parent)
			}
			if d.Paging != PagingSingle {
				return fmt.Errorf("%s: child streams must use single page requests", d.Name)
			}
		}
		if strings.Contains(d.Path, "{") && d.Parent == "" {
			return fmt.Errorf("%s: path %q needs a parent to supply its partition", d.Name, d.Path)
		}
		if d.Incremental() && d.Paging != PagingTokenWindow && d.Paging != PagingPageCountWindow {
			return fmt.Errorf("%s: replication key %q requires a date window", d.Name, d.ReplicationKey)
		}
	}
	return nil
}
