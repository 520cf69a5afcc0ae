package pagination

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// ErrPaginationLoop is returned when a response would repeat the previous cursor.
var ErrPaginationLoop = errors.New("pagination loop detected")

// Paginator drives one Strategy through a single stream sync. It is not safe
// for concurrent use and must not be reused across syncs.
type Paginator struct {
	stream   string
	strategy Strategy
	logger   zerolog.Logger

	// subPage is the position of the most recent page inside its date window:
	// 0 before the first page, 1 on the first page of every window.
	subPage int

	lastSeen    *Signal
	lastInBatch bool
	previous    *Cursor
}

// NewPaginator creates a paginator for the named stream.
func NewPaginator(stream string, strategy Strategy, logger zerolog.Logger) *Paginator {
	return &Paginator{
		stream:   stream,
		strategy: strategy,
		logger:   logger.With().Str("stream", stream).Logger(),
	}
}

// Strategy returns the wrapped strategy.
func (p *Paginator) Strategy() Strategy { return p.strategy }

// SubPage returns the position of the most recent page inside its window.
func (p *Paginator) SubPage() int { return p.subPage }

// LastSeen returns the most recently extracted signal, or nil before the first page.
func (p *Paginator) LastSeen() *Signal { return p.lastSeen }

// Advance records that another page has been received. Call it once per page,
// after the page's records are consumed and before Next.
func (p *Paginator) Advance() {
	if !p.strategy.Windowed() {
		return
	}
	if p.lastInBatch {
		p.subPage = 1
		return
	}
	p.subPage++
}

// Next interprets page and returns the cursor for the following request, or
// nil when the stream is finished.
func (p *Paginator) Next(page Page) (*Cursor, error) {
	if page.URL != nil {
		p.logger.Debug().Str("url", page.URL.String()).Msg("Reading pagination signal")
	}

	signal, err := p.strategy.Extract(page.Body, page.URL)
	if err != nil {
		return nil, fmt.Errorf("%s: extract pagination signal: %w", p.stream, err)
	}
	p.lastSeen = &signal
	p.lastInBatch = p.strategy.Windowed() && p.windowExhausted(signal)
	pagesProcessed.WithLabelValues(p.stream).Inc()

	if !signal.HasMore || !p.HasMore() {
		p.logger.Debug().
			Int("sub_page", p.subPage).
			Str("last_to", signal.LastTo).
			Msg("Pagination finished")
		return nil, nil
	}

	next := &Cursor{
		NextPageToken:   signal.NextPageToken,
		LastFrom:        signal.LastFrom,
		LastTo:          signal.LastTo,
		LastPageInBatch: p.lastInBatch,
		PageCount:       signal.PageCount,
	}
	if p.previous.Equal(next) {
		return nil, fmt.Errorf("%s: %w: cursor %+v repeated", p.stream, ErrPaginationLoop, *next)
	}
	p.previous = next

	if next.LastPageInBatch {
		windowsAdvanced.WithLabelValues(p.stream).Inc()
		p.logger.Info().
			Str("from", next.LastFrom).
			Str("to", next.LastTo).
			Int("pages", p.subPage).
			Msg("Date window complete, advancing one month")
	}

	p.logger.Debug().
		Str("next_page_token", next.NextPageToken).
		Bool("last_page_in_batch", next.LastPageInBatch).
		Int("sub_page", p.subPage).
		Msg("Returning pagination cursor")

	return next, nil
}

// HasMore reports whether another request is needed, based on the most
// recently seen page.
func (p *Paginator) HasMore() bool {
	if !p.strategy.Windowed() {
		return p.lastSeen != nil && p.lastSeen.NextPageToken != ""
	}
	if p.lastSeen == nil || !p.lastInBatch {
		return true
	}
	// The window is used up: continue only if another one follows it.
	return p.strategy.MoreWindows(p.lastSeen.LastTo)
}

// windowExhausted decides whether the page just read was the last one of its
// window. With a page count, reaching it ends the window even while a token is
// still issued; ">=" rather than "==" keeps a page count that shrinks
// mid-window from paging forever. A missing token always ends the window,
// since Params moves on to the next month without one.
func (p *Paginator) windowExhausted(signal Signal) bool {
	if signal.PageCount != nil && p.subPage >= *signal.PageCount {
		return true
	}
	return signal.NextPageToken == ""
}
