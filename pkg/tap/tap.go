// Package tap runs a sync: it pages through every selected stream, hands the
// records to a sink, fans out to child streams and keeps bookmarks.
package tap

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/Sternrassler/zoomphone-tap/pkg/cache"
	"github.com/Sternrassler/zoomphone-tap/pkg/client"
	"github.com/Sternrassler/zoomphone-tap/pkg/pagination"
	"github.com/Sternrassler/zoomphone-tap/pkg/sink"
	"github.com/Sternrassler/zoomphone-tap/pkg/state"
	"github.com/Sternrassler/zoomphone-tap/pkg/streams"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Fetcher performs API requests. *client.Client implements it.
type Fetcher interface {
	Get(ctx context.Context, req client.Request) (*client.Response, error)
}

// Config controls one sync.
type Config struct {
	// Streams to sync, parents before children as returned by streams.Select.
	// Nil selects the whole catalog.
	Streams []streams.Descriptor

	// StartDate is where incremental streams begin without a bookmark. Zero
	// falls back to each stream's history window.
	StartDate time.Time

	// AccountID scopes cached responses.
	AccountID string

	// Clock pins "now" for the date windows.
	Clock pagination.Clock

	// DetailConcurrency is how many single-page child requests of one parent
	// page run at once. Zero or one fetches them one at a time.
	DetailConcurrency int
}

// Summary describes a finished run.
type Summary struct {
	RunID    string
	Records  map[string]int
	Started  time.Time
	Finished time.Time
}

// Tap drives a sync run.
type Tap struct {
	api    Fetcher
	out    sink.Sink
	store  state.Store
	cfg    Config
	logger zerolog.Logger
}

// New validates the stream selection and returns a Tap.
func New(cfg Config, api Fetcher, out sink.Sink, store state.Store, logger zerolog.Logger) (*Tap, error) {
	if api == nil || out == nil || store == nil {
		return nil, errors.New("tap: fetcher, sink and state store are required")
	}
	if cfg.Streams == nil {
		cfg.Streams = streams.All()
	}
	if err := streams.Validate(cfg.Streams); err != nil {
		return nil, fmt.Errorf("invalid stream selection: %w", err)
	}
	return &Tap{
		api:    api,
		out:    out,
		store:  store,
		cfg:    cfg,
		logger: logger.With().Str("component", "tap").Logger(),
	}, nil
}

// run holds the state of one Run call.
type run struct {
	*Tap
	id      string
	logger  zerolog.Logger
	state   *state.State
	records map[string]int

	// progress holds the newest replication value seen per stream. Records
	// inside a date window come in no particular order, so it only becomes
	// the bookmark once the window has been read to the end.
	progress *state.State

	// pending holds child responses fetched ahead, keyed by request path.
	pending map[string]prefetched
}

// Run syncs every selected stream in catalog order. The first stream error
// aborts the run; bookmarks of the date windows completed until then are
// still saved.
func (t *Tap) Run(ctx context.Context) (Summary, error) {
	r := &run{
		Tap:      t,
		id:       uuid.NewString(),
		records:  make(map[string]int),
		progress: state.New(),
	}
	r.logger = t.logger.With().Str("run_id", r.id).Logger()
	summary := Summary{RunID: r.id, Records: r.records, Started: t.now()}

	st, err := t.store.Load(ctx)
	if err != nil {
		return summary, fmt.Errorf("load state: %w", err)
	}
	r.state = st

	for _, d := range t.cfg.Streams {
		if err := r.writeSchema(ctx, d); err != nil {
			return summary, err
		}
	}

	r.logger.Info().Int("streams", len(t.cfg.Streams)).Msg("Sync started")

	var runErr error
	for _, d := range t.cfg.Streams {
		if d.IsChild() {
			continue
		}
		if err := r.syncStream(ctx, d, nil); err != nil {
			streamErrorsTotal.WithLabelValues(d.Name).Inc()
			r.logger.Error().Err(err).Str("stream", d.Name).Msg("Stream failed")
			runErr = fmt.Errorf("sync %s: %w", d.Name, err)
			break
		}
	}

	if err := r.checkpoint(context.WithoutCancel(ctx)); err != nil {
		runErr = errors.Join(runErr, err)
	}

	summary.Finished = t.now()
	r.logger.Info().
		Interface("records", r.records).
		Dur("duration", summary.Finished.Sub(summary.Started)).
		Bool("ok", runErr == nil).
		Msg("Sync finished")
	return summary, runErr
}

func (r *run) writeSchema(ctx context.Context, d streams.Descriptor) error {
	schema, err := d.Schema()
	if err != nil {
		return err
	}
	sc := sink.Schema{Stream: d.Name, Schema: schema, KeyProperties: d.PrimaryKeys}
	if d.Incremental() {
		sc.BookmarkProperties = []string{d.ReplicationKey}
	}
	if err := r.out.WriteSchema(ctx, sc); err != nil {
		return fmt.Errorf("write schema: %w", err)
	}
	return nil
}

// syncStream pages through one stream, or one partition of a child stream.
func (r *run) syncStream(ctx context.Context, d streams.Descriptor, partition map[string]string) error {
	path, err := d.URLPath(partition)
	if err != nil {
		return err
	}

	logger := r.logger.With().Str("stream", d.Name).Logger()
	if !d.IsChild() {
		logger.Info().Str("paging", d.Paging.String()).Msg("Stream sync started")
	}
	start := r.now()
	defer func() {
		streamDuration.WithLabelValues(d.Name).Observe(r.now().Sub(start).Seconds())
	}()

	strategy := d.NewStrategy(r.cfg.Clock)
	pager := pagination.NewPaginator(d.Name, strategy, logger)
	pctx := pagination.Context{Partition: partition}
	if d.Incremental() {
		pctx.Start = r.state.StartingTimestamp(d.Name, r.cfg.StartDate)
	}
	children := r.children(d.Name)

	var cursor *pagination.Cursor
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		resp, err := r.get(ctx, r.request(d, path, partition, strategy.Params(pctx, cursor)))
		if err != nil {
			if d.IsChild() && client.IsNotFound(err) {
				logger.Warn().Interface("partition", partition).Msg("Child record not found, skipping")
				return nil
			}
			return err
		}

		records, err := streams.ExtractRecords(resp.Body, d.RecordsPath)
		if err != nil {
			return fmt.Errorf("%s: %w", d.Name, err)
		}
		if err := r.emit(ctx, d, records, children); err != nil {
			return err
		}

		pager.Advance()
		next, err := pager.Next(pagination.Page{URL: resp.URL, Body: resp.Body})
		if err != nil {
			return err
		}
		if d.Incremental() && (next == nil || next.LastPageInBatch) {
			if r.state.Promote(d.Name, r.progress) {
				logger.Debug().Str("to", pager.LastSeen().LastTo).Msg("Bookmark advanced")
			}
			if err := r.checkpoint(ctx); err != nil {
				return err
			}
		}
		if next == nil {
			break
		}
		cursor = next
	}

	if !d.IsChild() {
		logger.Info().
			Int("records", r.records[d.Name]).
			Dur("duration", r.now().Sub(start)).
			Msg("Stream sync finished")
	}
	return nil
}

func (r *run) request(d streams.Descriptor, path string, partition map[string]string, params url.Values) client.Request {
	req := client.Request{Endpoint: d.Path, Path: path, Params: params}
	if d.Cacheable {
		req.CacheKey = &cache.CacheKey{Endpoint: d.Path, PathParams: partition, AccountID: r.cfg.AccountID}
	}
	return req
}

func (r *run) emit(ctx context.Context, d streams.Descriptor, records []streams.Record, children []streams.Descriptor) error {
	if d.PostProcess != nil {
		for i, rec := range records {
			records[i] = d.PostProcess(rec)
		}
	}
	if len(children) > 0 && d.ChildContext != nil && r.cfg.DetailConcurrency > 1 {
		r.prefetch(ctx, d, records, children)
		defer func() { r.pending = nil }()
	}

	extractedAt := r.now()
	for _, rec := range records {
		if err := r.out.WriteRecord(ctx, d.Name, rec, extractedAt); err != nil {
			return err
		}
		r.records[d.Name]++
		recordsTotal.WithLabelValues(d.Name).Inc()

		if d.Incremental() {
			r.progress.Advance(d.Name, d.ReplicationKey, rec.String(d.ReplicationKey))
		}

		if d.ChildContext == nil {
			continue
		}
		partition, ok := d.ChildContext(rec)
		if !ok {
			continue
		}
		for _, child := range children {
			if err := r.syncStream(ctx, child, partition); err != nil {
				return fmt.Errorf("%s %v: %w", child.Name, partition, err)
			}
		}
	}
	return nil
}

// checkpoint persists the bookmarks and announces them to the sink.
func (r *run) checkpoint(ctx context.Context) error {
	if err := r.store.Save(ctx, r.state); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	if err := r.out.WriteState(ctx, r.state); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

func (r *run) children(parent string) []streams.Descriptor {
	var out []streams.Descriptor
	for _, d := range r.cfg.Streams {
		if d.Parent == parent {
			out = append(out, d)
		}
	}
	return out
}

func (t *Tap) now() time.Time {
	if t.cfg.Clock != nil {
		return t.cfg.Clock().UTC()
	}
	return time.Now().UTC()
}
