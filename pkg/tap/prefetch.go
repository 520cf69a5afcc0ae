package tap

import (
	"context"

	"github.com/Sternrassler/zoomphone-tap/pkg/client"
	"github.com/Sternrassler/zoomphone-tap/pkg/pagination"
	"github.com/Sternrassler/zoomphone-tap/pkg/streams"
)

type prefetched struct {
	resp *client.Response
	err  error
}

// prefetch fetches the single-page child requests of one parent page on a
// worker pool. The responses are consumed in record order by get, so output
// order does not depend on the concurrency.
func (r *run) prefetch(ctx context.Context, parent streams.Descriptor, records []streams.Record, children []streams.Descriptor) {
	var reqs []client.Request
	seen := make(map[string]bool)
	for _, rec := range records {
		partition, ok := parent.ChildContext(rec)
		if !ok {
			continue
		}
		// Children are always single page requests (streams.Validate).
		for _, child := range children {
			path, err := child.URLPath(partition)
			if err != nil || seen[path] {
				continue
			}
			seen[path] = true
			reqs = append(reqs, r.request(child, path, partition, nil))
		}
	}
	if len(reqs) == 0 {
		return
	}

	cfg := pagination.BatchConfig{MaxConcurrency: r.cfg.DetailConcurrency}
	results := pagination.FetchBatch(ctx, cfg, r.logger, len(reqs), func(ctx context.Context, i int) (*client.Response, error) {
		return r.api.Get(ctx, reqs[i])
	})

	r.pending = make(map[string]prefetched, len(results))
	for _, res := range results {
		r.pending[reqs[res.Index].Path] = prefetched{resp: res.Value, err: res.Err}
	}
}

// get returns a prefetched response for req, or performs the request.
func (r *run) get(ctx context.Context, req client.Request) (*client.Response, error) {
	if p, ok := r.pending[req.Path]; ok {
		delete(r.pending, req.Path)
		return p.resp, p.err
	}
	return r.api.Get(ctx, req)
}
