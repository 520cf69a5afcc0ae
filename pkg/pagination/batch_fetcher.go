package pagination

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// BatchConfig holds batch fetcher configuration.
type BatchConfig struct {
	// MaxConcurrency is the number of workers. Values below one mean one.
	MaxConcurrency int

	// Timeout bounds each fetch. Zero leaves only the caller's deadline.
	Timeout time.Duration
}

// DefaultBatchConfig returns four workers and no per-item timeout.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{MaxConcurrency: 4}
}

// BatchResult is the outcome of fetching item Index.
type BatchResult[T any] struct {
	Index int
	Value T
	Err   error
}

// FetchBatch calls fetch for the items 0..n-1 on a worker pool and returns
// the results in item order. A failed item does not stop the others; items
// not started before ctx ends carry ctx.Err().
func FetchBatch[T any](ctx context.Context, cfg BatchConfig, logger zerolog.Logger, n int, fetch func(ctx context.Context, i int) (T, error)) []BatchResult[T] {
	results := make([]BatchResult[T], n)
	if n == 0 {
		return results
	}

	workers := cfg.MaxConcurrency
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}

	start := time.Now()
	queue := make(chan int, n)
	for i := 0; i < n; i++ {
		queue <- i
	}
	close(queue)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range queue {
				results[i] = fetchOne(ctx, cfg.Timeout, i, fetch)
			}
		}()
	}
	wg.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	logger.Debug().
		Int("items", n).
		Int("workers", workers).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("Batch fetch complete")
	return results
}

func fetchOne[T any](ctx context.Context, timeout time.Duration, i int, fetch func(ctx context.Context, i int) (T, error)) BatchResult[T] {
	result := BatchResult[T]{Index: i}
	if err := ctx.Err(); err != nil {
		result.Err = err
		batchFetchesTotal.WithLabelValues("canceled").Inc()
		return result
	}

	itemCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		itemCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result.Value, result.Err = fetch(itemCtx, i)
	if result.Err != nil {
		batchFetchesTotal.WithLabelValues("error").Inc()
	} else {
		batchFetchesTotal.WithLabelValues("ok").Inc()
	}
	return result
}
