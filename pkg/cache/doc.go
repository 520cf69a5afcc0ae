// Package cache stores API response bodies in Redis.
//
// The tap uses it for call detail responses: a call's path never changes once
// the call has ended, so a re-sync over an overlapping date window can skip
// the detail request entirely.
//
//	manager := cache.NewManager(redisClient, cache.WithTTL(24*time.Hour))
//
//	key := cache.CacheKey{
//		Endpoint:   "/call_history/{id}",
//		PathParams: map[string]string{"id": callID},
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// fetch, then
//		_ = manager.Set(ctx, key, cache.NewEntry(body, http.StatusOK, manager.TTL()))
//	}
//
// Metrics: zoomphone_cache_hits_total, zoomphone_cache_misses_total,
// zoomphone_cache_stored_bytes_total and zoomphone_cache_errors_total{operation}.
package cache
