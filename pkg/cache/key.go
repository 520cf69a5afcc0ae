package cache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// KeyPrefix namespaces every cache key.
const KeyPrefix = "zoomphone"

// CacheKey identifies a cached response.
type CacheKey struct {
	// Endpoint is the path template, e.g. "/call_history/{id}".
	Endpoint string

	// PathParams fill the template, e.g. {"id": "abc"}.
	PathParams map[string]string

	// QueryParams are the query parameters of the request.
	QueryParams url.Values

	// AccountID separates caches of different Zoom accounts sharing one Redis.
	AccountID string
}

// String generates a deterministic cache key string.
// Format: zoomphone:endpoint:param=val:query=val:account=id
//
// Example:
//
//	zoomphone:call_history/{id}:id=abc123:account=xyz
func (k CacheKey) String() string {
	parts := []string{KeyPrefix}

	endpoint := strings.Trim(k.Endpoint, "/")
	if endpoint != "" {
		parts = append(parts, endpoint)
	}

	if len(k.PathParams) > 0 {
		pathKeys := make([]string, 0, len(k.PathParams))
		for key := range k.PathParams {
			pathKeys = append(pathKeys, key)
		}
		sort.Strings(pathKeys)
		for _, key := range pathKeys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.PathParams[key]))
		}
	}

	if len(k.QueryParams) > 0 {
		queryKeys := make([]string, 0, len(k.QueryParams))
		for key := range k.QueryParams {
			queryKeys = append(queryKeys, key)
		}
		sort.Strings(queryKeys)
		for _, key := range queryKeys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.QueryParams.Get(key)))
		}
	}

	if k.AccountID != "" {
		parts = append(parts, "account="+k.AccountID)
	}

	return strings.Join(parts, ":")
}
