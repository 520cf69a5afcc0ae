// Package ratelimit tracks the Zoom API rate limit headers and gates requests
// so a sync slows down before it is rejected. State can be shared between
// processes through Redis.
package ratelimit

import (
	"time"
)

// Response headers reported by the Zoom API.
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderCategory   = "X-RateLimit-Category"
	HeaderType       = "X-RateLimit-Type"
	HeaderRetryAfter = "Retry-After"
)

// Redis keys for shared rate limit state.
const (
	RedisKeyRemaining  = "zoomphone:rate_limit:remaining"
	RedisKeyResetAt    = "zoomphone:rate_limit:reset_at"
	RedisKeyLastUpdate = "zoomphone:rate_limit:last_update"
)

// ThrottleThreshold slows requests down once fewer than this many remain.
const ThrottleThreshold = 10

// State is the most recent rate limit picture.
type State struct {
	// Limit and Remaining come from X-RateLimit-Limit/Remaining. Remaining is
	// -1 while unknown.
	Limit     int `json:"limit"`
	Remaining int `json:"remaining"`

	// Category and Type describe which limit the numbers refer to, e.g.
	// "Medium" and "QPS" or "Daily-limit".
	Category string `json:"category,omitempty"`
	Type     string `json:"type,omitempty"`

	// ResetAt is when requests may resume after the limit was hit.
	ResetAt time.Time `json:"reset_at"`

	LastUpdate time.Time `json:"last_update"`
}

// unknownState is assumed until the first response carries headers.
func unknownState() State {
	return State{Remaining: -1}
}

// IsStale reports whether the state is older than maxAge at now.
func (s State) IsStale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(s.LastUpdate) > maxAge
}

// Blocked reports whether requests must wait until ResetAt.
func (s State) Blocked(now time.Time) bool {
	return s.Remaining == 0 && now.Before(s.ResetAt)
}

// NeedsThrottling reports whether requests should be spaced out.
func (s State) NeedsThrottling(now time.Time) bool {
	return s.Remaining > 0 && s.Remaining < ThrottleThreshold && !s.Blocked(now)
}

// TimeUntilReset returns how long to wait, or 0 if the reset already passed.
func (s State) TimeUntilReset(now time.Time) time.Duration {
	d := s.ResetAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
