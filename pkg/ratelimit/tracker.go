package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrRateLimited is returned by Wait when the limit resets later than the
// tracker is willing to wait, e.g. after the daily limit was used up.
var ErrRateLimited = errors.New("rate limit exhausted")

// Defaults for the tracker.
const (
	DefaultMaxWait       = 5 * time.Minute
	DefaultThrottleDelay = time.Second

	// DefaultRetryAfter applies when a 429 carries no usable Retry-After.
	DefaultRetryAfter = time.Second
)

// Prometheus metrics for rate limit tracking.
var (
	rateLimitRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "zoomphone_rate_limit_remaining",
		Help: "Requests remaining in the current Zoom rate limit window",
	})

	rateLimitWaitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zoomphone_rate_limit_waits_total",
		Help: "Total number of requests delayed by the rate limit tracker by reason",
	}, []string{"reason"})

	rateLimitExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zoomphone_rate_limit_exhausted_total",
		Help: "Total number of requests refused because the limit resets too far in the future",
	})
)

// Option configures a Tracker.
type Option func(*Tracker)

// WithMaxWait bounds how long Wait sleeps for a reset before giving up.
func WithMaxWait(d time.Duration) Option {
	return func(t *Tracker) { t.maxWait = d }
}

// WithThrottleDelay sets the pause applied while few requests remain.
func WithThrottleDelay(d time.Duration) Option {
	return func(t *Tracker) { t.throttleDelay = d }
}

// Tracker follows the Zoom rate limit headers and gates requests. With a nil
// Redis client the state is kept in memory only.
type Tracker struct {
	redis         *redis.Client
	logger        zerolog.Logger
	maxWait       time.Duration
	throttleDelay time.Duration
	now           func() time.Time

	mu    sync.Mutex
	local State
}

// NewTracker creates a new rate limit tracker.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		redis:         redisClient,
		logger:        logger.With().Str("component", "ratelimit").Logger(),
		maxWait:       DefaultMaxWait,
		throttleDelay: DefaultThrottleDelay,
		now:           time.Now,
		local:         unknownState(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// GetState returns the current state, read from Redis when shared.
func (t *Tracker) GetState(ctx context.Context) (State, error) {
	if t.redis == nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.local, nil
	}

	remaining, err := t.redis.Get(ctx, RedisKeyRemaining).Int()
	if errors.Is(err, redis.Nil) {
		return unknownState(), nil
	}
	if err != nil {
		return State{}, fmt.Errorf("get remaining: %w", err)
	}

	resetMillis, err := t.redis.Get(ctx, RedisKeyResetAt).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return State{}, fmt.Errorf("get reset timestamp: %w", err)
	}

	lastUpdateRaw, err := t.redis.Get(ctx, RedisKeyLastUpdate).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return State{}, fmt.Errorf("get last update: %w", err)
	}

	state := State{Remaining: remaining}
	if resetMillis > 0 {
		state.ResetAt = time.UnixMilli(resetMillis).UTC()
	}
	if len(lastUpdateRaw) > 0 {
		if err := json.Unmarshal(lastUpdateRaw, &state.LastUpdate); err != nil {
			return State{}, fmt.Errorf("parse last update: %w", err)
		}
	}
	return state, nil
}

// UpdateFromHeaders records the rate limit headers of a response. A 429
// marks the limit as exhausted until Retry-After.
func (t *Tracker) UpdateFromHeaders(ctx context.Context, status int, headers http.Header) error {
	remainingRaw := headers.Get(HeaderRemaining)
	if remainingRaw == "" && status != http.StatusTooManyRequests {
		return nil
	}

	now := t.now()
	state := State{
		Remaining:  -1,
		Category:   headers.Get(HeaderCategory),
		Type:       headers.Get(HeaderType),
		LastUpdate: now,
	}

	if raw := headers.Get(HeaderLimit); raw != "" {
		limit, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("parse %s header: %w", HeaderLimit, err)
		}
		state.Limit = limit
	}
	if remainingRaw != "" {
		remaining, err := strconv.Atoi(strings.TrimSpace(remainingRaw))
		if err != nil {
			return fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
		}
		state.Remaining = remaining
	}
	if status == http.StatusTooManyRequests {
		state.Remaining = 0
	}
	if state.Remaining == 0 {
		resetAt, ok := ParseRetryAfter(headers.Get(HeaderRetryAfter), now)
		if !ok {
			resetAt = now.Add(DefaultRetryAfter)
		}
		state.ResetAt = resetAt
	}

	t.mu.Lock()
	t.local = state
	t.mu.Unlock()

	if t.redis != nil {
		lastUpdateJSON, err := json.Marshal(state.LastUpdate)
		if err != nil {
			return fmt.Errorf("marshal last update: %w", err)
		}
		pipe := t.redis.Pipeline()
		pipe.Set(ctx, RedisKeyRemaining, state.Remaining, 0)
		pipe.Set(ctx, RedisKeyResetAt, state.ResetAt.UnixMilli(), 0)
		pipe.Set(ctx, RedisKeyLastUpdate, lastUpdateJSON, 0)
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("store rate limit state in redis: %w", err)
		}
	}

	if state.Remaining >= 0 {
		rateLimitRemaining.Set(float64(state.Remaining))
	}

	switch {
	case state.Blocked(now):
		t.logger.Warn().
			Str("category", state.Category).
			Str("type", state.Type).
			Time("reset_at", state.ResetAt).
			Msg("Zoom rate limit exhausted")
	case state.NeedsThrottling(now):
		t.logger.Warn().
			Int("remaining", state.Remaining).
			Str("type", state.Type).
			Msg("Zoom rate limit low, throttling")
	default:
		t.logger.Debug().
			Int("remaining", state.Remaining).
			Int("limit", state.Limit).
			Msg("Rate limit state updated")
	}
	return nil
}

// Wait blocks until a request may be sent. It sleeps through short resets
// and returns ErrRateLimited for resets beyond the configured maximum wait.
func (t *Tracker) Wait(ctx context.Context) error {
	state, err := t.GetState(ctx)
	if err != nil {
		t.logger.Warn().Err(err).Msg("Shared rate limit state unavailable, using local state")
		t.mu.Lock()
		state = t.local
		t.mu.Unlock()
	}

	now := t.now()
	if state.Blocked(now) {
		wait := state.TimeUntilReset(now)
		if wait > t.maxWait {
			rateLimitExhaustedTotal.Inc()
			return fmt.Errorf("%w: %s limit resets at %s", ErrRateLimited, state.Type, state.ResetAt.Format(time.RFC3339))
		}
		rateLimitWaitsTotal.WithLabelValues("reset").Inc()
		t.logger.Info().Dur("wait", wait).Msg("Waiting for rate limit reset")
		return sleep(ctx, wait)
	}

	if state.NeedsThrottling(now) {
		rateLimitWaitsTotal.WithLabelValues("throttle").Inc()
		return sleep(ctx, t.throttleDelay)
	}
	return nil
}

// ParseRetryAfter accepts delay seconds, an RFC 3339 timestamp or an HTTP
// date, and returns the time requests may resume.
func ParseRetryAfter(value string, now time.Time) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return time.Time{}, false
		}
		return now.Add(time.Duration(seconds) * time.Second), true
	}
	if ts, err := time.Parse(time.RFC3339, value); err == nil {
		return ts.UTC(), true
	}
	if ts, err := http.ParseTime(value); err == nil {
		return ts.UTC(), true
	}
	return time.Time{}, false
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
