// Package client provides the Zoom Phone HTTP client with authentication,
// request pacing, rate limit tracking, retries and an optional response cache.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/zoomphone-tap/pkg/cache"
	"github.com/Sternrassler/zoomphone-tap/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the Zoom Phone API root.
const DefaultBaseURL = "https://api.zoom.us/v2/phone"

// DefaultUserAgent identifies the tap to Zoom.
const DefaultUserAgent = "zoomphone-tap/1.0"

// maxBodyBytes bounds a single response body.
const maxBodyBytes = 64 << 20

// Prometheus metrics for client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zoomphone_requests_total",
		Help: "Total Zoom API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "zoomphone_request_duration_seconds",
		Help:    "Zoom API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zoomphone_errors_total",
		Help: "Total Zoom API errors by class",
	}, []string{"class"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zoomphone_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "zoomphone_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "zoomphone_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// TokenSource supplies bearer tokens. Invalidate is called after a 401 so the
// next token is freshly issued.
type TokenSource interface {
	TokenContext(ctx context.Context) (*oauth2.Token, error)
	Invalidate()
}

// Config holds the client configuration.
type Config struct {
	// BaseURL defaults to DefaultBaseURL.
	BaseURL string

	// Tokens is required.
	Tokens TokenSource

	UserAgent string

	// RequestsPerSecond paces requests before the server has to. Zero disables
	// pacing.
	RequestsPerSecond float64

	Retry RetryConfig

	// Timeout applies to each attempt.
	Timeout time.Duration

	// RateLimits follows the rate limit headers. Defaults to an in-memory tracker.
	RateLimits *ratelimit.Tracker

	// Cache stores responses of requests that carry a CacheKey.
	Cache *cache.Manager

	HTTPClient *http.Client
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(tokens TokenSource) Config {
	return Config{
		BaseURL:           DefaultBaseURL,
		Tokens:            tokens,
		UserAgent:         DefaultUserAgent,
		RequestsPerSecond: 10,
		Retry:             DefaultRetryConfig(),
		Timeout:           30 * time.Second,
	}
}

// Request describes one GET.
type Request struct {
	// Endpoint is the path template used for metrics and cache keys, e.g.
	// "/call_history/{id}". Defaults to Path.
	Endpoint string

	// Path is appended to the base URL.
	Path string

	Params url.Values

	// CacheKey enables the response cache for this request.
	CacheKey *cache.CacheKey
}

// Response is a successful API response with its body read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte

	// URL is the URL that was requested, including the query.
	URL *url.URL

	// FromCache is true when the body came from the response cache.
	FromCache bool
}

// Client is the Zoom Phone API client. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	tokens     TokenSource
	pacer      *rate.Limiter
	rateLimits *ratelimit.Tracker
	cache      *cache.Manager
	config     Config
	logger     zerolog.Logger
}

// New creates a new client.
func New(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.Tokens == nil {
		return nil, ErrMissingTokenSource
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	if cfg.RequestsPerSecond < 0 {
		return nil, fmt.Errorf("requests_per_second must be >= 0 (got %v)", cfg.RequestsPerSecond)
	}

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", cfg.BaseURL)
	}

	logger = logger.With().Str("component", "zoom-client").Logger()

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	pacer := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		pacer = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	tracker := cfg.RateLimits
	if tracker == nil {
		tracker = ratelimit.NewTracker(nil, logger)
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    base,
		tokens:     cfg.Tokens,
		pacer:      pacer,
		rateLimits: tracker,
		cache:      cfg.Cache,
		config:     cfg,
		logger:     logger,
	}, nil
}

// Get performs a GET with retries. Non-2xx responses that survive the retry
// policy are returned as *APIError.
func (c *Client) Get(ctx context.Context, req Request) (*Response, error) {
	if req.Endpoint == "" {
		req.Endpoint = req.Path
	}
	target := c.resolve(req.Path, req.Params)

	if req.CacheKey != nil && c.cache != nil {
		entry, err := c.cache.Get(ctx, *req.CacheKey)
		switch {
		case err == nil:
			c.logger.Debug().Str("endpoint", req.Endpoint).Str("key", req.CacheKey.String()).Msg("Cache hit")
			requestsTotal.WithLabelValues(req.Endpoint, "cached").Inc()
			return &Response{
				StatusCode: entry.StatusCode,
				Header:     http.Header{},
				Body:       entry.Data,
				URL:        target,
				FromCache:  true,
			}, nil
		case !errors.Is(err, cache.ErrCacheMiss):
			c.logger.Warn().Err(err).Str("endpoint", req.Endpoint).Msg("Cache get error")
		}
	}

	var resp *Response
	err := retryWithBackoff(ctx, c.config.Retry, c.logger, func(attempt int) error {
		var attemptErr error
		resp, attemptErr = c.attempt(ctx, req.Endpoint, target, attempt)
		return attemptErr
	})
	if err != nil {
		return nil, err
	}

	if req.CacheKey != nil && c.cache != nil {
		entry := cache.NewEntry(resp.Body, resp.StatusCode, c.cache.TTL())
		if err := c.cache.Set(ctx, *req.CacheKey, entry); err != nil {
			c.logger.Warn().Err(err).Str("endpoint", req.Endpoint).Msg("Failed to cache response")
		}
	}
	return resp, nil
}

// attempt sends the request once.
func (c *Client) attempt(ctx context.Context, endpoint string, target *url.URL, attempt int) (*Response, error) {
	if err := c.pacer.Wait(ctx); err != nil {
		return nil, fmt.Errorf("pace request: %w", err)
	}
	if err := c.rateLimits.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	token, err := c.tokens.TokenContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("get access token: %w", err)
	}

	attemptCtx := ctx
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("User-Agent", c.config.UserAgent)
	httpReq.Header.Set("Accept", "application/json")
	token.SetAuthHeader(httpReq)

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("url", target.String()).
		Int("attempt", attempt).
		Msg("Executing Zoom request")

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	requestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		return nil, fmt.Errorf("get %s: %w", endpoint, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodyBytes))
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, fmt.Errorf("read %s response: %w", endpoint, err)
	}

	if err := c.rateLimits.UpdateFromHeaders(ctx, httpResp.StatusCode, httpResp.Header); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to update rate limit from headers")
	}
	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(httpResp.StatusCode)).Inc()

	if class := ClassifyStatus(httpResp.StatusCode); class != "" {
		errorsTotal.WithLabelValues(string(class)).Inc()
		apiErr := newAPIError(httpResp.StatusCode, class, target, body)
		if class == ErrorClassAuth && attempt == 1 {
			c.tokens.Invalidate()
			apiErr.reauth = true
		}
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", httpResp.StatusCode).
			Str("error_class", string(class)).
			Msg("Zoom request error")
		return nil, apiErr
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header.Clone(),
		Body:       body,
		URL:        target,
	}, nil
}

// resolve joins an already escaped path onto the base URL.
func (c *Client) resolve(path string, params url.Values) *url.URL {
	u := c.baseURL.JoinPath(path)
	u.RawQuery = ""
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}
	return u
}

func newAPIError(status int, class ErrorClass, target *url.URL, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Class: class, URL: target.Redacted()}
	var zoomErr struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &zoomErr) == nil {
		apiErr.Code = zoomErr.Code
		apiErr.Message = zoomErr.Message
	}
	return apiErr
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}
