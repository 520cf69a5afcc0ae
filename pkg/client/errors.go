package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Sternrassler/zoomphone-tap/pkg/ratelimit"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrMissingTokenSource is returned by New without a token source.
	ErrMissingTokenSource = errors.New("token source is required")
)

// ErrorClass represents a classification of request failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than 401 and 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassAuth represents 401 responses.
	ErrorClassAuth ErrorClass = "auth"

	// ErrorClassRateLimit represents 429 responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents transport and timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// ClassifyStatus maps an HTTP status to its error class, or "" for success.
func ClassifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusUnauthorized:
		return ErrorClassAuth
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// APIError is a non-2xx response from the Zoom API.
type APIError struct {
	StatusCode int
	Class      ErrorClass
	URL        string

	// Code and Message come from the Zoom error body when present.
	Code    int
	Message string

	// reauth marks the first 401, which is retried with a fresh token.
	reauth bool
}

// Error implements the error interface.
func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.Code != 0 {
		return fmt.Sprintf("zoom %s error (status %d, code %d) for %s: %s", e.Class, e.StatusCode, e.Code, e.URL, msg)
	}
	return fmt.Sprintf("zoom %s error (status %d) for %s: %s", e.Class, e.StatusCode, e.URL, msg)
}

// Retryable reports whether repeating the request may succeed.
func (e *APIError) Retryable() bool {
	switch e.Class {
	case ErrorClassServer, ErrorClassRateLimit:
		return true
	case ErrorClassAuth:
		return e.reauth
	default:
		return false
	}
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// classify returns the error class of any error produced by a request attempt.
func classify(err error) ErrorClass {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Class
	}
	if errors.Is(err, ratelimit.ErrRateLimited) {
		return ErrorClassRateLimit
	}
	return ErrorClassNetwork
}

// shouldRetry determines if an attempt error is worth repeating.
func shouldRetry(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ratelimit.ErrRateLimited) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return true
}
