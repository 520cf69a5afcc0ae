package client

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// InitialBackoff is the initial backoff duration.
	InitialBackoff time.Duration

	// MaxBackoff is the maximum backoff duration.
	MaxBackoff time.Duration

	// BackoffMultiplier is the multiplier for exponential backoff.
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       4,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// backoffFor scales the base backoff by error class: rate limit errors wait
// longer, an auth retry happens immediately.
func backoffFor(class ErrorClass, base time.Duration) time.Duration {
	switch class {
	case ErrorClassRateLimit:
		return base * 2
	case ErrorClassAuth:
		return 0
	default:
		return base
	}
}

// retryWithBackoff runs fn until it succeeds, returns a non-retryable error,
// or MaxAttempts is reached. Backoff is exponential with ±20% jitter and
// respects context cancellation.
func retryWithBackoff(ctx context.Context, cfg RetryConfig, logger zerolog.Logger, fn func(attempt int) error) error {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	var lastErr error
	backoff := cfg.InitialBackoff

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			if attempt > 1 {
				logger.Info().Int("attempt", attempt).Msg("Request succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if !shouldRetry(err) {
			return err
		}
		if attempt >= cfg.MaxAttempts {
			break
		}

		class := classify(err)
		retriesTotal.WithLabelValues(string(class)).Inc()

		wait := backoffFor(class, backoff)
		if wait > 0 {
			wait = time.Duration(float64(wait) * (0.8 + rand.Float64()*0.4))
			if wait > cfg.MaxBackoff && cfg.MaxBackoff > 0 {
				wait = cfg.MaxBackoff
			}
		}
		retryBackoffSeconds.WithLabelValues(string(class)).Observe(wait.Seconds())

		logger.Warn().
			Err(err).
			Str("error_class", string(class)).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Retrying request after backoff")

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("retry backoff: %w", ctx.Err())
			case <-timer.C:
			}
		}

		backoff = time.Duration(float64(backoff) * cfg.BackoffMultiplier)
		if cfg.MaxBackoff > 0 && backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}

	class := classify(lastErr)
	retryExhaustedTotal.WithLabelValues(string(class)).Inc()
	logger.Error().
		Err(lastErr).
		Str("error_class", string(class)).
		Int("max_attempts", cfg.MaxAttempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, cfg.MaxAttempts, lastErr)
}
