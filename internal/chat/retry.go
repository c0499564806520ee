package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/amacdonaldai/gen-bionic/internal/model"
)

// RetryConfig configures the retry behavior for model calls.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryConfig returns sensible defaults for model API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// retryablePatterns groups error substrings by category, matched
// case-insensitively. Provider SDKs do not expose typed errors for
// transient failures, so string matching is the only handle available.
var retryablePatterns = [][]string{
	{"rate limit", "quota exceeded", "429"},      // rate limiting
	{"500", "502", "503", "504", "unavailable"},  // transient server errors
	{"connection reset", "timeout", "temporary"}, // network errors
}

// retryableError reports whether err is transient and worth retrying.
func retryableError(err error) bool {
	if err == nil {
		return false
	}
	lower := strings.ToLower(err.Error())
	for _, group := range retryablePatterns {
		for _, sub := range group {
			if strings.Contains(lower, sub) {
				return true
			}
		}
	}
	return false
}

// generateWithRetry runs one model pass with exponential backoff. Each
// attempt goes through the rate limiter. Once a streaming delta has been
// delivered a retry would duplicate output, so delivery disables further
// attempts.
func (e *Engine) generateWithRetry(ctx context.Context, mreq model.Request, delivered *bool) (*model.Reply, error) {
	var lastErr error
	delay := e.retry.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= e.retry.MaxRetries; attempt++ {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit wait: %w", err)
			}
		}

		reply, err := e.models.Generate(ctx, mreq)
		if err == nil {
			e.logger.DebugContext(ctx, "model call succeeded",
				"attempts", attempt+1,
				"elapsed", time.Since(start),
			)
			return reply, nil
		}
		lastErr = err

		if !retryableError(err) || *delivered {
			return nil, fmt.Errorf("generate: %w", err)
		}
		if attempt == e.retry.MaxRetries {
			break
		}

		e.logger.DebugContext(ctx, "retrying model call",
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, e.retry.MaxInterval)
		}
	}

	return nil, fmt.Errorf("generate after %d retries (elapsed: %v): %w",
		e.retry.MaxRetries, time.Since(start), lastErr)
}
