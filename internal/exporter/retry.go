package exporter

import (
	"context"
	"math/rand"
	"time"

	"github.com/rgonek/confluence-space-export/internal/confluence"
)

// RetryConfig tunes the fetch retry loop.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryConfig matches the pipeline defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   30 * time.Second,
	}
}

// backoffDelay computes the delay before the given attempt (0-based), with
// jitter up to half the base step. A server-provided Retry-After wins,
// clamped to MaxDelay.
func (c RetryConfig) backoffDelay(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		if retryAfter > c.MaxDelay {
			return c.MaxDelay
		}
		return retryAfter
	}
	delay := c.BaseDelay << uint(attempt)
	if delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(c.BaseDelay)/2 + 1))
	if delay+jitter > c.MaxDelay {
		return c.MaxDelay
	}
	return delay + jitter
}

// fetchPageWithRetry fetches a page, retrying transient failures with
// exponential backoff. On terminal failure it returns the fetch
// classification and the last classified error.
func fetchPageWithRetry(ctx context.Context, api confluence.API, pageID string, cfg RetryConfig) (confluence.Page, string, *ProcessingError) {
	var lastClass string
	var lastErr *ProcessingError

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := cfg.backoffDelay(attempt-1, lastErr.RetryIn)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				lastErr.Err = ctx.Err()
				return confluence.Page{}, lastClass, lastErr
			}
		}

		page, err := api.GetPageWithBody(ctx, pageID)
		if err == nil {
			return page, "", nil
		}

		lastClass, lastErr = classifyFetch(pageID, err)
		if !lastErr.Retryable {
			return confluence.Page{}, lastClass, lastErr
		}
	}
	return confluence.Page{}, lastClass, lastErr
}
