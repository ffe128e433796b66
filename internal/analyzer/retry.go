package analyzer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"time"
)

// doWithRetry wraps an HTTP call with retry logic.
// It attempts the request up to MaxRetries+1 times (initial + retries).
// - Retries only on transient network errors, 429, and 5xx statuses.
// - Uses exponential backoff with full jitter.
// - Respects the provided ctx (deadline / cancellation).
func (c *Client) doWithRetry(
	ctx context.Context,
	body []byte,
	do func(ctx context.Context, body []byte) (*http.Response, error),
) (*http.Response, error) {
	var lastErr error
	maxAttempts := c.cfg.MaxRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := do(ctx, body)

		if err != nil {
			// Context errors never retry; the scan deadline has passed.
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			if !isTransientNetError(err) {
				return nil, err
			}
			lastErr = err
		} else if !shouldRetryStatus(resp.StatusCode) {
			// Success or non-retryable HTTP status (e.g., 4xx)
			return resp, nil
		} else {
			lastErr = fmt.Errorf("upstream status %d", resp.StatusCode)
			// Close body before retrying so the connection can be reused.
			if resp.Body != nil {
				resp.Body.Close()
			}
		}

		if attempt == maxAttempts-1 {
			break
		}

		backoff := computeBackoff(c.cfg.BaseBackoff, attempt)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	if lastErr == nil {
		lastErr = errors.New("unknown upstream error")
	}
	return nil, fmt.Errorf("analyzer: max retries (%d) exceeded: %w", maxAttempts, lastErr)
}

// isTransientNetError determines whether a network error is worth retrying.
func isTransientNetError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTimeout || dnsErr.IsTemporary
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Op == "dial" || opErr.Op == "read" || opErr.Op == "write" {
			return true
		}
	}

	// Sometimes necessary for wrapped errors.
	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"temporary failure",
	} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// shouldRetryStatus returns true if the HTTP status code indicates the
// request should be retried.
func shouldRetryStatus(status int) bool {
	switch {
	case status == 0:
		return true
	case status == http.StatusTooManyRequests:
		return true
	case status == http.StatusRequestTimeout:
		return true
	case status >= 500 && status <= 599:
		return true
	default:
		return false
	}
}

// computeBackoff calculates exponential backoff with full jitter: a
// random wait between 0 and base * 2^attempt, capped.
func computeBackoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 50 * time.Millisecond
	}

	const maxExponent = 10
	if attempt > maxExponent {
		attempt = maxExponent
	}

	backoff := time.Duration(float64(base) * math.Pow(2, float64(attempt)))

	const maxAllowed = 5 * time.Second
	if backoff > maxAllowed {
		backoff = maxAllowed
	}

	return time.Duration(rand.Float64() * float64(backoff))
}
