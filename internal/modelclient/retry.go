package modelclient

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// maxRetryAfter caps server supplied waits.
	maxRetryAfter = 5 * time.Minute
	// maxBackoff caps the jittered wait between attempts.
	maxBackoff = time.Minute
)

// sendFunc performs one POST of body to the model server.
type sendFunc func(ctx context.Context, body []byte) (*http.Response, error)

// step is what happens after one attempt.
type step struct {
	resp  *http.Response // final response, when done
	err   error          // final error when done, else the reason to retry
	done  bool
	pause time.Duration // server requested wait before the next attempt
}

// classify turns one attempt into a step. Responses that will be retried
// are drained and closed here so the connection can be reused.
func classify(resp *http.Response, err error) step {
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return step{err: err, done: true}
		}
		return step{err: err, done: !isTransientNetError(err)}
	}
	if !shouldRetryStatus(resp.StatusCode) {
		return step{resp: resp, done: true}
	}

	pause := parseRetryAfter(resp)
	if resp.Body != nil {
		resp.Body.Close()
	}
	return step{err: fmt.Errorf("upstream status %d", resp.StatusCode), pause: pause}
}

// sendWithRetry posts the prediction request for the selection identified
// by fingerprint, retrying transient failures (network errors, 408, 429,
// 5xx) up to MaxRetries times with jittered exponential backoff.
func (c *client) sendWithRetry(ctx context.Context, fingerprint string, body []byte, send sendFunc) (*http.Response, error) {
	attempts := c.cfg.MaxRetries + 1
	logger := c.logger.With(zap.String("hash", fingerprint))

	var last step
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		resp, err := send(ctx, body)
		last = classify(resp, err)

		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		logger.Debug("model attempt",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.Bool("final", last.done),
			zap.Error(err),
		)

		if last.done {
			return last.resp, last.err
		}
		if attempt == attempts {
			break
		}

		wait := last.pause
		if wait > 0 {
			logger.Info("honoring Retry-After header", zap.Duration("wait", wait), zap.Int("status", status))
		} else {
			wait = computeBackoff(c.cfg.BaseBackoff, attempt-1)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	logger.Warn("model request exhausted all retries",
		zap.Int("attempts", attempts),
		zap.Error(last.err),
	)
	return nil, fmt.Errorf("modelclient: %d attempts failed: %w", attempts, last.err)
}

// isTransientNetError reports whether err looks like the model server
// restarting or the network blipping.
func isTransientNetError(err error) bool {
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
		switch opErr.Op {
		case "dial", "read", "write":
			return true
		}
	}

	// wrapped errors sometimes only keep the message
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection refused", "connection reset", "broken pipe"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func shouldRetryStatus(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return status >= 500 && status <= 599
}

// parseRetryAfter reads Retry-After as seconds or an HTTP date.
// Missing, invalid or past values give 0.
func parseRetryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	v := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if v == "" {
		return 0
	}

	var d time.Duration
	if secs, err := strconv.Atoi(v); err == nil {
		d = time.Duration(secs) * time.Second
	} else if t, err := http.ParseTime(v); err == nil {
		d = time.Until(t)
	}
	if d <= 0 {
		return 0
	}
	return min(d, maxRetryAfter)
}

// computeBackoff returns a random duration in [0, base<<attempt),
// capped at maxBackoff.
func computeBackoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	ceiling := base << min(attempt, 10)
	if ceiling <= 0 || ceiling > maxBackoff {
		ceiling = maxBackoff
	}
	return time.Duration(rand.Int64N(int64(ceiling)))
}
