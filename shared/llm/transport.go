package llm

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// Transport executes one provider HTTP call with bounded retries and
// exponential backoff. 429 and 5xx responses are retried, every other status
// is returned to the caller immediately — client errors besides rate limiting
// never get better on retry. No wall-clock timeout is imposed beyond the
// injected client's; streaming callers cancel via context instead.
type Transport struct {
	Client       *http.Client
	MaxRetries   int
	InitialDelay time.Duration
	// OnRetry, when set, observes each retry: the attempt number that just
	// failed (0-based) and why.
	OnRetry func(attempt int, reason error)
}

// NewTransport returns a Transport with the default retry schedule:
// up to 3 retries starting at 1s, doubling each attempt.
func NewTransport() *Transport {
	return &Transport{
		Client:       &http.Client{},
		MaxRetries:   3,
		InitialDelay: time.Second,
	}
}

// Do sends body to url with the given headers. On the final attempt a failing
// response is returned rather than an error, so callers can inspect the
// status; an error return means the network itself failed on every attempt.
func (t *Transport) Do(ctx context.Context, method, url string, header http.Header, body []byte) (*http.Response, error) {
	maxRetries := t.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	initial := t.InitialDelay
	if initial <= 0 {
		initial = time.Second
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		for k, vs := range header {
			req.Header[k] = vs
		}

		resp, err := t.Client.Do(req)
		if err != nil {
			lastErr = err
			if attempt == maxRetries {
				return nil, fmt.Errorf("request failed after %d attempts: %w", attempt+1, err)
			}
			if waitErr := t.wait(ctx, backoff(initial, attempt), attempt, err); waitErr != nil {
				return nil, waitErr
			}
			continue
		}

		if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode < 500 {
			return resp, nil
		}
		if attempt == maxRetries {
			return resp, nil
		}

		delay := backoff(initial, attempt)
		if ra := retryAfter(resp); ra > 0 {
			delay = ra
		}
		reason := fmt.Errorf("status %d", resp.StatusCode)
		resp.Body.Close()

		if waitErr := t.wait(ctx, delay, attempt, reason); waitErr != nil {
			return nil, waitErr
		}
	}

	// Unreachable: the loop always returns on its final attempt.
	return nil, lastErr
}

func (t *Transport) wait(ctx context.Context, delay time.Duration, attempt int, reason error) error {
	if t.OnRetry != nil {
		t.OnRetry(attempt, reason)
	}
	log.Debug().Int("attempt", attempt).Dur("delay", delay).Err(reason).Msg("retrying provider request")

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// backoff is initial * 2^attempt.
func backoff(initial time.Duration, attempt int) time.Duration {
	return initial << uint(attempt)
}

// retryAfter parses a Retry-After header given in seconds; 0 when absent or
// unparseable.
func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
