package forum

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// statusError is a non-2xx response.
type statusError struct {
	Status int
	Body   string
}

func (e *statusError) Error() string { return fmt.Sprintf("status %d: %s", e.Status, e.Body) }

func (e *statusError) retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// httpClient paces requests with a token bucket and retries transient
// failures with exponential backoff.
type httpClient struct {
	client    *http.Client
	limiter   *rate.Limiter
	attempts  int
	backoff   time.Duration
	userAgent string
}

func newHTTPClient(timeout time.Duration, attempts int, backoff time.Duration, perMinute int, userAgent string) *httpClient {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if attempts <= 0 {
		attempts = 1
	}
	if backoff == 0 {
		backoff = 300 * time.Millisecond
	}
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
	}
	return &httpClient{
		client:    &http.Client{Timeout: timeout},
		limiter:   rate.NewLimiter(limit, 1),
		attempts:  attempts,
		backoff:   backoff,
		userAgent: userAgent,
	}
}

// getJSON fetches url into out and returns the number of attempts used.
func (c *httpClient) getJSON(ctx context.Context, url string, out any) (int, error) {
	var lastErr error
	for attempt := 0; attempt < c.attempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return attempt, err
		}
		err := c.do(ctx, url, out)
		if err == nil {
			return attempt + 1, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return attempt + 1, ctx.Err()
		}
		var se *statusError
		if errors.As(err, &se) && !se.retryable() {
			return attempt + 1, err
		}
		if attempt < c.attempts-1 {
			select {
			case <-time.After(c.backoff * time.Duration(1<<attempt)):
			case <-ctx.Done():
				return attempt + 1, ctx.Err()
			}
		}
	}
	return c.attempts, lastErr
}

func (c *httpClient) do(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &statusError{Status: resp.StatusCode, Body: string(b)}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
