package http

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
)

// Client reads one JSON API. Every request carries the same headers.
type Client struct {
	hc     *http.Client
	base   string
	header http.Header
}

// NewClient returns a client for baseURL. timeout <= 0 means 30s.
func NewClient(baseURL string, timeout time.Duration, header http.Header) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		hc:     &http.Client{Timeout: timeout},
		base:   strings.TrimRight(baseURL, "/"),
		header: header.Clone(),
	}
}

// StatusError is a non-2xx response. RetryAfter holds the server's
// Retry-After header when it sent one.
type StatusError struct {
	Code       int
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

// IsRetryable reports whether repeating the request may succeed. Transport
// failures, timeouts, 429 and 5xx qualify.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return true
}

// RetryAfter returns the delay the server asked for, or 0.
func RetryAfter(err error) time.Duration {
	var se *StatusError
	if errors.As(err, &se) {
		return se.RetryAfter
	}
	return 0
}

// Get fetches path with query and decodes the JSON body into dest. A *[]byte
// dest receives the raw body, and a nil dest discards it.
func (c *Client) Get(ctx context.Context, path string, query url.Values, dest any) error {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	for k, vs := range c.header {
		req.Header[k] = vs
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &StatusError{
			Code:       resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			RetryAfter: retryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
	}
	switch d := dest.(type) {
	case nil:
		_, err = io.Copy(io.Discard, resp.Body)
	case *[]byte:
		*d, err = io.ReadAll(resp.Body)
	default:
		err = json.NewDecoder(resp.Body).Decode(dest)
	}
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	return nil
}

// retryAfter parses delay-seconds or an HTTP date.
func retryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if s, err := strconv.Atoi(v); err == nil && s > 0 {
		return time.Duration(s) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}
