// Package source talks to the upstream place APIs: the paginated local search used for
// discovery and the place lookup used for enrichment.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/AdamBeresnev/yumcup/internal/metrics"
	"github.com/goccy/go-json"
)

// Client exchanges JSON documents with an upstream API.
type Client interface {
	GetJSON(ctx context.Context, url string, header http.Header, out any) error
	PostJSON(ctx context.Context, url string, header http.Header, body, out any) error
}

// StatusError is a non-2xx upstream response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d", e.StatusCode)
}

// DecodeError means the upstream answered 2xx with a body we could not read.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode response: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

type HTTPClient struct {
	api       string
	client    *http.Client
	userAgent string
}

func NewHTTPClient(api string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		api:       api,
		client:    &http.Client{Timeout: timeout},
		userAgent: "yumcup/1.0",
	}
}

func (c *HTTPClient) GetJSON(ctx context.Context, url string, header http.Header, out any) error {
	return c.exchange(ctx, http.MethodGet, url, header, nil, out)
}

func (c *HTTPClient) PostJSON(ctx context.Context, url string, header http.Header, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	return c.exchange(ctx, http.MethodPost, url, header, payload, out)
}

func (c *HTTPClient) exchange(ctx context.Context, method, url string, header http.Header, payload []byte, out any) error {
	body, status, err := c.do(ctx, method, url, header, payload)
	metrics.RecordUpstream(c.api, status)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &DecodeError{Err: err}
	}
	return nil
}

func (c *HTTPClient) do(ctx context.Context, method, u string, header http.Header, payload []byte) ([]byte, int, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, 0, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	status := resp.StatusCode
	b, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, status, err
	}
	if status < 200 || status >= 300 {
		return nil, status, &StatusError{StatusCode: status, Body: truncate(string(b), 256)}
	}
	return b, status, nil
}

// Retryable reports whether another attempt could succeed: transport failures, 5xx and 429.
// Caller cancellation is never retried.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500 || statusErr.StatusCode == http.StatusTooManyRequests
	}
	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return !errors.Is(err, context.DeadlineExceeded)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
