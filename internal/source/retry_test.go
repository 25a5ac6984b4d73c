package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/AdamBeresnev/yumcup/internal/apperr"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gobreaker "github.com/sony/gobreaker/v2"
)

// flakyServer fails the first n requests with status, then answers {"ok": true}.
func flakyServer(t *testing.T, n int32, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= n {
			w.WriteHeader(status)
			return
		}
		w.Write([]byte(`{"ok": true}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

var fastRetry = RetryConfig{Attempts: 3, BaseDelay: time.Millisecond}

func TestRetryingRecovers(t *testing.T) {
	srv, calls := flakyServer(t, 2, http.StatusServiceUnavailable)
	c := NewRetrying(NewHTTPClient("test", time.Second), "test", fastRetry)

	var out struct{ OK bool }
	require.NoError(t, c.GetJSON(context.Background(), srv.URL, nil, &out))
	assert.True(t, out.OK)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryingGivesUpAfterThreeAttempts(t *testing.T) {
	srv, calls := flakyServer(t, 100, http.StatusBadGateway)
	c := NewRetrying(NewHTTPClient("test", time.Second), "test", fastRetry)

	var out struct{}
	err := c.GetJSON(context.Background(), srv.URL, nil, &out)

	require.ErrorIs(t, err, apperr.ErrExternalAPI)
	var apiErr *apperr.ExternalAPIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryingSkipsClientErrors(t *testing.T) {
	srv, calls := flakyServer(t, 100, http.StatusBadRequest)
	c := NewRetrying(NewHTTPClient("test", time.Second), "test", fastRetry)

	var out struct{}
	err := c.GetJSON(context.Background(), srv.URL, nil, &out)
	require.ErrorIs(t, err, apperr.ErrExternalAPI)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRetryingDelayGrowsLinearly(t *testing.T) {
	srv, _ := flakyServer(t, 2, http.StatusTooManyRequests)
	c := NewRetrying(NewHTTPClient("test", time.Second), "test", RetryConfig{Attempts: 3, BaseDelay: 20 * time.Millisecond})

	start := time.Now()
	var out struct{}
	require.NoError(t, c.GetJSON(context.Background(), srv.URL, nil, &out))
	// 20ms after the first failure, 40ms after the second
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestRetryingStopsOnCancel(t *testing.T) {
	srv, calls := flakyServer(t, 100, http.StatusServiceUnavailable)
	c := NewRetrying(NewHTTPClient("test", time.Second), "test", RetryConfig{Attempts: 3, BaseDelay: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var out struct{}
	err := c.GetJSON(ctx, srv.URL, nil, &out)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.False(t, Retryable(context.Canceled))
	assert.True(t, Retryable(&StatusError{StatusCode: 500}))
	assert.True(t, Retryable(&StatusError{StatusCode: 429}))
	assert.False(t, Retryable(&StatusError{StatusCode: 404}))
	assert.False(t, Retryable(&DecodeError{Err: errors.New("eof")}))
	assert.True(t, Retryable(errors.New("connection reset")))
}

func TestBreakerOpens(t *testing.T) {
	srv, calls := flakyServer(t, 100, http.StatusInternalServerError)
	cfg := BreakerConfig{MaxRequests: 1, Interval: time.Minute, OpenTimeout: time.Minute, MinRequests: 3, FailureRate: 0.5}
	b := NewBreaker(NewHTTPClient("test", time.Second), "test-breaker", cfg)

	var out struct{}
	for i := 0; i < 3; i++ {
		require.Error(t, b.GetJSON(context.Background(), srv.URL, nil, &out))
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	err := b.GetJSON(context.Background(), srv.URL, nil, &out)
	require.ErrorIs(t, err, apperr.ErrExternalAPI)
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(3), calls.Load(), "an open breaker does not reach the upstream")
}

func TestBreakerIgnoresClientErrors(t *testing.T) {
	srv, _ := flakyServer(t, 100, http.StatusNotFound)
	cfg := BreakerConfig{MaxRequests: 1, Interval: time.Minute, OpenTimeout: time.Minute, MinRequests: 2, FailureRate: 0.5}
	b := NewBreaker(NewHTTPClient("test", time.Second), "test-breaker-4xx", cfg)

	var out struct{}
	for i := 0; i < 5; i++ {
		require.Error(t, b.GetJSON(context.Background(), srv.URL, nil, &out))
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestChain(t *testing.T) {
	srv, calls := flakyServer(t, 1, http.StatusServiceUnavailable)
	c := Chain("test-chain", time.Second, fastRetry, DefaultBreakerConfig())

	var out struct{ OK bool }
	require.NoError(t, c.GetJSON(context.Background(), srv.URL, nil, &out))
	assert.True(t, out.OK)
	assert.Equal(t, int32(2), calls.Load())
}

func TestPostJSONThroughChain(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("X-Goog-Api-Key"))

		var in struct {
			TextQuery string `json:"textQuery"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "국밥집", in.TextQuery)

		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"echo": "국밥집"}`))
	}))
	t.Cleanup(srv.Close)

	c := Chain("test-post", time.Second, fastRetry, DefaultBreakerConfig())

	header := http.Header{}
	header.Set("X-Goog-Api-Key", "secret")
	var out struct {
		Echo string `json:"echo"`
	}
	require.NoError(t, c.PostJSON(context.Background(), srv.URL, header, map[string]string{"textQuery": "국밥집"}, &out))
	assert.Equal(t, "국밥집", out.Echo)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestPostJSONNilOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	c := NewHTTPClient("test", time.Second)
	assert.NoError(t, c.PostJSON(context.Background(), srv.URL, nil, struct{}{}, nil))
}
