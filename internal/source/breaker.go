package source

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/AdamBeresnev/yumcup/internal/apperr"
	"github.com/AdamBeresnev/yumcup/internal/logging"
	"github.com/AdamBeresnev/yumcup/internal/metrics"
	gobreaker "github.com/sony/gobreaker/v2"
)

type BreakerConfig struct {
	// Requests allowed through while half-open
	MaxRequests uint32
	// Closed-state window after which counts reset
	Interval time.Duration
	// How long the breaker stays open before probing
	OpenTimeout time.Duration
	MinRequests uint32
	FailureRate float64
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests: 3,
		Interval:    time.Minute,
		OpenTimeout: 30 * time.Second,
		MinRequests: 10,
		FailureRate: 0.6,
	}
}

// Breaker stops calling an upstream that keeps failing.
type Breaker struct {
	next Client
	name string
	cb   *gobreaker.CircuitBreaker[struct{}]
}

func NewBreaker(next Client, name string, cfg BreakerConfig) *Breaker {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRate
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
		// Callers giving up and 4xx answers say nothing about upstream health
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return true
			}
			var statusErr *StatusError
			if errors.As(err, &statusErr) {
				return statusErr.StatusCode < 500 && statusErr.StatusCode != http.StatusTooManyRequests
			}
			return false
		},
	})

	return &Breaker{next: next, name: name, cb: cb}
}

func (b *Breaker) GetJSON(ctx context.Context, url string, header http.Header, out any) error {
	return b.execute(func() error {
		return b.next.GetJSON(ctx, url, header, out)
	})
}

func (b *Breaker) PostJSON(ctx context.Context, url string, header http.Header, body, out any) error {
	return b.execute(func() error {
		return b.next.PostJSON(ctx, url, header, body, out)
	})
}

func (b *Breaker) execute(call func() error) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, call()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &apperr.ExternalAPIError{API: b.name, StatusCode: http.StatusServiceUnavailable, Err: err}
	}
	return err
}

func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// Chain wraps an HTTP client with retries inside a circuit breaker.
func Chain(api string, timeout time.Duration, retry RetryConfig, breaker BreakerConfig) Client {
	return NewBreaker(NewRetrying(NewHTTPClient(api, timeout), api, retry), api, breaker)
}
