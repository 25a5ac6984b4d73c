package source

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/AdamBeresnev/yumcup/internal/apperr"
	"github.com/AdamBeresnev/yumcup/internal/logging"
	"github.com/AdamBeresnev/yumcup/internal/metrics"
)

type RetryConfig struct {
	Attempts  int
	BaseDelay time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{Attempts: 3, BaseDelay: time.Second}
}

// Retrying retries transient failures with a linearly growing delay (base, 2*base, ...) and
// turns whatever is left into an apperr.ExternalAPIError.
type Retrying struct {
	next Client
	api  string
	cfg  RetryConfig
}

func NewRetrying(next Client, api string, cfg RetryConfig) *Retrying {
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	return &Retrying{next: next, api: api, cfg: cfg}
}

func (r *Retrying) GetJSON(ctx context.Context, url string, header http.Header, out any) error {
	return r.retry(ctx, func() error {
		return r.next.GetJSON(ctx, url, header, out)
	})
}

// PostJSON retries like GetJSON. Only use it for idempotent upstream calls.
func (r *Retrying) PostJSON(ctx context.Context, url string, header http.Header, body, out any) error {
	return r.retry(ctx, func() error {
		return r.next.PostJSON(ctx, url, header, body, out)
	})
}

func (r *Retrying) retry(ctx context.Context, call func() error) error {
	var err error
	for attempt := 1; attempt <= r.cfg.Attempts; attempt++ {
		err = call()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !Retryable(err) || attempt == r.cfg.Attempts {
			break
		}

		delay := r.cfg.BaseDelay * time.Duration(attempt)
		metrics.UpstreamRetries.WithLabelValues(r.api).Inc()
		logging.Ctx(ctx).Warn().Err(err).Str("api", r.api).Int("attempt", attempt).Dur("delay", delay).Msg("upstream call failed, retrying")

		if err := wait(ctx, delay); err != nil {
			return err
		}
	}
	return wrapExternal(r.api, err)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func wrapExternal(api string, err error) error {
	var apiErr *apperr.ExternalAPIError
	if errors.As(err, &apiErr) {
		return err
	}
	out := &apperr.ExternalAPIError{API: api, Err: err}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		out.StatusCode = statusErr.StatusCode
	}
	return out
}
