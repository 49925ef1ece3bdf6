// Package httpretry sends HTTP requests with bounded exponential backoff.
// Network errors and 5xx responses are retried; anything else is handed back.
package httpretry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/fastprodman/retailpay/internal/config"
	"github.com/fastprodman/retailpay/internal/provider"
)

type Policy struct {
	MaxAttempts     uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func FromConfig(cfg config.RetryConfig) Policy {
	return Policy{
		MaxAttempts:     cfg.MaxAttempts,
		InitialInterval: cfg.InitialInterval,
		MaxInterval:     cfg.MaxInterval,
	}
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	attempts := p.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}

	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(p.InitialInterval),
		backoff.WithMaxInterval(p.MaxInterval),
		backoff.WithMaxElapsedTime(0),
	)

	return backoff.WithContext(backoff.WithMaxRetries(b, attempts-1), ctx)
}

// Do builds a fresh request per attempt with newReq and sends it.
// When every attempt fails with a network error or 5xx, the returned error
// wraps provider.ErrProviderTransient. A non-5xx response is returned as is
// and the caller owns its body.
func Do(ctx context.Context, client *http.Client, p Policy, newReq func(context.Context) (*http.Request, error)) (*http.Response, error) {
	var resp *http.Response

	op := func() error {
		req, err := newReq(ctx)
		if err != nil {
			return backoff.Permanent(&buildError{err: fmt.Errorf("build request: %w", err)})
		}

		r, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}

			return err
		}

		if r.StatusCode >= http.StatusInternalServerError {
			body, _ := io.ReadAll(io.LimitReader(r.Body, 4<<10))
			_ = r.Body.Close()

			return &StatusError{Code: r.StatusCode, Body: string(body)}
		}

		resp = r

		return nil
	}

	err := backoff.Retry(op, p.backOff(ctx))
	if err != nil {
		var buildErr *buildError
		if errors.As(err, &buildErr) {
			return nil, err
		}

		return nil, fmt.Errorf("%w: %w", provider.ErrProviderTransient, err)
	}

	return resp, nil
}

// StatusError is a 5xx response that exhausted the retries.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d", e.Code)
}

type buildError struct{ err error }

func (e *buildError) Error() string { return e.err.Error() }
func (e *buildError) Unwrap() error { return e.err }
