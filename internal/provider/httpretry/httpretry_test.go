package httpretry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fastprodman/retailpay/internal/provider"
)

var fast = Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}

func get(url string) func(context.Context) (*http.Request, error) {
	return func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	}
}

func TestDo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		failures     int32
		failStatus   int
		wantErr      error
		wantStatus   int
		wantAttempts int32
	}{
		{name: "first_try", wantStatus: http.StatusOK, wantAttempts: 1},
		{name: "recovers_after_5xx", failures: 2, failStatus: http.StatusBadGateway, wantStatus: http.StatusOK, wantAttempts: 3},
		{name: "exhausted_5xx_is_transient", failures: 10, failStatus: http.StatusServiceUnavailable, wantErr: provider.ErrProviderTransient, wantAttempts: 3},
		{name: "4xx_not_retried", failures: 10, failStatus: http.StatusBadRequest, wantStatus: http.StatusBadRequest, wantAttempts: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var attempts atomic.Int32

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				if attempts.Add(1) <= tt.failures {
					w.WriteHeader(tt.failStatus)
					return
				}

				w.WriteHeader(http.StatusOK)
			}))
			defer srv.Close()

			resp, err := Do(context.Background(), srv.Client(), fast, get(srv.URL))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				var statusErr *StatusError
				require.True(t, errors.As(err, &statusErr))
				require.Equal(t, tt.failStatus, statusErr.Code)
			} else {
				require.NoError(t, err)
				require.Equal(t, tt.wantStatus, resp.StatusCode)
				_ = resp.Body.Close()
			}

			require.Equal(t, tt.wantAttempts, attempts.Load())
		})
	}
}

func TestDo_NetworkErrorIsTransient(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := Do(context.Background(), http.DefaultClient, fast, get(url))
	require.ErrorIs(t, err, provider.ErrProviderTransient)
}

func TestDo_BuildErrorIsNotTransient(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")

	_, err := Do(context.Background(), http.DefaultClient, fast, func(context.Context) (*http.Request, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, provider.ErrProviderTransient)
}
