// Package recharge is the HTTP client of the recharge and bill-payment API.
package recharge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/fastprodman/retailpay/internal/config"
	"github.com/fastprodman/retailpay/internal/infra/metrics"
	"github.com/fastprodman/retailpay/internal/money"
	"github.com/fastprodman/retailpay/internal/provider"
	"github.com/fastprodman/retailpay/internal/provider/httpretry"
)

const (
	metricsName = "recharge"

	// statusUnknownRequest is the status body of a 404 status query whose
	// request id never reached the provider.
	statusUnknownRequest = "UNKNOWN_REQUEST"
)

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	retry   httpretry.Policy
	plans   *expirable.LRU[string, []Plan]
	log     *slog.Logger
}

type Option func(*Client)

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func New(cfg config.RechargeProviderConfig, retry config.RetryConfig, opts ...Option) *Client {
	size := cfg.PlanSize
	if size <= 0 {
		size = 256
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
		retry:   httpretry.FromConfig(retry),
		plans:   expirable.NewLRU[string, []Plan](size, nil, cfg.PlanTTL),
		log:     slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.log = c.log.With("component", "recharge-client")

	return c
}

type Request struct {
	// RequestID is generated before the call and doubles as idempotency key.
	RequestID string
	Operator  string
	Target    string
	Circle    string
	Amount    money.Amount
}

type Result struct {
	Outcome     provider.Outcome
	ProviderRef string
	// Commission as reported by the provider; zero when not reported.
	Commission money.Amount
	Message    string
}

type wireRecharge struct {
	RequestID string       `json:"request_id"`
	Operator  string       `json:"operator"`
	Number    string       `json:"number"`
	Amount    money.Amount `json:"amount"`
	Circle    string       `json:"circle,omitempty"`
}

type wireResult struct {
	Status      string        `json:"status"`
	ProviderRef string        `json:"provider_ref"`
	Message     string        `json:"message"`
	Commission  *money.Amount `json:"commission,omitempty"`
}

// SubmitRecharge never reports a transport problem as failure: anything that
// is not an explicit SUCCESS or FAILED comes back ambiguous.
func (c *Client) SubmitRecharge(ctx context.Context, req Request) (Result, error) {
	body, err := json.Marshal(wireRecharge{
		RequestID: req.RequestID,
		Operator:  req.Operator,
		Number:    req.Target,
		Amount:    req.Amount,
		Circle:    req.Circle,
	})
	if err != nil {
		return Result{}, fmt.Errorf("encode recharge: %w", err)
	}

	started := time.Now()
	res := c.rechargeCall(ctx, req.RequestID, c.classify, func(ctx context.Context) (*http.Request, error) {
		return c.newRequest(ctx, http.MethodPost, "/recharge", req.RequestID, body)
	})
	metrics.ObserveProviderCall(metricsName, "submit", string(res.Outcome), started)

	return res, nil
}

// RechargeStatus re-queries a previously submitted recharge by its request id.
func (c *Client) RechargeStatus(ctx context.Context, requestID string) (Result, error) {
	path := "/recharge/status?" + url.Values{"request_id": {requestID}}.Encode()

	started := time.Now()
	res := c.rechargeCall(ctx, requestID, c.classifyStatus, func(ctx context.Context) (*http.Request, error) {
		return c.newRequest(ctx, http.MethodGet, path, requestID, nil)
	})
	metrics.ObserveProviderCall(metricsName, "status", string(res.Outcome), started)

	return res, nil
}

type classifier func(ctx context.Context, requestID string, code int, raw []byte) Result

func (c *Client) rechargeCall(ctx context.Context, requestID string, classify classifier, newReq func(context.Context) (*http.Request, error)) Result {
	resp, err := httpretry.Do(ctx, c.http, c.retry, newReq)
	if err != nil {
		c.log.WarnContext(ctx, "recharge call ambiguous", "request_id", requestID, "error", err)

		return Result{Outcome: provider.OutcomeAmbiguous, Message: "provider unavailable"}
	}
	//nolint:errcheck
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		c.log.WarnContext(ctx, "read recharge response", "request_id", requestID, "error", err)

		return Result{Outcome: provider.OutcomeAmbiguous, Message: "provider response unreadable"}
	}

	return classify(ctx, requestID, resp.StatusCode, raw)
}

// classifyStatus maps a status-query reply. A rejected query says nothing
// about the recharge itself, so only an explicit FAILED body or a 404 naming
// the request id as unknown counts as failed. Other 4xx stay ambiguous.
func (c *Client) classifyStatus(ctx context.Context, requestID string, code int, raw []byte) Result {
	if code < http.StatusBadRequest {
		return c.classify(ctx, requestID, code, raw)
	}

	var w wireResult

	_ = json.Unmarshal(raw, &w)

	if code == http.StatusNotFound && strings.EqualFold(w.Status, statusUnknownRequest) {
		c.log.WarnContext(ctx, "recharge unknown to provider", "request_id", requestID, "body", string(raw))

		return Result{Outcome: provider.OutcomeFailed, Message: "recharge not received by provider"}
	}

	c.log.WarnContext(ctx, "recharge status query rejected", "request_id", requestID, "status", code, "body", string(raw))

	return Result{Outcome: provider.OutcomeAmbiguous, Message: "status query rejected"}
}

func (c *Client) classify(ctx context.Context, requestID string, code int, raw []byte) Result {
	var w wireResult

	decodeErr := json.Unmarshal(raw, &w)

	switch {
	case code == http.StatusConflict, code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		// The request id may already be in flight on the provider side.
		c.log.WarnContext(ctx, "recharge response ambiguous", "request_id", requestID, "status", code, "body", string(raw))

		return Result{Outcome: provider.OutcomeAmbiguous, ProviderRef: w.ProviderRef, Message: w.Message}
	case code >= http.StatusBadRequest:
		c.log.WarnContext(ctx, "recharge rejected", "request_id", requestID, "status", code, "body", string(raw))

		return Result{Outcome: provider.OutcomeFailed, ProviderRef: w.ProviderRef, Message: rejectionMessage(w.Message)}
	case decodeErr != nil:
		c.log.WarnContext(ctx, "undecodable recharge response", "request_id", requestID, "body", string(raw), "error", decodeErr)

		return Result{Outcome: provider.OutcomeAmbiguous, Message: "provider response undecodable"}
	}

	c.log.DebugContext(ctx, "recharge response", "request_id", requestID, "body", string(raw))

	res := Result{ProviderRef: w.ProviderRef, Message: w.Message}
	if w.Commission != nil {
		res.Commission = *w.Commission
	}

	switch strings.ToUpper(w.Status) {
	case "SUCCESS":
		res.Outcome = provider.OutcomeSuccess
	case "FAILED", "FAILURE", "REJECTED":
		res.Outcome = provider.OutcomeFailed
		res.Message = rejectionMessage(w.Message)
	default:
		res.Outcome = provider.OutcomeAmbiguous
	}

	return res
}

func rejectionMessage(m string) string {
	if m == "" {
		return "recharge rejected by operator"
	}

	return m
}

func (c *Client) newRequest(ctx context.Context, method, path, requestID string, body []byte) (*http.Request, error) {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return nil, err
	}

	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if requestID != "" {
		req.Header.Set(provider.IdempotencyHeader, requestID)
	}

	return req, nil
}

// getJSON performs a read-only call and decodes a 2xx body into out.
// 4xx responses wrap provider.ErrProviderRejected.
func (c *Client) getJSON(ctx context.Context, operation, path string, out any) error {
	started := time.Now()
	outcome := provider.OutcomeSuccess

	defer func() { metrics.ObserveProviderCall(metricsName, operation, string(outcome), started) }()

	resp, err := httpretry.Do(ctx, c.http, c.retry, func(ctx context.Context) (*http.Request, error) {
		return c.newRequest(ctx, http.MethodGet, path, "", nil)
	})
	if err != nil {
		outcome = provider.OutcomeAmbiguous
		return fmt.Errorf("%s: %w", operation, err)
	}
	//nolint:errcheck
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		outcome = provider.OutcomeAmbiguous
		return fmt.Errorf("%s: read body: %w", operation, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		outcome = provider.OutcomeFailed
		c.log.WarnContext(ctx, "provider call rejected", "operation", operation, "status", resp.StatusCode, "body", string(raw))

		return fmt.Errorf("%s: %w (status %d)", operation, provider.ErrProviderRejected, resp.StatusCode)
	}

	err = json.Unmarshal(raw, out)
	if err != nil {
		outcome = provider.OutcomeFailed
		c.log.WarnContext(ctx, "undecodable provider response", "operation", operation, "body", string(raw))

		return fmt.Errorf("%s: decode: %w", operation, err)
	}

	return nil
}

var errEmptyOperator = errors.New("operator is required")
