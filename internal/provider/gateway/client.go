// Package gateway is the HTTP client of the payment gateway used for
// registration fees and GATEWAY product orders.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fastprodman/retailpay/internal/config"
	"github.com/fastprodman/retailpay/internal/infra/metrics"
	"github.com/fastprodman/retailpay/internal/money"
	"github.com/fastprodman/retailpay/internal/provider"
	"github.com/fastprodman/retailpay/internal/provider/httpretry"
)

const metricsName = "gateway"

type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusPaid      Status = "PAID"
	StatusFailed    Status = "FAILED"
	StatusExpired   Status = "EXPIRED"
	StatusCancelled Status = "CANCELLED"
)

type Client struct {
	baseURL   string
	keyID     string
	keySecret string
	http      *http.Client
	retry     httpretry.Policy
	log       *slog.Logger
}

type Option func(*Client)

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

func New(cfg config.GatewayConfig, retry config.RetryConfig, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		keyID:     cfg.KeyID,
		keySecret: cfg.KeySecret,
		http:      &http.Client{Timeout: cfg.Timeout},
		retry:     httpretry.FromConfig(retry),
		log:       slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.log = c.log.With("component", "gateway-client")

	return c
}

type CreateOrderRequest struct {
	// Receipt is the core order id; it doubles as idempotency key.
	Receipt string
	Amount  money.Amount
	Notes   map[string]string
}

type Order struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
}

type Verification struct {
	Status        Status
	PaymentMethod string
	PaidAt        *time.Time
}

type wireCreateOrder struct {
	Receipt  string            `json:"receipt"`
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type wireOrder struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PaymentMethod string `json:"payment_method"`
	PaidAt        int64  `json:"paid_at"`
}

// CreateOrder registers a payable order of req.Amount with the gateway.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (Order, error) {
	body, err := json.Marshal(wireCreateOrder{
		Receipt:  req.Receipt,
		Amount:   int64(req.Amount),
		Currency: money.Currency,
		Notes:    req.Notes,
	})
	if err != nil {
		return Order{}, fmt.Errorf("encode order: %w", err)
	}

	var w wireOrder

	err = c.call(ctx, "create_order", http.MethodPost, "/orders", req.Receipt, body, &w)
	if err != nil {
		return Order{}, err
	}

	if w.ID == "" {
		return Order{}, fmt.Errorf("create order: %w: empty order id", provider.ErrProviderRejected)
	}

	return Order{ID: w.ID, Status: normalize(w.Status)}, nil
}

// VerifyOrder asks the gateway for the authoritative status of an order.
func (c *Client) VerifyOrder(ctx context.Context, gatewayOrderID string) (Verification, error) {
	var w wireOrder

	err := c.call(ctx, "verify_order", http.MethodGet, "/orders/"+url.PathEscape(gatewayOrderID), "", nil, &w)
	if err != nil {
		return Verification{}, err
	}

	v := Verification{Status: normalize(w.Status), PaymentMethod: w.PaymentMethod}
	if w.PaidAt > 0 {
		at := time.Unix(w.PaidAt, 0).UTC()
		v.PaidAt = &at
	}

	return v, nil
}

// normalize maps gateway vocabularies onto Status. Unknown states stay
// CREATED so that nothing is settled on a guess.
func normalize(s string) Status {
	switch strings.ToUpper(s) {
	case "PAID", "CAPTURED":
		return StatusPaid
	case "FAILED":
		return StatusFailed
	case "EXPIRED":
		return StatusExpired
	case "CANCELLED", "CANCELED":
		return StatusCancelled
	default:
		return StatusCreated
	}
}

func (c *Client) call(ctx context.Context, operation, method, path, idempotencyKey string, body []byte, out any) error {
	started := time.Now()
	outcome := provider.OutcomeSuccess

	defer func() { metrics.ObserveProviderCall(metricsName, operation, string(outcome), started) }()

	resp, err := httpretry.Do(ctx, c.http, c.retry, func(ctx context.Context) (*http.Request, error) {
		var rdr io.Reader
		if body != nil {
			rdr = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
		if err != nil {
			return nil, err
		}

		req.SetBasicAuth(c.keyID, c.keySecret)
		req.Header.Set("Accept", "application/json")

		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		if idempotencyKey != "" {
			req.Header.Set(provider.IdempotencyHeader, idempotencyKey)
		}

		return req, nil
	})
	if err != nil {
		outcome = provider.OutcomeAmbiguous
		c.log.WarnContext(ctx, "gateway call failed", "operation", operation, "error", err)

		return fmt.Errorf("%s: %w", operation, err)
	}
	//nolint:errcheck
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		outcome = provider.OutcomeAmbiguous
		return fmt.Errorf("%s: %w: read body: %w", operation, provider.ErrProviderTransient, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		outcome = provider.OutcomeFailed
		c.log.WarnContext(ctx, "gateway rejected call", "operation", operation, "status", resp.StatusCode, "body", string(raw))

		return fmt.Errorf("%s: %w (status %d)", operation, provider.ErrProviderRejected, resp.StatusCode)
	}

	err = json.Unmarshal(raw, out)
	if err != nil {
		outcome = provider.OutcomeAmbiguous
		c.log.WarnContext(ctx, "undecodable gateway response", "operation", operation, "body", string(raw))

		return fmt.Errorf("%s: %w: decode: %w", operation, provider.ErrProviderTransient, err)
	}

	c.log.DebugContext(ctx, "gateway response", "operation", operation, "body", string(raw))

	return nil
}
