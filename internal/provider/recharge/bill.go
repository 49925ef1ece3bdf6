package recharge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fastprodman/retailpay/internal/infra/metrics"
	"github.com/fastprodman/retailpay/internal/money"
	"github.com/fastprodman/retailpay/internal/provider"
	"github.com/fastprodman/retailpay/internal/provider/httpretry"
)

type BillQuery struct {
	Operator   string
	ConsumerID string
	// Extra carries operator specific fields (billing unit, mobile, ...).
	Extra map[string]string
}

type Bill struct {
	CustomerName string       `json:"customer_name"`
	BillNumber   string       `json:"bill_number"`
	Amount       money.Amount `json:"amount"`
	DueDate      string       `json:"due_date"`
}

type wireBill struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Bill    *Bill  `json:"bill"`
}

// FetchBill is read-only. It fails with provider.ErrBillNotAvailable when the
// provider has no payable bill for the consumer.
func (c *Client) FetchBill(ctx context.Context, q BillQuery) (Bill, error) {
	if q.Operator == "" {
		return Bill{}, errEmptyOperator
	}

	body, err := json.Marshal(map[string]any{
		"operator":    q.Operator,
		"consumer_id": q.ConsumerID,
		"extra":       q.Extra,
	})
	if err != nil {
		return Bill{}, fmt.Errorf("encode bill query: %w", err)
	}

	started := time.Now()
	outcome := provider.OutcomeFailed

	defer func() { metrics.ObserveProviderCall(metricsName, "bill_fetch", string(outcome), started) }()

	resp, err := httpretry.Do(ctx, c.http, c.retry, func(ctx context.Context) (*http.Request, error) {
		return c.newRequest(ctx, http.MethodPost, "/bill/fetch", "", body)
	})
	if err != nil {
		outcome = provider.OutcomeAmbiguous
		return Bill{}, fmt.Errorf("fetch bill: %w", err)
	}
	//nolint:errcheck
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		outcome = provider.OutcomeAmbiguous
		return Bill{}, fmt.Errorf("fetch bill: read body: %w", err)
	}

	var w wireBill

	decodeErr := json.Unmarshal(raw, &w)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Bill{}, fmt.Errorf("%w: %s", provider.ErrBillNotAvailable, q.ConsumerID)
	case resp.StatusCode >= http.StatusBadRequest:
		c.log.WarnContext(ctx, "bill fetch rejected", "operator", q.Operator, "status", resp.StatusCode, "body", string(raw))
		return Bill{}, fmt.Errorf("fetch bill: %w (status %d)", provider.ErrProviderRejected, resp.StatusCode)
	case decodeErr != nil:
		c.log.WarnContext(ctx, "undecodable bill response", "operator", q.Operator, "body", string(raw))
		return Bill{}, fmt.Errorf("fetch bill: decode: %w", decodeErr)
	}

	if !strings.EqualFold(w.Status, "SUCCESS") || w.Bill == nil || w.Bill.Amount <= 0 {
		c.log.InfoContext(ctx, "bill not available", "operator", q.Operator, "status", w.Status, "message", w.Message)
		return Bill{}, fmt.Errorf("%w: %s", provider.ErrBillNotAvailable, q.ConsumerID)
	}

	outcome = provider.OutcomeSuccess

	return *w.Bill, nil
}
