package recharge

import (
	"context"
	"fmt"
	"net/url"

	"github.com/fastprodman/retailpay/internal/money"
)

type Operator struct {
	Code    string `json:"code"`
	Name    string `json:"name"`
	Service string `json:"service"`
}

type Plan struct {
	ID          string       `json:"id"`
	Amount      money.Amount `json:"amount"`
	Validity    string       `json:"validity"`
	Description string       `json:"description"`
	Category    string       `json:"category,omitempty"`
}

// Operators lists what the provider currently serves. The local catalog
// table stays authoritative for amount bounds and rewards.
func (c *Client) Operators(ctx context.Context) ([]Operator, error) {
	var out struct {
		Operators []Operator `json:"operators"`
	}

	err := c.getJSON(ctx, "operators", "/operators", &out)
	if err != nil {
		return nil, err
	}

	return out.Operators, nil
}

// Plans returns the plan catalog of an operator in a circle. Results are
// cached per (operator, circle) for the configured TTL.
func (c *Client) Plans(ctx context.Context, operator, circle string) ([]Plan, error) {
	if operator == "" {
		return nil, errEmptyOperator
	}

	key := operator + "|" + circle

	if plans, ok := c.plans.Get(key); ok {
		return plans, nil
	}

	var out struct {
		Plans []Plan `json:"plans"`
	}

	q := url.Values{"operator": {operator}}
	if circle != "" {
		q.Set("circle", circle)
	}

	err := c.getJSON(ctx, "plans", "/plans?"+q.Encode(), &out)
	if err != nil {
		return nil, fmt.Errorf("plans for %s: %w", key, err)
	}

	c.plans.Add(key, out.Plans)

	return out.Plans, nil
}
