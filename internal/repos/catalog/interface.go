package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fastprodman/retailpay/internal/money"
)

var (
	ErrOperatorNotFound = errors.New("operator not found")
	ErrAmountOutOfRange = errors.New("amount out of operator range")
)

type Operator struct {
	Code              string          `json:"code"`
	Name              string          `json:"name"`
	Service           string          `json:"service"`
	MinAmount         money.Amount    `json:"minAmount"`
	MaxAmount         money.Amount    `json:"maxAmount"`
	RewardPercent     decimal.Decimal `json:"rewardPercent"`
	BillFetchRequired bool            `json:"billFetchRequired"`
	Active            bool            `json:"active"`
}

// CheckAmount enforces the operator's inclusive [min, max] bounds.
func (o Operator) CheckAmount(amount money.Amount) error {
	if amount < o.MinAmount || amount > o.MaxAmount {
		return fmt.Errorf("%w: %s must be within %s..%s for %s",
			ErrAmountOutOfRange, amount, o.MinAmount, o.MaxAmount, o.Code)
	}

	return nil
}

// Reward is the operator's commission on amount, rounded down to the paisa.
func (o Operator) Reward(amount money.Amount) money.Amount {
	return amount.Percent(o.RewardPercent)
}

type Circle struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type Catalog interface {
	Operator(ctx context.Context, code string) (Operator, error)
	Operators(ctx context.Context, service string) ([]Operator, error)
	Circles(ctx context.Context) ([]Circle, error)
}
