// Package money holds the fixed-point currency amount used across the wallet
// core. Amounts are integer paise; decimals only appear at the edges (request
// parsing, JSON, percentage math).
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency is the only currency the wallet core handles.
const Currency = "INR"

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrAmountPrecision = errors.New("amount supports up to 2 decimals")
	ErrNonPositive     = errors.New("amount must be > 0")
)

// Amount is a currency value in minor units (paise).
type Amount int64

// FromRupees builds an Amount from whole rupees.
func FromRupees(r int64) Amount { return Amount(r * 100) }

// Parse converts a decimal string with up to 2 fractional digits into paise.
func Parse(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	if !d.Equal(d.Truncate(2)) {
		return 0, ErrAmountPrecision
	}

	paise := d.Shift(2)
	if !paise.IsInteger() || paise.Abs().GreaterThan(decimal.NewFromInt(1<<62)) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	return Amount(paise.IntPart()), nil
}

// ParsePositive is Parse that also rejects zero and negative values.
func ParsePositive(s string) (Amount, error) {
	a, err := Parse(s)
	if err != nil {
		return 0, err
	}

	if a <= 0 {
		return 0, ErrNonPositive
	}

	return a, nil
}

// Decimal returns the amount in rupees.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -2)
}

func (a Amount) String() string {
	return a.Decimal().StringFixed(2)
}

// Percent returns pct percent of a, rounded down to the paisa.
func (a Amount) Percent(pct decimal.Decimal) Amount {
	if pct.IsZero() || a == 0 {
		return 0
	}

	v := decimal.NewFromInt(int64(a)).Mul(pct).Div(decimal.NewFromInt(100))

	return Amount(v.Floor().IntPart())
}

// PercentRounded returns pct percent of a, rounded half away from zero.
// Used for taxes, where the invoice total must match what the gateway charges.
func (a Amount) PercentRounded(pct decimal.Decimal) Amount {
	v := decimal.NewFromInt(int64(a)).Mul(pct).Div(decimal.NewFromInt(100))

	return Amount(v.Round(0).IntPart())
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)

	v, err := Parse(s)
	if err != nil {
		return err
	}

	*a = v

	return nil
}
