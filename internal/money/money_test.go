package money

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Amount
		wantErr error
	}{
		{in: "10.15", want: 1015},
		{in: "300", want: 30000},
		{in: " 0.5 ", want: 50},
		{in: "1.230", want: 123},
		{in: "-2.00", want: -200},
		{in: "1.234", wantErr: ErrAmountPrecision},
		{in: "abc", wantErr: ErrInvalidAmount},
		{in: "", wantErr: ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			got, err := Parse(tt.in)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("want %v, got %v", tt.wantErr, err)
				}

				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if got != tt.want {
				t.Fatalf("want %d, got %d", tt.want, got)
			}
		})
	}
}

func TestParsePositive_RejectsZero(t *testing.T) {
	t.Parallel()

	_, err := ParsePositive("0.00")
	if !errors.Is(err, ErrNonPositive) {
		t.Fatalf("want ErrNonPositive, got %v", err)
	}
}

func TestPercent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		amount Amount
		pct    string
		want   Amount
	}{
		{name: "two_percent_of_300", amount: FromRupees(300), pct: "2", want: FromRupees(6)},
		{name: "fractional_rounds_down", amount: 999, pct: "1.5", want: 14},
		{name: "zero_rate", amount: FromRupees(100), pct: "0", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := tt.amount.Percent(decimal.RequireFromString(tt.pct))
			if got != tt.want {
				t.Fatalf("want %s, got %s", tt.want, got)
			}
		})
	}
}

func TestPercentRounded_RegistrationTax(t *testing.T) {
	t.Parallel()

	base := Amount(42288)

	tax := base.PercentRounded(decimal.NewFromInt(18))
	if tax != 7612 {
		t.Fatalf("tax: want 76.12, got %s", tax)
	}

	if base+tax != FromRupees(499) {
		t.Fatalf("total: want 499.00, got %s", base+tax)
	}
}

func TestAmount_JSON(t *testing.T) {
	t.Parallel()

	b, err := json.Marshal(struct {
		A Amount `json:"a"`
	}{A: 20600})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	if string(b) != `{"a":"206.00"}` {
		t.Fatalf("unexpected json: %s", b)
	}

	var out struct {
		A Amount `json:"a"`
	}

	err = json.Unmarshal([]byte(`{"a":"49.90"}`), &out)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if out.A != 4990 {
		t.Fatalf("want 4990, got %d", out.A)
	}
}
