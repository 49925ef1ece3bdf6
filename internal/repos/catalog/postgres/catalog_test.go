package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/fastprodman/retailpay/internal/infra/pgtestutil"
	"github.com/fastprodman/retailpay/internal/repos/catalog"
)

func TestCatalog_Operators(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	pgtestutil.SeedOperator(t, db, "AT", 1000, 500000, "2", false)
	pgtestutil.SeedOperator(t, db, "MSEDCL", 100, 5000000, "0.5", true)
	pgtestutil.SeedOperator(t, db, "OLD", 1000, 500000, "1", false)
	pgtestutil.MustExec(t, db, `UPDATE operators SET active = FALSE WHERE code = 'OLD'`)

	repo := New(db)
	ctx := context.Background()

	tests := []struct {
		name      string
		code      string
		wantErr   error
		wantFetch bool
		wantPct   string
	}{
		{name: "prepaid", code: "AT", wantPct: "2"},
		{name: "bill_fetch", code: "MSEDCL", wantFetch: true, wantPct: "0.5"},
		{name: "inactive", code: "OLD", wantErr: catalog.ErrOperatorNotFound},
		{name: "unknown", code: "NOPE", wantErr: catalog.ErrOperatorNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, err := repo.Operator(ctx, tt.code)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("want %v, got %v", tt.wantErr, err)
			}

			if tt.wantErr != nil {
				return
			}

			if op.BillFetchRequired != tt.wantFetch || op.RewardPercent.String() != tt.wantPct {
				t.Fatalf("unexpected operator: %+v", op)
			}
		})
	}

	all, err := repo.Operators(ctx, "")
	if err != nil {
		t.Fatalf("operators: %v", err)
	}

	if len(all) != 2 {
		t.Fatalf("want 2 active operators, got %d", len(all))
	}

	power, err := repo.Operators(ctx, "electricity")
	if err != nil {
		t.Fatalf("operators by service: %v", err)
	}

	if len(power) != 1 || power[0].Code != "MSEDCL" {
		t.Fatalf("unexpected electricity operators: %+v", power)
	}
}
