package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/fastprodman/retailpay/internal/infra/pgtestutil"
	"github.com/fastprodman/retailpay/internal/repos/orders"
)

func TestOrders_InsertAdvanceList(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	pgtestutil.SeedWallet(t, db, 1, 0)
	repo := New(db)
	ctx := context.Background()

	o := orders.Order{
		ID:           uuid.New(),
		OwnerID:      1,
		Kind:         orders.KindRecharge,
		OperatorCode: "AT",
		Target:       "9876543210",
		Circle:       "KA",
		Amount:       30000,
		Method:       orders.MethodWallet,
		Status:       orders.StatusCreated,
		Metadata:     map[string]string{"source": "test"},
	}

	advance := func(tr orders.Transition) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}

		err = repo.Advance(ctx, tx, tr)
		if err != nil {
			_ = tx.Rollback()
			return err
		}

		return tx.Commit()
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	err = repo.Insert(ctx, tx, o)
	if err != nil {
		_ = tx.Rollback()
		t.Fatalf("insert: %v", err)
	}

	err = tx.Commit()
	if err != nil {
		t.Fatalf("commit: %v", err)
	}

	err = advance(orders.Transition{ID: o.ID, From: orders.StatusCreated, To: orders.StatusReserved})
	if err != nil {
		t.Fatalf("created -> reserved: %v", err)
	}

	err = advance(orders.Transition{ID: o.ID, From: orders.StatusCreated, To: orders.StatusFailed})
	if !errors.Is(err, orders.ErrStatusConflict) {
		t.Fatalf("stale from: want ErrStatusConflict, got %v", err)
	}

	err = advance(orders.Transition{ID: o.ID, From: orders.StatusReserved, To: orders.StatusPendingReconcile})
	if !errors.Is(err, orders.ErrInvalidTransition) {
		t.Fatalf("skip provider call: want ErrInvalidTransition, got %v", err)
	}

	err = advance(orders.Transition{ID: o.ID, From: orders.StatusReserved, To: orders.StatusProviderCalled})
	if err != nil {
		t.Fatalf("reserved -> provider called: %v", err)
	}

	err = advance(orders.Transition{
		ID: o.ID, From: orders.StatusProviderCalled, To: orders.StatusPendingReconcile, ProviderRef: "PRV-9",
	})
	if err != nil {
		t.Fatalf("provider called -> pending reconcile: %v", err)
	}

	got, err := repo.Get(ctx, o.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	if got.Status != orders.StatusPendingReconcile || got.ProviderRef != "PRV-9" || got.Metadata["source"] != "test" {
		t.Fatalf("unexpected order: %+v", got)
	}

	pending, err := repo.ListByStatus(ctx, orders.StatusPendingReconcile, time.Now().Add(time.Minute), 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	if len(pending) != 1 || pending[0].ID != o.ID {
		t.Fatalf("unexpected pending list: %+v", pending)
	}

	pending, err = repo.ListByStatus(ctx, orders.StatusPendingReconcile, time.Now().Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	if len(pending) != 0 {
		t.Fatalf("min age not honored: %+v", pending)
	}

	_, err = repo.Get(ctx, uuid.New())
	if !errors.Is(err, orders.ErrOrderNotFound) {
		t.Fatalf("want ErrOrderNotFound, got %v", err)
	}
}
