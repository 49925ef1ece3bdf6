package ledger

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/fastprodman/retailpay/internal/infra/logging"
	"github.com/fastprodman/retailpay/internal/infra/pgtestutil"
	"github.com/fastprodman/retailpay/internal/money"
	"github.com/fastprodman/retailpay/internal/repos/transactions"
)

func newLedger(t *testing.T) (*Service, *sql.DB) {
	t.Helper()

	db, cleanup := pgtestutil.NewTestDB(t)
	t.Cleanup(cleanup)

	return New(db, WithLogger(logging.Discard()), WithLockTimeout(5*time.Second)), db
}

func requireBalance(t *testing.T, s *Service, ownerID uint64, want money.Amount) {
	t.Helper()

	got, err := s.GetBalance(context.Background(), ownerID)
	require.NoError(t, err)
	require.Equal(t, want, got, "balance")

	report, err := s.Audit(context.Background(), ownerID)
	require.NoError(t, err)
	require.True(t, report.Consistent, "audit: %+v", report)
}

func TestReserveAndDebit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		balance     int64
		owner       uint64
		amount      money.Amount
		wantErr     error
		wantBalance money.Amount
	}{
		{name: "ok", balance: 50000, owner: 1, amount: 30000, wantBalance: 20000},
		{name: "exact", balance: 50000, owner: 1, amount: 50000, wantBalance: 0},
		{name: "insufficient_funds", balance: 100000, owner: 1, amount: 105000, wantErr: ErrInsufficientFunds, wantBalance: 100000},
		{name: "wallet_not_found", balance: 0, owner: 99, amount: 100, wantErr: ErrWalletNotFound},
		{name: "zero_amount", balance: 100, owner: 1, amount: 0, wantErr: money.ErrNonPositive, wantBalance: 100},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s, db := newLedger(t)
			pgtestutil.SeedWallet(t, db, 1, tt.balance)

			h, err := s.ReserveAndDebit(context.Background(), Debit{
				OwnerID: tt.owner, Amount: tt.amount, Kind: transactions.KindRecharge, Reason: "test",
			})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				require.Equal(t, tt.amount, h.Amount)

				got, err := s.Recorder().Get(context.Background(), h.TransactionID)
				require.NoError(t, err)
				require.Equal(t, transactions.StatusPending, got.Status)
				require.Equal(t, transactions.Debit, got.Direction)
			}

			if tt.owner == 1 {
				requireBalance(t, s, 1, tt.wantBalance)
			}
		})
	}
}

func TestReserveAndDebit_NoDoubleSpend(t *testing.T) {
	t.Parallel()

	s, db := newLedger(t)
	pgtestutil.SeedWallet(t, db, 1, 30000)

	const workers = 10

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		ok, rejected int
	)

	for range workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := s.ReserveAndDebit(context.Background(), Debit{
				OwnerID: 1, Amount: 30000, Kind: transactions.KindProductPurchase,
			})

			mu.Lock()
			defer mu.Unlock()

			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrInsufficientFunds):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}

	wg.Wait()

	require.Equal(t, 1, ok)
	require.Equal(t, workers-1, rejected)
	requireBalance(t, s, 1, 0)
}

func TestFinalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		outcome     transactions.Status
		wantBalance money.Amount
	}{
		{name: "success_keeps_debit", outcome: transactions.StatusSuccess, wantBalance: 20000},
		{name: "failure_compensates", outcome: transactions.StatusFailed, wantBalance: 50000},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s, db := newLedger(t)
			pgtestutil.SeedWallet(t, db, 1, 50000)
			ctx := context.Background()

			h, err := s.ReserveAndDebit(ctx, Debit{OwnerID: 1, Amount: 30000, Kind: transactions.KindRecharge})
			require.NoError(t, err)

			got, err := s.Finalize(ctx, Finalization{TransactionID: h.TransactionID, Outcome: tt.outcome, ProviderRef: "PRV-1"})
			require.NoError(t, err)
			require.Equal(t, tt.outcome, got.Status)
			requireBalance(t, s, 1, tt.wantBalance)

			// Same outcome again is a no-op.
			_, err = s.Finalize(ctx, Finalization{TransactionID: h.TransactionID, Outcome: tt.outcome})
			require.NoError(t, err)
			requireBalance(t, s, 1, tt.wantBalance)

			other := transactions.StatusFailed
			if tt.outcome == transactions.StatusFailed {
				other = transactions.StatusSuccess
			}

			_, err = s.Finalize(ctx, Finalization{TransactionID: h.TransactionID, Outcome: other})
			require.ErrorIs(t, err, ErrInvalidTransition)
			requireBalance(t, s, 1, tt.wantBalance)

			// Exactly one row for the debit, whatever the outcome.
			list, err := s.History(ctx, 1, 10)
			require.NoError(t, err)
			require.Len(t, list, 2)
		})
	}
}

func TestCredit_RewardIsIdempotentPerOrder(t *testing.T) {
	t.Parallel()

	s, db := newLedger(t)
	pgtestutil.SeedWallet(t, db, 1, 50000)
	ctx := context.Background()

	orderID := uuid.New()
	pgtestutil.MustExec(t, db, `
		INSERT INTO orders (id, owner_id, kind, target, amount, payment_method, status)
		VALUES ($1, 1, 'recharge', '9876543210', 30000, 'WALLET', 'FULFILLED')
	`, orderID)

	reward := Credit{
		OwnerID: 1, Amount: 600, Kind: transactions.KindReward,
		OrderID: uuid.NullUUID{UUID: orderID, Valid: true},
	}

	_, err := s.Credit(ctx, reward)
	require.NoError(t, err)

	_, err = s.Credit(ctx, reward)
	require.ErrorIs(t, err, ErrDuplicateTransaction)

	requireBalance(t, s, 1, 50600)

	_, err = s.Credit(ctx, Credit{OwnerID: 42, Amount: 100, Kind: transactions.KindAdminAdjustment})
	require.ErrorIs(t, err, ErrWalletNotFound)
}

func TestReverse(t *testing.T) {
	t.Parallel()

	s, db := newLedger(t)
	pgtestutil.SeedWallet(t, db, 1, 50000)
	ctx := context.Background()

	h, err := s.ReserveAndDebit(ctx, Debit{OwnerID: 1, Amount: 30000, Kind: transactions.KindBillPayment})
	require.NoError(t, err)

	_, err = s.Reverse(ctx, Reversal{TransactionID: h.TransactionID, Note: "still pending"})
	require.ErrorIs(t, err, ErrNotReversible)

	_, err = s.Finalize(ctx, Finalization{TransactionID: h.TransactionID, Outcome: transactions.StatusSuccess})
	require.NoError(t, err)
	requireBalance(t, s, 1, 20000)

	refund, err := s.Reverse(ctx, Reversal{TransactionID: h.TransactionID, Note: "operator refunded"})
	require.NoError(t, err)
	require.Equal(t, transactions.KindRefund, refund.Kind)
	require.Equal(t, h.TransactionID, refund.ReversesID.UUID)
	requireBalance(t, s, 1, 50000)

	orig, err := s.Recorder().Get(ctx, h.TransactionID)
	require.NoError(t, err)
	require.Equal(t, transactions.StatusReversed, orig.Status)
	require.Equal(t, money.Amount(30000), orig.Amount)

	_, err = s.Reverse(ctx, Reversal{TransactionID: h.TransactionID, Note: "again"})
	require.ErrorIs(t, err, ErrNotReversible)
	requireBalance(t, s, 1, 50000)
}

func TestReserveAndDebit_ArchivedWalletIsLocked(t *testing.T) {
	t.Parallel()

	s, db := newLedger(t)
	pgtestutil.SeedWallet(t, db, 1, 50000)
	pgtestutil.MustExec(t, db, `UPDATE wallets SET status = 'archived' WHERE owner_id = 1`)

	_, err := s.ReserveAndDebit(context.Background(), Debit{OwnerID: 1, Amount: 100, Kind: transactions.KindRecharge})
	require.ErrorIs(t, err, ErrWalletLocked)
}

func TestReserveAndDebit_LockTimeout(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	t.Cleanup(cleanup)

	s := New(db, WithLogger(logging.Discard()), WithLockTimeout(100*time.Millisecond))
	pgtestutil.SeedWallet(t, db, 1, 50000)
	ctx := context.Background()

	holder, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	//nolint:errcheck
	defer holder.Rollback()

	_, err = holder.ExecContext(ctx, `SELECT 1 FROM wallets WHERE owner_id = 1 FOR UPDATE`)
	require.NoError(t, err)

	_, err = s.ReserveAndDebit(ctx, Debit{OwnerID: 1, Amount: 100, Kind: transactions.KindRecharge})
	require.ErrorIs(t, err, ErrWalletLocked)
}
