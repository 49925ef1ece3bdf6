package pgtestutil

import (
	"database/sql"
	"testing"
)

// SeedWallet inserts (or resets) a wallet with the given balance in paise.
// The opening balance is backed by an admin-adjustment credit so that the
// ledger audit holds for seeded wallets too.
func SeedWallet(t *testing.T, db *sql.DB, ownerID uint64, balance int64) {
	t.Helper()

	MustExec(t, db, `
		INSERT INTO wallets (owner_id, balance) VALUES ($1, $2)
		ON CONFLICT (owner_id) DO UPDATE SET balance = EXCLUDED.balance
	`, ownerID, balance)

	if balance > 0 {
		MustExec(t, db, `
			INSERT INTO transactions (id, owner_id, direction, amount, kind, status, reason, finalized_at)
			VALUES (gen_random_uuid(), $1, 'credit', $2, 'admin-adjustment', 'success', 'test seed', now())
		`, ownerID, balance)
	}
}

// SeedOperator inserts a catalog operator. Amounts are paise.
func SeedOperator(t *testing.T, db *sql.DB, code string, minAmount, maxAmount int64, rewardPercent string, billFetch bool) {
	t.Helper()

	MustExec(t, db, `
		INSERT INTO operators (code, name, service, min_amount, max_amount, reward_percent, bill_fetch_required)
		VALUES ($1, $1, CASE WHEN $6 THEN 'electricity' ELSE 'prepaid' END, $2, $3, $4::numeric, $5)
	`, code, minAmount, maxAmount, rewardPercent, billFetch, billFetch)
}

func MustExec(t *testing.T, db *sql.DB, query string, args ...any) {
	t.Helper()

	_, err := db.Exec(query, args...)
	if err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}
