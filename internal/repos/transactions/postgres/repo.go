package transactions

import (
	"database/sql"

	"github.com/fastprodman/retailpay/internal/repos/transactions"
)

var _ transactions.Transactions = (*transactionsRepo)(nil)

type transactionsRepo struct{ db *sql.DB }

func New(db *sql.DB) *transactionsRepo {
	return &transactionsRepo{db: db}
}

const transactionColumns = `id, owner_id, direction, amount, kind, status, applied, order_id,
	provider_ref, reverses_id, reason, failure_reason, manual, manual_note, created_at, finalized_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (transactions.Transaction, error) {
	var (
		t           transactions.Transaction
		finalizedAt sql.NullTime
	)

	err := row.Scan(
		&t.ID, &t.OwnerID, &t.Direction, &t.Amount, &t.Kind, &t.Status, &t.Applied, &t.OrderID,
		&t.ProviderRef, &t.ReversesID, &t.Reason, &t.FailureReason, &t.Manual, &t.ManualNote,
		&t.CreatedAt, &finalizedAt,
	)
	if err != nil {
		return transactions.Transaction{}, err
	}

	if finalizedAt.Valid {
		at := finalizedAt.Time
		t.FinalizedAt = &at
	}

	return t, nil
}

func scanTransactions(rows *sql.Rows) ([]transactions.Transaction, error) {
	//nolint:errcheck
	defer rows.Close()

	out := make([]transactions.Transaction, 0)

	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, t)
	}

	return out, rows.Err()
}
