package transactions

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/fastprodman/retailpay/internal/repos/transactions"
)

// FindByOrder returns every transaction of an order, oldest first.
func (r *transactionsRepo) FindByOrder(ctx context.Context, orderID uuid.UUID) ([]transactions.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE order_id = $1
		ORDER BY created_at, id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("find by order: %w", err)
	}

	out, err := scanTransactions(rows)
	if err != nil {
		return nil, fmt.Errorf("scan transactions: %w", err)
	}

	return out, nil
}

// ListByOwner returns the newest transactions of an owner first.
func (r *transactionsRepo) ListByOwner(ctx context.Context, ownerID uint64, limit int) ([]transactions.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE owner_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2
	`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list by owner: %w", err)
	}

	out, err := scanTransactions(rows)
	if err != nil {
		return nil, fmt.Errorf("scan transactions: %w", err)
	}

	return out, nil
}

// Totals sums applied rows that still hold or moved money: pending debits
// are already reserved out of the balance, failed ones were restored.
func (r *transactionsRepo) Totals(ctx context.Context, ownerID uint64) (transactions.Totals, error) {
	var t transactions.Totals

	err := r.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE direction = 'credit'), 0),
			COALESCE(SUM(amount) FILTER (WHERE direction = 'debit'), 0)
		FROM transactions
		WHERE owner_id = $1
		  AND applied
		  AND status IN ('pending', 'success', 'reversed')
	`, ownerID).Scan(&t.Credits, &t.Debits)
	if err != nil {
		return transactions.Totals{}, fmt.Errorf("sum transactions: %w", err)
	}

	return t, nil
}
