package transactions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/fastprodman/retailpay/internal/repos/transactions"
)

func (r *transactionsRepo) Get(ctx context.Context, id uuid.UUID) (transactions.Transaction, error) {
	t, err := scanTransaction(r.db.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return transactions.Transaction{}, transactions.ErrNotFound
		}

		return transactions.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}

	return t, nil
}

func (r *transactionsRepo) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (transactions.Transaction, error) {
	t, err := scanTransaction(tx.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return transactions.Transaction{}, transactions.ErrNotFound
		}

		return transactions.Transaction{}, fmt.Errorf("lock/get transaction: %w", err)
	}

	return t, nil
}

// FindByExternalRef returns the most recent transaction carrying ref.
func (r *transactionsRepo) FindByExternalRef(ctx context.Context, ref string) (transactions.Transaction, error) {
	if ref == "" {
		return transactions.Transaction{}, transactions.ErrNotFound
	}

	t, err := scanTransaction(r.db.QueryRowContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE provider_ref = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, ref))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return transactions.Transaction{}, transactions.ErrNotFound
		}

		return transactions.Transaction{}, fmt.Errorf("find by provider ref: %w", err)
	}

	return t, nil
}
