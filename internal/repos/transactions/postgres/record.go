package transactions

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fastprodman/retailpay/internal/infra/pgutils"
	"github.com/fastprodman/retailpay/internal/repos/transactions"
)

// Record appends t. Final rows get finalized_at stamped on insert.
// A second live debit for the same order, a second reward or refund for the
// same order, or a second reversal of the same row fail with
// ErrDuplicateTransaction.
func (r *transactionsRepo) Record(ctx context.Context, tx *sql.Tx, t transactions.Transaction) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (
			id, owner_id, direction, amount, kind, status, applied, order_id,
			provider_ref, reverses_id, reason, failure_reason, manual, manual_note, finalized_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			CASE WHEN $6 = 'pending' THEN NULL ELSE now() END)
	`,
		t.ID, t.OwnerID, t.Direction, t.Amount, t.Kind, t.Status, t.Applied, t.OrderID,
		t.ProviderRef, t.ReversesID, t.Reason, t.FailureReason, t.Manual, t.ManualNote,
	)
	if err != nil {
		if pgutils.IsUniqueViolation(err, "") {
			return fmt.Errorf("%w: %w", transactions.ErrDuplicateTransaction, err)
		}

		return fmt.Errorf("insert transaction: %w", err)
	}

	return nil
}
