package transactions

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fastprodman/retailpay/internal/repos/transactions"
)

// MarkFinal is a compare-and-set on status: it only applies while the row
// is still in change.From, so concurrent finalizers cannot both win.
func (r *transactionsRepo) MarkFinal(ctx context.Context, tx *sql.Tx, change transactions.StatusChange) error {
	if !change.From.CanTransition(change.To) {
		return fmt.Errorf("%w: %s -> %s", transactions.ErrStatusConflict, change.From, change.To)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE transactions
		SET status = $3,
		    provider_ref = CASE WHEN $4 <> '' THEN $4 ELSE provider_ref END,
		    failure_reason = CASE WHEN $5 <> '' THEN $5 ELSE failure_reason END,
		    manual = manual OR $6,
		    manual_note = CASE WHEN $7 <> '' THEN $7 ELSE manual_note END,
		    finalized_at = COALESCE(finalized_at, now())
		WHERE id = $1
		  AND status = $2
	`, change.ID, change.From, change.To, change.ProviderRef, change.FailureReason, change.Manual, change.ManualNote)
	if err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("%w: %s is not %s", transactions.ErrStatusConflict, change.ID, change.From)
	}

	return nil
}
