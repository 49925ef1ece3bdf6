package registrations

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fastprodman/retailpay/internal/repos/registrations"
)

// Settle moves a CREATED payment to its terminal status.
func (r *registrationsRepo) Settle(ctx context.Context, tx *sql.Tx, change registrations.StatusChange) error {
	if !change.To.Terminal() {
		return fmt.Errorf("%w: cannot settle to %s", registrations.ErrStatusConflict, change.To)
	}

	var paidAt sql.NullTime
	if change.PaidAt != nil {
		paidAt = sql.NullTime{Time: *change.PaidAt, Valid: true}
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE registration_payments
		SET status = $2,
		    payment_method = $3,
		    paid_at = $4,
		    manual = $5,
		    manual_note = $6,
		    updated_at = now()
		WHERE order_id = $1
		  AND status = 'CREATED'
	`, change.OrderID, change.To, change.PaymentMethod, paidAt, change.Manual, change.ManualNote)
	if err != nil {
		return fmt.Errorf("settle registration payment: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("%w: %s is not CREATED", registrations.ErrStatusConflict, change.OrderID)
	}

	return nil
}
