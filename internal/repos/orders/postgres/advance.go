package orders

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/fastprodman/retailpay/internal/repos/orders"
)

// Advance moves an order forward only if the state machine allows it and the
// row is still in t.From.
func (r *ordersRepo) Advance(ctx context.Context, tx *sql.Tx, t orders.Transition) error {
	if !t.From.CanAdvance(t.To) {
		return fmt.Errorf("%w: %s -> %s", orders.ErrInvalidTransition, t.From, t.To)
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET status = $3,
		    provider_ref = CASE WHEN $4 <> '' THEN $4 ELSE provider_ref END,
		    gateway_order_id = COALESCE($5, gateway_order_id),
		    debit_tx_id = COALESCE($6, debit_tx_id),
		    failure_reason = CASE WHEN $7 <> '' THEN $7 ELSE failure_reason END,
		    updated_at = now()
		WHERE id = $1
		  AND status = $2
	`, t.ID, t.From, t.To, t.ProviderRef, nullIfEmpty(t.GatewayOrderID), t.DebitTxID, t.FailureReason)
	if err != nil {
		return fmt.Errorf("advance order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("%w: %s is not %s", orders.ErrStatusConflict, t.ID, t.From)
	}

	return nil
}

// AttachGatewayOrder stores the gateway order id of a CREATED order. It is
// written once.
func (r *ordersRepo) AttachGatewayOrder(ctx context.Context, tx *sql.Tx, id uuid.UUID, gatewayOrderID string) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE orders
		SET gateway_order_id = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'CREATED'
		  AND gateway_order_id IS NULL
	`, id, gatewayOrderID)
	if err != nil {
		return fmt.Errorf("attach gateway order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("%w: %s already has a gateway order or left CREATED", orders.ErrStatusConflict, id)
	}

	return nil
}
