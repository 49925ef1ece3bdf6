package registrations

import (
	"context"
	"fmt"

	"github.com/fastprodman/retailpay/internal/repos/registrations"
)

func (r *registrationsRepo) Insert(ctx context.Context, p registrations.Payment) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO registration_payments (
			order_id, gateway_order_id, base_amount, tax_amount, total_amount, status
		)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, p.OrderID, p.GatewayOrderID, p.Base, p.Tax, p.Total, p.Status)
	if err != nil {
		return fmt.Errorf("insert registration payment: %w", err)
	}

	return nil
}
