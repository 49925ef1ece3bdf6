package orders

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/fastprodman/retailpay/internal/repos/orders"
)

func (r *ordersRepo) Insert(ctx context.Context, tx *sql.Tx, o orders.Order) error {
	metadata := o.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}

	raw, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (
			id, owner_id, kind, operator_code, target, circle, amount, delivery_charge,
			payment_method, status, metadata, provider_ref, gateway_order_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb, $12, $13)
	`,
		o.ID, o.OwnerID, o.Kind, o.OperatorCode, o.Target, o.Circle, o.Amount, o.DeliveryCharge,
		o.Method, o.Status, string(raw), o.ProviderRef, nullIfEmpty(o.GatewayOrderID),
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	return nil
}
