package orders

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/fastprodman/retailpay/internal/repos/orders"
)

var _ orders.Orders = (*ordersRepo)(nil)

type ordersRepo struct{ db *sql.DB }

func New(db *sql.DB) *ordersRepo {
	return &ordersRepo{db: db}
}

const orderColumns = `id, owner_id, kind, operator_code, target, circle, amount, delivery_charge,
	payment_method, status, metadata, provider_ref, COALESCE(gateway_order_id, ''), debit_tx_id,
	failure_reason, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (orders.Order, error) {
	var (
		o        orders.Order
		metadata []byte
	)

	err := row.Scan(
		&o.ID, &o.OwnerID, &o.Kind, &o.OperatorCode, &o.Target, &o.Circle, &o.Amount, &o.DeliveryCharge,
		&o.Method, &o.Status, &metadata, &o.ProviderRef, &o.GatewayOrderID, &o.DebitTxID,
		&o.FailureReason, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return orders.Order{}, err
	}

	if len(metadata) > 0 {
		err = json.Unmarshal(metadata, &o.Metadata)
		if err != nil {
			return orders.Order{}, fmt.Errorf("decode metadata: %w", err)
		}
	}

	return o, nil
}

func scanOrders(rows *sql.Rows) ([]orders.Order, error) {
	//nolint:errcheck
	defer rows.Close()

	out := make([]orders.Order, 0)

	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}

		out = append(out, o)
	}

	return out, rows.Err()
}

// nullIfEmpty keeps the UNIQUE gateway_order_id column NULL for orders that
// never went through the gateway.
func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
