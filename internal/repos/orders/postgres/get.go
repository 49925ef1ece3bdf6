package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fastprodman/retailpay/internal/repos/orders"
)

func (r *ordersRepo) Get(ctx context.Context, id uuid.UUID) (orders.Order, error) {
	o, err := scanOrder(r.db.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return orders.Order{}, orders.ErrOrderNotFound
		}

		return orders.Order{}, fmt.Errorf("get order: %w", err)
	}

	return o, nil
}

func (r *ordersRepo) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (orders.Order, error) {
	o, err := scanOrder(tx.QueryRowContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return orders.Order{}, orders.ErrOrderNotFound
		}

		return orders.Order{}, fmt.Errorf("lock/get order: %w", err)
	}

	return o, nil
}

// ListByStatus returns the oldest orders in status last touched before updatedBefore.
func (r *ordersRepo) ListByStatus(ctx context.Context, status orders.Status, updatedBefore time.Time, limit int) ([]orders.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE status = $1
		  AND updated_at < $2
		ORDER BY updated_at
		LIMIT $3
	`, status, updatedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list orders by status: %w", err)
	}

	out, err := scanOrders(rows)
	if err != nil {
		return nil, fmt.Errorf("scan orders: %w", err)
	}

	return out, nil
}

func (r *ordersRepo) ListByOwner(ctx context.Context, ownerID uint64, limit int) ([]orders.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list orders by owner: %w", err)
	}

	out, err := scanOrders(rows)
	if err != nil {
		return nil, fmt.Errorf("scan orders: %w", err)
	}

	return out, nil
}
