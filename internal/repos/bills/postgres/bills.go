package bills

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/fastprodman/retailpay/internal/repos/bills"
)

var _ bills.Bills = (*billsRepo)(nil)

type billsRepo struct{ db *sql.DB }

func New(db *sql.DB) *billsRepo {
	return &billsRepo{db: db}
}

func (r *billsRepo) Insert(ctx context.Context, b bills.Bill) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO bill_fetches (
			id, owner_id, operator_code, consumer_id, customer_name, bill_number, amount, due_date, expires_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, b.ID, b.OwnerID, b.OperatorCode, b.ConsumerID, b.CustomerName, b.BillNumber, b.Amount, b.DueDate, b.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert bill: %w", err)
	}

	return nil
}

func (r *billsRepo) Get(ctx context.Context, id uuid.UUID) (bills.Bill, error) {
	var b bills.Bill

	err := r.db.QueryRowContext(ctx, `
		SELECT id, owner_id, operator_code, consumer_id, customer_name, bill_number, amount,
		       due_date, fetched_at, expires_at, order_id
		FROM bill_fetches
		WHERE id = $1
	`, id).Scan(
		&b.ID, &b.OwnerID, &b.OperatorCode, &b.ConsumerID, &b.CustomerName, &b.BillNumber, &b.Amount,
		&b.DueDate, &b.FetchedAt, &b.ExpiresAt, &b.OrderID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return bills.Bill{}, bills.ErrBillNotFound
		}

		return bills.Bill{}, fmt.Errorf("get bill: %w", err)
	}

	return b, nil
}

func (r *billsRepo) Consume(ctx context.Context, tx *sql.Tx, id, orderID uuid.UUID) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE bill_fetches
		SET order_id = $2
		WHERE id = $1
		  AND order_id IS NULL
	`, id, orderID)
	if err != nil {
		return fmt.Errorf("consume bill: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return bills.ErrBillConsumed
	}

	return nil
}
