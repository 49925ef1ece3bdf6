package registrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fastprodman/retailpay/internal/repos/registrations"
)

func (r *registrationsRepo) Get(ctx context.Context, orderID uuid.UUID) (registrations.Payment, error) {
	p, err := scanPayment(r.db.QueryRowContext(ctx, `
		SELECT `+paymentColumns+`
		FROM registration_payments
		WHERE order_id = $1
	`, orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return registrations.Payment{}, registrations.ErrPaymentNotFound
		}

		return registrations.Payment{}, fmt.Errorf("get registration payment: %w", err)
	}

	return p, nil
}

func (r *registrationsRepo) GetForUpdate(ctx context.Context, tx *sql.Tx, orderID uuid.UUID) (registrations.Payment, error) {
	p, err := scanPayment(tx.QueryRowContext(ctx, `
		SELECT `+paymentColumns+`
		FROM registration_payments
		WHERE order_id = $1
		FOR UPDATE
	`, orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return registrations.Payment{}, registrations.ErrPaymentNotFound
		}

		return registrations.Payment{}, fmt.Errorf("lock/get registration payment: %w", err)
	}

	return p, nil
}

func (r *registrationsRepo) ListCreated(ctx context.Context, updatedBefore time.Time, limit int) ([]registrations.Payment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+paymentColumns+`
		FROM registration_payments
		WHERE status = 'CREATED'
		  AND updated_at < $1
		ORDER BY updated_at
		LIMIT $2
	`, updatedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list created registration payments: %w", err)
	}
	//nolint:errcheck
	defer rows.Close()

	out := make([]registrations.Payment, 0)

	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration payment: %w", err)
		}

		out = append(out, p)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate registration payments: %w", err)
	}

	return out, nil
}
