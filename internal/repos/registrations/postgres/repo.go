package registrations

import (
	"database/sql"

	"github.com/fastprodman/retailpay/internal/repos/registrations"
)

var _ registrations.Registrations = (*registrationsRepo)(nil)

type registrationsRepo struct{ db *sql.DB }

func New(db *sql.DB) *registrationsRepo {
	return &registrationsRepo{db: db}
}

const paymentColumns = `order_id, gateway_order_id, base_amount, tax_amount, total_amount, status,
	user_id, payment_method, paid_at, manual, manual_note, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (registrations.Payment, error) {
	var (
		p      registrations.Payment
		userID sql.NullInt64
		paidAt sql.NullTime
	)

	err := row.Scan(
		&p.OrderID, &p.GatewayOrderID, &p.Base, &p.Tax, &p.Total, &p.Status,
		&userID, &p.PaymentMethod, &paidAt, &p.Manual, &p.ManualNote, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return registrations.Payment{}, err
	}

	if userID.Valid {
		id := uint64(userID.Int64)
		p.UserID = &id
	}

	if paidAt.Valid {
		at := paidAt.Time
		p.PaidAt = &at
	}

	return p, nil
}
