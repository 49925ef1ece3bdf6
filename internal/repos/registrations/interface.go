package registrations

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/fastprodman/retailpay/internal/money"
)

var (
	ErrPaymentNotFound = errors.New("registration payment not found")
	ErrAlreadyLinked   = errors.New("registration payment already linked to an account")
	ErrNotPaid         = errors.New("registration payment is not paid")
	ErrStatusConflict  = errors.New("registration payment status conflict")
)

type Status string

const (
	StatusCreated   Status = "CREATED"
	StatusPaid      Status = "PAID"
	StatusFailed    Status = "FAILED"
	StatusExpired   Status = "EXPIRED"
	StatusCancelled Status = "CANCELLED"
)

func (s Status) Terminal() bool {
	return s != StatusCreated
}

// MethodManualVerification tags payments an admin marked paid by hand.
const MethodManualVerification = "MANUAL_VERIFICATION"

type Payment struct {
	OrderID        uuid.UUID    `json:"orderId"`
	GatewayOrderID string       `json:"gatewayOrderId"`
	Base           money.Amount `json:"base"`
	Tax            money.Amount `json:"tax"`
	Total          money.Amount `json:"total"`
	Status         Status       `json:"status"`
	UserID         *uint64      `json:"userId,omitempty"`
	PaymentMethod  string       `json:"paymentMethod,omitempty"`
	PaidAt         *time.Time   `json:"paidAt,omitempty"`
	Manual         bool         `json:"manual"`
	ManualNote     string       `json:"manualNote,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

// StatusChange settles a CREATED payment.
type StatusChange struct {
	OrderID       uuid.UUID
	To            Status
	PaymentMethod string
	PaidAt        *time.Time
	Manual        bool
	ManualNote    string
}

type Registrations interface {
	Insert(ctx context.Context, p Payment) error
	Get(ctx context.Context, orderID uuid.UUID) (Payment, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, orderID uuid.UUID) (Payment, error)
	Settle(ctx context.Context, tx *sql.Tx, change StatusChange) error
	LinkUser(ctx context.Context, tx *sql.Tx, orderID uuid.UUID, userID uint64) error
	ListCreated(ctx context.Context, updatedBefore time.Time, limit int) ([]Payment, error)
}
