package bills

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/fastprodman/retailpay/internal/money"
)

var (
	ErrBillNotFound = errors.New("bill not found")
	// ErrBillConsumed means the fetched bill already backs another payment.
	ErrBillConsumed = errors.New("bill already paid")
	ErrBillExpired  = errors.New("bill fetch expired")
)

// Bill is a successful bill fetch kept so that a later payment can prove the
// amount came from the provider.
type Bill struct {
	ID           uuid.UUID     `json:"billId"`
	OwnerID      uint64        `json:"-"`
	OperatorCode string        `json:"operatorCode"`
	ConsumerID   string        `json:"consumerId"`
	CustomerName string        `json:"customerName,omitempty"`
	BillNumber   string        `json:"billNumber,omitempty"`
	Amount       money.Amount  `json:"amount"`
	DueDate      string        `json:"dueDate,omitempty"`
	FetchedAt    time.Time     `json:"fetchedAt"`
	ExpiresAt    time.Time     `json:"expiresAt"`
	OrderID      uuid.NullUUID `json:"-"`
}

type Bills interface {
	Insert(ctx context.Context, b Bill) error
	Get(ctx context.Context, id uuid.UUID) (Bill, error)
	// Consume binds the bill to orderID. It fails with ErrBillConsumed when
	// the bill already backs an order.
	Consume(ctx context.Context, tx *sql.Tx, id, orderID uuid.UUID) error
}
