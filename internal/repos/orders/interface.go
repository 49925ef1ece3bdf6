package orders

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/fastprodman/retailpay/internal/money"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid order transition")
	// ErrStatusConflict means another actor advanced the order first.
	ErrStatusConflict = errors.New("order status conflict")
)

type Kind string

const (
	KindRecharge        Kind = "recharge"
	KindBillPayment     Kind = "bill-payment"
	KindProductPurchase Kind = "product-purchase"
)

type Method string

const (
	MethodWallet  Method = "WALLET"
	MethodCOD     Method = "COD"
	MethodGateway Method = "GATEWAY"
)

func (m Method) Valid() bool {
	return m == MethodWallet || m == MethodCOD || m == MethodGateway
}

type Status string

const (
	StatusCreated          Status = "CREATED"
	StatusReserved         Status = "RESERVED"
	StatusProviderCalled   Status = "PROVIDER_CALLED"
	StatusPendingReconcile Status = "PENDING_RECONCILE"
	StatusFulfilled        Status = "FULFILLED"
	StatusFailed           Status = "FAILED"
	StatusCancelled        Status = "CANCELLED"
)

var transitions = map[Status][]Status{
	StatusCreated:          {StatusReserved, StatusFulfilled, StatusFailed, StatusCancelled},
	StatusReserved:         {StatusProviderCalled, StatusFulfilled, StatusFailed},
	StatusProviderCalled:   {StatusFulfilled, StatusFailed, StatusPendingReconcile},
	StatusPendingReconcile: {StatusFulfilled, StatusFailed},
}

// Terminal reports whether s admits no further transition.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// CanAdvance reports whether the state machine allows s -> next.
func (s Status) CanAdvance(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}

	return false
}

type Order struct {
	ID             uuid.UUID         `json:"id"`
	OwnerID        uint64            `json:"ownerId"`
	Kind           Kind              `json:"kind"`
	OperatorCode   string            `json:"operatorCode,omitempty"`
	Target         string            `json:"target"`
	Circle         string            `json:"circle,omitempty"`
	Amount         money.Amount      `json:"amount"`
	DeliveryCharge money.Amount      `json:"deliveryCharge"`
	Method         Method            `json:"paymentMethod"`
	Status         Status            `json:"status"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	ProviderRef    string            `json:"providerRef,omitempty"`
	GatewayOrderID string            `json:"gatewayOrderId,omitempty"`
	DebitTxID      uuid.NullUUID     `json:"debitTransactionId"`
	FailureReason  string            `json:"failureReason,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

// Total is what the buyer pays: amount plus delivery.
func (o Order) Total() money.Amount {
	return o.Amount + o.DeliveryCharge
}

// Transition advances one order From -> To. Optional fields are written only
// when non-empty.
type Transition struct {
	ID             uuid.UUID
	From           Status
	To             Status
	ProviderRef    string
	GatewayOrderID string
	DebitTxID      uuid.NullUUID
	FailureReason  string
}

type Orders interface {
	Insert(ctx context.Context, tx *sql.Tx, o Order) error
	Advance(ctx context.Context, tx *sql.Tx, t Transition) error
	AttachGatewayOrder(ctx context.Context, tx *sql.Tx, id uuid.UUID, gatewayOrderID string) error
	Get(ctx context.Context, id uuid.UUID) (Order, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (Order, error)
	ListByStatus(ctx context.Context, status Status, updatedBefore time.Time, limit int) ([]Order, error)
	ListByOwner(ctx context.Context, ownerID uint64, limit int) ([]Order, error)
}
