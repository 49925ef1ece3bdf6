package transactions

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/fastprodman/retailpay/internal/money"
)

var (
	ErrDuplicateTransaction = errors.New("duplicate transaction")
	ErrNotFound             = errors.New("transaction not found")
	// ErrStatusConflict means the row was not in the expected status anymore.
	ErrStatusConflict = errors.New("transaction status conflict")
)

type Direction string

const (
	Debit  Direction = "debit"
	Credit Direction = "credit"
)

type Kind string

const (
	KindRecharge        Kind = "recharge"
	KindBillPayment     Kind = "bill-payment"
	KindProductPurchase Kind = "product-purchase"
	KindRegistrationFee Kind = "registration-fee"
	KindAdminAdjustment Kind = "admin-adjustment"
	KindReward          Kind = "reward"
	KindRefund          Kind = "refund"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusReversed Status = "reversed"
)

// Final reports whether no further transition is allowed except reversal.
func (s Status) Final() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusReversed
}

// CanTransition reports whether a transaction may move from s to next.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusSuccess || next == StatusFailed
	case StatusSuccess:
		return next == StatusReversed
	default:
		return false
	}
}

type Transaction struct {
	ID        uuid.UUID    `json:"id"`
	OwnerID   uint64       `json:"ownerId"`
	Direction Direction    `json:"direction"`
	Amount    money.Amount `json:"amount"`
	Kind      Kind         `json:"kind"`
	Status    Status       `json:"status"`
	// Applied is false for rows recorded for history only (COD, gateway
	// payments) that never moved the wallet balance.
	Applied       bool          `json:"applied"`
	OrderID       uuid.NullUUID `json:"orderId"`
	ProviderRef   string        `json:"providerRef,omitempty"`
	ReversesID    uuid.NullUUID `json:"reversesId"`
	Reason        string        `json:"reason,omitempty"`
	FailureReason string        `json:"failureReason,omitempty"`
	Manual        bool          `json:"manual"`
	ManualNote    string        `json:"manualNote,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	FinalizedAt   *time.Time    `json:"finalizedAt,omitempty"`
}

// StatusChange moves one transaction From -> To. Optional fields are only
// written when non-empty.
type StatusChange struct {
	ID            uuid.UUID
	From          Status
	To            Status
	ProviderRef   string
	FailureReason string
	Manual        bool
	ManualNote    string
}

// Totals are the applied, non-failed sums used by the ledger audit.
type Totals struct {
	Credits money.Amount
	Debits  money.Amount
}

type Transactions interface {
	Record(ctx context.Context, tx *sql.Tx, t Transaction) error
	MarkFinal(ctx context.Context, tx *sql.Tx, change StatusChange) error
	Get(ctx context.Context, id uuid.UUID) (Transaction, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (Transaction, error)
	FindByExternalRef(ctx context.Context, ref string) (Transaction, error)
	FindByOrder(ctx context.Context, orderID uuid.UUID) ([]Transaction, error)
	ListByOwner(ctx context.Context, ownerID uint64, limit int) ([]Transaction, error)
	Totals(ctx context.Context, ownerID uint64) (Totals, error)
}
