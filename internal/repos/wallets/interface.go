package wallets

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/fastprodman/retailpay/internal/money"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrWalletNotFound    = errors.New("wallet not found")
	ErrWalletLocked      = errors.New("wallet locked")
)

type Status string

const (
	StatusActive   Status = "active"
	StatusArchived Status = "archived"
)

type Wallet struct {
	OwnerID   uint64       `json:"ownerId"`
	Balance   money.Amount `json:"balance"`
	Currency  string       `json:"currency"`
	Status    Status       `json:"status"`
	Version   int64        `json:"version"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

type Wallets interface {
	Create(ctx context.Context, tx *sql.Tx, ownerID uint64) error
	Exists(ctx context.Context, tx *sql.Tx, ownerID uint64) error
	Get(ctx context.Context, ownerID uint64) (Wallet, error)
	GetBalance(ctx context.Context, ownerID uint64) (money.Amount, error)
	LockAndGet(ctx context.Context, tx *sql.Tx, ownerID uint64) (Wallet, error)
	IncreaseBalance(ctx context.Context, tx *sql.Tx, ownerID uint64, amount money.Amount) error
	DecreaseBalance(ctx context.Context, tx *sql.Tx, ownerID uint64, amount money.Amount) error
}
