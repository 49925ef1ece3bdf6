package wallets

import (
	"database/sql"

	"github.com/fastprodman/retailpay/internal/repos/wallets"
)

var _ wallets.Wallets = (*walletsRepo)(nil)

type walletsRepo struct{ db *sql.DB }

func New(db *sql.DB) *walletsRepo {
	return &walletsRepo{db: db}
}

const walletColumns = `owner_id, balance, currency, status, version, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWallet(row rowScanner) (wallets.Wallet, error) {
	var w wallets.Wallet

	err := row.Scan(&w.OwnerID, &w.Balance, &w.Currency, &w.Status, &w.Version, &w.UpdatedAt)

	return w, err
}
