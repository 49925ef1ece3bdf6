package wallets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fastprodman/retailpay/internal/money"
	"github.com/fastprodman/retailpay/internal/repos/wallets"
)

func (r *walletsRepo) Get(ctx context.Context, ownerID uint64) (wallets.Wallet, error) {
	w, err := scanWallet(r.db.QueryRowContext(ctx, `
		SELECT `+walletColumns+`
		FROM wallets
		WHERE owner_id = $1
	`, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return wallets.Wallet{}, wallets.ErrWalletNotFound
		}

		return wallets.Wallet{}, fmt.Errorf("get wallet: %w", err)
	}

	return w, nil
}

func (r *walletsRepo) GetBalance(ctx context.Context, ownerID uint64) (money.Amount, error) {
	var balance money.Amount

	err := r.db.QueryRowContext(ctx, `
		SELECT balance
		FROM wallets
		WHERE owner_id = $1
	`, ownerID).Scan(&balance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, wallets.ErrWalletNotFound
		}

		return 0, fmt.Errorf("get balance: %w", err)
	}

	return balance, nil
}
