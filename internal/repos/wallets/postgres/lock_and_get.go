package wallets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fastprodman/retailpay/internal/infra/pgutils"
	"github.com/fastprodman/retailpay/internal/repos/wallets"
)

// LockAndGet takes the row lock that serializes every balance mutation of
// one owner. It fails with ErrWalletLocked when the lock_timeout of tx
// expires or the wallet is archived.
func (r *walletsRepo) LockAndGet(ctx context.Context, tx *sql.Tx, ownerID uint64) (wallets.Wallet, error) {
	w, err := scanWallet(tx.QueryRowContext(ctx, `
		SELECT `+walletColumns+`
		FROM wallets
		WHERE owner_id = $1
		FOR UPDATE
	`, ownerID))
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return wallets.Wallet{}, wallets.ErrWalletNotFound
		case pgutils.IsLockNotAvailable(err):
			return wallets.Wallet{}, fmt.Errorf("%w: %w", wallets.ErrWalletLocked, err)
		default:
			return wallets.Wallet{}, fmt.Errorf("lock/get wallet: %w", err)
		}
	}

	if w.Status != wallets.StatusActive {
		return w, fmt.Errorf("%w: wallet is %s", wallets.ErrWalletLocked, w.Status)
	}

	return w, nil
}
