package wallets

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fastprodman/retailpay/internal/infra/pgutils"
	"github.com/fastprodman/retailpay/internal/money"
	"github.com/fastprodman/retailpay/internal/repos/wallets"
)

func (r *walletsRepo) IncreaseBalance(ctx context.Context, tx *sql.Tx, ownerID uint64, amount money.Amount) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE wallets
		SET balance = balance + $2,
		    version = version + 1,
		    updated_at = now()
		WHERE owner_id = $1
	`, ownerID, amount)
	if err != nil {
		if pgutils.IsLockNotAvailable(err) {
			return fmt.Errorf("%w: %w", wallets.ErrWalletLocked, err)
		}

		return fmt.Errorf("increase balance: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return wallets.ErrWalletNotFound
	}

	return nil
}
