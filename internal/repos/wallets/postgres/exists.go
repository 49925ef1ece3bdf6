package wallets

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fastprodman/retailpay/internal/repos/wallets"
)

func (r *walletsRepo) Exists(ctx context.Context, tx *sql.Tx, ownerID uint64) error {
	var exists bool

	err := tx.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM wallets WHERE owner_id = $1)
	`, ownerID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}

	if !exists {
		return wallets.ErrWalletNotFound
	}

	return nil
}
