package wallets

import (
	"context"
	"database/sql"
	"fmt"
)

// Create opens a zero-balance wallet. Creating an existing wallet is a no-op.
func (r *walletsRepo) Create(ctx context.Context, tx *sql.Tx, ownerID uint64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO wallets (owner_id, balance)
		VALUES ($1, 0)
		ON CONFLICT (owner_id) DO NOTHING
	`, ownerID)
	if err != nil {
		return fmt.Errorf("create wallet: %w", err)
	}

	return nil
}
