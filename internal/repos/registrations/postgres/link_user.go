package registrations

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/fastprodman/retailpay/internal/infra/pgutils"
	"github.com/fastprodman/retailpay/internal/repos/registrations"
)

// LinkUser attaches the created account to a PAID payment exactly once.
func (r *registrationsRepo) LinkUser(ctx context.Context, tx *sql.Tx, orderID uuid.UUID, userID uint64) error {
	p, err := r.GetForUpdate(ctx, tx, orderID)
	if err != nil {
		return err
	}

	if p.UserID != nil {
		return registrations.ErrAlreadyLinked
	}

	if p.Status != registrations.StatusPaid {
		return fmt.Errorf("%w: status is %s", registrations.ErrNotPaid, p.Status)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE registration_payments
		SET user_id = $2,
		    updated_at = now()
		WHERE order_id = $1
		  AND user_id IS NULL
	`, orderID, userID)
	if err != nil {
		// The user already paid for another registration.
		if pgutils.IsUniqueViolation(err, "") {
			return fmt.Errorf("%w: user %d", registrations.ErrAlreadyLinked, userID)
		}

		return fmt.Errorf("link user: %w", err)
	}

	return nil
}
