package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fastprodman/retailpay/internal/repos/audit"
)

var _ audit.Log = (*auditRepo)(nil)

type auditRepo struct{ db *sql.DB }

func New(db *sql.DB) *auditRepo {
	return &auditRepo{db: db}
}

func (r *auditRepo) Insert(ctx context.Context, tx *sql.Tx, e audit.Entry) error {
	role := e.ActorRole
	if role == "" {
		role = audit.System
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO audit_log (actor_id, actor_role, action, entity, entity_id, manual, note)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ActorID, role, e.Action, e.Entity, e.EntityID, e.Manual, e.Note)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	return nil
}

// List returns the audit trail of one entity, oldest first.
func (r *auditRepo) List(ctx context.Context, entity, entityID string) ([]audit.Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, actor_id, actor_role, action, entity, entity_id, manual, note, created_at
		FROM audit_log
		WHERE entity = $1
		  AND entity_id = $2
		ORDER BY created_at, id
	`, entity, entityID)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	//nolint:errcheck
	defer rows.Close()

	out := make([]audit.Entry, 0)

	for rows.Next() {
		var e audit.Entry

		err = rows.Scan(&e.ID, &e.ActorID, &e.ActorRole, &e.Action, &e.Entity, &e.EntityID, &e.Manual, &e.Note, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}

		out = append(out, e)
	}

	return out, rows.Err()
}
