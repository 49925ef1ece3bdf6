package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fastprodman/retailpay/internal/repos/catalog"
)

var _ catalog.Catalog = (*catalogRepo)(nil)

type catalogRepo struct{ db *sql.DB }

func New(db *sql.DB) *catalogRepo {
	return &catalogRepo{db: db}
}

const operatorColumns = `code, name, service, min_amount, max_amount, reward_percent, bill_fetch_required, active`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOperator(row rowScanner) (catalog.Operator, error) {
	var o catalog.Operator

	err := row.Scan(&o.Code, &o.Name, &o.Service, &o.MinAmount, &o.MaxAmount,
		&o.RewardPercent, &o.BillFetchRequired, &o.Active)

	return o, err
}

// Operator returns an active operator by code.
func (r *catalogRepo) Operator(ctx context.Context, code string) (catalog.Operator, error) {
	o, err := scanOperator(r.db.QueryRowContext(ctx, `
		SELECT `+operatorColumns+`
		FROM operators
		WHERE code = $1
		  AND active
	`, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.Operator{}, fmt.Errorf("%w: %q", catalog.ErrOperatorNotFound, code)
		}

		return catalog.Operator{}, fmt.Errorf("get operator: %w", err)
	}

	return o, nil
}

// Operators lists active operators, optionally filtered by service.
func (r *catalogRepo) Operators(ctx context.Context, service string) ([]catalog.Operator, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+operatorColumns+`
		FROM operators
		WHERE active
		  AND ($1 = '' OR service = $1)
		ORDER BY service, name
	`, service)
	if err != nil {
		return nil, fmt.Errorf("list operators: %w", err)
	}
	//nolint:errcheck
	defer rows.Close()

	out := make([]catalog.Operator, 0)

	for rows.Next() {
		o, err := scanOperator(rows)
		if err != nil {
			return nil, fmt.Errorf("scan operator: %w", err)
		}

		out = append(out, o)
	}

	return out, rows.Err()
}

func (r *catalogRepo) Circles(ctx context.Context) ([]catalog.Circle, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT code, name FROM circles ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list circles: %w", err)
	}
	//nolint:errcheck
	defer rows.Close()

	out := make([]catalog.Circle, 0)

	for rows.Next() {
		var c catalog.Circle

		err = rows.Scan(&c.Code, &c.Name)
		if err != nil {
			return nil, fmt.Errorf("scan circle: %w", err)
		}

		out = append(out, c)
	}

	return out, rows.Err()
}
