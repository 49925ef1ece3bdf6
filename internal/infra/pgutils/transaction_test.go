package pgutils_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fastprodman/retailpay/internal/infra/pgtestutil"
	"github.com/fastprodman/retailpay/internal/infra/pgutils"
)

func TestWithTx(t *testing.T) {
	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	pgtestutil.MustExec(t, db, `CREATE TABLE tx_rows (v int)`)

	ctx := context.Background()
	errBoom := errors.New("boom")

	insert := func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO tx_rows (v) VALUES (1)`)

		return err
	}

	count := func() int {
		var n int
		require.NoError(t, db.QueryRowContext(ctx, `SELECT count(*) FROM tx_rows`).Scan(&n))

		return n
	}

	require.NoError(t, pgutils.WithTx(ctx, db, insert))
	require.Equal(t, 1, count())

	err := pgutils.WithTx(ctx, db, func(tx *sql.Tx) error {
		require.NoError(t, insert(tx))

		return errBoom
	})
	require.ErrorIs(t, err, errBoom)
	require.Equal(t, 1, count(), "failed fn must roll back")

	require.Panics(t, func() {
		_ = pgutils.WithTx(ctx, db, func(tx *sql.Tx) error {
			require.NoError(t, insert(tx))

			panic("boom")
		})
	})
	require.Equal(t, 1, count(), "panicking fn must roll back")
}

func TestSetLockTimeout(t *testing.T) {
	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	ctx := context.Background()

	err := pgutils.WithTx(ctx, db, func(tx *sql.Tx) error {
		err := pgutils.SetLockTimeout(ctx, tx, 1500*time.Millisecond)
		if err != nil {
			return err
		}

		var got string

		err = tx.QueryRowContext(ctx, `SHOW lock_timeout`).Scan(&got)
		if err != nil {
			return err
		}

		require.Equal(t, "1500ms", got)

		return nil
	})
	require.NoError(t, err)
}
