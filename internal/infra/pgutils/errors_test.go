package pgutils

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "transactions_order_credit_uq"})

	tests := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{name: "any_constraint", err: wrapped, want: true},
		{name: "matching_constraint", err: wrapped, constraint: "transactions_order_credit_uq", want: true},
		{name: "other_constraint", err: wrapped, constraint: "transactions_pkey", want: false},
		{name: "other_code", err: &pgconn.PgError{Code: "23503"}, want: false},
		{name: "plain_error", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := IsUniqueViolation(tt.err, tt.constraint); got != tt.want {
				t.Fatalf("want %v, got %v", tt.want, got)
			}
		})
	}
}

func TestIsLockNotAvailable(t *testing.T) {
	t.Parallel()

	if !IsLockNotAvailable(fmt.Errorf("lock: %w", &pgconn.PgError{Code: "55P03"})) {
		t.Fatal("expected lock_not_available to be detected")
	}

	if IsLockNotAvailable(errors.New("timeout")) {
		t.Fatal("plain error must not be detected")
	}
}
