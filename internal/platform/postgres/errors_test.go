package postgres_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/phrazzld/studypal-api/internal/platform/postgres"
	"github.com/phrazzld/studypal-api/internal/store"
	"github.com/stretchr/testify/assert"
)

func newPgError(code string) *pgconn.PgError {
	return &pgconn.PgError{
		Code:           code,
		Message:        "error message",
		TableName:      "account_feature_trials",
		ColumnName:     "remaining",
		ConstraintName: "account_feature_trials_remaining_check",
	}
}

func TestMapError(t *testing.T) {
	t.Parallel()

	generic := errors.New("generic error")

	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"no rows", sql.ErrNoRows, store.ErrAccountNotFound},
		{"wrapped no rows", fmt.Errorf("scan: %w", sql.ErrNoRows), store.ErrNotFound},
		{"check violation", newPgError("23514"), store.ErrInvalidEntity},
		{"foreign key violation", newPgError("23503"), store.ErrInvalidEntity},
		{"not null violation", newPgError("23502"), store.ErrInvalidEntity},
		{"conn done", sql.ErrConnDone, store.ErrUnavailable},
		{"deadline", context.DeadlineExceeded, context.DeadlineExceeded},
		{"unmapped", generic, generic},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.ErrorIs(t, postgres.MapError(tc.err), tc.target)
		})
	}

	assert.NoError(t, postgres.MapError(nil))
}
