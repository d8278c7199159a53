package postgres

import "github.com/jackc/pgx/v5/pgconn"

func newCheckViolation() *pgconn.PgError {
	return &pgconn.PgError{
		Code:           checkViolationCode,
		ConstraintName: "account_feature_trials_remaining_check",
	}
}
