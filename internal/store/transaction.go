package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/phrazzld/studypal-api/internal/platform/logger"
)

// TxFn is a unit of work executed inside a database transaction.
type TxFn func(ctx context.Context, tx *sql.Tx) error

// RunInTransaction runs fn inside a transaction opened with opts. The
// transaction commits when fn returns nil and rolls back otherwise. A panic
// in fn rolls back and is re-raised.
func RunInTransaction(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn TxFn) (err error) {
	log := logger.FromContext(ctx)

	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrTransactionFailed, err)
	}

	defer func() {
		if p := recover(); p != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Error("rollback after panic failed", "error", rbErr, "panic", p)
			}
			panic(p)
		}
	}()

	if err = fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error("rollback failed",
				"rollback_error", rbErr,
				"original_error", err)
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		log.Debug("transaction rolled back", "error", err)
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrTransactionFailed, err)
	}
	return nil
}
