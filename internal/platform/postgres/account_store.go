package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/studypal-api/internal/domain"
	"github.com/phrazzld/studypal-api/internal/store"
)

const getAccountQuery = `
SELECT a.id, a.created_at, a.subscription_tier, a.subscription_date, a.is_admin,
       t.feature, t.remaining
FROM accounts a
LEFT JOIN account_feature_trials t ON t.account_id = a.id
WHERE a.id = $1`

const upsertAccountQuery = `
INSERT INTO accounts (id, created_at, subscription_tier, subscription_date, is_admin)
VALUES ($1, $2::timestamptz, COALESCE($3::text, 'free'), $4::timestamptz, COALESCE($5::boolean, FALSE))
ON CONFLICT (id) DO UPDATE SET
    created_at        = COALESCE(accounts.created_at, EXCLUDED.created_at),
    subscription_tier = COALESCE($3::text, accounts.subscription_tier),
    subscription_date = COALESCE($4::timestamptz, accounts.subscription_date),
    is_admin          = COALESCE($5::boolean, accounts.is_admin),
    updated_at        = NOW()`

const initTrialQuery = `
INSERT INTO account_feature_trials (account_id, feature, remaining)
VALUES ($1, $2, $3)
ON CONFLICT (account_id, feature) DO NOTHING`

const decrementTrialQuery = `
UPDATE account_feature_trials
SET remaining = remaining - 1
WHERE account_id = $1 AND feature = $2 AND remaining > 0
RETURNING remaining`

const accountExistsQuery = `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`

// PostgresAccountStore implements the store.AccountStore interface
// using a PostgreSQL database as the storage backend.
type PostgresAccountStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresAccountStore creates a new PostgreSQL implementation of the
// AccountStore interface. The connection pool is owned by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresAccountStore(db *sql.DB, logger *slog.Logger) *PostgresAccountStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresAccountStore{
		db:     db,
		logger: logger.With(slog.String("component", "account_store")),
	}
}

// Ensure PostgresAccountStore implements store.AccountStore interface
var _ store.AccountStore = (*PostgresAccountStore)(nil)

// Get implements store.AccountReader.Get.
// Counter rows for features the service no longer knows are ignored.
func (s *PostgresAccountStore) Get(ctx context.Context, id string) (*domain.Account, error) {
	rows, err := s.db.QueryContext(ctx, getAccountQuery, id)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var account *domain.Account
	for rows.Next() {
		var (
			accountID        string
			createdAt        sql.NullTime
			tier             string
			subscriptionDate sql.NullTime
			isAdmin          bool
			feature          sql.NullString
			remaining        sql.NullInt64
		)
		if err := rows.Scan(&accountID, &createdAt, &tier, &subscriptionDate, &isAdmin,
			&feature, &remaining); err != nil {
			return nil, MapError(err)
		}

		if account == nil {
			account = &domain.Account{
				ID:                   accountID,
				SubscriptionTier:     domain.TierFromStored(tier),
				IsAdmin:              isAdmin,
				FeatureTrialCounters: make(map[domain.Feature]int),
			}
			if createdAt.Valid {
				account.CreatedAt = createdAt.Time.UTC()
			}
			if subscriptionDate.Valid {
				account.SubscriptionDate = subscriptionDate.Time.UTC()
			}
		}

		if feature.Valid && remaining.Valid {
			f := domain.Feature(feature.String)
			if !f.IsValid() {
				s.logger.WarnContext(ctx, "ignoring unknown trial feature",
					slog.String("account_id", id),
					slog.String("feature", feature.String))
				continue
			}
			account.FeatureTrialCounters[f] = int(remaining.Int64)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}

	if account == nil {
		return nil, store.ErrAccountNotFound
	}
	return account, nil
}

// Merge implements store.AccountStore.Merge.
// The account row and its counters are written in one transaction.
func (s *PostgresAccountStore) Merge(ctx context.Context, id string, patch domain.AccountPatch) error {
	if id == "" {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, domain.ErrEmptyAccountID)
	}
	if err := patch.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	err := store.RunInTransaction(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		var tier any
		if patch.SubscriptionTier != nil {
			tier = patch.SubscriptionTier.String()
		}

		if _, err := tx.ExecContext(ctx, upsertAccountQuery,
			id,
			nullableTime(patch.CreatedAt),
			tier,
			nullableTime(patch.SubscriptionDate),
			nullableBool(patch.IsAdmin),
		); err != nil {
			return MapError(err)
		}

		// Stable order keeps lock acquisition consistent across writers.
		for _, f := range domain.Features {
			n, ok := patch.FeatureTrialCounters[f]
			if !ok {
				continue
			}
			if _, err := tx.ExecContext(ctx, initTrialQuery, id, string(f), n); err != nil {
				return MapError(err)
			}
		}

		s.logger.DebugContext(ctx, "account merged", slog.String("account_id", id))
		return nil
	})
	return store.NewOpError("postgres", "merge", id, err)
}

// ConditionalDecrement implements store.TrialDecrementer.ConditionalDecrement.
// The row lock taken by the UPDATE serializes concurrent callers; a caller
// that finds the counter at zero matches no row.
func (s *PostgresAccountStore) ConditionalDecrement(
	ctx context.Context,
	id string,
	feature domain.Feature,
) (int, error) {
	if !feature.IsValid() {
		return 0, domain.ErrUnknownFeature
	}

	var remaining int
	err := s.db.QueryRowContext(ctx, decrementTrialQuery, id, string(feature)).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, MapError(err)
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, accountExistsQuery, id).Scan(&exists); err != nil {
		return 0, MapError(err)
	}
	if !exists {
		return 0, store.ErrAccountNotFound
	}
	return 0, domain.ErrTrialExhausted
}

// Ping implements store.AccountStore.Ping.
func (s *PostgresAccountStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullableBool(b *bool) any {
	if b == nil {
		return nil
	}
	return *b
}
