package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/phrazzld/studypal-api/internal/domain"
	"github.com/phrazzld/studypal-api/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var accountColumns = []string{
	"id", "created_at", "subscription_tier", "subscription_date", "is_admin", "feature", "remaining",
}

func newMockStore(t *testing.T) (*PostgresAccountStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return NewPostgresAccountStore(db, nil), mock
}

func TestNewPostgresAccountStorePanicsOnNilDB(t *testing.T) {
	assert.Panics(t, func() { NewPostgresAccountStore(nil, nil) })
}

func TestGet(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("account with counters", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(getAccountQuery).WithArgs("u1").WillReturnRows(
			sqlmock.NewRows(accountColumns).
				AddRow("u1", created, "limited", nil, false, "quiz", 3).
				AddRow("u1", created, "limited", nil, false, "assistant", 0).
				AddRow("u1", created, "limited", nil, false, "retired-feature", 9),
		)

		acct, err := s.Get(context.Background(), "u1")
		require.NoError(t, err)
		assert.Equal(t, "u1", acct.ID)
		assert.True(t, acct.CreatedAt.Equal(created))
		assert.Equal(t, domain.TierLimited, acct.SubscriptionTier)
		assert.True(t, acct.SubscriptionDate.IsZero())
		assert.Equal(t, map[domain.Feature]int{
			domain.FeatureQuiz:      3,
			domain.FeatureAssistant: 0,
		}, acct.FeatureTrialCounters)
	})

	t.Run("account without counters or creation time", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(getAccountQuery).WithArgs("u2").WillReturnRows(
			sqlmock.NewRows(accountColumns).AddRow("u2", nil, "platinum", nil, true, nil, nil),
		)

		acct, err := s.Get(context.Background(), "u2")
		require.NoError(t, err)
		assert.True(t, acct.CreatedAt.IsZero())
		assert.Equal(t, domain.TierFree, acct.SubscriptionTier, "unknown stored tier reads as free")
		assert.True(t, acct.IsAdmin)
		assert.Empty(t, acct.FeatureTrialCounters)
	})

	t.Run("missing account", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(getAccountQuery).WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows(accountColumns))

		_, err := s.Get(context.Background(), "ghost")
		assert.ErrorIs(t, err, store.ErrAccountNotFound)
	})

	t.Run("query failure", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(getAccountQuery).WithArgs("u1").WillReturnError(sql.ErrConnDone)

		_, err := s.Get(context.Background(), "u1")
		assert.ErrorIs(t, err, store.ErrUnavailable)
		assert.False(t, errors.Is(err, store.ErrNotFound))
	})
}

func TestMerge(t *testing.T) {
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	t.Run("provisioning patch", func(t *testing.T) {
		s, mock := newMockStore(t)
		free := domain.TierFree

		mock.ExpectBegin()
		mock.ExpectExec(upsertAccountQuery).
			WithArgs("u1", sqlmock.AnyArg(), "free", nil, nil).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(initTrialQuery).WithArgs("u1", "quiz", 5).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(initTrialQuery).WithArgs("u1", "flashcards", 5).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(initTrialQuery).WithArgs("u1", "assistant", 10).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		err := s.Merge(context.Background(), "u1", domain.AccountPatch{
			CreatedAt:            &now,
			SubscriptionTier:     &free,
			FeatureTrialCounters: domain.DefaultTrialAllowances(),
		})
		require.NoError(t, err)
	})

	t.Run("upgrade patch", func(t *testing.T) {
		s, mock := newMockStore(t)
		full := domain.TierFull

		mock.ExpectBegin()
		mock.ExpectExec(upsertAccountQuery).
			WithArgs("u1", nil, "full", sqlmock.AnyArg(), nil).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := s.Merge(context.Background(), "u1", domain.AccountPatch{
			SubscriptionTier: &full,
			SubscriptionDate: &now,
		})
		require.NoError(t, err)
	})

	t.Run("write failure rolls back", func(t *testing.T) {
		s, mock := newMockStore(t)
		admin := true

		mock.ExpectBegin()
		mock.ExpectExec(upsertAccountQuery).
			WithArgs("u1", nil, nil, nil, true).
			WillReturnError(newCheckViolation())
		mock.ExpectRollback()

		err := s.Merge(context.Background(), "u1", domain.AccountPatch{IsAdmin: &admin})
		assert.ErrorIs(t, err, store.ErrInvalidEntity)

		var opErr *store.OpError
		require.ErrorAs(t, err, &opErr)
		assert.Equal(t, "postgres", opErr.Backend)
		assert.Equal(t, "u1", opErr.AccountID)
	})

	t.Run("invalid patch never reaches the database", func(t *testing.T) {
		s, _ := newMockStore(t)

		err := s.Merge(context.Background(), "u1", domain.AccountPatch{
			FeatureTrialCounters: map[domain.Feature]int{domain.FeatureQuiz: -1},
		})
		assert.ErrorIs(t, err, store.ErrInvalidEntity)

		err = s.Merge(context.Background(), "", domain.AccountPatch{})
		assert.ErrorIs(t, err, store.ErrInvalidEntity)
	})
}

func TestConditionalDecrement(t *testing.T) {
	t.Run("decrements positive counter", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(decrementTrialQuery).WithArgs("u1", "quiz").
			WillReturnRows(sqlmock.NewRows([]string{"remaining"}).AddRow(2))

		n, err := s.ConditionalDecrement(context.Background(), "u1", domain.FeatureQuiz)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("exhausted counter", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(decrementTrialQuery).WithArgs("u1", "quiz").
			WillReturnRows(sqlmock.NewRows([]string{"remaining"}))
		mock.ExpectQuery(accountExistsQuery).WithArgs("u1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		n, err := s.ConditionalDecrement(context.Background(), "u1", domain.FeatureQuiz)
		assert.ErrorIs(t, err, domain.ErrTrialExhausted)
		assert.Zero(t, n)
	})

	t.Run("missing account", func(t *testing.T) {
		s, mock := newMockStore(t)
		mock.ExpectQuery(decrementTrialQuery).WithArgs("ghost", "assistant").
			WillReturnRows(sqlmock.NewRows([]string{"remaining"}))
		mock.ExpectQuery(accountExistsQuery).WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		_, err := s.ConditionalDecrement(context.Background(), "ghost", domain.FeatureAssistant)
		assert.ErrorIs(t, err, store.ErrAccountNotFound)
	})

	t.Run("unknown feature", func(t *testing.T) {
		s, _ := newMockStore(t)

		_, err := s.ConditionalDecrement(context.Background(), "u1", domain.Feature("essay"))
		assert.ErrorIs(t, err, domain.ErrUnknownFeature)
	})
}

func TestPing(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	s := NewPostgresAccountStore(db, nil)

	mock.ExpectPing()
	assert.NoError(t, s.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	assert.ErrorIs(t, s.Ping(context.Background()), store.ErrUnavailable)

	assert.NoError(t, mock.ExpectationsWereMet())
}
