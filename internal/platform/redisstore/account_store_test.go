package redisstore_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/phrazzld/studypal-api/internal/config"
	"github.com/phrazzld/studypal-api/internal/domain"
	"github.com/phrazzld/studypal-api/internal/platform/redisstore"
	"github.com/phrazzld/studypal-api/internal/store"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) (*redisstore.AccountStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redisstore.NewAccountStore(client, nil), mr
}

func provision(t *testing.T, s *redisstore.AccountStore, id string, created time.Time) {
	t.Helper()
	free := domain.TierFree
	require.NoError(t, s.Merge(context.Background(), id, domain.AccountPatch{
		CreatedAt:            &created,
		SubscriptionTier:     &free,
		FeatureTrialCounters: domain.DefaultTrialAllowances(),
	}))
}

func TestMergeAndGet(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()
	created := time.Date(2024, 1, 10, 8, 30, 0, 0, time.UTC)

	provision(t, s, "u1", created)

	acct, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", acct.ID)
	assert.True(t, acct.CreatedAt.Equal(created))
	assert.Equal(t, domain.TierFree, acct.SubscriptionTier)
	assert.False(t, acct.IsAdmin)
	assert.Equal(t, domain.DefaultTrialAllowances(), acct.FeatureTrialCounters)

	full := domain.TierFull
	upgraded := created.Add(72 * time.Hour)
	admin := true
	require.NoError(t, s.Merge(ctx, "u1", domain.AccountPatch{
		SubscriptionTier: &full,
		SubscriptionDate: &upgraded,
		IsAdmin:          &admin,
	}))

	acct, err = s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.TierFull, acct.SubscriptionTier)
	assert.True(t, acct.SubscriptionDate.Equal(upgraded))
	assert.True(t, acct.IsAdmin)
	assert.True(t, acct.CreatedAt.Equal(created))
}

func TestMergeNeverRewindsTrial(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()
	created := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	provision(t, s, "u1", created)
	_, err := s.ConditionalDecrement(ctx, "u1", domain.FeatureQuiz)
	require.NoError(t, err)

	provision(t, s, "u1", created.Add(20*24*time.Hour))

	acct, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, acct.CreatedAt.Equal(created), "creation time is set once")
	assert.Equal(t, 4, acct.FeatureTrialCounters[domain.FeatureQuiz], "counters are never raised")
}

func TestGetMissingAccount(t *testing.T) {
	s, _ := setupStore(t)

	_, err := s.Get(context.Background(), "ghost")
	assert.ErrorIs(t, err, store.ErrAccountNotFound)
}

func TestGetToleratesCorruptFields(t *testing.T) {
	s, mr := setupStore(t)

	mr.HSet("account:u9",
		"id", "u9",
		"subscription_tier", "gold",
		"created_at", "yesterday",
		"trial:quiz", "many",
		"trial:essay", "3")

	acct, err := s.Get(context.Background(), "u9")
	require.NoError(t, err)
	assert.Equal(t, domain.TierFree, acct.SubscriptionTier)
	assert.True(t, acct.CreatedAt.IsZero())
	assert.Equal(t, map[domain.Feature]int{domain.FeatureQuiz: 0}, acct.FeatureTrialCounters)
}

func TestConditionalDecrement(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()
	require.NoError(t, s.Merge(ctx, "u1", domain.AccountPatch{
		FeatureTrialCounters: map[domain.Feature]int{domain.FeatureFlashcards: 2},
	}))

	n, err := s.ConditionalDecrement(ctx, "u1", domain.FeatureFlashcards)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.ConditionalDecrement(ctx, "u1", domain.FeatureFlashcards)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = s.ConditionalDecrement(ctx, "u1", domain.FeatureFlashcards)
	assert.ErrorIs(t, err, domain.ErrTrialExhausted)

	_, err = s.ConditionalDecrement(ctx, "u1", domain.FeatureQuiz)
	assert.ErrorIs(t, err, domain.ErrTrialExhausted, "absent counter counts as exhausted")

	_, err = s.ConditionalDecrement(ctx, "ghost", domain.FeatureQuiz)
	assert.ErrorIs(t, err, store.ErrAccountNotFound)

	_, err = s.ConditionalDecrement(ctx, "u1", domain.Feature("essay"))
	assert.ErrorIs(t, err, domain.ErrUnknownFeature)
}

func TestConcurrentDecrementNeverOverspends(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()
	require.NoError(t, s.Merge(ctx, "u1", domain.AccountPatch{
		FeatureTrialCounters: map[domain.Feature]int{domain.FeatureAssistant: 10},
	}))

	const callers = 50
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		exhausted atomic.Int32
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ConditionalDecrement(ctx, "u1", domain.FeatureAssistant)
			if err == nil {
				succeeded.Add(1)
			} else if assert.ErrorIs(t, err, domain.ErrTrialExhausted) {
				exhausted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 10, succeeded.Load())
	assert.EqualValues(t, callers-10, exhausted.Load())

	acct, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, acct.FeatureTrialCounters[domain.FeatureAssistant])
}

func TestUnavailableStore(t *testing.T) {
	s, mr := setupStore(t)
	mr.Close()

	_, err := s.Get(context.Background(), "u1")
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.NotErrorIs(t, err, store.ErrNotFound)

	assert.ErrorIs(t, s.Ping(context.Background()), store.ErrUnavailable)

	err = s.Merge(context.Background(), "u1", domain.AccountPatch{})
	assert.ErrorIs(t, err, store.ErrUnavailable)
	var opErr *store.OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "redis", opErr.Backend)
	assert.Equal(t, "merge", opErr.Op)
}

func TestOpen(t *testing.T) {
	mr := miniredis.RunT(t)

	addr := mr.Addr()

	client, err := redisstore.Open(context.Background(), config.RedisConfig{Addr: addr})
	require.NoError(t, err)
	require.NoError(t, client.Close())

	mr.Close()
	_, err = redisstore.Open(context.Background(), config.RedisConfig{Addr: addr})
	assert.Error(t, err)
}
