package redisstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/phrazzld/studypal-api/internal/domain"
	"github.com/phrazzld/studypal-api/internal/store"
	"github.com/redis/go-redis/v9"
)

const (
	accountKeyPrefix   = "account:"
	trialFieldPrefix   = "trial:"
	fieldID            = "id"
	fieldCreatedAt     = "created_at"
	fieldTier          = "subscription_tier"
	fieldSubscribedAt  = "subscription_date"
	fieldIsAdmin       = "is_admin"
	decrementNotFound  = -2
	decrementExhausted = -1
)

// decrementScript lowers a trial counter only while it is positive.
// Returns -2 when the account hash is missing and -1 when the counter is
// absent or already zero.
var decrementScript = redis.NewScript(`
	if redis.call('EXISTS', KEYS[1]) == 0 then
		return -2
	end
	local current = tonumber(redis.call('HGET', KEYS[1], ARGV[1]))
	if not current or current <= 0 then
		return -1
	end
	return redis.call('HINCRBY', KEYS[1], ARGV[1], -1)
`)

// AccountStore implements store.AccountStore on Redis hashes.
type AccountStore struct {
	client redis.UniversalClient
	logger *slog.Logger
}

// NewAccountStore creates a Redis-backed account store. The client is owned
// by the caller. If logger is nil, a default logger will be used.
func NewAccountStore(client redis.UniversalClient, logger *slog.Logger) *AccountStore {
	if client == nil {
		panic("redis client cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountStore{
		client: client,
		logger: logger.With(slog.String("component", "account_store")),
	}
}

var _ store.AccountStore = (*AccountStore)(nil)

func accountKey(id string) string {
	return accountKeyPrefix + id
}

func trialField(f domain.Feature) string {
	return trialFieldPrefix + string(f)
}

// Get implements store.AccountReader.Get.
func (s *AccountStore) Get(ctx context.Context, id string) (*domain.Account, error) {
	fields, err := s.client.HGetAll(ctx, accountKey(id)).Result()
	if err != nil {
		return nil, mapError(err)
	}
	if len(fields) == 0 {
		return nil, store.ErrAccountNotFound
	}

	account := &domain.Account{
		ID:                   id,
		SubscriptionTier:     domain.TierFromStored(fields[fieldTier]),
		IsAdmin:              fields[fieldIsAdmin] == "1",
		CreatedAt:            s.parseTime(ctx, id, fieldCreatedAt, fields[fieldCreatedAt]),
		SubscriptionDate:     s.parseTime(ctx, id, fieldSubscribedAt, fields[fieldSubscribedAt]),
		FeatureTrialCounters: make(map[domain.Feature]int),
	}

	for name, raw := range fields {
		if !strings.HasPrefix(name, trialFieldPrefix) {
			continue
		}
		f := domain.Feature(strings.TrimPrefix(name, trialFieldPrefix))
		if !f.IsValid() {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			// Unreadable counters count as exhausted.
			s.logger.WarnContext(ctx, "invalid trial counter",
				slog.String("account_id", id),
				slog.String("feature", string(f)),
				slog.String("value", raw))
			n = 0
		}
		account.FeatureTrialCounters[f] = n
	}

	return account, nil
}

// parseTime returns the zero time for missing or malformed values.
func (s *AccountStore) parseTime(ctx context.Context, id, field, raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		s.logger.WarnContext(ctx, "invalid timestamp in account hash",
			slog.String("account_id", id),
			slog.String("field", field),
			slog.String("value", raw))
		return time.Time{}
	}
	return t.UTC()
}

// Merge implements store.AccountStore.Merge. The writes run in one
// MULTI/EXEC; set-once fields use HSETNX.
func (s *AccountStore) Merge(ctx context.Context, id string, patch domain.AccountPatch) error {
	if id == "" {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, domain.ErrEmptyAccountID)
	}
	if err := patch.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	key := accountKey(id)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSetNX(ctx, key, fieldID, id)
		pipe.HSetNX(ctx, key, fieldTier, domain.TierFree.String())
		if patch.CreatedAt != nil {
			pipe.HSetNX(ctx, key, fieldCreatedAt, formatTime(*patch.CreatedAt))
		}
		if patch.SubscriptionTier != nil {
			pipe.HSet(ctx, key, fieldTier, patch.SubscriptionTier.String())
		}
		if patch.SubscriptionDate != nil {
			pipe.HSet(ctx, key, fieldSubscribedAt, formatTime(*patch.SubscriptionDate))
		}
		if patch.IsAdmin != nil {
			pipe.HSet(ctx, key, fieldIsAdmin, formatBool(*patch.IsAdmin))
		}
		for f, n := range patch.FeatureTrialCounters {
			pipe.HSetNX(ctx, key, trialField(f), n)
		}
		return nil
	})
	if err != nil {
		return store.NewOpError("redis", "merge", id, mapError(err))
	}

	s.logger.DebugContext(ctx, "account merged", slog.String("account_id", id))
	return nil
}

// ConditionalDecrement implements store.TrialDecrementer.ConditionalDecrement.
func (s *AccountStore) ConditionalDecrement(ctx context.Context, id string, feature domain.Feature) (int, error) {
	if !feature.IsValid() {
		return 0, domain.ErrUnknownFeature
	}

	n, err := decrementScript.Run(ctx, s.client, []string{accountKey(id)}, trialField(feature)).Int()
	if err != nil {
		return 0, mapError(err)
	}

	switch n {
	case decrementNotFound:
		return 0, store.ErrAccountNotFound
	case decrementExhausted:
		return 0, domain.ErrTrialExhausted
	default:
		return n, nil
	}
}

// Ping implements store.AccountStore.Ping.
func (s *AccountStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

func mapError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
