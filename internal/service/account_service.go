package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/studypal-api/internal/clock"
	"github.com/phrazzld/studypal-api/internal/domain"
	"github.com/phrazzld/studypal-api/internal/entitlement"
	"github.com/phrazzld/studypal-api/internal/store"
)

// AccountService provides the account lifecycle operations that write to the
// store. Authorization reads go through the guard instead.
type AccountService interface {
	// Provision creates the account with a fresh trial if it does not exist.
	// It is idempotent: an existing account is returned untouched and created
	// is false.
	Provision(ctx context.Context, accountID string) (account *domain.Account, created bool, err error)

	// Upgrade records a paid tier for an existing account. A tier below the
	// persisted one is ignored and applied is false; the same tier refreshes
	// the subscription date.
	// Returns store.ErrAccountNotFound for unknown accounts and
	// ErrInvalidUpgrade for the free tier.
	Upgrade(ctx context.Context, accountID string, tier domain.Tier) (applied bool, err error)

	// SetTier writes a paid tier regardless of the current one. It backs
	// manual changes by support staff and may lower a tier.
	SetTier(ctx context.Context, accountID string, tier domain.Tier) error

	// Describe returns an account and its snapshot at the current time.
	Describe(ctx context.Context, accountID string) (*domain.Account, entitlement.Snapshot, error)
}

// AccountServiceImpl implements the AccountService interface
type AccountServiceImpl struct {
	store  store.AccountStore
	clock  clock.Clock
	logger *slog.Logger
}

var _ AccountService = (*AccountServiceImpl)(nil)

// NewAccountService creates a new AccountService. A nil store makes every
// operation fail with ErrNoStore.
func NewAccountService(s store.AccountStore, c clock.Clock, logger *slog.Logger) *AccountServiceImpl {
	if c == nil {
		c = clock.System()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountServiceImpl{
		store:  s,
		clock:  c,
		logger: logger.With("component", "account_service"),
	}
}

// Provision implements AccountService.
func (s *AccountServiceImpl) Provision(ctx context.Context, accountID string) (*domain.Account, bool, error) {
	if s.store == nil {
		return nil, false, ErrNoStore
	}
	if accountID == "" {
		return nil, false, fmt.Errorf("%w: %w", domain.ErrValidation, domain.ErrEmptyAccountID)
	}

	existing, err := s.store.Get(ctx, accountID)
	if err == nil {
		s.logger.Debug("account already provisioned", "account_id", accountID)
		return existing, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, fmt.Errorf("failed to look up account: %w", err)
	}

	// Concurrent provisioners race harmlessly: the store keeps the first
	// creation time and never re-initializes existing counters.
	now := s.clock.Now()
	free := domain.TierFree
	patch := domain.AccountPatch{
		CreatedAt:            &now,
		SubscriptionTier:     &free,
		FeatureTrialCounters: domain.DefaultTrialAllowances(),
	}
	if err := s.store.Merge(ctx, accountID, patch); err != nil {
		s.logger.Error("failed to provision account", "error", err, "account_id", accountID)
		return nil, false, fmt.Errorf("failed to provision account: %w", err)
	}

	account, err := s.store.Get(ctx, accountID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read provisioned account: %w", err)
	}

	s.logger.Info("account provisioned", "account_id", accountID)
	return account, true, nil
}

// Upgrade implements AccountService.
func (s *AccountServiceImpl) Upgrade(ctx context.Context, accountID string, tier domain.Tier) (bool, error) {
	if err := s.checkTierTarget(tier); err != nil {
		return false, err
	}

	// Upgrades never create accounts; Merge would.
	current, err := s.store.Get(ctx, accountID)
	if err != nil {
		return false, err
	}
	if !tier.AtLeast(current.SubscriptionTier) {
		s.logger.Info("upgrade below current tier ignored",
			"account_id", accountID,
			"tier", tier.String(),
			"current_tier", current.SubscriptionTier.String())
		return false, nil
	}

	if err := s.writeTier(ctx, accountID, tier); err != nil {
		return false, err
	}
	s.logger.Info("account upgraded", "account_id", accountID, "tier", tier.String())
	return true, nil
}

// SetTier implements AccountService.
func (s *AccountServiceImpl) SetTier(ctx context.Context, accountID string, tier domain.Tier) error {
	if err := s.checkTierTarget(tier); err != nil {
		return err
	}
	if _, err := s.store.Get(ctx, accountID); err != nil {
		return err
	}

	if err := s.writeTier(ctx, accountID, tier); err != nil {
		return err
	}
	s.logger.Info("account tier set", "account_id", accountID, "tier", tier.String())
	return nil
}

func (s *AccountServiceImpl) checkTierTarget(tier domain.Tier) error {
	if s.store == nil {
		return ErrNoStore
	}
	if !tier.IsValid() {
		return fmt.Errorf("%w: %w", ErrInvalidUpgrade, domain.ErrInvalidTier)
	}
	if tier == domain.TierFree {
		return ErrInvalidUpgrade
	}
	return nil
}

func (s *AccountServiceImpl) writeTier(ctx context.Context, accountID string, tier domain.Tier) error {
	now := s.clock.Now()
	if err := s.store.Merge(ctx, accountID, domain.AccountPatch{
		SubscriptionTier: &tier,
		SubscriptionDate: &now,
	}); err != nil {
		s.logger.Error("failed to record tier",
			"error", err,
			"account_id", accountID,
			"tier", tier.String())
		return fmt.Errorf("failed to record tier: %w", err)
	}
	return nil
}

// Describe implements AccountService.
func (s *AccountServiceImpl) Describe(ctx context.Context, accountID string) (*domain.Account, entitlement.Snapshot, error) {
	if s.store == nil {
		return nil, entitlement.Snapshot{}, ErrNoStore
	}
	account, err := s.store.Get(ctx, accountID)
	if err != nil {
		return nil, entitlement.Snapshot{}, err
	}
	return account, entitlement.Derive(account, s.clock.Now()), nil
}
