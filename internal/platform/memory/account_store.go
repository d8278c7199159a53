// Package memory provides an in-process account store for development and
// tests. State is lost on restart.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/phrazzld/studypal-api/internal/domain"
	"github.com/phrazzld/studypal-api/internal/store"
)

// AccountStore implements store.AccountStore with a mutex-guarded map.
type AccountStore struct {
	mu       sync.Mutex
	accounts map[string]*domain.Account
}

// NewAccountStore returns an empty store.
func NewAccountStore() *AccountStore {
	return &AccountStore{accounts: make(map[string]*domain.Account)}
}

var _ store.AccountStore = (*AccountStore)(nil)

// Get returns a copy of the stored account.
func (s *AccountStore) Get(ctx context.Context, id string) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	return a.Clone(), nil
}

// Merge applies patch under the store lock.
func (s *AccountStore) Merge(ctx context.Context, id string, patch domain.AccountPatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, domain.ErrEmptyAccountID)
	}
	if err := patch.Validate(); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		a = &domain.Account{ID: id}
		s.accounts[id] = a
	}
	patch.Apply(a)
	return nil
}

// ConditionalDecrement lowers a positive counter by one under the store lock.
func (s *AccountStore) ConditionalDecrement(ctx context.Context, id string, feature domain.Feature) (int, error) {
	if !feature.IsValid() {
		return 0, domain.ErrUnknownFeature
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return 0, store.ErrAccountNotFound
	}
	n := a.FeatureTrialCounters[feature]
	if n <= 0 {
		return 0, domain.ErrTrialExhausted
	}
	a.FeatureTrialCounters[feature] = n - 1
	return n - 1, nil
}

// Ping always succeeds.
func (s *AccountStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Put replaces the stored account with a copy of a. Intended for seeding
// fixtures; it bypasses the merge restrictions.
func (s *AccountStore) Put(a *domain.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = a.Clone()
}

// Len returns the number of stored accounts.
func (s *AccountStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts)
}
