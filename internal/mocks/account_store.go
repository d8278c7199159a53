package mocks

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/phrazzld/studypal-api/internal/domain"
	"github.com/phrazzld/studypal-api/internal/store"
)

// MockAccountStore implements store.AccountStore for testing.
// Function fields override the default behavior, which serves Accounts.
type MockAccountStore struct {
	GetFn                  func(ctx context.Context, id string) (*domain.Account, error)
	MergeFn                func(ctx context.Context, id string, patch domain.AccountPatch) error
	ConditionalDecrementFn func(ctx context.Context, id string, feature domain.Feature) (int, error)
	PingFn                 func(ctx context.Context) error

	// Accounts backs the default implementation, keyed by id.
	Accounts map[string]*domain.Account

	GetCalls       atomic.Int32
	MergeCalls     atomic.Int32
	DecrementCalls atomic.Int32

	mu sync.Mutex
}

// NewMockAccountStore creates a mock serving the given accounts.
func NewMockAccountStore(accounts ...*domain.Account) *MockAccountStore {
	m := &MockAccountStore{Accounts: make(map[string]*domain.Account)}
	for _, a := range accounts {
		m.Accounts[a.ID] = a.Clone()
	}
	return m
}

var _ store.AccountStore = (*MockAccountStore)(nil)

// Get implements store.AccountReader.
func (m *MockAccountStore) Get(ctx context.Context, id string) (*domain.Account, error) {
	m.GetCalls.Add(1)
	if m.GetFn != nil {
		return m.GetFn(ctx, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.Accounts[id]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	return a.Clone(), nil
}

// Merge implements store.AccountStore.
func (m *MockAccountStore) Merge(ctx context.Context, id string, patch domain.AccountPatch) error {
	m.MergeCalls.Add(1)
	if m.MergeFn != nil {
		return m.MergeFn(ctx, id, patch)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Accounts == nil {
		m.Accounts = make(map[string]*domain.Account)
	}
	a, ok := m.Accounts[id]
	if !ok {
		a = &domain.Account{ID: id}
		m.Accounts[id] = a
	}
	patch.Apply(a)
	return nil
}

// ConditionalDecrement implements store.TrialDecrementer.
func (m *MockAccountStore) ConditionalDecrement(ctx context.Context, id string, feature domain.Feature) (int, error) {
	m.DecrementCalls.Add(1)
	if m.ConditionalDecrementFn != nil {
		return m.ConditionalDecrementFn(ctx, id, feature)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.Accounts[id]
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

// Ping implements store.AccountStore.
func (m *MockAccountStore) Ping(ctx context.Context) error {
	if m.PingFn != nil {
		return m.PingFn(ctx)
	}
	return nil
}
