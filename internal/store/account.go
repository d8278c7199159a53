package store

import (
	"context"

	"github.com/phrazzld/studypal-api/internal/domain"
)

// AccountReader loads account documents. It is the only store capability the
// access guard needs.
type AccountReader interface {
	// Get returns the account with the given id.
	// Returns ErrAccountNotFound if the account does not exist.
	Get(ctx context.Context, id string) (*domain.Account, error)
}

// TrialDecrementer atomically consumes one use of a feature trial counter.
type TrialDecrementer interface {
	// ConditionalDecrement lowers the counter of feature by one if, and only
	// if, it is currently positive, and returns the new value. The check and
	// the write are a single atomic operation: of N concurrent callers facing
	// a counter of k, exactly min(N, k) succeed.
	// Returns ErrAccountNotFound if the account does not exist and
	// domain.ErrTrialExhausted if the counter is zero or absent.
	ConditionalDecrement(ctx context.Context, id string, feature domain.Feature) (int, error)
}

// AccountStore is the document store contract for accounts.
type AccountStore interface {
	AccountReader
	TrialDecrementer

	// Merge writes the non-nil fields of patch to the account, creating the
	// document if it does not exist. CreatedAt is never overwritten once set
	// and existing trial counters are never raised.
	// Returns validation errors wrapped in ErrInvalidEntity.
	Merge(ctx context.Context, id string, patch domain.AccountPatch) error

	// Ping checks that the backing store is reachable.
	Ping(ctx context.Context) error
}
