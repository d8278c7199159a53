package metrics

import (
	"context"
	"time"

	"github.com/phrazzld/studypal-api/internal/domain"
	"github.com/phrazzld/studypal-api/internal/store"
)

// InstrumentedStore times every call to an inner account store.
type InstrumentedStore struct {
	inner    store.AccountStore
	backend  string
	recorder *Recorder
}

// InstrumentStore wraps inner; backend labels the observations.
func InstrumentStore(inner store.AccountStore, backend string, recorder *Recorder) *InstrumentedStore {
	return &InstrumentedStore{inner: inner, backend: backend, recorder: recorder}
}

var _ store.AccountStore = (*InstrumentedStore)(nil)

func (s *InstrumentedStore) Get(ctx context.Context, id string) (*domain.Account, error) {
	start := time.Now()
	a, err := s.inner.Get(ctx, id)
	s.recorder.ObserveStoreOperation(s.backend, "get", time.Since(start), err)
	return a, err
}

func (s *InstrumentedStore) Merge(ctx context.Context, id string, patch domain.AccountPatch) error {
	start := time.Now()
	err := s.inner.Merge(ctx, id, patch)
	s.recorder.ObserveStoreOperation(s.backend, "merge", time.Since(start), err)
	return err
}

func (s *InstrumentedStore) ConditionalDecrement(ctx context.Context, id string, feature domain.Feature) (int, error) {
	start := time.Now()
	n, err := s.inner.ConditionalDecrement(ctx, id, feature)
	s.recorder.ObserveStoreOperation(s.backend, "conditional_decrement", time.Since(start), err)
	return n, err
}

func (s *InstrumentedStore) Ping(ctx context.Context) error {
	start := time.Now()
	err := s.inner.Ping(ctx)
	s.recorder.ObserveStoreOperation(s.backend, "ping", time.Since(start), err)
	return err
}
