// Package mocks provides shared test doubles.
//
// Mocks use function fields so each test overrides only the calls it cares
// about; unset fields fall back to a working in-memory behavior.
//
//	accounts := &mocks.MockAccountStore{
//	    GetFn: func(ctx context.Context, id string) (*domain.Account, error) {
//	        return nil, store.ErrUnavailable
//	    },
//	}
package mocks
