package middleware

import (
	"context"
	"net/http"

	"github.com/phrazzld/studypal-api/internal/api/shared"
	"github.com/phrazzld/studypal-api/internal/entitlement"
	"github.com/phrazzld/studypal-api/internal/guard"
)

// Authorizer is the access guard as seen by the HTTP layer.
type Authorizer interface {
	Authorize(ctx context.Context, accountID string, required entitlement.Capability) guard.Decision
}

// EntitlementMiddleware gates routes on a capability.
type EntitlementMiddleware struct {
	authorizer Authorizer
}

// NewEntitlementMiddleware wraps the guard.
func NewEntitlementMiddleware(authorizer Authorizer) *EntitlementMiddleware {
	if authorizer == nil {
		panic("authorizer cannot be nil")
	}
	return &EntitlementMiddleware{authorizer: authorizer}
}

// Require rejects requests whose account does not satisfy capability with a
// 403 naming the reason. Allowed requests carry the decision in their context.
func (m *EntitlementMiddleware) Require(capability entitlement.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := m.authorizer.Authorize(r.Context(), shared.AccountID(r.Context()), capability)
			if !decision.Allowed {
				shared.RespondWithRejection(w, r, string(decision.Reason))
				return
			}
			ctx := context.WithValue(r.Context(), shared.DecisionContextKey, decision)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// DecisionFromContext returns the decision stored by Require.
func DecisionFromContext(ctx context.Context) (guard.Decision, bool) {
	d, ok := ctx.Value(shared.DecisionContextKey).(guard.Decision)
	return d, ok
}
