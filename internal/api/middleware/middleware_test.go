package middleware_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/studypal-api/internal/api/middleware"
	"github.com/phrazzld/studypal-api/internal/api/shared"
	"github.com/phrazzld/studypal-api/internal/clock"
	"github.com/phrazzld/studypal-api/internal/config"
	"github.com/phrazzld/studypal-api/internal/domain"
	"github.com/phrazzld/studypal-api/internal/entitlement"
	"github.com/phrazzld/studypal-api/internal/guard"
	"github.com/phrazzld/studypal-api/internal/mocks"
	"github.com/phrazzld/studypal-api/internal/service/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

const testSecret = "0123456789abcdef0123456789abcdef"

// echoAccount writes the account id found in the context.
var echoAccount = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	_, _ = w.Write([]byte(shared.AccountID(r.Context())))
})

func TestTraceMiddleware(t *testing.T) {
	var seen string
	h := middleware.NewTraceMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = shared.GetTraceID(r.Context())
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, seen, 32)
	assert.Equal(t, seen, w.Header().Get(middleware.TraceHeader))

	t.Run("reuses chi request id", func(t *testing.T) {
		chained := chimw.RequestID(h)
		w := httptest.NewRecorder()
		chained.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, w.Header().Get(middleware.TraceHeader))
	})
}

func TestHeaderIdentity(t *testing.T) {
	h := middleware.NewHeaderIdentity("X-Account-ID").Authenticate(echoAccount)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Account-ID", "acct-1")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, "acct-1", w.Body.String())

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestJWTIdentity(t *testing.T) {
	clk := clock.Fixed(now)
	jwtService, err := auth.NewJWTService(config.AuthConfig{JWTSecret: testSecret, TokenLifetime: time.Hour}, clk)
	require.NoError(t, err)

	valid, err := jwtService.GenerateToken(context.Background(), "acct-42")
	require.NoError(t, err)

	h := middleware.NewJWTIdentity(jwtService).Authenticate(echoAccount)

	tests := []struct {
		name       string
		header     string
		advance    time.Duration
		wantStatus int
		wantBody   string
	}{
		{name: "valid token", header: "Bearer " + valid, wantStatus: http.StatusOK, wantBody: "acct-42"},
		{name: "no header passes through", wantStatus: http.StatusOK},
		{name: "wrong scheme", header: "Basic abc", wantStatus: http.StatusUnauthorized},
		{name: "garbage token", header: "Bearer not-a-jwt", wantStatus: http.StatusUnauthorized},
		{name: "expired token", header: "Bearer " + valid, advance: 2 * time.Hour, wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk.Set(now.Add(tt.advance))
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.wantBody, w.Body.String())
			}
		})
	}
}

func TestEntitlementRequire(t *testing.T) {
	accounts := mocks.NewMockAccountStore(
		&domain.Account{ID: "trial", CreatedAt: now.AddDate(0, 0, -3)},
		&domain.Account{ID: "expired", CreatedAt: now.AddDate(0, 0, -45)},
		&domain.Account{ID: "limited", CreatedAt: now.AddDate(0, 0, -45), SubscriptionTier: domain.TierLimited},
	)
	g := guard.New(accounts, guard.WithClock(clock.Fixed(now)))
	em := middleware.NewEntitlementMiddleware(g)

	tests := []struct {
		name       string
		accountID  string
		capability entitlement.Capability
		wantStatus int
		wantReason string
	}{
		{name: "trial has full access", accountID: "trial", capability: entitlement.CapabilityFull, wantStatus: http.StatusOK},
		{name: "expired trial lacks limited", accountID: "expired", capability: entitlement.CapabilityLimited, wantStatus: http.StatusForbidden, wantReason: "insufficient tier"},
		{name: "limited meets limited", accountID: "limited", capability: entitlement.CapabilityLimited, wantStatus: http.StatusOK},
		{name: "limited lacks full", accountID: "limited", capability: entitlement.CapabilityFull, wantStatus: http.StatusForbidden, wantReason: "insufficient tier"},
		{name: "missing identity", capability: entitlement.CapabilityAccount, wantStatus: http.StatusForbidden, wantReason: "identifier missing"},
		{name: "unknown account", accountID: "ghost", capability: entitlement.CapabilityAccount, wantStatus: http.StatusForbidden, wantReason: "account not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var decision guard.Decision
			var found bool
			h := em.Require(tt.capability)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				decision, found = middleware.DecisionFromContext(r.Context())
			}))

			r := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.accountID != "" {
				r = r.WithContext(shared.WithAccountID(r.Context(), tt.accountID))
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, r)

			require.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				require.True(t, found)
				assert.True(t, decision.Allowed)
				require.NotNil(t, decision.Snapshot)
				return
			}

			var body shared.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.wantReason, body.Error)
			assert.Equal(t, tt.wantReason, body.Reason)
		})
	}
}

func TestEntitlementRequireStoreUnavailable(t *testing.T) {
	g := guard.New(nil)
	h := middleware.NewEntitlementMiddleware(g).Require(entitlement.CapabilityAccount)(echoAccount)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(shared.WithAccountID(r.Context(), "acct"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "store unavailable")
}

func TestRateLimiter(t *testing.T) {
	rl := middleware.NewRateLimiter(60, 2)
	h := rl.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	call := func(account string) int {
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		r = r.WithContext(shared.WithAccountID(r.Context(), account))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, call("a"))
	assert.Equal(t, http.StatusOK, call("a"))
	assert.Equal(t, http.StatusTooManyRequests, call("a"))
	assert.Equal(t, http.StatusOK, call("b"), "limits are per account")
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := middleware.NewRateLimiter(0, 0)
	for i := 0; i < 100; i++ {
		require.True(t, rl.Allow("a"))
	}
}
