package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/phrazzld/studypal-api/internal/api/shared"
	"github.com/phrazzld/studypal-api/internal/platform/logger"
	"github.com/phrazzld/studypal-api/internal/redact"
	"github.com/phrazzld/studypal-api/internal/service/auth"
)

// IdentityMiddleware resolves the caller's account id and stores it in the
// request context. A request without credentials passes through with no
// identity; the entitlement middleware rejects it as "identifier missing".
// Credentials that are present but invalid are answered with 401.
type IdentityMiddleware struct {
	jwtService auth.JWTService
	header     string
}

// NewJWTIdentity reads the account id from the subject of a Bearer token.
func NewJWTIdentity(jwtService auth.JWTService) *IdentityMiddleware {
	if jwtService == nil {
		panic("jwtService cannot be nil")
	}
	return &IdentityMiddleware{jwtService: jwtService}
}

// NewHeaderIdentity trusts the account id in header, which an authenticating
// proxy in front of the service must set.
func NewHeaderIdentity(header string) *IdentityMiddleware {
	if strings.TrimSpace(header) == "" {
		panic("identity header cannot be empty")
	}
	return &IdentityMiddleware{header: header}
}

// Authenticate is the middleware handler.
func (m *IdentityMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var accountID string

		if m.jwtService == nil {
			accountID = strings.TrimSpace(r.Header.Get(m.header))
		} else {
			id, ok := m.fromBearer(w, r)
			if !ok {
				return
			}
			accountID = id
		}

		if accountID == "" {
			next.ServeHTTP(w, r)
			return
		}

		ctx := shared.WithAccountID(r.Context(), accountID)
		log := logger.FromContextOrDefault(ctx, slog.Default()).With(slog.String("account_id", accountID))
		ctx = logger.WithLogger(ctx, log)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// fromBearer returns the token subject. It writes a 401 and returns false
// when the header is malformed or the token is invalid.
func (m *IdentityMiddleware) fromBearer(w http.ResponseWriter, r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", true
	}

	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid authorization format")
		return "", false
	}

	claims, err := m.jwtService.ValidateToken(r.Context(), parts[1])
	switch {
	case err == nil:
		return claims.AccountID, true
	case errors.Is(err, auth.ErrExpiredToken):
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Token expired")
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrTokenNotYetValid):
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid token")
	default:
		logger.FromContextOrDefault(r.Context(), slog.Default()).
			Error("failed to validate token", "error", redact.Error(err))
		shared.RespondWithError(w, r, http.StatusInternalServerError, "Authentication error")
	}
	return "", false
}
