// Package auth validates the bearer tokens that carry an account identity.
// Issuing tokens is limited to development tooling; production tokens come
// from the external identity provider sharing the signing secret.
package auth

import (
	"context"
	"time"
)

// JWTService defines operations for managing JWT authentication tokens.
type JWTService interface {
	// GenerateToken creates a signed access token whose subject is accountID.
	GenerateToken(ctx context.Context, accountID string) (string, error)

	// ValidateToken validates the token and extracts its claims.
	// Returns ErrExpiredToken, ErrTokenNotYetValid or ErrInvalidToken.
	ValidateToken(ctx context.Context, tokenString string) (*Claims, error)
}

// Claims are the validated contents of an access token.
type Claims struct {
	// AccountID is the token subject.
	AccountID string
	IssuedAt  time.Time
	ExpiresAt time.Time
	// ID is the unique token identifier (jti).
	ID string
}
