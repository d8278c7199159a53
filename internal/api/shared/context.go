package shared

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// ContextKey is the type of request-scoped values set by the middleware chain.
type ContextKey string

// Context keys for various values
const (
	// AccountIDContextKey is the context key for the caller's account id
	AccountIDContextKey ContextKey = "accountID"

	// TraceIDKey is the key for the trace ID in the request context
	TraceIDKey ContextKey = "traceID"

	// DecisionContextKey holds the guard decision for the current request
	DecisionContextKey ContextKey = "entitlementDecision"

	// TraceIDLength is the number of bytes used to generate the trace ID
	TraceIDLength = 16 // 32 hex characters
)

// SetTraceID adds a freshly generated trace ID to the context.
func SetTraceID(ctx context.Context) context.Context {
	return WithTraceID(ctx, generateTraceID())
}

// WithTraceID adds the given trace ID to the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID retrieves the trace ID from the context.
// If no trace ID exists, it returns an empty string.
func GetTraceID(ctx context.Context) string {
	traceID, ok := ctx.Value(TraceIDKey).(string)
	if !ok {
		return ""
	}
	return traceID
}

// WithAccountID stores the authenticated account id in the context.
func WithAccountID(ctx context.Context, accountID string) context.Context {
	return context.WithValue(ctx, AccountIDContextKey, accountID)
}

// AccountID returns the account id placed in the context by the identity
// middleware, or "" when the request carries no identity.
func AccountID(ctx context.Context) string {
	id, _ := ctx.Value(AccountIDContextKey).(string)
	return strings.TrimSpace(id)
}

// generateTraceID returns 32 hex characters from crypto/rand, falling back to
// a random UUID when the system source fails.
func generateTraceID() string {
	b := make([]byte, TraceIDLength)
	n, err := rand.Read(b)
	if err != nil || n != TraceIDLength {
		slog.Error("failed to generate secure random trace ID",
			"error", err,
			"bytes_read", n,
			"fallback", "uuid")
		return strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	return hex.EncodeToString(b)
}
