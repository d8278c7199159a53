package service

import "errors"

// Common service errors - sentinel errors used across service implementations.
// Callers check them with errors.Is; the API layer maps them to status codes.
var (
	// ErrInvalidUpgrade indicates an upgrade to a tier that is not a paid tier.
	// API layer should map this to HTTP 400 Bad Request.
	ErrInvalidUpgrade = errors.New("upgrade target must be a paid tier")

	// ErrNoStore indicates the service runs without a configured account store.
	// API layer should map this to HTTP 503 Service Unavailable.
	ErrNoStore = errors.New("account store not configured")
)
