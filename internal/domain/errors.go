package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrEmptyAccountID is returned when an account has no identifier.
	ErrEmptyAccountID = errors.New("account ID cannot be empty")

	// ErrInvalidTier is returned for a tier outside free/limited/full.
	ErrInvalidTier = errors.New("invalid subscription tier")

	// ErrUnknownFeature is returned for a feature without a trial counter.
	ErrUnknownFeature = errors.New("unknown feature")

	// ErrNegativeCounter is returned when a trial counter would be negative.
	ErrNegativeCounter = errors.New("trial counter cannot be negative")

	// ErrTrialExhausted is returned when a feature trial counter is already
	// at zero and cannot be decremented.
	ErrTrialExhausted = errors.New("feature trial exhausted")
)
