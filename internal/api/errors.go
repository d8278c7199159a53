package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/phrazzld/studypal-api/internal/api/shared"
	"github.com/phrazzld/studypal-api/internal/billing"
	"github.com/phrazzld/studypal-api/internal/domain"
	"github.com/phrazzld/studypal-api/internal/generation"
	"github.com/phrazzld/studypal-api/internal/service"
	"github.com/phrazzld/studypal-api/internal/service/auth"
	"github.com/phrazzld/studypal-api/internal/store"
)

// ReasonTrialExhausted is the rejection reason for a metered feature whose
// trial counter is used up.
const ReasonTrialExhausted = "trial exhausted"

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, billing.ErrInvalidSignature):
		return http.StatusUnauthorized

	// Entitlement errors
	case errors.Is(err, domain.ErrTrialExhausted):
		return http.StatusForbidden

	// Not found errors
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	// Bad request errors
	case errors.Is(err, store.ErrInvalidEntity),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrEmptyAccountID),
		errors.Is(err, domain.ErrInvalidTier),
		errors.Is(err, domain.ErrUnknownFeature),
		errors.Is(err, service.ErrInvalidUpgrade),
		errors.Is(err, billing.ErrInvalidPayload),
		errors.Is(err, generation.ErrEmptyInput),
		errors.Is(err, shared.ErrEmptyBody):
		return http.StatusBadRequest

	// Content refused by the model
	case errors.Is(err, generation.ErrContentBlocked):
		return http.StatusUnprocessableEntity

	// Upstream model failures
	case errors.Is(err, generation.ErrInvalidResponse),
		errors.Is(err, generation.ErrTransientFailure),
		errors.Is(err, generation.ErrGenerationFailed):
		return http.StatusBadGateway

	// Dependencies not configured or not reachable
	case errors.Is(err, store.ErrUnavailable),
		errors.Is(err, service.ErrNoStore),
		errors.Is(err, generation.ErrDisabled):
		return http.StatusServiceUnavailable

	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken):
		return "Invalid token"
	case errors.Is(err, billing.ErrInvalidSignature):
		return "Invalid signature"

	case errors.Is(err, domain.ErrTrialExhausted):
		return ReasonTrialExhausted

	case errors.Is(err, store.ErrAccountNotFound):
		return "Account not found"

	case errors.Is(err, domain.ErrInvalidTier), errors.Is(err, service.ErrInvalidUpgrade):
		return "Invalid subscription tier"
	case errors.Is(err, domain.ErrUnknownFeature):
		return "Unknown feature"
	case errors.Is(err, domain.ErrEmptyAccountID):
		return "Account ID is required"
	case errors.Is(err, billing.ErrInvalidPayload):
		return "Invalid webhook payload"
	case errors.Is(err, generation.ErrEmptyInput):
		return "Input text cannot be empty"
	case errors.Is(err, shared.ErrEmptyBody):
		return "Request body is required"
	case errors.Is(err, store.ErrInvalidEntity), errors.Is(err, domain.ErrValidation):
		return "Invalid entity data"

	case errors.Is(err, generation.ErrContentBlocked):
		return "Content was blocked by safety filters"
	case errors.Is(err, generation.ErrInvalidResponse),
		errors.Is(err, generation.ErrTransientFailure),
		errors.Is(err, generation.ErrGenerationFailed):
		return "The assistant could not complete the request"
	case errors.Is(err, generation.ErrDisabled):
		return "The assistant is not available"

	case errors.Is(err, store.ErrUnavailable), errors.Is(err, service.ErrNoStore):
		return "Service temporarily unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return "Request timed out"

	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError removes sensitive details from validation errors
// and returns a user-friendly message.
func SanitizeValidationError(err error) string {
	errMsg := err.Error()

	// Example format: "Key: 'AskRequest.Question' Error:Field validation for 'Question' failed on the 'required' tag"
	if strings.Contains(errMsg, "Field validation") {
		parts := strings.Split(errMsg, "Error:")
		if len(parts) >= 2 {
			fieldParts := strings.Split(parts[1], "'")
			if len(fieldParts) >= 3 {
				field := fieldParts[1]
				var tag string
				if len(fieldParts) >= 5 {
					tag = fieldParts[3]
				}
				if tag != "" {
					return fmt.Sprintf("Invalid %s: %s", field, getValidationTagMessage(tag))
				}
				return fmt.Sprintf("Invalid %s", field)
			}
		}
	}

	return "Validation error"
}

func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min", "gte", "gt":
		return "too small"
	case "max", "lte", "lt":
		return "too large"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}

// HandleAPIError writes the response for err. An exhausted trial produces the
// same 403 body as a guard rejection. fallback replaces the generic message
// for 500 responses when it is not empty.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	if errors.Is(err, domain.ErrTrialExhausted) {
		shared.RespondWithRejection(w, r, ReasonTrialExhausted)
		return
	}

	status := MapErrorToStatusCode(err)
	message := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && fallback != "" {
		message = fallback
	}

	var opts []shared.ResponseOption
	if status == http.StatusUnauthorized {
		opts = append(opts, shared.WithElevatedLogLevel())
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err, opts...)
}
