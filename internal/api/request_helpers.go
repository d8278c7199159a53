package api

import (
	"errors"
	"net/http"

	"github.com/phrazzld/studypal-api/internal/api/middleware"
	"github.com/phrazzld/studypal-api/internal/api/shared"
	"github.com/phrazzld/studypal-api/internal/guard"
)

var errMissingDecision = errors.New("route mounted without entitlement middleware")

// requestDecision returns the guard decision placed in the context by the
// entitlement middleware. It writes a 500 and returns false when the route
// was mounted without one.
func requestDecision(w http.ResponseWriter, r *http.Request) (guard.Decision, bool) {
	decision, ok := middleware.DecisionFromContext(r.Context())
	if !ok || !decision.Allowed {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"An unexpected error occurred", errMissingDecision)
		return guard.Decision{}, false
	}
	return decision, true
}

// decodeAndValidate decodes a JSON body into req and runs its validation
// tags. It writes a 400 and returns false on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, req interface{}) bool {
	if err := shared.DecodeJSON(w, r, req); err != nil {
		message := "Invalid request format"
		if errors.Is(err, shared.ErrEmptyBody) {
			message = GetSafeErrorMessage(err)
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, message, err)
		return false
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return false
	}
	return true
}
