package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/studypal-api/internal/api/shared"
	"github.com/phrazzld/studypal-api/internal/clock"
	"github.com/phrazzld/studypal-api/internal/domain"
	"github.com/phrazzld/studypal-api/internal/entitlement"
	"github.com/phrazzld/studypal-api/internal/platform/logger"
	"github.com/phrazzld/studypal-api/internal/service"
	"github.com/phrazzld/studypal-api/internal/trial"
)

// EntitlementsResponse is the body of GET /api/entitlements.
type EntitlementsResponse struct {
	AccountID           string               `json:"account_id"`
	Entitlements        entitlement.Snapshot `json:"entitlements"`
	EnforcementDisabled bool                 `json:"enforcement_disabled,omitempty"`
}

// TrialsResponse is the body of GET /api/trials.
type TrialsResponse struct {
	AccountID string `json:"account_id"`
	// Unmetered is true when the account's uses are not counted.
	Unmetered bool                   `json:"unmetered"`
	Remaining map[domain.Feature]int `json:"remaining"`
}

// AccountResponse pairs an account with its current entitlements.
type AccountResponse struct {
	Account      *domain.Account      `json:"account"`
	Entitlements entitlement.Snapshot `json:"entitlements"`
}

// UpdateTierRequest is the body of POST /api/admin/accounts/{id}/tier.
type UpdateTierRequest struct {
	Tier string `json:"tier" validate:"required,oneof=limited full"`
}

// AccountHandler serves the entitlement and account endpoints.
type AccountHandler struct {
	accounts service.AccountService
	counter  *trial.Counter
	clock    clock.Clock
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(accounts service.AccountService, counter *trial.Counter, c clock.Clock) *AccountHandler {
	if c == nil {
		c = clock.System()
	}
	return &AccountHandler{accounts: accounts, counter: counter, clock: c}
}

// GetEntitlements handles GET /api/entitlements.
func (h *AccountHandler) GetEntitlements(w http.ResponseWriter, r *http.Request) {
	decision, ok := requestDecision(w, r)
	if !ok {
		return
	}
	accountID := shared.AccountID(r.Context())

	snapshot := decision.Snapshot
	if snapshot == nil {
		_, s, err := h.accounts.Describe(r.Context(), accountID)
		if err != nil {
			HandleAPIError(w, r, err, "Failed to load entitlements")
			return
		}
		snapshot = &s
	}

	shared.RespondWithJSON(w, r, http.StatusOK, EntitlementsResponse{
		AccountID:           accountID,
		Entitlements:        *snapshot,
		EnforcementDisabled: decision.EnforcementDisabled,
	})
}

// GetTrials handles GET /api/trials.
func (h *AccountHandler) GetTrials(w http.ResponseWriter, r *http.Request) {
	decision, ok := requestDecision(w, r)
	if !ok {
		return
	}
	accountID := shared.AccountID(r.Context())

	account, snapshot := decision.Account, decision.Snapshot
	if account == nil || snapshot == nil {
		a, s, err := h.accounts.Describe(r.Context(), accountID)
		if err != nil {
			HandleAPIError(w, r, err, "Failed to load trials")
			return
		}
		account, snapshot = a, &s
	}

	shared.RespondWithJSON(w, r, http.StatusOK, TrialsResponse{
		AccountID: accountID,
		Unmetered: snapshot.Unmetered(),
		Remaining: h.counter.RemainingAll(account),
	})
}

// ProvisionAccount handles POST /api/accounts. It creates the caller's
// account with a fresh trial and answers 201, or 200 when it already exists.
func (h *AccountHandler) ProvisionAccount(w http.ResponseWriter, r *http.Request) {
	accountID := shared.AccountID(r.Context())
	if accountID == "" {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "Account identity required")
		return
	}

	account, created, err := h.accounts.Provision(r.Context(), accountID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to provision account")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		logger.FromContextOrDefault(r.Context(), slog.Default()).Info("account provisioned")
	}
	shared.RespondWithJSON(w, r, status, AccountResponse{
		Account:      account,
		Entitlements: entitlement.Derive(account, h.clock.Now()),
	})
}

// GetAccount handles GET /api/admin/accounts/{id}.
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		HandleAPIError(w, r, domain.ErrEmptyAccountID, "")
		return
	}

	account, snapshot, err := h.accounts.Describe(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load account")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, AccountResponse{Account: account, Entitlements: snapshot})
}

// UpdateTier handles POST /api/admin/accounts/{id}/tier, a manual tier
// change for support staff. Unlike the payment path it may lower a tier.
func (h *AccountHandler) UpdateTier(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		HandleAPIError(w, r, domain.ErrEmptyAccountID, "")
		return
	}

	var req UpdateTierRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}
	tier, err := domain.ParseTier(req.Tier)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	if err := h.accounts.SetTier(r.Context(), id, tier); err != nil {
		HandleAPIError(w, r, err, "Failed to update tier")
		return
	}

	logger.FromContextOrDefault(r.Context(), slog.Default()).Info("tier updated by admin",
		slog.String("target_account_id", id),
		slog.String("tier", tier.String()))

	account, snapshot, err := h.accounts.Describe(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load account")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, AccountResponse{Account: account, Entitlements: snapshot})
}
