package api

import (
	"io"
	"net/http"

	"github.com/phrazzld/studypal-api/internal/api/shared"
	"github.com/phrazzld/studypal-api/internal/billing"
)

// WebhookResponse acknowledges a processed webhook.
type WebhookResponse struct {
	Applied bool `json:"applied"`
}

// BillingHandler receives payment provider webhooks.
type BillingHandler struct {
	processor *billing.Processor
}

// NewBillingHandler creates a new BillingHandler.
func NewBillingHandler(processor *billing.Processor) *BillingHandler {
	if processor == nil {
		panic("processor cannot be nil")
	}
	return &BillingHandler{processor: processor}
}

// Webhook handles POST /api/billing/webhook. The signature covers the raw
// body, so it is read in full before decoding.
func (h *BillingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, shared.MaxRequestBodyBytes))
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	applied, err := h.processor.Handle(r.Context(), body, r.Header.Get(billing.SignatureHeader))
	if err != nil {
		HandleAPIError(w, r, err, "Failed to process webhook")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, WebhookResponse{Applied: applied})
}
