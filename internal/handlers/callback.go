package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/btech/servicedesk/internal/domain"
	"go.uber.org/zap"
)

// CallbackService reconciles gateway notifications with the ledger.
type CallbackService interface {
	HandleCallback(ctx context.Context, cb domain.GatewayCallback) error
}

// CallbackHandler serves the gateway-facing callback endpoint.
type CallbackHandler struct {
	callbackService CallbackService
	logger          *zap.Logger
}

// NewCallbackHandler creates a new CallbackHandler.
func NewCallbackHandler(callbackService CallbackService, logger *zap.Logger) *CallbackHandler {
	return &CallbackHandler{
		callbackService: callbackService,
		logger:          logger,
	}
}

type callbackResponse struct {
	Status string `json:"status"`
}

// Handle handles POST /api/wallet/callback. The gateway retries
// non-200 responses, so the endpoint answers 200 even for payloads it
// cannot use; real processing failures are logged and retried by the
// gateway's redelivery.
func (h *CallbackHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var cb domain.GatewayCallback
	if err := json.NewDecoder(r.Body).Decode(&cb); err != nil {
		h.logger.Warn("malformed gateway callback", zap.Error(err))
		writeJSON(w, http.StatusOK, callbackResponse{Status: "ignored"}, h.logger)
		return
	}

	if err := h.callbackService.HandleCallback(r.Context(), cb); err != nil {
		h.logger.Error("gateway callback processing failed",
			zap.String("invoice_id", cb.InvoiceID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusOK, callbackResponse{Status: "error"}, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, callbackResponse{Status: "ok"}, h.logger)
}
