package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/btech/servicedesk/internal/domain"
	"github.com/btech/servicedesk/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate = validator.New()

func writeJSON(w http.ResponseWriter, status int, v any, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", zap.Error(err))
	}
}

// orderIDParam parses the {id} route parameter.
func orderIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

// respondOrderError maps lifecycle errors to HTTP statuses. Guard
// failures (wrong state, already assigned, already paid) are conflicts;
// ownership failures are forbidden.
func respondOrderError(w http.ResponseWriter, err error, logger *zap.Logger) {
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		http.Error(w, "Not Found", http.StatusNotFound)
	case errors.Is(err, domain.ErrForbidden):
		http.Error(w, "Forbidden", http.StatusForbidden)
	case errors.Is(err, domain.ErrAlreadyAssigned),
		errors.Is(err, domain.ErrAlreadyPaid),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrNoInputRequested):
		http.Error(w, "Conflict", http.StatusConflict)
	case errors.Is(err, domain.ErrStaffNotFound):
		http.Error(w, "Unprocessable Entity", http.StatusUnprocessableEntity)
	case errors.Is(err, domain.ErrInsufficientFunds):
		http.Error(w, "Payment Required", http.StatusPaymentRequired)
	case errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrMissingReference),
		errors.Is(err, service.ErrUnknownMethod):
		http.Error(w, "Bad Request", http.StatusBadRequest)
	default:
		logger.Error("order request failed", zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
