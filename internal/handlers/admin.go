package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/btech/servicedesk/internal/domain"
	"go.uber.org/zap"
)

// AdminService is the admin slice of the order lifecycle.
type AdminService interface {
	ListAll(ctx context.Context, status *domain.OrderStatus) ([]*domain.Order, error)
	Timeline(ctx context.Context, orderID int64) ([]*domain.OrderEvent, error)
	Assign(ctx context.Context, orderID, staffID, actorID int64) (*domain.Order, error)
	Verify(ctx context.Context, orderID, adminID int64, note string) (*domain.Order, error)
	Reject(ctx context.Context, orderID, actorID int64, role domain.Role, note string) (*domain.Order, error)
}

// AdminHandler serves the admin order endpoints.
type AdminHandler struct {
	adminService AdminService
	logger       *zap.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(adminService AdminService, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		adminService: adminService,
		logger:       logger,
	}
}

// List handles GET /api/admin/orders, optionally filtered by ?status=.
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	var status *domain.OrderStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := domain.OrderStatus(raw)
		status = &s
	}

	orders, err := h.adminService.ListAll(r.Context(), status)
	if err != nil {
		respondOrderError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, orders, h.logger)
}

// Timeline handles GET /api/admin/orders/{id}/timeline.
func (h *AdminHandler) Timeline(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDParam(r)
	if !ok {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	events, err := h.adminService.Timeline(r.Context(), orderID)
	if err != nil {
		respondOrderError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, events, h.logger)
}

type assignRequest struct {
	StaffID int64 `json:"staff_id" validate:"required,gt=0"`
}

// Assign handles PUT /api/admin/orders/{id}/assign.
func (h *AdminHandler) Assign(w http.ResponseWriter, r *http.Request) {
	adminID, ok := GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	orderID, ok := orderIDParam(r)
	if !ok {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	order, err := h.adminService.Assign(r.Context(), orderID, req.StaffID, adminID)
	if err != nil {
		respondOrderError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, order, h.logger)
}

// Verify handles PUT /api/admin/orders/{id}/verify.
func (h *AdminHandler) Verify(w http.ResponseWriter, r *http.Request) {
	adminID, ok := GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	orderID, ok := orderIDParam(r)
	if !ok {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	var req rejectRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	order, err := h.adminService.Verify(r.Context(), orderID, adminID, req.Note)
	if err != nil {
		respondOrderError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, order, h.logger)
}

// Reject handles PUT /api/admin/orders/{id}/reject.
func (h *AdminHandler) Reject(w http.ResponseWriter, r *http.Request) {
	adminID, ok := GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	orderID, ok := orderIDParam(r)
	if !ok {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	var req rejectRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	order, err := h.adminService.Reject(r.Context(), orderID, adminID, domain.RoleAdmin, req.Note)
	if err != nil {
		respondOrderError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, order, h.logger)
}
