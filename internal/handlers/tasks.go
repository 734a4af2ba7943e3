package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/btech/servicedesk/internal/domain"
	"go.uber.org/zap"
)

// TaskService is the staff-facing slice of the order lifecycle.
type TaskService interface {
	ListForStaff(ctx context.Context, staffID int64) ([]*domain.Order, error)
	UpdateStep(ctx context.Context, orderID, staffID int64, step string, completed bool) (*domain.Order, error)
	RequestInput(ctx context.Context, orderID, staffID int64, actionType, message string) (*domain.Order, error)
	Complete(ctx context.Context, orderID, staffID int64) (*domain.Order, error)
	Reject(ctx context.Context, orderID, actorID int64, role domain.Role, note string) (*domain.Order, error)
	Earnings(ctx context.Context, staffID int64) (*domain.Earnings, error)
}

// TasksHandler serves the staff task endpoints.
type TasksHandler struct {
	taskService TaskService
	logger      *zap.Logger
}

// NewTasksHandler creates a new TasksHandler.
func NewTasksHandler(taskService TaskService, logger *zap.Logger) *TasksHandler {
	return &TasksHandler{
		taskService: taskService,
		logger:      logger,
	}
}

// List handles GET /api/staff/tasks: the assignments plus the
// unassigned pool.
func (h *TasksHandler) List(w http.ResponseWriter, r *http.Request) {
	staffID, ok := GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	orders, err := h.taskService.ListForStaff(r.Context(), staffID)
	if err != nil {
		respondOrderError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, orders, h.logger)
}

type updateStepRequest struct {
	Step      string `json:"step" validate:"required"`
	Completed bool   `json:"completed"`
}

// UpdateStep handles PUT /api/staff/tasks/{id}/step.
func (h *TasksHandler) UpdateStep(w http.ResponseWriter, r *http.Request) {
	staffID, ok := GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	orderID, ok := orderIDParam(r)
	if !ok {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	var req updateStepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	order, err := h.taskService.UpdateStep(r.Context(), orderID, staffID, req.Step, req.Completed)
	if err != nil {
		respondOrderError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, order, h.logger)
}

type requestInputRequest struct {
	Type    string `json:"type" validate:"required"`
	Message string `json:"message" validate:"required"`
}

// RequestInput handles PUT /api/staff/tasks/{id}/request-input.
func (h *TasksHandler) RequestInput(w http.ResponseWriter, r *http.Request) {
	staffID, ok := GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	orderID, ok := orderIDParam(r)
	if !ok {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	var req requestInputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	order, err := h.taskService.RequestInput(r.Context(), orderID, staffID, req.Type, req.Message)
	if err != nil {
		respondOrderError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, order, h.logger)
}

// Complete handles PUT /api/staff/tasks/{id}/complete.
func (h *TasksHandler) Complete(w http.ResponseWriter, r *http.Request) {
	staffID, ok := GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	orderID, ok := orderIDParam(r)
	if !ok {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	order, err := h.taskService.Complete(r.Context(), orderID, staffID)
	if err != nil {
		respondOrderError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, order, h.logger)
}

type rejectRequest struct {
	Note string `json:"note,omitempty"`
}

// Reject handles PUT /api/staff/tasks/{id}/reject.
func (h *TasksHandler) Reject(w http.ResponseWriter, r *http.Request) {
	staffID, ok := GetUserID(r.Context())
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

	order, err := h.taskService.Reject(r.Context(), orderID, staffID, domain.RoleStaff, req.Note)
	if err != nil {
		respondOrderError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, order, h.logger)
}

// Earnings handles GET /api/staff/earnings.
func (h *TasksHandler) Earnings(w http.ResponseWriter, r *http.Request) {
	staffID, ok := GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	earnings, err := h.taskService.Earnings(r.Context(), staffID)
	if err != nil {
		respondOrderError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, earnings, h.logger)
}
