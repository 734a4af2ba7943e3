package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/btech/servicedesk/internal/domain"
	"go.uber.org/zap"
)

// OrderService is the client-facing slice of the order lifecycle.
type OrderService interface {
	Submit(ctx context.Context, userID int64, serviceType string, payload []byte) (*domain.Order, error)
	ListForClient(ctx context.Context, userID int64) ([]*domain.Order, error)
	Get(ctx context.Context, orderID, callerID int64, role domain.Role) (*domain.Order, error)
	Pay(ctx context.Context, orderID, userID int64, method string, amount float64, reference string) (*domain.Order, error)
	SubmitInput(ctx context.Context, orderID, userID int64, response string) (*domain.Order, error)
}

// OrdersHandler serves the client order endpoints.
type OrdersHandler struct {
	orderService OrderService
	logger       *zap.Logger
}

// NewOrdersHandler creates a new OrdersHandler.
func NewOrdersHandler(orderService OrderService, logger *zap.Logger) *OrdersHandler {
	return &OrdersHandler{
		orderService: orderService,
		logger:       logger,
	}
}

type submitOrderRequest struct {
	ServiceType string          `json:"type" validate:"required"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// Submit handles POST /api/orders.
func (h *OrdersHandler) Submit(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req submitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	order, err := h.orderService.Submit(r.Context(), userID, req.ServiceType, req.Payload)
	if err != nil {
		respondOrderError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, order, h.logger)
}

// List handles GET /api/orders.
func (h *OrdersHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	orders, err := h.orderService.ListForClient(r.Context(), userID)
	if err != nil {
		respondOrderError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, orders, h.logger)
}

// Get handles GET /api/orders/{id}.
func (h *OrdersHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	orderID, ok := orderIDParam(r)
	if !ok {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	role, _ := GetRole(r.Context())
	order, err := h.orderService.Get(r.Context(), orderID, userID, role)
	if err != nil {
		respondOrderError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, order, h.logger)
}

type payOrderRequest struct {
	Method    string  `json:"method" validate:"required,oneof=WALLET MPESA GATEWAY"`
	Amount    float64 `json:"amount" validate:"required,gt=0"`
	Reference string  `json:"reference,omitempty"`
}

// Pay handles POST /api/orders/{id}/pay.
func (h *OrdersHandler) Pay(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	orderID, ok := orderIDParam(r)
	if !ok {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	var req payOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	order, err := h.orderService.Pay(r.Context(), orderID, userID, req.Method, req.Amount, req.Reference)
	if err != nil {
		respondOrderError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, order, h.logger)
}

type submitInputRequest struct {
	Response string `json:"response" validate:"required"`
}

// SubmitInput handles POST /api/orders/{id}/input.
func (h *OrdersHandler) SubmitInput(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	orderID, ok := orderIDParam(r)
	if !ok {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	var req submitInputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	order, err := h.orderService.SubmitInput(r.Context(), orderID, userID, req.Response)
	if err != nil {
		respondOrderError(w, err, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, order, h.logger)
}
