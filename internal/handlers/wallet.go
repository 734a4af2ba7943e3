package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/btech/servicedesk/internal/domain"
	"github.com/btech/servicedesk/internal/service"
	"go.uber.org/zap"
)

// WalletService owns balances, deposits and wallet-funded purchases.
type WalletService interface {
	Wallet(ctx context.Context, userID int64) (*domain.Wallet, []*domain.LedgerEntry, error)
	Deposit(ctx context.Context, userID int64, amount float64, phoneNumber, email, reference string) (*domain.CheckoutSession, error)
	BuyAirtime(ctx context.Context, userID int64, amount float64, phoneNumber string) (*domain.LedgerEntry, error)
	Withdraw(ctx context.Context, userID int64, amount float64, phoneNumber string) (*domain.LedgerEntry, error)
}

// WalletHandler serves the wallet endpoints.
type WalletHandler struct {
	walletService WalletService
	logger        *zap.Logger
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(walletService WalletService, logger *zap.Logger) *WalletHandler {
	return &WalletHandler{
		walletService: walletService,
		logger:        logger,
	}
}

type walletResponse struct {
	Balance  float64               `json:"balance"`
	Currency string                `json:"currency"`
	Entries  []*domain.LedgerEntry `json:"entries"`
}

// Get handles GET /api/wallet.
func (h *WalletHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	wallet, entries, err := h.walletService.Wallet(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to get wallet", zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, walletResponse{
		Balance:  wallet.Balance,
		Currency: wallet.Currency,
		Entries:  entries,
	}, h.logger)
}

type depositRequest struct {
	Amount float64 `json:"amount" validate:"required,gt=0"`
	Phone  string  `json:"phone" validate:"required"`
	Email  string  `json:"email,omitempty" validate:"omitempty,email"`
}

type depositResponse struct {
	Reference   string `json:"reference"`
	InvoiceID   string `json:"invoice_id"`
	CheckoutURL string `json:"url"`
	Status      string `json:"status"`
}

// Deposit handles POST /api/wallet/deposit. The Idempotency-Key header
// is the ledger reference; replaying it returns 409 with the original
// entry instead of opening a second checkout.
func (h *WalletHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	reference := r.Header.Get("Idempotency-Key")
	session, err := h.walletService.Deposit(r.Context(), userID, req.Amount, req.Phone, req.Email, reference)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateReference) {
			writeJSON(w, http.StatusConflict, depositResponse{
				Reference:   session.Entry.Reference,
				InvoiceID:   session.InvoiceID,
				CheckoutURL: session.CheckoutURL,
				Status:      string(session.Entry.Status),
			}, h.logger)
			return
		}
		var gatewayErr *service.GatewayError
		if errors.As(err, &gatewayErr) {
			h.logger.Error("checkout gateway failed", zap.Error(err))
			http.Error(w, "Bad Gateway", http.StatusBadGateway)
			return
		}
		if errors.Is(err, service.ErrInvalidAmount) || errors.Is(err, service.ErrInvalidPhone) {
			http.Error(w, "Bad Request", http.StatusBadRequest)
			return
		}
		h.logger.Error("failed to initiate deposit", zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, depositResponse{
		Reference:   session.Entry.Reference,
		InvoiceID:   session.InvoiceID,
		CheckoutURL: session.CheckoutURL,
		Status:      string(session.Entry.Status),
	}, h.logger)
}

type airtimeRequest struct {
	Amount float64 `json:"amount" validate:"required,gt=0"`
	Phone  string  `json:"phone" validate:"required"`
}

// Airtime handles POST /api/wallet/airtime.
func (h *WalletHandler) Airtime(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req airtimeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	entry, err := h.walletService.BuyAirtime(r.Context(), userID, req.Amount, req.Phone)
	if err != nil {
		h.respondWalletError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, entry, h.logger)
}

type withdrawRequest struct {
	Amount float64 `json:"amount" validate:"required,gt=0"`
	Phone  string  `json:"phone" validate:"required"`
}

// Withdraw handles POST /api/wallet/withdraw.
func (h *WalletHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if err := validate.Struct(req); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	entry, err := h.walletService.Withdraw(r.Context(), userID, req.Amount, req.Phone)
	if err != nil {
		h.respondWalletError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, entry, h.logger)
}

func (h *WalletHandler) respondWalletError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInsufficientFunds):
		http.Error(w, "Payment Required", http.StatusPaymentRequired)
	case errors.Is(err, service.ErrInvalidAmount), errors.Is(err, service.ErrInvalidPhone):
		http.Error(w, "Bad Request", http.StatusBadRequest)
	default:
		h.logger.Error("wallet request failed", zap.Error(err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
