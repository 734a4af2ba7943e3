package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/btech/servicedesk/internal/domain"
	"github.com/btech/servicedesk/internal/repository/postgres"
	"github.com/btech/servicedesk/internal/utils/phone"
	"github.com/btech/servicedesk/internal/utils/tracking"
	"go.uber.org/zap"
)

// LedgerService owns wallet balances, money movement records and the
// checkout/callback reconciliation flow.
type LedgerService struct {
	ledgerRepo  domain.LedgerRepository
	checkout    CheckoutClient
	notifier    domain.Notifier
	logger      *zap.Logger
	countryCode string
	currency    string
}

// NewLedgerService creates a new LedgerService.
func NewLedgerService(ledgerRepo domain.LedgerRepository, checkout CheckoutClient, notifier domain.Notifier, logger *zap.Logger, countryCode, currency string) *LedgerService {
	return &LedgerService{
		ledgerRepo:  ledgerRepo,
		checkout:    checkout,
		notifier:    notifier,
		logger:      logger,
		countryCode: countryCode,
		currency:    currency,
	}
}

// Deposit opens a hosted checkout session for a wallet top-up. The
// reference is the caller's idempotency key; a replay surfaces
// ErrDuplicateReference before any gateway call is made. A gateway
// failure settles the entry FAILED and no balance changes.
func (s *LedgerService) Deposit(ctx context.Context, userID int64, amount float64, phoneNumber, email, reference string) (*domain.CheckoutSession, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if !phone.Valid(phoneNumber) {
		return nil, ErrInvalidPhone
	}
	if reference == "" {
		reference = tracking.NewReference("DEP")
	}

	entry, err := s.ledgerRepo.Record(ctx, &domain.LedgerEntry{
		UserID:    userID,
		Type:      domain.EntryTypeDeposit,
		Category:  domain.CategoryWallet,
		Amount:    amount,
		Currency:  s.currency,
		Method:    domain.MethodGateway,
		Status:    domain.EntryStatusPending,
		Reference: reference,
	})
	if err != nil {
		if errors.Is(err, postgres.ErrDuplicateReference) {
			// Replayed idempotency key: hand back the original entry so
			// the caller can resume the earlier checkout.
			existing, getErr := s.ledgerRepo.GetByReference(ctx, reference)
			if getErr != nil {
				return nil, fmt.Errorf("ledger service: failed to load duplicate entry %q: %w", reference, getErr)
			}
			session := &domain.CheckoutSession{
				Entry:       existing,
				InvoiceID:   existing.Metadata["invoice_id"],
				CheckoutURL: existing.Metadata["checkout_url"],
			}
			return session, domain.ErrDuplicateReference
		}
		return nil, fmt.Errorf("ledger service: failed to record deposit: %w", err)
	}

	resp, err := s.checkout.CreateCheckout(ctx, CheckoutRequest{
		Amount:      amount,
		Currency:    s.currency,
		PhoneNumber: phone.Normalize(phoneNumber, s.countryCode),
		Email:       email,
		Reference:   reference,
	})
	if err != nil {
		if _, settleErr := s.ledgerRepo.Settle(ctx, entry.ID, domain.EntryStatusFailed, err.Error()); settleErr != nil {
			s.logger.Error("failed to settle entry after gateway error",
				zap.Int64("entry_id", entry.ID), zap.Error(settleErr))
		}
		return nil, err
	}

	meta := map[string]string{
		"invoice_id":   resp.InvoiceID,
		"checkout_url": resp.URL,
	}
	if err := s.ledgerRepo.MergeMetadata(ctx, entry.ID, meta); err != nil {
		return nil, fmt.Errorf("ledger service: failed to store invoice id: %w", err)
	}
	entry.Metadata = meta

	return &domain.CheckoutSession{Entry: entry, InvoiceID: resp.InvoiceID, CheckoutURL: resp.URL}, nil
}

// HandleCallback reconciles an asynchronous gateway notification with
// the ledger. Unknown invoices and replays are benign no-ops; only a
// COMPLETE state moves money.
func (s *LedgerService) HandleCallback(ctx context.Context, cb domain.GatewayCallback) error {
	entry, err := s.ledgerRepo.FindForCallback(ctx, cb.InvoiceID, cb.APIRef)
	if err != nil {
		if errors.Is(err, postgres.ErrEntryNotFound) {
			s.logger.Info("callback for unknown invoice ignored",
				zap.String("invoice_id", cb.InvoiceID), zap.String("api_ref", cb.APIRef))
			return nil
		}
		return fmt.Errorf("ledger service: failed to look up callback entry: %w", err)
	}

	if entry.Status.Terminal() {
		s.logger.Info("callback replay for settled entry ignored",
			zap.String("reference", entry.Reference), zap.String("state", cb.State))
		return nil
	}

	switch cb.State {
	case domain.CallbackStateComplete:
		settled, err := s.ledgerRepo.Settle(ctx, entry.ID, domain.EntryStatusCompleted, "")
		if err != nil {
			return fmt.Errorf("ledger service: failed to complete entry %q: %w", entry.Reference, err)
		}
		s.notifier.Enqueue(domain.NotificationEvent{
			Type:       domain.EventPaymentConfirmed,
			UserID:     settled.UserID,
			OccurredAt: time.Now(),
			Data: map[string]string{
				"reference": settled.Reference,
				"amount":    fmt.Sprintf("%.2f", settled.Amount),
			},
		})
		return nil

	case domain.CallbackStateFailed:
		if _, err := s.ledgerRepo.Settle(ctx, entry.ID, domain.EntryStatusFailed, cb.FailureReason()); err != nil {
			return fmt.Errorf("ledger service: failed to fail entry %q: %w", entry.Reference, err)
		}
		return nil

	default:
		// Intermediate gateway states are kept for the audit trail only.
		if err := s.ledgerRepo.MergeMetadata(ctx, entry.ID, map[string]string{"gateway_state": cb.State}); err != nil {
			return fmt.Errorf("ledger service: failed to record gateway state: %w", err)
		}
		return nil
	}
}

// Wallet returns the balance and recent entries of a user.
func (s *LedgerService) Wallet(ctx context.Context, userID int64) (*domain.Wallet, []*domain.LedgerEntry, error) {
	wallet, err := s.ledgerRepo.GetWallet(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("ledger service: failed to get wallet for user %d: %w", userID, err)
	}

	entries, err := s.ledgerRepo.ListByUser(ctx, userID, 50)
	if err != nil {
		return nil, nil, fmt.Errorf("ledger service: failed to list entries for user %d: %w", userID, err)
	}

	return wallet, entries, nil
}

// BuyAirtime debits the wallet for an airtime purchase.
func (s *LedgerService) BuyAirtime(ctx context.Context, userID int64, amount float64, phoneNumber string) (*domain.LedgerEntry, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if !phone.Valid(phoneNumber) {
		return nil, ErrInvalidPhone
	}

	entry, err := s.ledgerRepo.Debit(ctx, &domain.LedgerEntry{
		UserID:    userID,
		Type:      domain.EntryTypePayment,
		Category:  domain.CategoryAirtime,
		Amount:    amount,
		Currency:  s.currency,
		Method:    domain.MethodWallet,
		Reference: tracking.NewReference("AIR"),
		Metadata:  map[string]string{"phone": phone.Normalize(phoneNumber, s.countryCode)},
	})
	if err != nil {
		if errors.Is(err, postgres.ErrInsufficientFunds) {
			return nil, domain.ErrInsufficientFunds
		}
		return nil, fmt.Errorf("ledger service: failed to buy airtime for user %d: %w", userID, err)
	}

	return entry, nil
}

// Withdraw debits the wallet and records a PENDING cash-out to the
// user's phone. The funds are reserved immediately; the entry stays
// PENDING until an operator settles the disbursement.
func (s *LedgerService) Withdraw(ctx context.Context, userID int64, amount float64, phoneNumber string) (*domain.LedgerEntry, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if !phone.Valid(phoneNumber) {
		return nil, ErrInvalidPhone
	}

	entry, err := s.ledgerRepo.Debit(ctx, &domain.LedgerEntry{
		UserID:    userID,
		Type:      domain.EntryTypePayout,
		Category:  domain.CategoryPayout,
		Amount:    amount,
		Currency:  s.currency,
		Method:    domain.MethodMpesa,
		Status:    domain.EntryStatusPending,
		Reference: tracking.NewReference("WDR"),
		Metadata:  map[string]string{"phone": phone.Normalize(phoneNumber, s.countryCode)},
	})
	if err != nil {
		if errors.Is(err, postgres.ErrInsufficientFunds) {
			return nil, domain.ErrInsufficientFunds
		}
		return nil, fmt.Errorf("ledger service: failed to record withdrawal for user %d: %w", userID, err)
	}

	return entry, nil
}
