package service

import (
	"context"
	"testing"

	"github.com/btech/servicedesk/internal/domain"
	"github.com/btech/servicedesk/internal/repository/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newLedgerService(ledger *stubLedgerRepo, checkout CheckoutClient, notifier *recordingNotifier) *LedgerService {
	return NewLedgerService(ledger, checkout, notifier, zap.NewNop(), "254", "KES")
}

func TestLedgerService_Deposit(t *testing.T) {
	ctx := context.Background()

	t.Run("Success normalizes the phone and stores the invoice", func(t *testing.T) {
		var gotPhone string
		var merged map[string]string
		ledger := &stubLedgerRepo{
			recordFn: func(_ context.Context, entry *domain.LedgerEntry) (*domain.LedgerEntry, error) {
				assert.Equal(t, domain.EntryTypeDeposit, entry.Type)
				assert.Equal(t, domain.EntryStatusPending, entry.Status)
				entry.ID = 1
				return entry, nil
			},
			mergeMetadataFn: func(_ context.Context, entryID int64, metadata map[string]string) error {
				assert.Equal(t, int64(1), entryID)
				merged = metadata
				return nil
			},
		}
		checkout := &stubCheckout{
			createFn: func(_ context.Context, req CheckoutRequest) (*CheckoutResponse, error) {
				gotPhone = req.PhoneNumber
				return &CheckoutResponse{InvoiceID: "INV-1", URL: "https://pay.example/INV-1"}, nil
			},
		}
		svc := newLedgerService(ledger, checkout, &recordingNotifier{})

		session, err := svc.Deposit(ctx, 10, 1000, "0712345678", "user@example.com", "DEP-key")
		require.NoError(t, err)
		assert.Equal(t, "254712345678", gotPhone)
		assert.Equal(t, "INV-1", session.InvoiceID)
		assert.Equal(t, "INV-1", merged["invoice_id"])
	})

	t.Run("Duplicate idempotency key returns the original entry", func(t *testing.T) {
		ledger := &stubLedgerRepo{
			recordFn: func(_ context.Context, _ *domain.LedgerEntry) (*domain.LedgerEntry, error) {
				return nil, postgres.ErrDuplicateReference
			},
			getByReferenceFn: func(_ context.Context, reference string) (*domain.LedgerEntry, error) {
				return &domain.LedgerEntry{
					ID: 1, Reference: reference,
					Metadata: map[string]string{"invoice_id": "INV-1", "checkout_url": "https://pay.example/INV-1"},
				}, nil
			},
		}
		svc := newLedgerService(ledger, &stubCheckout{}, &recordingNotifier{})

		session, err := svc.Deposit(ctx, 10, 1000, "0712345678", "", "DEP-key")
		assert.ErrorIs(t, err, domain.ErrDuplicateReference)
		require.NotNil(t, session)
		assert.Equal(t, "INV-1", session.InvoiceID)
	})

	t.Run("Gateway failure settles the entry FAILED", func(t *testing.T) {
		var settledOutcome domain.EntryStatus
		var settledReason string
		ledger := &stubLedgerRepo{
			recordFn: func(_ context.Context, entry *domain.LedgerEntry) (*domain.LedgerEntry, error) {
				entry.ID = 2
				return entry, nil
			},
			settleFn: func(_ context.Context, entryID int64, outcome domain.EntryStatus, reason string) (*domain.LedgerEntry, error) {
				assert.Equal(t, int64(2), entryID)
				settledOutcome = outcome
				settledReason = reason
				return &domain.LedgerEntry{ID: entryID, Status: outcome}, nil
			},
		}
		checkout := &stubCheckout{
			createFn: func(_ context.Context, _ CheckoutRequest) (*CheckoutResponse, error) {
				return nil, NewGatewayError(503, "provider down")
			},
		}
		svc := newLedgerService(ledger, checkout, &recordingNotifier{})

		_, err := svc.Deposit(ctx, 10, 1000, "0712345678", "", "")
		var gatewayErr *GatewayError
		require.ErrorAs(t, err, &gatewayErr)
		assert.Equal(t, domain.EntryStatusFailed, settledOutcome)
		assert.Contains(t, settledReason, "provider down")
	})

	t.Run("Bad input", func(t *testing.T) {
		svc := newLedgerService(&stubLedgerRepo{}, &stubCheckout{}, &recordingNotifier{})

		_, err := svc.Deposit(ctx, 10, 0, "0712345678", "", "")
		assert.ErrorIs(t, err, ErrInvalidAmount)

		_, err = svc.Deposit(ctx, 10, 100, "07x", "", "")
		assert.ErrorIs(t, err, ErrInvalidPhone)
	})
}

func TestLedgerService_HandleCallback(t *testing.T) {
	ctx := context.Background()

	t.Run("Unknown invoice is a no-op", func(t *testing.T) {
		ledger := &stubLedgerRepo{
			findForCallbackFn: func(_ context.Context, _, _ string) (*domain.LedgerEntry, error) {
				return nil, postgres.ErrEntryNotFound
			},
		}
		svc := newLedgerService(ledger, &stubCheckout{}, &recordingNotifier{})

		err := svc.HandleCallback(ctx, domain.GatewayCallback{InvoiceID: "INV-404", State: "COMPLETE"})
		assert.NoError(t, err)
	})

	t.Run("Replay on settled entry is a no-op", func(t *testing.T) {
		ledger := &stubLedgerRepo{
			findForCallbackFn: func(_ context.Context, _, _ string) (*domain.LedgerEntry, error) {
				return &domain.LedgerEntry{ID: 1, Status: domain.EntryStatusCompleted}, nil
			},
		}
		notifier := &recordingNotifier{}
		svc := newLedgerService(ledger, &stubCheckout{}, notifier)

		err := svc.HandleCallback(ctx, domain.GatewayCallback{InvoiceID: "INV-1", State: "COMPLETE"})
		assert.NoError(t, err)
		assert.Empty(t, notifier.Events())
	})

	t.Run("COMPLETE settles and notifies", func(t *testing.T) {
		ledger := &stubLedgerRepo{
			findForCallbackFn: func(_ context.Context, invoiceID, _ string) (*domain.LedgerEntry, error) {
				assert.Equal(t, "INV-1", invoiceID)
				return &domain.LedgerEntry{ID: 1, UserID: 10, Status: domain.EntryStatusPending}, nil
			},
			settleFn: func(_ context.Context, entryID int64, outcome domain.EntryStatus, _ string) (*domain.LedgerEntry, error) {
				assert.Equal(t, domain.EntryStatusCompleted, outcome)
				return &domain.LedgerEntry{ID: entryID, UserID: 10, Amount: 1000, Reference: "DEP-key", Status: outcome}, nil
			},
		}
		notifier := &recordingNotifier{}
		svc := newLedgerService(ledger, &stubCheckout{}, notifier)

		err := svc.HandleCallback(ctx, domain.GatewayCallback{InvoiceID: "INV-1", State: "COMPLETE"})
		require.NoError(t, err)

		events := notifier.Events()
		require.Len(t, events, 1)
		assert.Equal(t, domain.EventPaymentConfirmed, events[0].Type)
		assert.Equal(t, int64(10), events[0].UserID)
	})

	t.Run("FAILED records the most specific reason", func(t *testing.T) {
		var gotReason string
		ledger := &stubLedgerRepo{
			findForCallbackFn: func(_ context.Context, _, _ string) (*domain.LedgerEntry, error) {
				return &domain.LedgerEntry{ID: 1, Status: domain.EntryStatusPending}, nil
			},
			settleFn: func(_ context.Context, entryID int64, outcome domain.EntryStatus, reason string) (*domain.LedgerEntry, error) {
				assert.Equal(t, domain.EntryStatusFailed, outcome)
				gotReason = reason
				return &domain.LedgerEntry{ID: entryID, Status: outcome}, nil
			},
		}
		svc := newLedgerService(ledger, &stubCheckout{}, &recordingNotifier{})

		err := svc.HandleCallback(ctx, domain.GatewayCallback{
			InvoiceID: "INV-1", State: "FAILED",
			FailedReason: "insufficient balance", FailedMessage: "generic",
		})
		require.NoError(t, err)
		assert.Equal(t, "insufficient balance", gotReason)
	})

	t.Run("Intermediate state only touches metadata", func(t *testing.T) {
		var merged map[string]string
		ledger := &stubLedgerRepo{
			findForCallbackFn: func(_ context.Context, _, _ string) (*domain.LedgerEntry, error) {
				return &domain.LedgerEntry{ID: 1, Status: domain.EntryStatusPending}, nil
			},
			mergeMetadataFn: func(_ context.Context, _ int64, metadata map[string]string) error {
				merged = metadata
				return nil
			},
		}
		svc := newLedgerService(ledger, &stubCheckout{}, &recordingNotifier{})

		err := svc.HandleCallback(ctx, domain.GatewayCallback{InvoiceID: "INV-1", State: "PROCESSING"})
		require.NoError(t, err)
		assert.Equal(t, "PROCESSING", merged["gateway_state"])
	})
}

func TestLedgerService_BuyAirtime(t *testing.T) {
	ctx := context.Background()

	t.Run("Debits the wallet", func(t *testing.T) {
		ledger := &stubLedgerRepo{
			debitFn: func(_ context.Context, entry *domain.LedgerEntry) (*domain.LedgerEntry, error) {
				assert.Equal(t, domain.CategoryAirtime, entry.Category)
				assert.Equal(t, "254712345678", entry.Metadata["phone"])
				return entry, nil
			},
		}
		svc := newLedgerService(ledger, &stubCheckout{}, &recordingNotifier{})

		_, err := svc.BuyAirtime(ctx, 10, 100, "0712345678")
		assert.NoError(t, err)
	})

	t.Run("Insufficient funds", func(t *testing.T) {
		ledger := &stubLedgerRepo{
			debitFn: func(_ context.Context, _ *domain.LedgerEntry) (*domain.LedgerEntry, error) {
				return nil, postgres.ErrInsufficientFunds
			},
		}
		svc := newLedgerService(ledger, &stubCheckout{}, &recordingNotifier{})

		_, err := svc.BuyAirtime(ctx, 10, 10000, "0712345678")
		assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	})
}

func TestLedgerService_Withdraw(t *testing.T) {
	ctx := context.Background()

	t.Run("Reserves funds with a pending entry", func(t *testing.T) {
		ledger := &stubLedgerRepo{
			debitFn: func(_ context.Context, entry *domain.LedgerEntry) (*domain.LedgerEntry, error) {
				assert.Equal(t, domain.EntryStatusPending, entry.Status)
				assert.Equal(t, domain.EntryTypePayout, entry.Type)
				return entry, nil
			},
		}
		svc := newLedgerService(ledger, &stubCheckout{}, &recordingNotifier{})

		entry, err := svc.Withdraw(ctx, 7, 500, "0712345678")
		require.NoError(t, err)
		assert.Equal(t, domain.EntryStatusPending, entry.Status)
	})
}
