package service

import (
	"context"
	"sync"
	"time"

	"github.com/btech/servicedesk/internal/domain"
)

// Hand-written stubs for the repository and gateway interfaces. Only the
// methods a test exercises need a function assigned; the rest panic.

type stubOrderRepo struct {
	createFn            func(ctx context.Context, order *domain.Order) (*domain.Order, error)
	getByIDFn           func(ctx context.Context, id int64) (*domain.Order, error)
	listFn              func(ctx context.Context, filter domain.OrderFilter) ([]*domain.Order, error)
	listEventsFn        func(ctx context.Context, orderID int64) ([]*domain.OrderEvent, error)
	assignFn            func(ctx context.Context, orderID, staffID, actorID int64) (*domain.Order, error)
	upsertStepFn        func(ctx context.Context, orderID, staffID int64, step string, completed bool) (*domain.Order, error)
	setClientActionFn   func(ctx context.Context, orderID, staffID int64, action domain.ClientAction) (*domain.Order, error)
	setClientResponseFn func(ctx context.Context, orderID int64, response string) (*domain.Order, error)
	updateStatusFn      func(ctx context.Context, orderID int64, from []domain.OrderStatus, to domain.OrderStatus, actorID *int64, note string) (*domain.Order, error)
	markPaidFn          func(ctx context.Context, orderID int64, method, reference string, cost domain.Cost, staffPay float64) (*domain.Order, error)
	earningsFn          func(ctx context.Context, staffID int64) (*domain.Earnings, error)
	listRenewalsFn      func(ctx context.Context, from, to time.Time) ([]*domain.Order, error)
}

func (s *stubOrderRepo) Create(ctx context.Context, order *domain.Order) (*domain.Order, error) {
	return s.createFn(ctx, order)
}

func (s *stubOrderRepo) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	return s.getByIDFn(ctx, id)
}

func (s *stubOrderRepo) List(ctx context.Context, filter domain.OrderFilter) ([]*domain.Order, error) {
	return s.listFn(ctx, filter)
}

func (s *stubOrderRepo) ListEvents(ctx context.Context, orderID int64) ([]*domain.OrderEvent, error) {
	return s.listEventsFn(ctx, orderID)
}

func (s *stubOrderRepo) Assign(ctx context.Context, orderID, staffID, actorID int64) (*domain.Order, error) {
	return s.assignFn(ctx, orderID, staffID, actorID)
}

func (s *stubOrderRepo) UpsertStep(ctx context.Context, orderID, staffID int64, step string, completed bool) (*domain.Order, error) {
	return s.upsertStepFn(ctx, orderID, staffID, step, completed)
}

func (s *stubOrderRepo) SetClientAction(ctx context.Context, orderID, staffID int64, action domain.ClientAction) (*domain.Order, error) {
	return s.setClientActionFn(ctx, orderID, staffID, action)
}

func (s *stubOrderRepo) SetClientResponse(ctx context.Context, orderID int64, response string) (*domain.Order, error) {
	return s.setClientResponseFn(ctx, orderID, response)
}

func (s *stubOrderRepo) UpdateStatusGuarded(ctx context.Context, orderID int64, from []domain.OrderStatus, to domain.OrderStatus, actorID *int64, note string) (*domain.Order, error) {
	return s.updateStatusFn(ctx, orderID, from, to, actorID, note)
}

func (s *stubOrderRepo) MarkPaid(ctx context.Context, orderID int64, method, reference string, cost domain.Cost, staffPay float64) (*domain.Order, error) {
	return s.markPaidFn(ctx, orderID, method, reference, cost, staffPay)
}

func (s *stubOrderRepo) Earnings(ctx context.Context, staffID int64) (*domain.Earnings, error) {
	return s.earningsFn(ctx, staffID)
}

func (s *stubOrderRepo) ListRenewalsDue(ctx context.Context, from, to time.Time) ([]*domain.Order, error) {
	return s.listRenewalsFn(ctx, from, to)
}

type stubLedgerRepo struct {
	recordFn          func(ctx context.Context, entry *domain.LedgerEntry) (*domain.LedgerEntry, error)
	getByReferenceFn  func(ctx context.Context, reference string) (*domain.LedgerEntry, error)
	findForCallbackFn func(ctx context.Context, invoiceID, apiRef string) (*domain.LedgerEntry, error)
	settleFn          func(ctx context.Context, entryID int64, outcome domain.EntryStatus, reason string) (*domain.LedgerEntry, error)
	debitFn           func(ctx context.Context, entry *domain.LedgerEntry) (*domain.LedgerEntry, error)
	payFromWalletFn   func(ctx context.Context, orderID int64, entry *domain.LedgerEntry, staffPay float64) (*domain.LedgerEntry, error)
	mergeMetadataFn   func(ctx context.Context, entryID int64, metadata map[string]string) error
	getWalletFn       func(ctx context.Context, userID int64) (*domain.Wallet, error)
	listByUserFn      func(ctx context.Context, userID int64, limit int) ([]*domain.LedgerEntry, error)
	settleCommFn      func(ctx context.Context) ([]domain.PayoutSummary, error)
	expireFn          func(ctx context.Context, cutoff time.Time) (int64, error)
}

func (s *stubLedgerRepo) Record(ctx context.Context, entry *domain.LedgerEntry) (*domain.LedgerEntry, error) {
	return s.recordFn(ctx, entry)
}

func (s *stubLedgerRepo) GetByReference(ctx context.Context, reference string) (*domain.LedgerEntry, error) {
	return s.getByReferenceFn(ctx, reference)
}

func (s *stubLedgerRepo) FindForCallback(ctx context.Context, invoiceID, apiRef string) (*domain.LedgerEntry, error) {
	return s.findForCallbackFn(ctx, invoiceID, apiRef)
}

func (s *stubLedgerRepo) Settle(ctx context.Context, entryID int64, outcome domain.EntryStatus, reason string) (*domain.LedgerEntry, error) {
	return s.settleFn(ctx, entryID, outcome, reason)
}

func (s *stubLedgerRepo) Debit(ctx context.Context, entry *domain.LedgerEntry) (*domain.LedgerEntry, error) {
	return s.debitFn(ctx, entry)
}

func (s *stubLedgerRepo) PayFromWallet(ctx context.Context, orderID int64, entry *domain.LedgerEntry, staffPay float64) (*domain.LedgerEntry, error) {
	return s.payFromWalletFn(ctx, orderID, entry, staffPay)
}

func (s *stubLedgerRepo) MergeMetadata(ctx context.Context, entryID int64, metadata map[string]string) error {
	return s.mergeMetadataFn(ctx, entryID, metadata)
}

func (s *stubLedgerRepo) GetWallet(ctx context.Context, userID int64) (*domain.Wallet, error) {
	return s.getWalletFn(ctx, userID)
}

func (s *stubLedgerRepo) ListByUser(ctx context.Context, userID int64, limit int) ([]*domain.LedgerEntry, error) {
	return s.listByUserFn(ctx, userID, limit)
}

func (s *stubLedgerRepo) SettleCommissions(ctx context.Context) ([]domain.PayoutSummary, error) {
	return s.settleCommFn(ctx)
}

func (s *stubLedgerRepo) ExpirePendingCheckouts(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.expireFn(ctx, cutoff)
}

type stubCheckout struct {
	createFn func(ctx context.Context, req CheckoutRequest) (*CheckoutResponse, error)
}

func (s *stubCheckout) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResponse, error) {
	return s.createFn(ctx, req)
}

// recordingNotifier collects enqueued events for assertions.
type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.NotificationEvent
}

func (n *recordingNotifier) Enqueue(event domain.NotificationEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) Events() []domain.NotificationEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.NotificationEvent(nil), n.events...)
}
