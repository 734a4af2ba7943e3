package domain

import (
	"context"
	"time"
)

// OrderRepository persists orders, their checklist steps and their
// status timeline.
type OrderRepository interface {
	// Create inserts the order. When an eligible staff member exists the
	// order is created ASSIGNED to the lowest-load candidate, otherwise
	// PENDING; selection and insert share one transaction.
	Create(ctx context.Context, order *Order) (*Order, error)
	GetByID(ctx context.Context, id int64) (*Order, error)
	List(ctx context.Context, filter OrderFilter) ([]*Order, error)
	ListEvents(ctx context.Context, orderID int64) ([]*OrderEvent, error)

	// Assign sets the assignee only while assigned_to is null.
	Assign(ctx context.Context, orderID, staffID int64, actorID int64) (*Order, error)
	// UpsertStep inserts or updates a checklist step by name for the
	// acting assignee and auto-advances ASSIGNED -> IN_PROGRESS.
	UpsertStep(ctx context.Context, orderID, staffID int64, step string, completed bool) (*Order, error)
	SetClientAction(ctx context.Context, orderID, staffID int64, action ClientAction) (*Order, error)
	SetClientResponse(ctx context.Context, orderID int64, response string) (*Order, error)
	// UpdateStatusGuarded moves the order to the target status only if the
	// current status is one of from; otherwise ErrInvalidTransition.
	UpdateStatusGuarded(ctx context.Context, orderID int64, from []OrderStatus, to OrderStatus, actorID *int64, note string) (*Order, error)
	// MarkPaid flips is_paid false -> true; ErrAlreadyPaid when it is
	// already set.
	MarkPaid(ctx context.Context, orderID int64, method, reference string, cost Cost, staffPay float64) (*Order, error)

	Earnings(ctx context.Context, staffID int64) (*Earnings, error)
	ListRenewalsDue(ctx context.Context, from, to time.Time) ([]*Order, error)
}

// LedgerRepository persists ledger entries and wallet balances. All
// money-affecting methods are single transactions.
type LedgerRepository interface {
	// Record inserts a new entry; a duplicate reference yields
	// ErrDuplicateReference.
	Record(ctx context.Context, entry *LedgerEntry) (*LedgerEntry, error)
	GetByReference(ctx context.Context, reference string) (*LedgerEntry, error)
	// FindForCallback locates an entry by gateway invoice id or by the
	// original reference.
	FindForCallback(ctx context.Context, invoiceID, apiRef string) (*LedgerEntry, error)
	// Settle transitions a PENDING entry to a terminal status; entries
	// already terminal are returned unchanged. Completing a credit entry
	// increments the owner's wallet in the same transaction.
	Settle(ctx context.Context, entryID int64, outcome EntryStatus, reason string) (*LedgerEntry, error)
	// Debit verifies balance sufficiency under an advisory lock, then
	// decrements the wallet and inserts the entry atomically.
	Debit(ctx context.Context, entry *LedgerEntry) (*LedgerEntry, error)
	// PayFromWallet flips the order's is_paid flag and debits the
	// payer's wallet in one transaction; a lost race on is_paid
	// (ErrAlreadyPaid) or an insufficient balance rolls back both sides.
	PayFromWallet(ctx context.Context, orderID int64, entry *LedgerEntry, staffPay float64) (*LedgerEntry, error)
	MergeMetadata(ctx context.Context, entryID int64, metadata map[string]string) error

	GetWallet(ctx context.Context, userID int64) (*Wallet, error)
	ListByUser(ctx context.Context, userID int64, limit int) ([]*LedgerEntry, error)

	// SettleCommissions groups unpaid commissions by staff, records one
	// payout entry per staff (crediting their wallet) and marks the
	// summed orders PAID, all in one transaction.
	SettleCommissions(ctx context.Context) ([]PayoutSummary, error)
	// ExpirePendingCheckouts fails gateway entries stuck PENDING since
	// before the cutoff. Returns the number of entries failed.
	ExpirePendingCheckouts(ctx context.Context, cutoff time.Time) (int64, error)
}

// NotificationEvent is one outbound user-facing notification. Events are
// enqueued after the originating transaction commits.
type NotificationEvent struct {
	Type       string            `json:"type"`
	UserID     int64             `json:"user_id"`
	OccurredAt time.Time         `json:"occurred_at"`
	Data       map[string]string `json:"data,omitempty"`
}

// Notification event types emitted by the core.
const (
	EventOrderAssigned    = "ORDER_ASSIGNED"
	EventOrderCompleted   = "ORDER_COMPLETED"
	EventPaymentConfirmed = "PAYMENT_CONFIRMED"
	EventRenewalDue       = "RENEWAL_DUE"
)

// Notifier enqueues events for asynchronous delivery. Implementations
// must never block the caller or return delivery errors.
type Notifier interface {
	Enqueue(event NotificationEvent)
}
