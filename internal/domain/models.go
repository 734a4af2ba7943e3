package domain

import "time"

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusAssigned   OrderStatus = "ASSIGNED"
	OrderStatusInProgress OrderStatus = "IN_PROGRESS"
	OrderStatusInReview   OrderStatus = "IN_REVIEW"
	OrderStatusCompleted  OrderStatus = "COMPLETED"
	OrderStatusPaid       OrderStatus = "PAID"
	OrderStatusRejected   OrderStatus = "REJECTED"
)

// CommissionStatus tracks whether the staff share of a paid order has
// been settled by the payout batch.
type CommissionStatus string

const (
	CommissionUnpaid CommissionStatus = "UNPAID"
	CommissionPaid   CommissionStatus = "PAID"
	CommissionHeld   CommissionStatus = "HELD"
)

// EntryType classifies a ledger entry by money direction.
type EntryType string

const (
	EntryTypeDeposit EntryType = "DEPOSIT"
	EntryTypePayment EntryType = "PAYMENT"
	EntryTypePayout  EntryType = "PAYOUT"
	EntryTypeRefund  EntryType = "REFUND"
)

// IsCredit reports whether the entry increases the owner's wallet on
// completion.
func (t EntryType) IsCredit() bool {
	return t == EntryTypeDeposit || t == EntryTypeRefund
}

// EntryStatus is the settlement state of a ledger entry. COMPLETED and
// FAILED are absorbing.
type EntryStatus string

const (
	EntryStatusPending   EntryStatus = "PENDING"
	EntryStatusCompleted EntryStatus = "COMPLETED"
	EntryStatusFailed    EntryStatus = "FAILED"
)

// Terminal reports whether the status can no longer change.
func (s EntryStatus) Terminal() bool {
	return s == EntryStatusCompleted || s == EntryStatusFailed
}

// Role is the caller's role as carried in the verified token.
type Role string

const (
	RoleClient Role = "client"
	RoleStaff  Role = "staff"
	RoleAdmin  Role = "admin"
)

// Ledger entry categories. Free-form by design; these are the ones the
// core itself writes.
const (
	CategoryWallet     = "WALLET"
	CategoryServiceFee = "SERVICE_FEE"
	CategoryAirtime    = "AIRTIME"
	CategoryCommission = "COMMISSION"
	CategoryPayout     = "PAYOUT"
)

// Payment methods recorded on orders and ledger entries.
const (
	MethodWallet  = "WALLET"
	MethodGateway = "GATEWAY"
	MethodMpesa   = "MPESA"
)

// Step is one item of an order's processing checklist.
type Step struct {
	Name        string     `json:"step"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ClientAction is the pending input request attached to an order.
type ClientAction struct {
	Required bool   `json:"required"`
	Type     string `json:"type,omitempty"`
	Message  string `json:"message,omitempty"`
	Response string `json:"response,omitempty"`
}

// Payment is the payment sub-record of an order. IsPaid flips
// false -> true exactly once.
type Payment struct {
	Method           string           `json:"method,omitempty"`
	Reference        string           `json:"reference,omitempty"`
	IsPaid           bool             `json:"is_paid"`
	StaffPay         float64          `json:"staff_pay"`
	CommissionStatus CommissionStatus `json:"commission_status"`
}

// Cost is the agreed price of an order.
type Cost struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// Order is one client request for a brokered service.
type Order struct {
	ID           int64        `json:"-"`
	TrackingCode string       `json:"tracking_code"`
	UserID       int64        `json:"-"`
	ServiceType  string       `json:"type"`
	Payload      []byte       `json:"payload,omitempty"`
	Status       OrderStatus  `json:"status"`
	AssignedTo   *int64       `json:"assigned_to,omitempty"`
	Cost         Cost         `json:"cost"`
	Payment      Payment      `json:"payment"`
	ClientAction ClientAction `json:"client_action"`
	Steps        []Step       `json:"steps,omitempty"`
	AdminNotes   string       `json:"admin_notes,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
}

// OrderEvent is one timeline record of an order's status history.
type OrderEvent struct {
	ID        int64       `json:"-"`
	OrderID   int64       `json:"-"`
	Status    OrderStatus `json:"status"`
	ActorID   *int64      `json:"actor_id,omitempty"`
	Note      string      `json:"note,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// OrderFilter narrows order listings.
type OrderFilter struct {
	UserID     *int64
	AssignedTo *int64
	Status     *OrderStatus
	// IncludePool adds unassigned PENDING orders to a staff listing.
	IncludePool bool
}

// LedgerEntry is one idempotent record of money movement.
type LedgerEntry struct {
	ID        int64             `json:"-"`
	UserID    int64             `json:"-"`
	Type      EntryType         `json:"type"`
	Category  string            `json:"category"`
	Amount    float64           `json:"amount"`
	Currency  string            `json:"currency"`
	Method    string            `json:"method"`
	Status    EntryStatus       `json:"status"`
	Reference string            `json:"reference"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Wallet is one running balance per user, reconciled from completed
// ledger entries.
type Wallet struct {
	UserID   int64   `json:"-"`
	Balance  float64 `json:"balance"`
	Currency string  `json:"currency"`
}

// PayoutSummary is one staff member's settled commission for a batch run.
type PayoutSummary struct {
	StaffID int64   `json:"staff_id"`
	Amount  float64 `json:"amount"`
	Orders  int     `json:"orders"`
}

// Earnings is the staff earnings report.
type Earnings struct {
	TotalEarned    float64 `json:"total_earned"`
	PendingPayout  float64 `json:"pending_payout"`
	CompletedTasks int     `json:"completed_tasks"`
}

// CheckoutSession is the externally hosted payment flow opened for a
// pending ledger entry.
type CheckoutSession struct {
	Entry       *LedgerEntry `json:"-"`
	InvoiceID   string       `json:"invoice_id"`
	CheckoutURL string       `json:"url"`
}

// GatewayCallback is the normalized asynchronous settlement payload
// posted by the payment gateway. Delivery is at-least-once.
type GatewayCallback struct {
	InvoiceID     string `json:"invoice_id"`
	State         string `json:"state"`
	APIRef        string `json:"api_ref"`
	FailedReason  string `json:"failed_reason,omitempty"`
	FailedMessage string `json:"failed_message,omitempty"`
}

// FailureReason picks the most specific failure text from a callback.
func (c GatewayCallback) FailureReason() string {
	if c.FailedReason != "" {
		return c.FailedReason
	}
	return c.FailedMessage
}

// Gateway callback states with defined reconciliation behavior. Anything
// else is recorded in entry metadata without a status change.
const (
	CallbackStateComplete = "COMPLETE"
	CallbackStateFailed   = "FAILED"
)
