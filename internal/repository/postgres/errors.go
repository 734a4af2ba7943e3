package postgres

import "errors"

// Order errors
var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrNotAssignee       = errors.New("order not assigned to this staff member")
	ErrAlreadyAssigned   = errors.New("order already assigned")
	ErrAlreadyPaid       = errors.New("order already paid")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNoInputRequested  = errors.New("no client input requested")
	ErrStaffNotFound     = errors.New("staff not found")
)

// Ledger and wallet errors
var (
	ErrDuplicateReference = errors.New("reference already exists")
	ErrEntryNotFound      = errors.New("ledger entry not found")
	ErrInsufficientFunds  = errors.New("insufficient funds")
)
