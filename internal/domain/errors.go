package domain

import "errors"

// Order errors
var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrForbidden         = errors.New("actor not allowed to perform this transition")
	ErrAlreadyAssigned   = errors.New("order already assigned")
	ErrAlreadyPaid       = errors.New("order already paid")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNoInputRequested  = errors.New("no client input requested")
)

// Ledger and wallet errors
var (
	ErrDuplicateReference = errors.New("reference already exists")
	ErrEntryNotFound      = errors.New("ledger entry not found")
	ErrInsufficientFunds  = errors.New("insufficient funds")
)

// Staff errors
var (
	ErrStaffNotFound = errors.New("staff not found")
)
