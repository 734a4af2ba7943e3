package service

import (
	"errors"
	"fmt"
)

// Input errors surfaced to handlers as 400.
var (
	ErrInvalidAmount    = errors.New("amount must be positive")
	ErrInvalidPhone     = errors.New("invalid phone number")
	ErrMissingReference = errors.New("payment reference required")
	ErrUnknownMethod    = errors.New("unknown payment method")
)

// GatewayError wraps a checkout provider failure. Handlers map it to
// 502 so the client can distinguish provider outages from own faults.
type GatewayError struct {
	StatusCode int
	Message    string
}

func (e *GatewayError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("gateway error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("gateway error: %s", e.Message)
}

// NewGatewayError creates a new GatewayError.
func NewGatewayError(statusCode int, message string) *GatewayError {
	return &GatewayError{StatusCode: statusCode, Message: message}
}
