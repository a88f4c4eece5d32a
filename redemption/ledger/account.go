package ledger

import (
	"fmt"
	"time"
)

// ErrorCode is a domain error code used by ledger validations.
//
// Codes share the business error numbering used across the service so the
// transport layer can surface them without translation.
type ErrorCode string

const (
	// ErrorInsufficientBalance indicates a delta would drive a balance negative.
	ErrorInsufficientBalance ErrorCode = "0003"
	// ErrorAmountOverflow indicates a delta result cannot be represented in the signed width.
	ErrorAmountOverflow ErrorCode = "0007"
	// ErrorInvalidInput indicates the delta payload failed validation.
	ErrorInvalidInput ErrorCode = "0012"
)

// DomainError represents a structured ledger validation error.
type DomainError struct {
	Code    ErrorCode
	Field   string
	Message string
}

// Error returns the formatted domain error string.
func (e DomainError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}

	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Field)
}

// NewDomainError creates a domain error with code, field, and message.
func NewDomainError(code ErrorCode, field, message string) error {
	return DomainError{Code: code, Field: field, Message: message}
}

// Account is the two-stage balance record for one holder.
//
// Both balances are invariant-protected: ApplyDelta never lets either go
// negative. A zeroed account and a never-touched account are equivalent;
// accounts are created lazily and never deleted.
type Account struct {
	HolderID    string    `json:"holderId"`
	Unexchanged int64     `json:"unexchanged"`
	Exchanged   int64     `json:"exchanged"`
	Version     int64     `json:"version"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// NewAccount creates a zero-balance account for a holder.
func NewAccount(holderID string) Account {
	now := time.Now().UTC()

	return Account{
		HolderID:  holderID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
