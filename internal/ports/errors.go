package ports

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	ErrValidation           = errors.New("invalid request")
	ErrNotFound             = errors.New("resource not found")
	ErrInactiveResource     = errors.New("resource is inactive")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientQuantity = errors.New("insufficient quantity")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrInvalidState         = errors.New("invalid trade state")
	ErrConflict             = errors.New("concurrent modification conflict")
	ErrInternal             = errors.New("internal error")
	ErrConfigurationError   = errors.New("invalid or missing configuration")

	// Exchange Specific Errors
	ErrExchangeUnavailable  = errors.New("exchange API is unavailable")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("exchange authentication failed (check API keys)")
)

// InsufficientFundsError carries the amounts involved in a failed debit.
type InsufficientFundsError struct {
	AccountID string
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: account=%s required=%s available=%s",
		e.AccountID, e.Required.String(), e.Available.String())
}

func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

// InsufficientQuantityError carries the quantities involved in a failed sell.
type InsufficientQuantityError struct {
	AccountID     string
	InstrumentKey string
	Requested     int64
	Held          int64
}

func (e *InsufficientQuantityError) Error() string {
	return fmt.Sprintf("insufficient quantity: account=%s instrument=%s requested=%d held=%d",
		e.AccountID, e.InstrumentKey, e.Requested, e.Held)
}

func (e *InsufficientQuantityError) Is(target error) bool {
	return target == ErrInsufficientQuantity
}

// ErrorCode is the stable, caller-facing classification of an error.
type ErrorCode string

const (
	CodeNone                 ErrorCode = ""
	CodeValidation           ErrorCode = "VALIDATION_ERROR"
	CodeNotFound             ErrorCode = "NOT_FOUND"
	CodeInactiveResource     ErrorCode = "INACTIVE_RESOURCE"
	CodeInsufficientFunds    ErrorCode = "INSUFFICIENT_FUNDS"
	CodeInsufficientQuantity ErrorCode = "INSUFFICIENT_QUANTITY"
	CodePermissionDenied     ErrorCode = "PERMISSION_DENIED"
	CodeInvalidState         ErrorCode = "INVALID_STATE"
	CodeConflict             ErrorCode = "CONFLICT"
	CodeInternal             ErrorCode = "INTERNAL_ERROR"
)

var codeTable = []struct {
	target error
	code   ErrorCode
}{
	{ErrValidation, CodeValidation},
	{ErrNotFound, CodeNotFound},
	{ErrInactiveResource, CodeInactiveResource},
	{ErrInsufficientFunds, CodeInsufficientFunds},
	{ErrInsufficientQuantity, CodeInsufficientQuantity},
	{ErrPermissionDenied, CodePermissionDenied},
	{ErrInvalidState, CodeInvalidState},
	{ErrConflict, CodeConflict},
	{ErrInternal, CodeInternal},
}

// Classify maps err onto the error taxonomy. Unknown errors are internal.
func Classify(err error) ErrorCode {
	if err == nil {
		return CodeNone
	}
	for _, entry := range codeTable {
		if errors.Is(err, entry.target) {
			return entry.code
		}
	}
	return CodeInternal
}

// PublicMessage returns a caller-safe description of err.
// Internal errors never expose storage details.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	if Classify(err) == CodeInternal {
		return ErrInternal.Error()
	}
	return err.Error()
}
