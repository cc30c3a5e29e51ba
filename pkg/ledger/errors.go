package ledger

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the ledger service.
var (
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrAccountNotFound         = errors.New("account not found")
	ErrAccountNotActive        = errors.New("account not active")
	ErrAccountExists           = errors.New("account already exists")
	ErrUserNotFound            = errors.New("user not found")
	ErrEntryNotFound           = errors.New("entry not found")
	ErrDuplicateOperation      = errors.New("operation already processing")
	ErrDuplicateReference      = errors.New("duplicate reference")
	ErrInvariantViolation      = errors.New("ledger invariant violation")
	ErrEntryNotReversible      = errors.New("entry not reversible")
	ErrWithdrawalNotFound      = errors.New("withdrawal not found")
	ErrWithdrawalInFlight      = errors.New("withdrawal already in flight")
	ErrWithdrawalStateConflict = errors.New("withdrawal state conflict")
	ErrInvalidUserID           = errors.New("invalid user id")
	ErrInvalidLedgerID         = errors.New("invalid ledger id")
	ErrInvalidReference        = errors.New("invalid reference")
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrInvalidEntryType        = errors.New("invalid entry type")
	ErrInvalidEntryCategory    = errors.New("invalid entry category")
	ErrInvalidEntryStatus      = errors.New("invalid entry status")
	ErrInvalidAccountStatus    = errors.New("invalid account status")
	ErrInvalidWithdrawalStatus = errors.New("invalid withdrawal status")
	ErrInvalidMetadata         = errors.New("invalid metadata json")
	ErrInvalidPagination       = errors.New("invalid pagination")
	ErrInvalidServiceConfig    = errors.New("invalid service config")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
