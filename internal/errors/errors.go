package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Heritage error code.
type ErrorCode string

const (
	ErrInvalidRequest       ErrorCode = "INVALID_REQUEST"        // 400
	ErrUnauthenticated      ErrorCode = "UNAUTHENTICATED"        // 401
	ErrLedgerTransferFailed ErrorCode = "LEDGER_TRANSFER_FAILED" // 402
	ErrNotFound             ErrorCode = "NOT_FOUND"              // 404
	ErrFileNotFound         ErrorCode = "FILE_NOT_FOUND"         // 404
	ErrDuplicateID          ErrorCode = "DUPLICATE_ID"           // 409
	ErrCancelled            ErrorCode = "CANCELLED"              // 499
	ErrInternal             ErrorCode = "INTERNAL"               // 500
	ErrPurchaseInconsistent ErrorCode = "PURCHASE_INCONSISTENT"  // 500
	ErrLedgerUnavailable    ErrorCode = "LEDGER_UNAVAILABLE"     // 502
)

// HeritageError represents a structured error with code, status, and details.
type HeritageError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *HeritageError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *HeritageError {
	return &HeritageError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewUnauthenticated creates a 401 error for callers that must be identified.
func NewUnauthenticated(msg string) *HeritageError {
	return &HeritageError{
		Code:    ErrUnauthenticated,
		Status:  401,
		Message: msg,
	}
}

// NewLedgerTransferFailed creates a 402 error for a rejected or failed payment.
// Nothing was written locally when this error is returned.
func NewLedgerTransferFailed(reason string) *HeritageError {
	return &HeritageError{
		Code:    ErrLedgerTransferFailed,
		Status:  402,
		Message: fmt.Sprintf("ledger transfer failed: %s", reason),
		Details: map[string]any{"reason": reason},
	}
}

// NewLedgerUnavailable creates a 502 error for read-only ledger calls that failed.
func NewLedgerUnavailable(err error) *HeritageError {
	msg := "ledger unavailable"
	if err != nil {
		msg = fmt.Sprintf("ledger unavailable: %v", err)
	}
	return &HeritageError{
		Code:    ErrLedgerUnavailable,
		Status:  502,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a missing record.
func NewNotFound(kind string, id uint64) *HeritageError {
	return &HeritageError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("%s not found: %d", kind, id),
		Details: map[string]any{"kind": kind, "id": id},
	}
}

// NewFileNotFound creates a 404 error when a snapshot file does not exist.
func NewFileNotFound(path string) *HeritageError {
	return &HeritageError{
		Code:    ErrFileNotFound,
		Status:  404,
		Message: fmt.Sprintf("file not found: %s", path),
		Details: map[string]any{"path": path},
	}
}

// NewDuplicateID creates a 409 error when an id is already present in a store.
func NewDuplicateID(kind string, id uint64) *HeritageError {
	return &HeritageError{
		Code:    ErrDuplicateID,
		Status:  409,
		Message: fmt.Sprintf("%s already exists: %d", kind, id),
		Details: map[string]any{"kind": kind, "id": id},
	}
}

// NewCancelled creates a 499 error when an operation is cancelled by context.
func NewCancelled(op string) *HeritageError {
	return &HeritageError{
		Code:    ErrCancelled,
		Status:  499,
		Message: fmt.Sprintf("%s cancelled", op),
	}
}

// NewPurchaseInconsistent creates a 500 error for a purchase whose payment
// succeeded but whose local records could not be committed.
func NewPurchaseInconsistent(id uint64, blockIndex uint64, refunded bool) *HeritageError {
	msg := fmt.Sprintf("payment taken but capsule %d was not recorded", id)
	if refunded {
		msg = fmt.Sprintf("capsule %d was not recorded; payment refunded", id)
	}
	return &HeritageError{
		Code:    ErrPurchaseInconsistent,
		Status:  500,
		Message: msg,
		Details: map[string]any{"id": id, "block_index": blockIndex, "refunded": refunded},
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *HeritageError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &HeritageError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
	}
}

// Is checks if an error is a HeritageError with the given code.
func Is(err error, code ErrorCode) bool {
	var hErr *HeritageError
	if stderrors.As(err, &hErr) {
		return hErr.Code == code
	}
	return false
}
