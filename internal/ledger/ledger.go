// Package ledger talks to the external fungible-token ledger that takes capsule payments.
package ledger

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/hpungsan/heritage/internal/identity"
)

// Standard is one entry of the ledger's supported standards list.
type Standard struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// TransferArgs describes a single ledger transfer.
type TransferArgs struct {
	From   identity.Identity `json:"from"`
	To     identity.Identity `json:"to"`
	Amount uint64            `json:"amount"`
	// Fee is the fee the caller expects to pay. Nil lets the ledger apply its current fee.
	Fee *uint64 `json:"fee,omitempty"`
	// Memo tags the transfer. Purchases put their attempt id here.
	Memo []byte `json:"memo,omitempty"`
	// CreatedAt is the request time in nanoseconds; 0 means unset.
	CreatedAt uint64 `json:"created_at_time,omitempty"`
}

// Client is the ledger's remote interface. Every call may fail; callers must
// not assume a failed Transfer moved no funds unless the error says so.
type Client interface {
	BalanceOf(ctx context.Context, account identity.Identity) (uint64, error)
	Transfer(ctx context.Context, args TransferArgs) (blockIndex uint64, err error)
	Name(ctx context.Context) (string, error)
	Symbol(ctx context.Context) (string, error)
	Decimals(ctx context.Context) (uint8, error)
	Fee(ctx context.Context) (uint64, error)
	TotalSupply(ctx context.Context) (uint64, error)
	SupportedStandards(ctx context.Context) ([]Standard, error)
}

// ErrorKind classifies a transfer rejection.
type ErrorKind string

const (
	KindInsufficientFunds      ErrorKind = "InsufficientFunds"
	KindBadFee                 ErrorKind = "BadFee"
	KindTemporarilyUnavailable ErrorKind = "TemporarilyUnavailable"
	KindDuplicate              ErrorKind = "Duplicate"
	KindGenericError           ErrorKind = "GenericError"
	// KindTransport means the call itself failed; the transfer outcome is unknown.
	KindTransport ErrorKind = "Transport"
)

// TransferError is a transfer rejected by the ledger or lost in transport.
type TransferError struct {
	Kind        ErrorKind `json:"kind"`
	Message     string    `json:"message,omitempty"`
	Balance     uint64    `json:"balance,omitempty"`
	ExpectedFee uint64    `json:"expected_fee,omitempty"`
}

func (e *TransferError) Error() string {
	switch e.Kind {
	case KindInsufficientFunds:
		return fmt.Sprintf("insufficient funds (balance %d)", e.Balance)
	case KindBadFee:
		return fmt.Sprintf("bad fee (expected %d)", e.ExpectedFee)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return string(e.Kind)
}

// NewTransferError returns a TransferError with a stack attached.
func NewTransferError(kind ErrorKind, message string) error {
	return errors.WithStack(&TransferError{Kind: kind, Message: message})
}

// KindOf returns the transfer error kind carried by err, or "" if err is not a TransferError.
func KindOf(err error) ErrorKind {
	var te *TransferError
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}
