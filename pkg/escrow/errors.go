package escrow

import (
	"errors"
	"fmt"
)

// Validation errors.
var (
	ErrInvalidAddress = errors.New("invalid address")
	ErrInvalidPrice   = errors.New("price must be positive")
	ErrInvalidOrderID = errors.New("invalid order id")
)

// Remote errors.
var (
	ErrLedgerUnavailable = errors.New("ledger unavailable")
)

// Protocol state errors.
var (
	ErrNotAuthorized       = errors.New("signer is not the agent controller")
	ErrEventNotFound       = errors.New("expected event not found in receipt")
	ErrOrderNotFound       = errors.New("order not found")
	ErrOrderNotFinalizable = errors.New("order is not finalizable")
	ErrOrderNotCancellable = errors.New("order is not cancellable")
	ErrInvalidTransition   = errors.New("invalid order status transition")
	ErrTransactionReverted = errors.New("transaction reverted")
	ErrUnknownStatus       = errors.New("unknown order status")
)

// OrderError attaches the order id and operation to an escrow failure so
// callers can inspect the ledger and decide whether to resume.
type OrderError struct {
	OrderID string
	Op      string
	Err     error
}

func (e *OrderError) Error() string {
	if e.OrderID == "" {
		return fmt.Sprintf("escrow %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("escrow %s order %s: %v", e.Op, e.OrderID, e.Err)
}

func (e *OrderError) Unwrap() error {
	return e.Err
}

func orderErr(op, orderID string, err error) error {
	return &OrderError{OrderID: orderID, Op: op, Err: err}
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrLedgerUnavailable, err)
}
