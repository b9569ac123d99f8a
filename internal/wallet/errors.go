package wallet

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound        = errors.New("wallet: not found")
	ErrInvalidArgument = errors.New("wallet: invalid argument")

	// ErrInsufficientBalance is a business rule rejection. No mutation is
	// performed; compensating actions (e.g. undoing a listing) are the
	// caller's responsibility.
	ErrInsufficientBalance = errors.New("wallet: insufficient balance")

	// ErrDuplicateReference means a transaction with the same reference
	// already exists. The unique reference is the idempotency boundary, so
	// this usually indicates a retried or replayed operation.
	ErrDuplicateReference = errors.New("wallet: duplicate reference")

	// ErrConcurrentModification is a transient serialization failure. It is
	// retried internally a bounded number of times before surfacing.
	ErrConcurrentModification = errors.New("wallet: concurrent modification")

	// ErrInvariantViolation means a balance would have gone negative. It must
	// never be reachable given correct preconditions; when hit, the unit of
	// work is aborted rather than the inconsistency masked.
	ErrInvariantViolation = errors.New("wallet: invariant violation")
)

// InsufficientBalanceError carries the authoritative balance alongside the
// rejection so clients can re-render without a second round trip.
type InsufficientBalanceError struct {
	Required decimal.Decimal
	Balance  Balance
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("wallet: insufficient balance: required %s, available %s",
		e.Required.StringFixed(2), e.Balance.Balance.StringFixed(2))
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

func insufficient(required decimal.Decimal, w Wallet) error {
	return &InsufficientBalanceError{Required: required, Balance: w.AsBalance()}
}
