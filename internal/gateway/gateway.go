// Package gateway wraps the external payment gateway behind a normalized
// contract. Provider response shapes are messy (test-mode responses with null
// payloads, inconsistent success/failure envelopes); they are normalized here
// into a small closed Outcome set before reaching any reconciliation logic.
// Business logic (balance mutation) is never performed in this package.
package gateway

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// Outcome is the closed result set for verification calls.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailed  Outcome = "FAILED"
	OutcomePending Outcome = "PENDING"
)

var (
	// ErrUnavailable is a transient transport failure (network error,
	// timeout, 5xx). The local transaction stays PENDING for the sweep.
	ErrUnavailable = errors.New("gateway: unavailable")

	// ErrRejected is a terminal remote failure (the gateway refused the
	// request outright).
	ErrRejected = errors.New("gateway: rejected")

	ErrInvalidSignature = errors.New("gateway: invalid webhook signature")
)

type DepositRequest struct {
	Reference string
	Amount    decimal.Decimal
	Currency  string
	Email     string
	FirstName string
	LastName  string
}

type InitializeResult struct {
	CheckoutURL string
}

type TransferRequest struct {
	Reference     string
	Amount        decimal.Decimal
	Currency      string
	BankCode      string
	AccountNumber string
	AccountName   string
}

type TransferResult struct {
	ExternalReference string
	Message           string
}

type VerifyResult struct {
	Outcome           Outcome
	ExternalReference string
	Message           string
}

type Bank struct {
	Name          string
	Code          string
	Slug          string
	Swift         string
	AccountLength int
	IsMobileMoney bool
	Currency      string
}

// Client is the outbound contract to a payment gateway.
//
// Verify calls report business outcomes through VerifyResult; errors are
// reserved for transport problems, so callers can distinguish "the gateway
// said failed" from "we could not ask the gateway".
type Client interface {
	Code() string
	InitializeDeposit(ctx context.Context, req DepositRequest) (InitializeResult, error)
	VerifyTransaction(ctx context.Context, reference string) (VerifyResult, error)
	InitiateTransfer(ctx context.Context, req TransferRequest) (TransferResult, error)
	VerifyTransfer(ctx context.Context, reference string) (VerifyResult, error)
	ListBanks(ctx context.Context) ([]Bank, error)
}
