package wallet

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet holds a user's available and locked funds.
//
// Invariants:
// - Balance >= 0 and LockedBalance >= 0 at all times.
// - Balances are mutated only inside a Service operation, never directly.
// - Every balance change has a corresponding Transaction row.
//
// Wallets are created lazily on first access and never deleted while the
// owning user exists.
type Wallet struct {
	ID            string          `json:"id" db:"id"`
	UserID        string          `json:"user_id" db:"user_id"`
	Balance       decimal.Decimal `json:"balance" db:"balance"`
	LockedBalance decimal.Decimal `json:"locked_balance" db:"locked_balance"`
	Currency      string          `json:"currency" db:"currency"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Transaction is an immutable, append-mostly ledger entry.
//
// Status machine: PENDING -> SUCCESS | FAILED. Terminal states never change.
// Reference is globally unique and is the idempotency boundary against
// duplicate webhook/poll processing.
type Transaction struct {
	ID                string  `json:"id" db:"id"`
	WalletID          string  `json:"wallet_id" db:"wallet_id"`
	RecipientWalletID *string `json:"recipient_wallet_id,omitempty" db:"recipient_wallet_id"`

	Amount   decimal.Decimal     `json:"amount" db:"amount"`
	Type     TransactionType     `json:"type" db:"type"`
	Category TransactionCategory `json:"category" db:"category"`
	Status   TransactionStatus   `json:"status" db:"status"`

	// Reference is client-assigned and unique; ExternalReference is the
	// gateway-assigned id, set only on confirmation.
	Reference         string `json:"reference" db:"reference"`
	ExternalReference string `json:"external_reference,omitempty" db:"external_reference"`

	// GatewayCode is set for deposits/withdrawals that flow through a
	// payment gateway.
	GatewayCode string `json:"gateway_code,omitempty" db:"gateway_code"`

	// Business-object links, for traceability only (never control flow).
	ListingRef string `json:"listing_ref,omitempty" db:"listing_ref"`
	RequestRef string `json:"request_ref,omitempty" db:"request_ref"`

	Description   string `json:"description,omitempty" db:"description"`
	FailureReason string `json:"failure_reason,omitempty" db:"failure_reason"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Terminal reports whether the transaction status can no longer change.
func (t Transaction) Terminal() bool {
	return t.Status == StatusSuccess || t.Status == StatusFailed
}

type TransactionType string

const (
	TypeDeposit        TransactionType = "DEPOSIT"
	TypeWithdrawal     TransactionType = "WITHDRAWAL"
	TypeListingFee     TransactionType = "LISTING_FEE"
	TypeRequestFee     TransactionType = "REQUEST_FEE"
	TypePaymentLock    TransactionType = "PAYMENT_LOCK"
	TypePaymentUnlock  TransactionType = "PAYMENT_UNLOCK"
	TypePaymentRelease TransactionType = "PAYMENT_RELEASE"
	TypeCommission     TransactionType = "COMMISSION"
)

type TransactionStatus string

const (
	StatusPending TransactionStatus = "PENDING"
	StatusSuccess TransactionStatus = "SUCCESS"
	StatusFailed  TransactionStatus = "FAILED"
)

type TransactionCategory string

const (
	CategoryUserTransaction  TransactionCategory = "USER_TRANSACTION"
	CategorySystemRevenue    TransactionCategory = "SYSTEM_REVENUE"
	CategoryInternalTransfer TransactionCategory = "INTERNAL_TRANSFER"
)

// Balance is the read model returned to callers. Failures that reject an
// operation also carry the authoritative balance so clients can re-render
// without a second round trip.
type Balance struct {
	UserID        string          `json:"user_id"`
	Balance       decimal.Decimal `json:"balance"`
	LockedBalance decimal.Decimal `json:"locked_balance"`
	Currency      string          `json:"currency"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (w Wallet) AsBalance() Balance {
	return Balance{
		UserID:        w.UserID,
		Balance:       w.Balance,
		LockedBalance: w.LockedBalance,
		Currency:      w.Currency,
		UpdatedAt:     w.UpdatedAt,
	}
}
