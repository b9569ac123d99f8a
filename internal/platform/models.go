package platform

import (
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is a point-in-time copy of the platform configuration singleton.
//
// The ledger treats it as read-only: a snapshot is fetched once per operation
// and passed down explicitly, so a concurrent config change never affects an
// in-flight unit of work. Changes apply to subsequently created transactions
// only.
type Snapshot struct {
	// Fee minimums. The listing fee currently equals the listing minimum;
	// the request fee equals the request minimum.
	MinBalanceForTravelListing  decimal.Decimal `json:"min_balance_for_travel_listing" db:"min_balance_for_travel_listing"`
	MinBalanceForPackageRequest decimal.Decimal `json:"min_balance_for_package_request" db:"min_balance_for_package_request"`

	// Percentages in [0,100].
	CommissionPercentage decimal.Decimal `json:"commission_percentage" db:"commission_percentage"`
	TaxPercentage        decimal.Decimal `json:"tax_percentage" db:"tax_percentage"`

	// Deposit/withdrawal bounds, inclusive. A zero max means unbounded.
	MinDeposit    decimal.Decimal `json:"min_deposit" db:"min_deposit"`
	MaxDeposit    decimal.Decimal `json:"max_deposit" db:"max_deposit"`
	MinWithdrawal decimal.Decimal `json:"min_withdrawal" db:"min_withdrawal"`
	MaxWithdrawal decimal.Decimal `json:"max_withdrawal" db:"max_withdrawal"`

	Currency string `json:"currency" db:"currency"`

	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Bank is one entry of the gateway's bank directory, synced periodically.
type Bank struct {
	ID            string `json:"id" db:"id"`
	GatewayCode   string `json:"gateway_code" db:"gateway_code"`
	Name          string `json:"name" db:"name"`
	Code          string `json:"code" db:"code"`
	Slug          string `json:"slug,omitempty" db:"slug"`
	Swift         string `json:"swift,omitempty" db:"swift"`
	AccountLength int    `json:"acct_length,omitempty" db:"acct_length"`
	IsMobileMoney bool   `json:"is_mobilemoney" db:"is_mobilemoney"`
	Currency      string `json:"currency" db:"currency"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
