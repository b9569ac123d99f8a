package wallet

import (
	"crowdship-platform/internal/platform"

	"github.com/shopspring/decimal"
)

// Pure accounting computations. No I/O here: every function takes an explicit
// config snapshot and returns amounts, so callers control when config is read.

// ListingFee is the fee charged for creating a travel listing.
func ListingFee(cfg platform.Snapshot) decimal.Decimal {
	return cfg.MinBalanceForTravelListing
}

// RequestFeeAndLockAmount returns the fee charged for creating a package
// request and the amount to lock against its delivery. The lock amount is the
// full computed price of the request.
func RequestFeeAndLockAmount(cfg platform.Snapshot, totalPrice decimal.Decimal) (fee, lockAmount decimal.Decimal) {
	return cfg.MinBalanceForPackageRequest, totalPrice
}

// CommissionSplit divides a locked amount between the traveler and the
// platform commission.
//
// The commission is rounded half-up to the currency's minor unit (2dp); the
// traveler amount absorbs the remainder, so travelerAmount + commission always
// equals lockedAmount exactly.
func CommissionSplit(cfg platform.Snapshot, lockedAmount decimal.Decimal) (travelerAmount, commissionAmount decimal.Decimal) {
	// decimal.Round is half-away-from-zero, which is half-up for the
	// non-negative amounts the ledger accepts.
	commissionAmount = lockedAmount.
		Mul(cfg.CommissionPercentage).
		Div(decimal.NewFromInt(100)).
		Round(2)
	travelerAmount = lockedAmount.Sub(commissionAmount)
	return travelerAmount, commissionAmount
}

// SufficientForListing reports whether the wallet can cover the listing fee.
func SufficientForListing(w Wallet, cfg platform.Snapshot) bool {
	return w.Balance.GreaterThanOrEqual(ListingFee(cfg))
}

// SufficientForRequest reports whether the wallet can cover the request fee
// plus the full price that will be locked.
func SufficientForRequest(w Wallet, cfg platform.Snapshot, totalPrice decimal.Decimal) bool {
	required := cfg.MinBalanceForPackageRequest.Add(totalPrice)
	return w.Balance.GreaterThanOrEqual(required)
}

// AmountWithinDepositBounds checks the configured deposit bounds.
// A zero max means unbounded.
func AmountWithinDepositBounds(cfg platform.Snapshot, amount decimal.Decimal) bool {
	return amountWithinBounds(amount, cfg.MinDeposit, cfg.MaxDeposit)
}

// AmountWithinWithdrawalBounds checks the configured withdrawal bounds.
func AmountWithinWithdrawalBounds(cfg platform.Snapshot, amount decimal.Decimal) bool {
	return amountWithinBounds(amount, cfg.MinWithdrawal, cfg.MaxWithdrawal)
}

func amountWithinBounds(amount, min, max decimal.Decimal) bool {
	if !amount.IsPositive() {
		return false
	}
	if amount.LessThan(min) {
		return false
	}
	if max.IsPositive() && amount.GreaterThan(max) {
		return false
	}
	return true
}
