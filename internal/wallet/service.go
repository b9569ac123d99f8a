package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crowdship-platform/internal/observability"
	"crowdship-platform/internal/platform"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ConfigSource supplies the platform configuration snapshot an operation
// runs against. The snapshot is fetched once per operation and passed down,
// never read mid-flight.
type ConfigSource interface {
	Config(ctx context.Context) (platform.Snapshot, error)
}

// Service orchestrates all balance mutations.
//
// Money invariants:
// - No balance update without a transaction row, committed atomically.
// - balance >= 0 and locked_balance >= 0 always.
// - For a closed set of wallets with no deposits/withdrawals, the sum of
//   balance + locked_balance is invariant across operations.
//
// Concurrency:
// - Each operation locks the wallet row(s) it touches for the duration of
//   its read-modify-write plus transaction insert.
// - Serialization failures are retried a bounded number of times.
type Service struct {
	store Store
	cfgs  ConfigSource
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewService(store Store, cfgs ConfigSource) *Service {
	return &Service{store: store, cfgs: cfgs, clock: time.Now}
}

// maxAttempts bounds the internal retry on concurrent-modification failures.
const maxAttempts = 3

func (s *Service) update(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = s.store.Update(ctx, fn)
		if !errors.Is(err, ErrConcurrentModification) {
			return err
		}
	}
	return err
}

func (s *Service) newTransaction(walletID string, amount decimal.Decimal, typ TransactionType, cat TransactionCategory, status TransactionStatus, reference string) Transaction {
	now := s.clock().UTC()
	return Transaction{
		ID:        uuid.NewString(),
		WalletID:  walletID,
		Amount:    amount,
		Type:      typ,
		Category:  cat,
		Status:    status,
		Reference: reference,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func checkBalances(w Wallet) error {
	if w.Balance.IsNegative() || w.LockedBalance.IsNegative() {
		return fmt.Errorf("%w: wallet %s would have balance=%s locked=%s",
			ErrInvariantViolation, w.ID, w.Balance.StringFixed(2), w.LockedBalance.StringFixed(2))
	}
	return nil
}

// observe records the outcome of a ledger operation.
func observe(operation string, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	observability.WalletOperations.WithLabelValues(operation, status).Inc()
}

// GetBalance returns the wallet's balance, creating the wallet lazily on
// first access.
func (s *Service) GetBalance(ctx context.Context, userID string) (Balance, error) {
	if userID == "" {
		return Balance{}, ErrInvalidArgument
	}
	var out Balance
	err := s.update(ctx, func(ctx context.Context, tx Tx) error {
		w, err := tx.WalletForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		out = w.AsBalance()
		return nil
	})
	return out, err
}

// OwnsTransaction reports whether the transaction belongs to the user's
// wallet, as owner or recipient.
func (s *Service) OwnsTransaction(ctx context.Context, userID string, t Transaction) (bool, error) {
	if userID == "" {
		return false, ErrInvalidArgument
	}
	var owned bool
	err := s.update(ctx, func(ctx context.Context, tx Tx) error {
		w, err := tx.WalletForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		owned = t.WalletID == w.ID ||
			(t.RecipientWalletID != nil && *t.RecipientWalletID == w.ID)
		return nil
	})
	return owned, err
}

// TransactionHistory lists the user's ledger entries, newest first.
func (s *Service) TransactionHistory(ctx context.Context, userID string, limit, offset int) ([]Transaction, error) {
	if userID == "" {
		return nil, ErrInvalidArgument
	}
	return s.store.TransactionsByUser(ctx, userID, limit, offset)
}

// DeductListingFee charges the travel-listing creation fee. The fee goes to
// system revenue. On ErrInsufficientBalance nothing is written; undoing the
// listing itself is the caller's compensating action.
func (s *Service) DeductListingFee(ctx context.Context, userID, listingRef string) (Transaction, error) {
	if userID == "" || listingRef == "" {
		return Transaction{}, ErrInvalidArgument
	}
	cfg, err := s.cfgs.Config(ctx)
	if err != nil {
		return Transaction{}, err
	}

	var out Transaction
	err = s.update(ctx, func(ctx context.Context, tx Tx) error {
		w, err := tx.WalletForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		fee := ListingFee(cfg)
		if !SufficientForListing(w, cfg) {
			return insufficient(fee, w)
		}

		w.Balance = w.Balance.Sub(fee)
		if err := checkBalances(w); err != nil {
			return err
		}
		if err := tx.SaveWalletBalances(ctx, w); err != nil {
			return err
		}

		t := s.newTransaction(w.ID, fee, TypeListingFee, CategorySystemRevenue, StatusSuccess, "listing-fee-"+listingRef)
		t.ListingRef = listingRef
		t.Description = fmt.Sprintf("Fee for creating travel listing %s", listingRef)
		if err := tx.InsertTransaction(ctx, t); err != nil {
			return err
		}
		out = t
		return nil
	})
	observe("listing_fee", err)
	return out, err
}

// DeductRequestFeeAndLock charges the package-request fee and locks the full
// request price against delivery, as one atomic unit. Two transaction rows
// are written: the fee (system revenue) and the lock (user transaction).
func (s *Service) DeductRequestFeeAndLock(ctx context.Context, userID, requestRef string, totalPrice decimal.Decimal) (feeTxn, lockTxn Transaction, err error) {
	if userID == "" || requestRef == "" || !totalPrice.IsPositive() {
		return Transaction{}, Transaction{}, ErrInvalidArgument
	}
	cfg, err := s.cfgs.Config(ctx)
	if err != nil {
		return Transaction{}, Transaction{}, err
	}

	err = s.update(ctx, func(ctx context.Context, tx Tx) error {
		w, err := tx.WalletForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		fee, lockAmount := RequestFeeAndLockAmount(cfg, totalPrice)
		if !SufficientForRequest(w, cfg, totalPrice) {
			return insufficient(fee.Add(lockAmount), w)
		}

		w.Balance = w.Balance.Sub(fee).Sub(lockAmount)
		w.LockedBalance = w.LockedBalance.Add(lockAmount)
		if err := checkBalances(w); err != nil {
			return err
		}
		if err := tx.SaveWalletBalances(ctx, w); err != nil {
			return err
		}

		ft := s.newTransaction(w.ID, fee, TypeRequestFee, CategorySystemRevenue, StatusSuccess, "request-fee-"+requestRef)
		ft.RequestRef = requestRef
		ft.Description = fmt.Sprintf("Fee for creating package request %s", requestRef)
		if err := tx.InsertTransaction(ctx, ft); err != nil {
			return err
		}

		lt := s.newTransaction(w.ID, lockAmount, TypePaymentLock, CategoryUserTransaction, StatusSuccess, "lock-"+requestRef)
		lt.RequestRef = requestRef
		lt.Description = fmt.Sprintf("Locked payment for package request %s", requestRef)
		if err := tx.InsertTransaction(ctx, lt); err != nil {
			return err
		}

		feeTxn, lockTxn = ft, lt
		return nil
	})
	observe("request_fee_lock", err)
	return feeTxn, lockTxn, err
}

// ReleasePaymentToTraveler converts the lock recorded for requestRef into a
// transfer to the traveler, net of platform commission. The requester wallet
// and locked amount are resolved from the PAYMENT_LOCK ledger entry.
//
// The release reference is derived from requestRef, so a second release of
// the same request fails on the unique reference even if the upstream
// status-transition guard is bypassed.
func (s *Service) ReleasePaymentToTraveler(ctx context.Context, requestRef, travelerUserID string) (releaseTxn, commissionTxn Transaction, err error) {
	if requestRef == "" || travelerUserID == "" {
		return Transaction{}, Transaction{}, ErrInvalidArgument
	}
	cfg, err := s.cfgs.Config(ctx)
	if err != nil {
		return Transaction{}, Transaction{}, err
	}

	err = s.update(ctx, func(ctx context.Context, tx Tx) error {
		lock, err := tx.TransactionByTypeAndRequestRef(ctx, TypePaymentLock, requestRef)
		if err != nil {
			return fmt.Errorf("no payment lock for request %s: %w", requestRef, err)
		}
		lockedAmount := lock.Amount

		requester, err := tx.WalletForUpdateByID(ctx, lock.WalletID)
		if err != nil {
			return err
		}
		traveler, err := tx.WalletForUpdate(ctx, travelerUserID)
		if err != nil {
			return err
		}
		if traveler.ID == requester.ID {
			return fmt.Errorf("%w: traveler and requester share a wallet", ErrInvalidArgument)
		}

		travelerAmount, commissionAmount := CommissionSplit(cfg, lockedAmount)

		requester.LockedBalance = requester.LockedBalance.Sub(lockedAmount)
		if err := checkBalances(requester); err != nil {
			return err
		}
		traveler.Balance = traveler.Balance.Add(travelerAmount)

		if err := tx.SaveWalletBalances(ctx, requester); err != nil {
			return err
		}
		if err := tx.SaveWalletBalances(ctx, traveler); err != nil {
			return err
		}

		rt := s.newTransaction(requester.ID, travelerAmount, TypePaymentRelease, CategoryInternalTransfer, StatusSuccess, "release-"+requestRef)
		rt.RecipientWalletID = &traveler.ID
		rt.RequestRef = requestRef
		rt.Description = fmt.Sprintf("Payment released to traveler for package request %s", requestRef)
		if err := tx.InsertTransaction(ctx, rt); err != nil {
			return err
		}

		ct := s.newTransaction(requester.ID, commissionAmount, TypeCommission, CategorySystemRevenue, StatusSuccess, "commission-"+requestRef)
		ct.RequestRef = requestRef
		ct.Description = fmt.Sprintf("Platform commission for package request %s", requestRef)
		if err := tx.InsertTransaction(ctx, ct); err != nil {
			return err
		}

		releaseTxn, commissionTxn = rt, ct
		return nil
	})
	observe("release", err)
	return releaseTxn, commissionTxn, err
}

// RefundLockedAmount returns the locked funds for a rejected or cancelled
// request to the requester's available balance.
func (s *Service) RefundLockedAmount(ctx context.Context, requestRef string) (Transaction, error) {
	if requestRef == "" {
		return Transaction{}, ErrInvalidArgument
	}

	var out Transaction
	err := s.update(ctx, func(ctx context.Context, tx Tx) error {
		lock, err := tx.TransactionByTypeAndRequestRef(ctx, TypePaymentLock, requestRef)
		if err != nil {
			return fmt.Errorf("no payment lock for request %s: %w", requestRef, err)
		}
		lockedAmount := lock.Amount

		w, err := tx.WalletForUpdateByID(ctx, lock.WalletID)
		if err != nil {
			return err
		}
		w.LockedBalance = w.LockedBalance.Sub(lockedAmount)
		w.Balance = w.Balance.Add(lockedAmount)
		if err := checkBalances(w); err != nil {
			return err
		}
		if err := tx.SaveWalletBalances(ctx, w); err != nil {
			return err
		}

		t := s.newTransaction(w.ID, lockedAmount, TypePaymentUnlock, CategoryUserTransaction, StatusSuccess, "unlock-"+requestRef)
		t.RequestRef = requestRef
		t.Description = fmt.Sprintf("Refund for rejected/cancelled package request %s", requestRef)
		if err := tx.InsertTransaction(ctx, t); err != nil {
			return err
		}
		out = t
		return nil
	})
	observe("refund", err)
	return out, err
}
