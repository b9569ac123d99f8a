package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"crowdship-platform/internal/gateway"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FundingService handles the money moves that cross the gateway boundary:
// deposits in, withdrawals out, and confirmation of both.
//
// The gateway is never called while a wallet row lock is held. Each flow is
// split into: record intent (PENDING row), call gateway, apply outcome under
// a fresh lock. A crash between steps leaves a PENDING transaction that the
// reconciliation sweep resolves later.
type FundingService struct {
	*Service
	gw  gateway.Client
	log *slog.Logger
}

func NewFundingService(svc *Service, gw gateway.Client, log *slog.Logger) *FundingService {
	if log == nil {
		log = slog.Default()
	}
	return &FundingService{Service: svc, gw: gw, log: log}
}

// DepositParams carries the payer details the gateway requires alongside the
// amount.
type DepositParams struct {
	UserID    string
	Amount    decimal.Decimal
	Email     string
	FirstName string
	LastName  string
}

// DepositInitiation is what the caller redirects the user with.
type DepositInitiation struct {
	Reference   string      `json:"reference"`
	CheckoutURL string      `json:"checkout_url"`
	Transaction Transaction `json:"transaction"`
}

// InitiateDeposit records a PENDING deposit and asks the gateway for a
// checkout URL. No balance changes until the deposit is confirmed. If the
// gateway rejects the initialization the row is marked FAILED; the user never
// received a checkout URL, so nothing can complete it.
func (s *FundingService) InitiateDeposit(ctx context.Context, p DepositParams) (DepositInitiation, error) {
	if p.UserID == "" || p.Email == "" {
		return DepositInitiation{}, ErrInvalidArgument
	}
	cfg, err := s.cfgs.Config(ctx)
	if err != nil {
		return DepositInitiation{}, err
	}
	if !AmountWithinDepositBounds(cfg, p.Amount) {
		return DepositInitiation{}, fmt.Errorf("%w: deposit amount %s outside allowed bounds", ErrInvalidArgument, p.Amount.StringFixed(2))
	}

	reference := "tx-" + uuid.NewString()

	var pending Transaction
	err = s.update(ctx, func(ctx context.Context, tx Tx) error {
		w, err := tx.WalletForUpdate(ctx, p.UserID)
		if err != nil {
			return err
		}
		t := s.newTransaction(w.ID, p.Amount, TypeDeposit, CategoryUserTransaction, StatusPending, reference)
		t.GatewayCode = s.gw.Code()
		t.Description = "Wallet deposit"
		if err := tx.InsertTransaction(ctx, t); err != nil {
			return err
		}
		pending = t
		return nil
	})
	observe("deposit_initiate", err)
	if err != nil {
		return DepositInitiation{}, err
	}

	res, err := s.gw.InitializeDeposit(ctx, gateway.DepositRequest{
		Amount:    p.Amount,
		Currency:  cfg.Currency,
		Email:     p.Email,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Reference: reference,
	})
	if err != nil {
		s.log.WarnContext(ctx, "deposit initialization failed",
			slog.String("reference", reference), slog.String("error", err.Error()))
		if merr := s.markFailed(ctx, pending.ID, err.Error()); merr != nil {
			return DepositInitiation{}, errors.Join(err, merr)
		}
		return DepositInitiation{}, err
	}

	return DepositInitiation{Reference: reference, CheckoutURL: res.CheckoutURL, Transaction: pending}, nil
}

// WithdrawalParams names the destination account for a payout.
type WithdrawalParams struct {
	UserID        string
	Amount        decimal.Decimal
	BankCode      string
	AccountNumber string
	AccountName   string
}

// InitiateWithdrawal moves the amount from available to locked, records a
// PENDING withdrawal, then asks the gateway to pay out.
//
// A terminal gateway rejection rolls the hold back and marks the row FAILED.
// A transient gateway failure leaves both the hold and the PENDING row in
// place; the gateway may have accepted the transfer, so only verification can
// settle it.
func (s *FundingService) InitiateWithdrawal(ctx context.Context, p WithdrawalParams) (Transaction, error) {
	if p.UserID == "" || p.BankCode == "" || p.AccountNumber == "" {
		return Transaction{}, ErrInvalidArgument
	}
	cfg, err := s.cfgs.Config(ctx)
	if err != nil {
		return Transaction{}, err
	}
	if !AmountWithinWithdrawalBounds(cfg, p.Amount) {
		return Transaction{}, fmt.Errorf("%w: withdrawal amount %s outside allowed bounds", ErrInvalidArgument, p.Amount.StringFixed(2))
	}

	reference := "wd-" + uuid.NewString()

	var pending Transaction
	err = s.update(ctx, func(ctx context.Context, tx Tx) error {
		w, err := tx.WalletForUpdate(ctx, p.UserID)
		if err != nil {
			return err
		}
		if w.Balance.LessThan(p.Amount) {
			return insufficient(p.Amount, w)
		}
		w.Balance = w.Balance.Sub(p.Amount)
		w.LockedBalance = w.LockedBalance.Add(p.Amount)
		if err := checkBalances(w); err != nil {
			return err
		}
		if err := tx.SaveWalletBalances(ctx, w); err != nil {
			return err
		}
		t := s.newTransaction(w.ID, p.Amount, TypeWithdrawal, CategoryUserTransaction, StatusPending, reference)
		t.GatewayCode = s.gw.Code()
		t.Description = fmt.Sprintf("Withdrawal to %s %s", p.BankCode, p.AccountNumber)
		if err := tx.InsertTransaction(ctx, t); err != nil {
			return err
		}
		pending = t
		return nil
	})
	observe("withdrawal_initiate", err)
	if err != nil {
		return Transaction{}, err
	}

	_, err = s.gw.InitiateTransfer(ctx, gateway.TransferRequest{
		Amount:        p.Amount,
		Currency:      cfg.Currency,
		BankCode:      p.BankCode,
		AccountNumber: p.AccountNumber,
		AccountName:   p.AccountName,
		Reference:     reference,
	})
	switch {
	case err == nil:
		return pending, nil
	case errors.Is(err, gateway.ErrRejected):
		s.log.WarnContext(ctx, "withdrawal rejected by gateway",
			slog.String("reference", reference), slog.String("error", err.Error()))
		if rerr := s.rollbackWithdrawal(ctx, reference, err.Error()); rerr != nil {
			return Transaction{}, errors.Join(err, rerr)
		}
		return Transaction{}, err
	default:
		// The gateway may have accepted the transfer before failing on us.
		// Keep the hold and let the sweep settle the outcome.
		s.log.WarnContext(ctx, "withdrawal outcome unknown, leaving pending",
			slog.String("reference", reference), slog.String("error", err.Error()))
		return pending, nil
	}
}

// VerifyByReference confirms a PENDING deposit or withdrawal against the
// gateway and applies the outcome. Safe to call any number of times, from the
// webhook, the polling endpoint and the sweep concurrently: once the row is
// terminal, further calls return it unchanged.
func (s *FundingService) VerifyByReference(ctx context.Context, reference string) (Transaction, error) {
	if reference == "" {
		return Transaction{}, ErrInvalidArgument
	}
	t, err := s.store.TransactionByReference(ctx, reference)
	if err != nil {
		return Transaction{}, err
	}
	if t.Terminal() {
		return t, nil
	}

	switch t.Type {
	case TypeDeposit:
		return s.verifyDeposit(ctx, t)
	case TypeWithdrawal:
		return s.verifyWithdrawal(ctx, t)
	default:
		return Transaction{}, fmt.Errorf("%w: transaction %s is not gateway-settled", ErrInvalidArgument, reference)
	}
}

func (s *FundingService) verifyDeposit(ctx context.Context, t Transaction) (Transaction, error) {
	res, err := s.gw.VerifyTransaction(ctx, t.Reference)
	if err != nil {
		return t, err
	}

	switch res.Outcome {
	case gateway.OutcomePending:
		return t, nil
	case gateway.OutcomeSuccess:
		return s.settle(ctx, t.Reference, res, func(w *Wallet, amount decimal.Decimal) {
			w.Balance = w.Balance.Add(amount)
		})
	case gateway.OutcomeFailed:
		return s.settle(ctx, t.Reference, res, nil)
	default:
		return t, fmt.Errorf("unrecognized gateway outcome %q for %s", res.Outcome, t.Reference)
	}
}

func (s *FundingService) verifyWithdrawal(ctx context.Context, t Transaction) (Transaction, error) {
	res, err := s.gw.VerifyTransfer(ctx, t.Reference)
	if err != nil {
		return t, err
	}

	switch res.Outcome {
	case gateway.OutcomePending:
		return t, nil
	case gateway.OutcomeSuccess:
		// Held funds leave the platform for good.
		return s.settle(ctx, t.Reference, res, func(w *Wallet, amount decimal.Decimal) {
			w.LockedBalance = w.LockedBalance.Sub(amount)
		})
	case gateway.OutcomeFailed:
		// Transfer did not happen; return the hold to the user.
		return s.settle(ctx, t.Reference, res, func(w *Wallet, amount decimal.Decimal) {
			w.LockedBalance = w.LockedBalance.Sub(amount)
			w.Balance = w.Balance.Add(amount)
		})
	default:
		return t, fmt.Errorf("unrecognized gateway outcome %q for %s", res.Outcome, t.Reference)
	}
}

// settle applies a terminal gateway outcome exactly once. It re-reads the
// transaction under a row lock so that racing confirmations (webhook vs
// polling vs sweep) cannot apply the balance change twice.
func (s *FundingService) settle(ctx context.Context, reference string, res gateway.VerifyResult, apply func(w *Wallet, amount decimal.Decimal)) (Transaction, error) {
	var out Transaction
	err := s.update(ctx, func(ctx context.Context, tx Tx) error {
		t, err := tx.TransactionByReferenceForUpdate(ctx, reference)
		if err != nil {
			return err
		}
		if t.Terminal() {
			out = t
			return nil
		}

		status := StatusFailed
		failureReason := res.Message
		if res.Outcome == gateway.OutcomeSuccess {
			status = StatusSuccess
			failureReason = ""
		}

		if apply != nil {
			w, err := tx.WalletForUpdateByID(ctx, t.WalletID)
			if err != nil {
				return err
			}
			apply(&w, t.Amount)
			if err := checkBalances(w); err != nil {
				return err
			}
			if err := tx.SaveWalletBalances(ctx, w); err != nil {
				return err
			}
		}

		if err := tx.MarkTransaction(ctx, t.ID, status, res.ExternalReference, failureReason); err != nil {
			return err
		}
		t.Status = status
		if res.ExternalReference != "" {
			t.ExternalReference = res.ExternalReference
		}
		t.FailureReason = failureReason
		out = t
		return nil
	})
	observe("settle", err)
	return out, err
}

func (s *FundingService) markFailed(ctx context.Context, txnID, reason string) error {
	reason = strings.TrimSpace(reason)
	return s.update(ctx, func(ctx context.Context, tx Tx) error {
		return tx.MarkTransaction(ctx, txnID, StatusFailed, "", reason)
	})
}

// rollbackWithdrawal undoes the hold taken by InitiateWithdrawal and marks
// the withdrawal FAILED, as one atomic unit.
func (s *FundingService) rollbackWithdrawal(ctx context.Context, reference, reason string) error {
	return s.update(ctx, func(ctx context.Context, tx Tx) error {
		t, err := tx.TransactionByReferenceForUpdate(ctx, reference)
		if err != nil {
			return err
		}
		if t.Terminal() {
			return nil
		}
		w, err := tx.WalletForUpdateByID(ctx, t.WalletID)
		if err != nil {
			return err
		}
		w.LockedBalance = w.LockedBalance.Sub(t.Amount)
		w.Balance = w.Balance.Add(t.Amount)
		if err := checkBalances(w); err != nil {
			return err
		}
		if err := tx.SaveWalletBalances(ctx, w); err != nil {
			return err
		}
		return tx.MarkTransaction(ctx, t.ID, StatusFailed, "", reason)
	})
}
