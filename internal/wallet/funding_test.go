package wallet

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"crowdship-platform/internal/gateway"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	mu sync.Mutex

	initErr     error
	transferErr error

	verifyTxnResult      gateway.VerifyResult
	verifyTxnErr         error
	verifyTransferResult gateway.VerifyResult
	verifyTransferErr    error

	verifyTxnCalls      int
	verifyTransferCalls int
}

func (g *fakeGateway) Code() string { return "fake" }

func (g *fakeGateway) InitializeDeposit(ctx context.Context, req gateway.DepositRequest) (gateway.InitializeResult, error) {
	if g.initErr != nil {
		return gateway.InitializeResult{}, g.initErr
	}
	return gateway.InitializeResult{CheckoutURL: "https://pay.example/checkout/" + req.Reference}, nil
}

func (g *fakeGateway) VerifyTransaction(ctx context.Context, reference string) (gateway.VerifyResult, error) {
	g.mu.Lock()
	g.verifyTxnCalls++
	g.mu.Unlock()
	if g.verifyTxnErr != nil {
		return gateway.VerifyResult{}, g.verifyTxnErr
	}
	return g.verifyTxnResult, nil
}

func (g *fakeGateway) InitiateTransfer(ctx context.Context, req gateway.TransferRequest) (gateway.TransferResult, error) {
	if g.transferErr != nil {
		return gateway.TransferResult{}, g.transferErr
	}
	return gateway.TransferResult{ExternalReference: "ext-" + req.Reference}, nil
}

func (g *fakeGateway) VerifyTransfer(ctx context.Context, reference string) (gateway.VerifyResult, error) {
	g.mu.Lock()
	g.verifyTransferCalls++
	g.mu.Unlock()
	if g.verifyTransferErr != nil {
		return gateway.VerifyResult{}, g.verifyTransferErr
	}
	return g.verifyTransferResult, nil
}

func (g *fakeGateway) ListBanks(ctx context.Context) ([]gateway.Bank, error) {
	return []gateway.Bank{{Name: "Test Bank", Code: "001", Currency: "ETB"}}, nil
}

func newTestFunding(t *testing.T) (*FundingService, *MemoryStore, *fakeGateway) {
	t.Helper()
	store := NewMemoryStore("ETB")
	svc := NewService(store, staticConfig{snap: testConfig()})
	gw := &fakeGateway{}
	return NewFundingService(svc, gw, nil), store, gw
}

func depositParams(amount string) DepositParams {
	return DepositParams{
		UserID:    "user-1",
		Amount:    dec(amount),
		Email:     "user@example.com",
		FirstName: "Abel",
		LastName:  "T",
	}
}

func withdrawalParams(amount string) WithdrawalParams {
	return WithdrawalParams{
		UserID:        "user-1",
		Amount:        dec(amount),
		BankCode:      "001",
		AccountNumber: "100012345678",
		AccountName:   "Abel T",
	}
}

func TestInitiateDeposit(t *testing.T) {
	fs, store, _ := newTestFunding(t)

	init, err := fs.InitiateDeposit(context.Background(), depositParams("100"))
	require.NoError(t, err)
	assert.NotEmpty(t, init.CheckoutURL)
	assert.NotEmpty(t, init.Reference)

	stored, err := store.TransactionByReference(context.Background(), init.Reference)
	require.NoError(t, err)
	assert.Equal(t, TypeDeposit, stored.Type)
	assert.Equal(t, StatusPending, stored.Status)

	// No credit before confirmation.
	bal := balanceOf(t, fs.Service, "user-1")
	assert.True(t, bal.Balance.IsZero())
}

func TestInitiateDepositOutOfBounds(t *testing.T) {
	fs, store, _ := newTestFunding(t)

	_, err := fs.InitiateDeposit(context.Background(), depositParams("5"))
	require.ErrorIs(t, err, ErrInvalidArgument)
	assert.Empty(t, store.Transactions())
}

func TestInitiateDepositGatewayRejectedMarksFailed(t *testing.T) {
	fs, store, gw := newTestFunding(t)
	gw.initErr = fmt.Errorf("%w: bad request", gateway.ErrRejected)

	_, err := fs.InitiateDeposit(context.Background(), depositParams("100"))
	require.ErrorIs(t, err, gateway.ErrRejected)

	txns := store.Transactions()
	require.Len(t, txns, 1)
	assert.Equal(t, StatusFailed, txns[0].Status)
	assert.NotEmpty(t, txns[0].FailureReason)
}

func TestVerifyDepositCreditsExactlyOnce(t *testing.T) {
	fs, _, gw := newTestFunding(t)

	init, err := fs.InitiateDeposit(context.Background(), depositParams("100"))
	require.NoError(t, err)

	gw.verifyTxnResult = gateway.VerifyResult{Outcome: gateway.OutcomeSuccess, ExternalReference: "chapa-123"}

	txn, err := fs.VerifyByReference(context.Background(), init.Reference)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, txn.Status)
	assert.Equal(t, "chapa-123", txn.ExternalReference)

	bal := balanceOf(t, fs.Service, "user-1")
	assert.True(t, bal.Balance.Equal(dec("100")))

	// A redelivered webhook or poll must not credit again, and must not
	// even reach the gateway.
	calls := gw.verifyTxnCalls
	txn, err = fs.VerifyByReference(context.Background(), init.Reference)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, txn.Status)
	assert.Equal(t, calls, gw.verifyTxnCalls)

	bal = balanceOf(t, fs.Service, "user-1")
	assert.True(t, bal.Balance.Equal(dec("100")), "double credit: %s", bal.Balance)
}

func TestVerifyDepositFailedNoCredit(t *testing.T) {
	fs, _, gw := newTestFunding(t)

	init, err := fs.InitiateDeposit(context.Background(), depositParams("100"))
	require.NoError(t, err)

	gw.verifyTxnResult = gateway.VerifyResult{Outcome: gateway.OutcomeFailed, Message: "declined"}

	txn, err := fs.VerifyByReference(context.Background(), init.Reference)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, txn.Status)
	assert.Equal(t, "declined", txn.FailureReason)

	bal := balanceOf(t, fs.Service, "user-1")
	assert.True(t, bal.Balance.IsZero())
}

func TestVerifyDepositStillPending(t *testing.T) {
	fs, _, gw := newTestFunding(t)

	init, err := fs.InitiateDeposit(context.Background(), depositParams("100"))
	require.NoError(t, err)

	gw.verifyTxnResult = gateway.VerifyResult{Outcome: gateway.OutcomePending}

	txn, err := fs.VerifyByReference(context.Background(), init.Reference)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, txn.Status)
}

func TestInitiateWithdrawalHoldsFunds(t *testing.T) {
	fs, store, _ := newTestFunding(t)
	fund(t, store, "user-1", dec("100"))

	txn, err := fs.InitiateWithdrawal(context.Background(), withdrawalParams("40"))
	require.NoError(t, err)
	assert.Equal(t, TypeWithdrawal, txn.Type)
	assert.Equal(t, StatusPending, txn.Status)

	bal := balanceOf(t, fs.Service, "user-1")
	assert.True(t, bal.Balance.Equal(dec("60")))
	assert.True(t, bal.LockedBalance.Equal(dec("40")))
}

func TestInitiateWithdrawalInsufficientBalance(t *testing.T) {
	fs, store, _ := newTestFunding(t)
	fund(t, store, "user-1", dec("30"))

	_, err := fs.InitiateWithdrawal(context.Background(), withdrawalParams("40"))
	require.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Empty(t, store.Transactions())
}

func TestInitiateWithdrawalRejectedRollsBack(t *testing.T) {
	fs, store, gw := newTestFunding(t)
	fund(t, store, "user-1", dec("100"))
	gw.transferErr = fmt.Errorf("%w: invalid account", gateway.ErrRejected)

	_, err := fs.InitiateWithdrawal(context.Background(), withdrawalParams("40"))
	require.ErrorIs(t, err, gateway.ErrRejected)

	bal := balanceOf(t, fs.Service, "user-1")
	assert.True(t, bal.Balance.Equal(dec("100")), "hold not rolled back: %s", bal.Balance)
	assert.True(t, bal.LockedBalance.IsZero())

	txns := store.Transactions()
	require.Len(t, txns, 1)
	assert.Equal(t, StatusFailed, txns[0].Status)
}

func TestInitiateWithdrawalUnavailableKeepsHold(t *testing.T) {
	fs, store, gw := newTestFunding(t)
	fund(t, store, "user-1", dec("100"))
	gw.transferErr = fmt.Errorf("%w: timeout", gateway.ErrUnavailable)

	txn, err := fs.InitiateWithdrawal(context.Background(), withdrawalParams("40"))
	require.NoError(t, err)
	assert.Equal(t, StatusPending, txn.Status)

	// The transfer may have been accepted remotely; the hold stays until
	// verification settles it.
	bal := balanceOf(t, fs.Service, "user-1")
	assert.True(t, bal.Balance.Equal(dec("60")))
	assert.True(t, bal.LockedBalance.Equal(dec("40")))
}

func TestVerifyWithdrawalSuccessConsumesHold(t *testing.T) {
	fs, store, gw := newTestFunding(t)
	fund(t, store, "user-1", dec("100"))

	txn, err := fs.InitiateWithdrawal(context.Background(), withdrawalParams("40"))
	require.NoError(t, err)

	gw.verifyTransferResult = gateway.VerifyResult{Outcome: gateway.OutcomeSuccess, ExternalReference: "chapa-tr-9"}

	settled, err := fs.VerifyByReference(context.Background(), txn.Reference)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, settled.Status)

	bal := balanceOf(t, fs.Service, "user-1")
	assert.True(t, bal.Balance.Equal(dec("60")))
	assert.True(t, bal.LockedBalance.IsZero(), "hold not consumed: %s", bal.LockedBalance)
}

func TestVerifyWithdrawalFailedRefundsHold(t *testing.T) {
	fs, store, gw := newTestFunding(t)
	fund(t, store, "user-1", dec("100"))

	txn, err := fs.InitiateWithdrawal(context.Background(), withdrawalParams("40"))
	require.NoError(t, err)

	gw.verifyTransferResult = gateway.VerifyResult{Outcome: gateway.OutcomeFailed, Message: "transfer failed"}

	settled, err := fs.VerifyByReference(context.Background(), txn.Reference)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, settled.Status)

	bal := balanceOf(t, fs.Service, "user-1")
	assert.True(t, bal.Balance.Equal(dec("100")), "hold not refunded: %s", bal.Balance)
	assert.True(t, bal.LockedBalance.IsZero())
}

func TestVerifyUnknownReference(t *testing.T) {
	fs, _, _ := newTestFunding(t)

	_, err := fs.VerifyByReference(context.Background(), "no-such-ref")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestVerifyNonSettleableType(t *testing.T) {
	fs, store, _ := newTestFunding(t)
	fund(t, store, "user-1", dec("100"))

	_, lockTxn, err := fs.DeductRequestFeeAndLock(context.Background(), "user-1", "req-1", dec("30"))
	require.NoError(t, err)

	// Lock rows are written terminal, so verify short-circuits without
	// touching the gateway.
	settled, err := fs.VerifyByReference(context.Background(), lockTxn.Reference)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, settled.Status)
}
