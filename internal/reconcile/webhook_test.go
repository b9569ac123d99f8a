package reconcile

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"

	"crowdship-platform/internal/gateway"
	"crowdship-platform/internal/wallet"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSettler struct {
	err      error
	lastRef  string
	settled  wallet.Transaction
	requests int
}

func (f *fakeSettler) VerifyByReference(ctx context.Context, reference string) (wallet.Transaction, error) {
	f.requests++
	f.lastRef = reference
	if f.err != nil {
		return wallet.Transaction{}, f.err
	}
	f.settled.Reference = reference
	return f.settled, nil
}

func signBody(body, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func newProcessor(settler Settler) *WebhookProcessor {
	return NewWebhookProcessor(gateway.NewSignatureVerifier("whsec"), settler, nil)
}

func TestProcessRejectsInvalidSignature(t *testing.T) {
	settler := &fakeSettler{}
	p := newProcessor(settler)

	err := p.Process(context.Background(), []byte(`{"tx_ref":"tx-1"}`), "bad-signature")
	require.ErrorIs(t, err, gateway.ErrInvalidSignature)
	assert.Zero(t, settler.requests, "settlement must not run on a bad signature")
}

func TestProcessSettlesReferencedTransaction(t *testing.T) {
	settler := &fakeSettler{settled: wallet.Transaction{Type: wallet.TypeDeposit, Status: wallet.StatusSuccess}}
	p := newProcessor(settler)

	body := `{"event":"charge.success","tx_ref":"tx-1","status":"success"}`
	err := p.Process(context.Background(), []byte(body), signBody(body, "whsec"))
	require.NoError(t, err)
	assert.Equal(t, "tx-1", settler.lastRef)
}

func TestProcessReadsTransferReferenceFields(t *testing.T) {
	settler := &fakeSettler{settled: wallet.Transaction{Type: wallet.TypeWithdrawal, Status: wallet.StatusSuccess}}
	p := newProcessor(settler)

	body := `{"event":"payout.success","reference":"wd-9"}`
	err := p.Process(context.Background(), []byte(body), signBody(body, "whsec"))
	require.NoError(t, err)
	assert.Equal(t, "wd-9", settler.lastRef)
}

func TestProcessAcknowledgesUnknownReference(t *testing.T) {
	settler := &fakeSettler{err: wallet.ErrNotFound}
	p := newProcessor(settler)

	body := `{"tx_ref":"tx-unknown"}`
	err := p.Process(context.Background(), []byte(body), signBody(body, "whsec"))
	require.NoError(t, err, "unknown references are acknowledged so the gateway stops retrying")
}

func TestProcessAcknowledgesMalformedBody(t *testing.T) {
	settler := &fakeSettler{}
	p := newProcessor(settler)

	for _, body := range []string{`not json`, `{"event":"ping"}`} {
		err := p.Process(context.Background(), []byte(body), signBody(body, "whsec"))
		require.NoError(t, err, "body %q", body)
	}
	assert.Zero(t, settler.requests)
}

func TestProcessPropagatesTransientFailure(t *testing.T) {
	settler := &fakeSettler{err: errors.New("db down")}
	p := newProcessor(settler)

	body := `{"tx_ref":"tx-1"}`
	err := p.Process(context.Background(), []byte(body), signBody(body, "whsec"))
	require.Error(t, err, "transient failures must surface so the gateway redelivers")
	require.NotErrorIs(t, err, gateway.ErrInvalidSignature)
}
