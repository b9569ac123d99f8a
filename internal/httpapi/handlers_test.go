package httpapi

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"crowdship-platform/internal/auth"
	"crowdship-platform/internal/gateway"
	"crowdship-platform/internal/platform"
	"crowdship-platform/internal/reconcile"
	"crowdship-platform/internal/wallet"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSettler struct {
	err error
}

func (s stubSettler) VerifyByReference(ctx context.Context, reference string) (wallet.Transaction, error) {
	if s.err != nil {
		return wallet.Transaction{}, s.err
	}
	return wallet.Transaction{Reference: reference, Type: wallet.TypeDeposit, Status: wallet.StatusSuccess}, nil
}

func signBody(body, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return hex.EncodeToString(mac.Sum(nil))
}

func webhookRouter(settlerErr error) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := Handlers{
		Webhook: reconcile.NewWebhookProcessor(
			gateway.NewSignatureVerifier("whsec"), stubSettler{err: settlerErr}, nil),
	}
	r := gin.New()
	r.POST("/webhooks/chapa", h.HandleGatewayWebhook)
	return r
}

func postWebhook(r *gin.Engine, body, signature string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/chapa", strings.NewReader(body))
	if signature != "" {
		req.Header.Set("Chapa-Signature", signature)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestWebhookAccepted(t *testing.T) {
	r := webhookRouter(nil)
	body := `{"tx_ref":"tx-1","status":"success"}`

	w := postWebhook(r, body, signBody(body, "whsec"))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhookBadSignature(t *testing.T) {
	r := webhookRouter(nil)
	body := `{"tx_ref":"tx-1"}`

	w := postWebhook(r, body, "forged")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = postWebhook(r, body, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookUnknownReferenceStillAcknowledged(t *testing.T) {
	r := webhookRouter(wallet.ErrNotFound)
	body := `{"tx_ref":"tx-unknown"}`

	w := postWebhook(r, body, signBody(body, "whsec"))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhookTransientFailureAsksForRetry(t *testing.T) {
	r := webhookRouter(errors.New("db down"))
	body := `{"tx_ref":"tx-1"}`

	w := postWebhook(r, body, signBody(body, "whsec"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

// nopGateway satisfies the client contract for handler tests that must not
// reach the network.
type nopGateway struct{}

func (nopGateway) Code() string { return "fake" }
func (nopGateway) InitializeDeposit(context.Context, gateway.DepositRequest) (gateway.InitializeResult, error) {
	return gateway.InitializeResult{}, gateway.ErrUnavailable
}
func (nopGateway) VerifyTransaction(context.Context, string) (gateway.VerifyResult, error) {
	return gateway.VerifyResult{}, gateway.ErrUnavailable
}
func (nopGateway) InitiateTransfer(context.Context, gateway.TransferRequest) (gateway.TransferResult, error) {
	return gateway.TransferResult{}, gateway.ErrUnavailable
}
func (nopGateway) VerifyTransfer(context.Context, string) (gateway.VerifyResult, error) {
	return gateway.VerifyResult{}, gateway.ErrUnavailable
}
func (nopGateway) ListBanks(context.Context) ([]gateway.Bank, error) { return nil, nil }

// identityMW fakes an authenticated request.
func identityMW(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := auth.WithIdentity(c.Request.Context(), userID, "user", "user@example.com")
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func walletRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := wallet.NewMemoryStore("ETB")
	platformSvc := platform.NewService(platform.NewMemoryRepo(), nil)
	_, err := platformSvc.UpdateConfig(context.Background(), platform.Snapshot{
		MinBalanceForTravelListing:  decimal.RequireFromString("10"),
		MinBalanceForPackageRequest: decimal.RequireFromString("10"),
		CommissionPercentage:        decimal.RequireFromString("5"),
		MinDeposit:                  decimal.RequireFromString("10"),
		MinWithdrawal:               decimal.RequireFromString("10"),
		Currency:                    "ETB",
	})
	require.NoError(t, err)

	svc := wallet.NewService(store, platformSvc)
	funding := wallet.NewFundingService(svc, nopGateway{}, nil)
	h := Handlers{Wallet: svc, Funding: funding, Platform: platformSvc, GatewayCode: "chapa"}

	r := gin.New()
	r.GET("/v1/wallet/balance", identityMW("u-1"), h.GetBalance)
	r.GET("/v1/wallet/transactions", identityMW("u-1"), h.TransactionHistory)
	r.POST("/v1/wallet/withdraw", identityMW("u-1"), h.InitiateWithdrawal)
	r.GET("/v1/banks", identityMW("u-1"), h.ListBanks)
	return r
}

func TestGetBalance(t *testing.T) {
	r := walletRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/wallet/balance", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var bal struct {
		UserID        string `json:"user_id"`
		Balance       string `json:"balance"`
		LockedBalance string `json:"locked_balance"`
		Currency      string `json:"currency"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &bal))
	assert.Equal(t, "u-1", bal.UserID)
	assert.Equal(t, "ETB", bal.Currency)
}

func TestGetBalanceWithoutIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := Handlers{}
	r.GET("/v1/wallet/balance", h.GetBalance)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/wallet/balance", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTransactionHistoryEmpty(t *testing.T) {
	r := walletRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/wallet/transactions?limit=10", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Transactions []wallet.Transaction `json:"transactions"`
		Limit        int                  `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Transactions)
	assert.Equal(t, 10, resp.Limit)
}

func TestWithdrawInsufficientBalancePayload(t *testing.T) {
	r := walletRouter(t)

	body := `{"amount":"50","bank_code":"130","account_number":"0123456789","account_name":"Abebe"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/wallet/withdraw", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var resp struct {
		Error    string `json:"error"`
		Required string `json:"required"`
		Balance  string `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "insufficient balance", resp.Error)
	assert.Equal(t, "50.00", resp.Required)
	assert.Equal(t, "0.00", resp.Balance)
}

func TestListBanksEmptyDirectory(t *testing.T) {
	r := walletRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/banks", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
