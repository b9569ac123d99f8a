package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"crowdship-platform/internal/auth"
	"crowdship-platform/internal/gateway"
	"crowdship-platform/internal/platform"
	"crowdship-platform/internal/reconcile"
	"crowdship-platform/internal/wallet"
	"crowdship-platform/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Wallet   *wallet.Service
	Funding  *wallet.FundingService
	Platform *platform.Service
	Webhook  *reconcile.WebhookProcessor
	Sweeper  *reconcile.Sweeper
	BankSync *reconcile.BankSync

	// GatewayCode scopes the banks directory.
	GatewayCode string
}

// maxWebhookBody caps webhook reads; gateway events are small.
const maxWebhookBody = 1 << 20

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, wallet.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, wallet.ErrNotFound), errors.Is(err, platform.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, wallet.ErrInsufficientBalance):
		var ib *wallet.InsufficientBalanceError
		body := gin.H{"error": "insufficient balance"}
		if errors.As(err, &ib) {
			body["required"] = ib.Required.StringFixed(2)
			body["balance"] = ib.Balance.Balance.StringFixed(2)
		}
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, body)
	case errors.Is(err, wallet.ErrDuplicateReference),
		errors.Is(err, wallet.ErrConcurrentModification):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		logger.FromGin(c).Error("request failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func identity(c *gin.Context) (string, bool) {
	uid, err := auth.UserID(c.Request.Context())
	if err != nil || uid == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return "", false
	}
	return uid, true
}

func parseAmount(c *gin.Context, raw string) (decimal.Decimal, bool) {
	amount, err := decimal.NewFromString(raw)
	if err != nil || !amount.IsPositive() {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "amount must be a positive decimal"})
		return decimal.Decimal{}, false
	}
	return amount, true
}

// --- Wallet ---

func (h Handlers) GetBalance(c *gin.Context) {
	uid, ok := identity(c)
	if !ok {
		return
	}
	bal, err := h.Wallet.GetBalance(c.Request.Context(), uid)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, bal)
}

func (h Handlers) TransactionHistory(c *gin.Context) {
	uid, ok := identity(c)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	txns, err := h.Wallet.TransactionHistory(c.Request.Context(), uid, limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txns, "limit": limit, "offset": offset})
}

type depositRequest struct {
	Amount    string `json:"amount"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (h Handlers) InitiateDeposit(c *gin.Context) {
	uid, ok := identity(c)
	if !ok {
		return
	}
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	amount, ok := parseAmount(c, req.Amount)
	if !ok {
		return
	}
	email := req.Email
	if email == "" {
		email = auth.Email(c.Request.Context())
	}

	init, err := h.Funding.InitiateDeposit(c.Request.Context(), wallet.DepositParams{
		UserID:    uid,
		Amount:    amount,
		Email:     email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		if errors.Is(err, gateway.ErrRejected) || errors.Is(err, gateway.ErrUnavailable) {
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "payment gateway unavailable"})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, init)
}

type withdrawalRequest struct {
	Amount        string `json:"amount"`
	BankCode      string `json:"bank_code"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
}

func (h Handlers) InitiateWithdrawal(c *gin.Context) {
	uid, ok := identity(c)
	if !ok {
		return
	}
	var req withdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	amount, ok := parseAmount(c, req.Amount)
	if !ok {
		return
	}

	txn, err := h.Funding.InitiateWithdrawal(c.Request.Context(), wallet.WithdrawalParams{
		UserID:        uid,
		Amount:        amount,
		BankCode:      req.BankCode,
		AccountNumber: req.AccountNumber,
		AccountName:   req.AccountName,
	})
	if err != nil {
		if errors.Is(err, gateway.ErrRejected) {
			c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": "withdrawal rejected by gateway"})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, txn)
}

// VerifyTransaction re-checks a pending deposit or withdrawal against the
// gateway. Clients poll this after returning from checkout.
func (h Handlers) VerifyTransaction(c *gin.Context) {
	uid, ok := identity(c)
	if !ok {
		return
	}
	reference := c.Param("reference")
	if reference == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "reference required"})
		return
	}

	txn, err := h.Funding.VerifyByReference(c.Request.Context(), reference)
	if err != nil {
		if errors.Is(err, gateway.ErrRejected) || errors.Is(err, gateway.ErrUnavailable) {
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "payment gateway unavailable"})
			return
		}
		writeError(c, err)
		return
	}
	// Users may only see their own ledger entries.
	owned, err := h.Wallet.OwnsTransaction(c.Request.Context(), uid, txn)
	if err != nil {
		writeError(c, err)
		return
	}
	if !owned {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, txn)
}

func (h Handlers) ListBanks(c *gin.Context) {
	banks, err := h.Platform.ListBanks(c.Request.Context(), h.GatewayCode)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"banks": banks})
}

// --- Webhooks ---

var webhookSignatureHeaders = []string{"Chapa-Signature", "x-chapa-signature"}

// HandleGatewayWebhook acknowledges with 200 once the event is processed,
// even when the underlying payment failed; 401 rejects a bad signature and
// 500 asks the gateway to redeliver.
func (h Handlers) HandleGatewayWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "read failed"})
		return
	}

	var signatures []string
	for _, header := range webhookSignatureHeaders {
		if v := c.GetHeader(header); v != "" {
			signatures = append(signatures, v)
		}
	}

	err = h.Webhook.Process(c.Request.Context(), body, signatures...)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	case errors.Is(err, gateway.ErrInvalidSignature):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
	default:
		logger.FromGin(c).Error("webhook processing failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
	}
}

// --- Admin ---

func (h Handlers) GetPlatformConfig(c *gin.Context) {
	cfg, err := h.Platform.Config(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

type updateConfigRequest struct {
	MinBalanceForTravelListing  *string `json:"min_balance_for_travel_listing"`
	MinBalanceForPackageRequest *string `json:"min_balance_for_package_request"`
	CommissionPercentage        *string `json:"commission_percentage"`
	TaxPercentage               *string `json:"tax_percentage"`
	MinDeposit                  *string `json:"min_deposit"`
	MaxDeposit                  *string `json:"max_deposit"`
	MinWithdrawal               *string `json:"min_withdrawal"`
	MaxWithdrawal               *string `json:"max_withdrawal"`
	Currency                    *string `json:"currency"`
}

func (h Handlers) UpdatePlatformConfig(c *gin.Context) {
	var req updateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	cfg, err := h.Platform.Config(c.Request.Context())
	if err != nil && !errors.Is(err, platform.ErrNotFound) {
		writeError(c, err)
		return
	}

	apply := func(dst *decimal.Decimal, raw *string, field string) bool {
		if raw == nil {
			return true
		}
		d, err := decimal.NewFromString(*raw)
		if err != nil || d.IsNegative() {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": field + " must be a non-negative decimal"})
			return false
		}
		*dst = d
		return true
	}

	if !apply(&cfg.MinBalanceForTravelListing, req.MinBalanceForTravelListing, "min_balance_for_travel_listing") ||
		!apply(&cfg.MinBalanceForPackageRequest, req.MinBalanceForPackageRequest, "min_balance_for_package_request") ||
		!apply(&cfg.CommissionPercentage, req.CommissionPercentage, "commission_percentage") ||
		!apply(&cfg.TaxPercentage, req.TaxPercentage, "tax_percentage") ||
		!apply(&cfg.MinDeposit, req.MinDeposit, "min_deposit") ||
		!apply(&cfg.MaxDeposit, req.MaxDeposit, "max_deposit") ||
		!apply(&cfg.MinWithdrawal, req.MinWithdrawal, "min_withdrawal") ||
		!apply(&cfg.MaxWithdrawal, req.MaxWithdrawal, "max_withdrawal") {
		return
	}
	if req.Currency != nil {
		cfg.Currency = *req.Currency
	}
	if cfg.CommissionPercentage.GreaterThan(decimal.NewFromInt(100)) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "commission_percentage must not exceed 100"})
		return
	}

	updated, err := h.Platform.UpdateConfig(c.Request.Context(), cfg)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// TriggerSweep runs one reconciliation pass on demand.
func (h Handlers) TriggerSweep(c *gin.Context) {
	res, err := h.Sweeper.SweepOnce(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h Handlers) TriggerBankSync(c *gin.Context) {
	count, err := h.BankSync.Sync(c.Request.Context())
	if err != nil {
		if errors.Is(err, gateway.ErrRejected) || errors.Is(err, gateway.ErrUnavailable) {
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "payment gateway unavailable"})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"synced": count})
}
