package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"crowdship-platform/internal/observability"
)

// ChapaConfig carries everything the Chapa client needs. Values come from
// internal/config; the secret key must never be logged.
type ChapaConfig struct {
	BaseURL     string
	SecretKey   string
	CallbackURL string
	ReturnURL   string
	Timeout     time.Duration

	// AllowTestTransfers treats a "success with null data" transfer
	// verification as success. This is a documented quirk of the gateway's
	// test mode; keep it off in production.
	AllowTestTransfers bool
}

// ChapaClient talks to the Chapa payment gateway.
type ChapaClient struct {
	cfg  ChapaConfig
	http *http.Client
}

const chapaCode = "chapa"

func NewChapaClient(cfg ChapaConfig) *ChapaClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.chapa.co/v1"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &ChapaClient{
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   5 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (c *ChapaClient) Code() string { return chapaCode }

// envelope is Chapa's common response wrapper. Data shapes vary per endpoint
// and may be null in test mode, so it stays raw until each caller decodes it.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e envelope) ok() bool { return strings.EqualFold(e.Status, "success") }

func (e envelope) hasData() bool {
	d := bytes.TrimSpace(e.Data)
	return len(d) > 0 && !bytes.Equal(d, []byte("null"))
}

func (c *ChapaClient) InitializeDeposit(ctx context.Context, req DepositRequest) (InitializeResult, error) {
	payload := map[string]any{
		"amount":       req.Amount.StringFixed(2),
		"currency":     req.Currency,
		"email":        req.Email,
		"first_name":   req.FirstName,
		"last_name":    req.LastName,
		"tx_ref":       req.Reference,
		"callback_url": c.cfg.CallbackURL,
		"return_url":   c.cfg.ReturnURL,
		"customization": map[string]string{
			"title":       "Wallet Deposit",
			"description": "Deposit to your wallet",
		},
	}
	env, err := c.do(ctx, "initialize", http.MethodPost, "/transaction/initialize", payload)
	if err != nil {
		return InitializeResult{}, err
	}
	if !env.ok() {
		return InitializeResult{}, fmt.Errorf("%w: %s", ErrRejected, env.Message)
	}
	var data struct {
		CheckoutURL string `json:"checkout_url"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || data.CheckoutURL == "" {
		return InitializeResult{}, fmt.Errorf("%w: missing checkout url", ErrRejected)
	}
	return InitializeResult{CheckoutURL: data.CheckoutURL}, nil
}

func (c *ChapaClient) VerifyTransaction(ctx context.Context, reference string) (VerifyResult, error) {
	env, err := c.do(ctx, "verify_transaction", http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil)
	if err != nil {
		return VerifyResult{}, err
	}
	if !env.ok() {
		return VerifyResult{Outcome: OutcomeFailed, Message: env.Message}, nil
	}
	var data struct {
		Status    string `json:"status"`
		Reference string `json:"reference"`
	}
	if env.hasData() {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return VerifyResult{}, fmt.Errorf("%w: malformed verify payload: %v", ErrUnavailable, err)
		}
	}
	return VerifyResult{
		Outcome:           normalizeStatus(data.Status),
		ExternalReference: data.Reference,
		Message:           env.Message,
	}, nil
}

func (c *ChapaClient) InitiateTransfer(ctx context.Context, req TransferRequest) (TransferResult, error) {
	payload := map[string]any{
		"amount":         req.Amount.StringFixed(2),
		"currency":       req.Currency,
		"reference":      req.Reference,
		"bank_code":      req.BankCode,
		"account_number": req.AccountNumber,
		"account_name":   req.AccountName,
	}
	env, err := c.do(ctx, "transfer", http.MethodPost, "/transfers", payload)
	if err != nil {
		return TransferResult{}, err
	}
	if !env.ok() {
		return TransferResult{}, fmt.Errorf("%w: %s", ErrRejected, env.Message)
	}
	// Chapa returns the transfer reference as a bare string in data.
	var ref string
	if env.hasData() {
		_ = json.Unmarshal(env.Data, &ref)
	}
	return TransferResult{ExternalReference: ref, Message: env.Message}, nil
}

func (c *ChapaClient) VerifyTransfer(ctx context.Context, reference string) (VerifyResult, error) {
	env, err := c.do(ctx, "verify_transfer", http.MethodGet, "/transfers/verify/"+url.PathEscape(reference), nil)
	if err != nil {
		return VerifyResult{}, err
	}
	if !env.ok() {
		return VerifyResult{Outcome: OutcomeFailed, Message: env.Message}, nil
	}
	if !env.hasData() {
		// Test mode returns a success envelope with null data.
		if c.cfg.AllowTestTransfers {
			return VerifyResult{Outcome: OutcomeSuccess, Message: env.Message}, nil
		}
		return VerifyResult{Outcome: OutcomePending, Message: env.Message}, nil
	}
	var data struct {
		Status          string `json:"status"`
		Reference       string `json:"reference"`
		ChapaTransferID string `json:"chapa_transfer_id"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return VerifyResult{}, fmt.Errorf("%w: malformed transfer payload: %v", ErrUnavailable, err)
	}
	external := data.ChapaTransferID
	if external == "" {
		external = data.Reference
	}
	return VerifyResult{
		Outcome:           normalizeStatus(data.Status),
		ExternalReference: external,
		Message:           env.Message,
	}, nil
}

func (c *ChapaClient) ListBanks(ctx context.Context) ([]Bank, error) {
	env, err := c.do(ctx, "banks", http.MethodGet, "/banks", nil)
	if err != nil {
		return nil, err
	}
	if !env.ok() && !env.hasData() {
		return nil, fmt.Errorf("%w: %s", ErrRejected, env.Message)
	}
	var data []struct {
		Name          string `json:"name"`
		Slug          string `json:"slug"`
		Swift         string `json:"swift"`
		AcctLength    int    `json:"acct_length"`
		Currency      string `json:"currency"`
		IsMobileMoney int    `json:"is_mobilemoney"`
		ID            any    `json:"id"` // numeric or string depending on gateway version
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("%w: malformed banks payload: %v", ErrUnavailable, err)
	}
	out := make([]Bank, 0, len(data))
	for _, b := range data {
		out = append(out, Bank{
			Name:          b.Name,
			Code:          fmt.Sprint(b.ID),
			Slug:          b.Slug,
			Swift:         b.Swift,
			AccountLength: b.AcctLength,
			IsMobileMoney: b.IsMobileMoney == 1,
			Currency:      b.Currency,
		})
	}
	return out, nil
}

// normalizeStatus maps the gateway's free-form status strings onto the closed
// Outcome set. Anything unrecognized stays Pending and is retried by the
// sweep rather than guessed at.
func normalizeStatus(s string) Outcome {
	switch strings.ToLower(s) {
	case "success", "successful":
		return OutcomeSuccess
	case "failed", "cancelled", "canceled", "reversed":
		return OutcomeFailed
	default:
		return OutcomePending
	}
}

func (c *ChapaClient) do(ctx context.Context, call, method, path string, payload any) (envelope, error) {
	env, err := c.send(ctx, method, path, payload)
	observability.GatewayCalls.WithLabelValues(chapaCode, call, callResult(err)).Inc()
	return env, err
}

func callResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrRejected):
		return "rejected"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}

func (c *ChapaClient) send(ctx context.Context, method, path string, payload any) (envelope, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return envelope{}, err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return envelope{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return envelope{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return envelope{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return envelope{}, fmt.Errorf("%w: %s", ErrUnavailable, resp.Status)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return envelope{}, fmt.Errorf("%w: undecodable response (%s)", ErrUnavailable, resp.Status)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return envelope{}, fmt.Errorf("%w: %s: %s", ErrRejected, resp.Status, env.Message)
	}
	return env, nil
}
