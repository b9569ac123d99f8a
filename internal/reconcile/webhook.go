package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"crowdship-platform/internal/gateway"
	"crowdship-platform/internal/observability"
	"crowdship-platform/internal/wallet"
)

// Settler confirms a pending transaction against the gateway and applies the
// outcome. Implemented by wallet.FundingService.
type Settler interface {
	VerifyByReference(ctx context.Context, reference string) (wallet.Transaction, error)
}

// WebhookProcessor turns gateway webhook deliveries into settlement calls.
//
// Webhooks are treated as hints only: the payload's status field is never
// trusted. The referenced transaction is re-verified against the gateway
// before any balance changes.
type WebhookProcessor struct {
	sig     *gateway.SignatureVerifier
	settler Settler
	log     *slog.Logger
}

func NewWebhookProcessor(sig *gateway.SignatureVerifier, settler Settler, log *slog.Logger) *WebhookProcessor {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookProcessor{sig: sig, settler: settler, log: log}
}

// webhookPayload is the subset of the gateway's event body we read. The
// reference field name varies by event type.
type webhookPayload struct {
	Event     string `json:"event"`
	TxRef     string `json:"tx_ref"`
	TrxRef    string `json:"trx_ref"`
	Reference string `json:"reference"`
}

func (p webhookPayload) reference() string {
	for _, r := range []string{p.TxRef, p.TrxRef, p.Reference} {
		if r = strings.TrimSpace(r); r != "" {
			return r
		}
	}
	return ""
}

// Process validates and settles one webhook delivery.
//
// Error contract for the HTTP layer:
// - gateway.ErrInvalidSignature: reject the delivery (401).
// - nil: delivery handled, acknowledge (200). Unknown references and
//   malformed bodies are acknowledged so the gateway stops retrying them.
// - anything else: transient processing failure, ask for a retry (500).
func (w *WebhookProcessor) Process(ctx context.Context, body []byte, signatures ...string) error {
	if err := w.sig.Verify(body, signatures...); err != nil {
		observability.WebhookEvents.WithLabelValues("invalid_signature").Inc()
		return err
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		observability.WebhookEvents.WithLabelValues("malformed").Inc()
		w.log.WarnContext(ctx, "webhook body not parseable", slog.String("error", err.Error()))
		return nil
	}
	ref := payload.reference()
	if ref == "" {
		observability.WebhookEvents.WithLabelValues("malformed").Inc()
		w.log.WarnContext(ctx, "webhook without transaction reference", slog.String("event", payload.Event))
		return nil
	}

	txn, err := w.settler.VerifyByReference(ctx, ref)
	switch {
	case err == nil:
		observability.WebhookEvents.WithLabelValues("settled").Inc()
		w.log.InfoContext(ctx, "webhook settled",
			slog.String("reference", ref),
			slog.String("type", string(txn.Type)),
			slog.String("status", string(txn.Status)))
		return nil
	case errors.Is(err, wallet.ErrNotFound):
		// Not ours, or already pruned. Acknowledge so the gateway stops.
		observability.WebhookEvents.WithLabelValues("unknown_reference").Inc()
		w.log.WarnContext(ctx, "webhook for unknown reference", slog.String("reference", ref))
		return nil
	case errors.Is(err, wallet.ErrInvalidArgument):
		observability.WebhookEvents.WithLabelValues("ignored").Inc()
		w.log.WarnContext(ctx, "webhook for non-settleable transaction", slog.String("reference", ref))
		return nil
	default:
		observability.WebhookEvents.WithLabelValues("error").Inc()
		return fmt.Errorf("settle %s: %w", ref, err)
	}
}
