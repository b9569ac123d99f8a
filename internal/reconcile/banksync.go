package reconcile

import (
	"context"
	"log/slog"

	"crowdship-platform/internal/gateway"
	"crowdship-platform/internal/platform"

	"github.com/google/uuid"
)

// BankSync refreshes the cached bank directory from the gateway. The
// directory backs withdrawal destination validation, so it is refreshed on
// demand rather than per-request.
type BankSync struct {
	gw    gateway.Client
	banks *platform.Service
	log   *slog.Logger
}

func NewBankSync(gw gateway.Client, banks *platform.Service, log *slog.Logger) *BankSync {
	if log == nil {
		log = slog.Default()
	}
	return &BankSync{gw: gw, banks: banks, log: log}
}

// Sync fetches the gateway's bank list and replaces the stored directory for
// that gateway. Returns the number of banks stored.
func (b *BankSync) Sync(ctx context.Context) (int, error) {
	list, err := b.gw.ListBanks(ctx)
	if err != nil {
		return 0, err
	}

	banks := make([]platform.Bank, 0, len(list))
	for _, g := range list {
		banks = append(banks, platform.Bank{
			ID:            uuid.NewString(),
			GatewayCode:   b.gw.Code(),
			Name:          g.Name,
			Code:          g.Code,
			Slug:          g.Slug,
			Swift:         g.Swift,
			AccountLength: g.AccountLength,
			IsMobileMoney: g.IsMobileMoney,
			Currency:      g.Currency,
		})
	}

	if err := b.banks.ReplaceBanks(ctx, b.gw.Code(), banks); err != nil {
		return 0, err
	}
	b.log.InfoContext(ctx, "bank directory synced",
		slog.String("gateway", b.gw.Code()), slog.Int("count", len(banks)))
	return len(banks), nil
}
