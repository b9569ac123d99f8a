package reconcile

import (
	"context"
	"log/slog"
	"time"

	"crowdship-platform/internal/observability"
	"crowdship-platform/internal/wallet"
	"crowdship-platform/pkg/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// PendingLister exposes the unsettled slice of the ledger. Implemented by
// wallet.Store.
type PendingLister interface {
	PendingTransactions(ctx context.Context, limit int) ([]wallet.Transaction, error)
}

const sweepLeaseKey = "reconcile:sweep:lease"

// Sweeper periodically re-verifies PENDING deposits and withdrawals against
// the gateway. It is the safety net for lost webhooks, crashed processes and
// gateway timeouts: any transaction stuck in PENDING eventually passes
// through here.
//
// A redis lease keeps the sweep single-flight across instances. Running
// without redis is allowed for single-instance deployments; settlement
// itself is idempotent either way.
type Sweeper struct {
	store   PendingLister
	settler Settler
	rdb     *redis.Client
	log     *slog.Logger

	interval    time.Duration
	batchLimit  int
	itemTimeout time.Duration
}

func NewSweeper(store PendingLister, settler Settler, rdb *redis.Client, log *slog.Logger, interval time.Duration, batchLimit int, itemTimeout time.Duration) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if batchLimit <= 0 {
		batchLimit = 100
	}
	if itemTimeout <= 0 {
		itemTimeout = 15 * time.Second
	}
	return &Sweeper{
		store:       store,
		settler:     settler,
		rdb:         rdb,
		log:         log,
		interval:    interval,
		batchLimit:  batchLimit,
		itemTimeout: itemTimeout,
	}
}

// Run sweeps on a fixed interval until ctx is cancelled. Intended to be
// started as a goroutine from main.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.log.ErrorContext(ctx, "sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// SweepResult summarizes one sweep pass.
type SweepResult struct {
	Scanned      int  `json:"scanned"`
	Settled      int  `json:"settled"`
	StillPending int  `json:"still_pending"`
	Errors       int  `json:"errors"`
	Skipped      bool `json:"skipped"`
}

// SweepOnce runs a single pass over pending transactions. Individual
// failures are logged and skipped; one broken transaction must not stall the
// rest of the batch.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepResult, error) {
	if s.rdb != nil {
		token := uuid.NewString()
		ok, err := utils.AcquireLease(ctx, s.rdb, sweepLeaseKey, token, s.interval)
		if err != nil {
			observability.SweepRuns.WithLabelValues("error").Inc()
			return SweepResult{}, err
		}
		if !ok {
			observability.SweepRuns.WithLabelValues("skipped").Inc()
			return SweepResult{Skipped: true}, nil
		}
		defer func() {
			if err := utils.ReleaseLease(ctx, s.rdb, sweepLeaseKey, token); err != nil {
				s.log.WarnContext(ctx, "sweep lease release failed", slog.String("error", err.Error()))
			}
		}()
	}

	start := time.Now()
	defer func() {
		observability.SweepDuration.Observe(time.Since(start).Seconds())
	}()

	pending, err := s.store.PendingTransactions(ctx, s.batchLimit)
	if err != nil {
		observability.SweepRuns.WithLabelValues("error").Inc()
		return SweepResult{}, err
	}

	res := SweepResult{Scanned: len(pending)}
	for _, t := range pending {
		if ctx.Err() != nil {
			break
		}
		// Only gateway-settled types can be resolved here. Lock and fee
		// rows are written terminal and never show up pending.
		if t.Type != wallet.TypeDeposit && t.Type != wallet.TypeWithdrawal {
			continue
		}

		itemCtx, cancel := context.WithTimeout(ctx, s.itemTimeout)
		settled, err := s.settler.VerifyByReference(itemCtx, t.Reference)
		cancel()
		if err != nil {
			res.Errors++
			s.log.WarnContext(ctx, "sweep item failed",
				slog.String("reference", t.Reference), slog.String("error", err.Error()))
			continue
		}
		if settled.Terminal() {
			res.Settled++
			observability.SweepResolved.WithLabelValues(string(settled.Status)).Inc()
		} else {
			res.StillPending++
		}
	}

	observability.SweepRuns.WithLabelValues("ok").Inc()
	s.log.InfoContext(ctx, "sweep completed",
		slog.Int("scanned", res.Scanned),
		slog.Int("settled", res.Settled),
		slog.Int("still_pending", res.StillPending),
		slog.Int("errors", res.Errors),
		slog.Duration("took", time.Since(start)))
	return res, nil
}
