package platform

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// NOTE: This repository assumes the following tables exist:
// - platform_config (single row, id = 1)
// - banks, UNIQUE (gateway_code, code)

type PostgresRepo struct {
	db *sql.DB
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db, clock: time.Now}
}

func (r *PostgresRepo) ConfigSnapshot(ctx context.Context) (Snapshot, error) {
	const q = `
SELECT min_balance_for_travel_listing, min_balance_for_package_request,
       commission_percentage, tax_percentage,
       min_deposit, max_deposit, min_withdrawal, max_withdrawal,
       currency, updated_at
FROM platform_config
WHERE id = 1
`
	var s Snapshot
	if err := r.db.QueryRowContext(ctx, q).Scan(
		&s.MinBalanceForTravelListing,
		&s.MinBalanceForPackageRequest,
		&s.CommissionPercentage,
		&s.TaxPercentage,
		&s.MinDeposit,
		&s.MaxDeposit,
		&s.MinWithdrawal,
		&s.MaxWithdrawal,
		&s.Currency,
		&s.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Snapshot{}, ErrNotFound
		}
		return Snapshot{}, err
	}
	return s, nil
}

func (r *PostgresRepo) UpdateConfig(ctx context.Context, s Snapshot) (Snapshot, error) {
	const q = `
INSERT INTO platform_config (
  id, min_balance_for_travel_listing, min_balance_for_package_request,
  commission_percentage, tax_percentage,
  min_deposit, max_deposit, min_withdrawal, max_withdrawal,
  currency, updated_at
) VALUES (1,$1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id)
DO UPDATE SET min_balance_for_travel_listing = EXCLUDED.min_balance_for_travel_listing,
              min_balance_for_package_request = EXCLUDED.min_balance_for_package_request,
              commission_percentage = EXCLUDED.commission_percentage,
              tax_percentage = EXCLUDED.tax_percentage,
              min_deposit = EXCLUDED.min_deposit,
              max_deposit = EXCLUDED.max_deposit,
              min_withdrawal = EXCLUDED.min_withdrawal,
              max_withdrawal = EXCLUDED.max_withdrawal,
              currency = EXCLUDED.currency,
              updated_at = EXCLUDED.updated_at
`
	s.UpdatedAt = r.clock().UTC()
	_, err := r.db.ExecContext(ctx, q,
		s.MinBalanceForTravelListing,
		s.MinBalanceForPackageRequest,
		s.CommissionPercentage,
		s.TaxPercentage,
		s.MinDeposit,
		s.MaxDeposit,
		s.MinWithdrawal,
		s.MaxWithdrawal,
		s.Currency,
		s.UpdatedAt,
	)
	if err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

func (r *PostgresRepo) ListBanks(ctx context.Context, gatewayCode string) ([]Bank, error) {
	const q = `
SELECT id, gateway_code, name, code, slug, swift, acct_length, is_mobilemoney, currency, created_at, updated_at
FROM banks
WHERE gateway_code = $1
ORDER BY name
`
	rows, err := r.db.QueryContext(ctx, q, gatewayCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Bank
	for rows.Next() {
		var b Bank
		if err := rows.Scan(
			&b.ID,
			&b.GatewayCode,
			&b.Name,
			&b.Code,
			&b.Slug,
			&b.Swift,
			&b.AccountLength,
			&b.IsMobileMoney,
			&b.Currency,
			&b.CreatedAt,
			&b.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ReplaceBanks upserts the synced directory for one gateway. Banks missing
// from the new list are kept; the gateway remains the source of truth and
// re-adds them on the next sync if they still exist.
func (r *PostgresRepo) ReplaceBanks(ctx context.Context, gatewayCode string, banks []Bank) error {
	const q = `
INSERT INTO banks (id, gateway_code, name, code, slug, swift, acct_length, is_mobilemoney, currency, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (gateway_code, code)
DO UPDATE SET name = EXCLUDED.name,
              slug = EXCLUDED.slug,
              swift = EXCLUDED.swift,
              acct_length = EXCLUDED.acct_length,
              is_mobilemoney = EXCLUDED.is_mobilemoney,
              currency = EXCLUDED.currency,
              updated_at = EXCLUDED.updated_at
`
	now := r.clock().UTC()
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, b := range banks {
		id := b.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, err := tx.ExecContext(ctx, q,
			id, gatewayCode, b.Name, b.Code, b.Slug, b.Swift,
			b.AccountLength, b.IsMobileMoney, b.Currency, now, now,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
