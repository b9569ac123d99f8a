package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"crowdship-platform/pkg/utils"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

// NOTE: This store assumes the following tables exist:
// - wallets, UNIQUE (user_id)
// - transactions, UNIQUE (reference)
// String columns other than recipient_wallet_id are NOT NULL DEFAULT ''.
//
// Postgres serialization/deadlock failures (40001, 40P01) surface as
// ErrConcurrentModification; reference conflicts (23505) as
// ErrDuplicateReference.

type PostgresStore struct {
	db              *sql.DB
	defaultCurrency string
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewPostgresStore(db *sql.DB, defaultCurrency string) *PostgresStore {
	return &PostgresStore{db: db, defaultCurrency: defaultCurrency, clock: time.Now}
}

func (s *PostgresStore) Update(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, &pgTx{tx: tx, store: s})
	})
	return mapPgError(err)
}

type pgTx struct {
	tx    *sql.Tx
	store *PostgresStore
}

const walletColumns = `id, user_id, balance, locked_balance, currency, created_at, updated_at`

func scanWallet(row *sql.Row) (Wallet, error) {
	var w Wallet
	err := row.Scan(
		&w.ID,
		&w.UserID,
		&w.Balance,
		&w.LockedBalance,
		&w.Currency,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	return w, err
}

func (t *pgTx) WalletForUpdate(ctx context.Context, userID string) (Wallet, error) {
	if userID == "" {
		return Wallet{}, ErrInvalidArgument
	}
	const q = `
SELECT ` + walletColumns + `
FROM wallets
WHERE user_id = $1
FOR UPDATE
`
	w, err := scanWallet(t.tx.QueryRowContext(ctx, q, userID))
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Wallet{}, err
	}

	// Lazy create on first access. ON CONFLICT covers the race where another
	// unit of work creates the wallet between the select and the insert.
	const ins = `
INSERT INTO wallets (id, user_id, balance, locked_balance, currency, created_at, updated_at)
VALUES ($1, $2, 0, 0, $3, $4, $4)
ON CONFLICT (user_id) DO NOTHING
`
	now := t.store.clock().UTC()
	if _, err := t.tx.ExecContext(ctx, ins, uuid.NewString(), userID, t.store.defaultCurrency, now); err != nil {
		return Wallet{}, err
	}
	return scanWallet(t.tx.QueryRowContext(ctx, q, userID))
}

func (t *pgTx) WalletForUpdateByID(ctx context.Context, walletID string) (Wallet, error) {
	const q = `
SELECT ` + walletColumns + `
FROM wallets
WHERE id = $1
FOR UPDATE
`
	w, err := scanWallet(t.tx.QueryRowContext(ctx, q, walletID))
	if errors.Is(err, sql.ErrNoRows) {
		return Wallet{}, ErrNotFound
	}
	return w, err
}

func (t *pgTx) SaveWalletBalances(ctx context.Context, w Wallet) error {
	const q = `
UPDATE wallets
SET balance = $2, locked_balance = $3, updated_at = $4
WHERE id = $1
`
	res, err := t.tx.ExecContext(ctx, q, w.ID, w.Balance, w.LockedBalance, t.store.clock().UTC())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const transactionColumns = `id, wallet_id, recipient_wallet_id, amount, type, category, status,
       reference, external_reference, gateway_code, listing_ref, request_ref,
       description, failure_reason, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (Transaction, error) {
	var tr Transaction
	var recipient sql.NullString
	err := row.Scan(
		&tr.ID,
		&tr.WalletID,
		&recipient,
		&tr.Amount,
		&tr.Type,
		&tr.Category,
		&tr.Status,
		&tr.Reference,
		&tr.ExternalReference,
		&tr.GatewayCode,
		&tr.ListingRef,
		&tr.RequestRef,
		&tr.Description,
		&tr.FailureReason,
		&tr.CreatedAt,
		&tr.UpdatedAt,
	)
	if recipient.Valid {
		tr.RecipientWalletID = &recipient.String
	}
	return tr, err
}

func (t *pgTx) InsertTransaction(ctx context.Context, tr Transaction) error {
	const q = `
INSERT INTO transactions (
  id, wallet_id, recipient_wallet_id, amount, type, category, status,
  reference, external_reference, gateway_code, listing_ref, request_ref,
  description, failure_reason, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16
)
`
	var recipient sql.NullString
	if tr.RecipientWalletID != nil {
		recipient = sql.NullString{String: *tr.RecipientWalletID, Valid: true}
	}
	_, err := t.tx.ExecContext(ctx, q,
		tr.ID,
		tr.WalletID,
		recipient,
		tr.Amount,
		tr.Type,
		tr.Category,
		tr.Status,
		tr.Reference,
		tr.ExternalReference,
		tr.GatewayCode,
		tr.ListingRef,
		tr.RequestRef,
		tr.Description,
		tr.FailureReason,
		tr.CreatedAt,
		tr.UpdatedAt,
	)
	return err
}

func (t *pgTx) TransactionByReferenceForUpdate(ctx context.Context, reference string) (Transaction, error) {
	const q = `
SELECT ` + transactionColumns + `
FROM transactions
WHERE reference = $1
FOR UPDATE
`
	tr, err := scanTransaction(t.tx.QueryRowContext(ctx, q, reference))
	if errors.Is(err, sql.ErrNoRows) {
		return Transaction{}, ErrNotFound
	}
	return tr, err
}

func (t *pgTx) TransactionByTypeAndRequestRef(ctx context.Context, typ TransactionType, requestRef string) (Transaction, error) {
	const q = `
SELECT ` + transactionColumns + `
FROM transactions
WHERE type = $1 AND request_ref = $2
LIMIT 1
`
	tr, err := scanTransaction(t.tx.QueryRowContext(ctx, q, typ, requestRef))
	if errors.Is(err, sql.ErrNoRows) {
		return Transaction{}, ErrNotFound
	}
	return tr, err
}

func (t *pgTx) MarkTransaction(ctx context.Context, id string, status TransactionStatus, externalReference, failureReason string) error {
	// Only PENDING rows transition; terminal statuses are immutable.
	const q = `
UPDATE transactions
SET status = $2,
    external_reference = CASE WHEN $3 = '' THEN external_reference ELSE $3 END,
    failure_reason = CASE WHEN $4 = '' THEN failure_reason ELSE $4 END,
    updated_at = $5
WHERE id = $1 AND status = 'PENDING'
`
	res, err := t.tx.ExecContext(ctx, q, id, status, externalReference, failureReason, t.store.clock().UTC())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("mark transaction %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) TransactionByReference(ctx context.Context, reference string) (Transaction, error) {
	const q = `
SELECT ` + transactionColumns + `
FROM transactions
WHERE reference = $1
`
	tr, err := scanTransaction(s.db.QueryRowContext(ctx, q, reference))
	if errors.Is(err, sql.ErrNoRows) {
		return Transaction{}, ErrNotFound
	}
	return tr, err
}

func (s *PostgresStore) PendingTransactions(ctx context.Context, limit int) ([]Transaction, error) {
	const q = `
SELECT ` + transactionColumns + `
FROM transactions
WHERE status = 'PENDING'
ORDER BY created_at
LIMIT $1
`
	return s.queryTransactions(ctx, q, limit)
}

func (s *PostgresStore) TransactionsByUser(ctx context.Context, userID string, limit, offset int) ([]Transaction, error) {
	const q = `
SELECT ` + transactionColumns + `
FROM transactions
WHERE wallet_id IN (SELECT id FROM wallets WHERE user_id = $1)
ORDER BY created_at DESC
LIMIT $2 OFFSET $3
`
	return s.queryTransactions(ctx, q, userID, limit, offset)
}

func (s *PostgresStore) queryTransactions(ctx context.Context, q string, args ...any) ([]Transaction, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		tr, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%w: %s", ErrConcurrentModification, pgErr.Message)
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", ErrDuplicateReference, pgErr.ConstraintName)
		}
	}
	return err
}
