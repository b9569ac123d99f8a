package wallet

import "context"

// Store is the ledger persistence contract.
//
// Update runs fn as one atomic unit of work: either every wallet mutation and
// transaction insert inside fn commits, or none do. Row locks taken via
// Tx.WalletForUpdate serialize concurrent operations on the same wallet;
// operations on disjoint wallets never block each other.
//
// Implementations must map their serialization failures to
// ErrConcurrentModification and unique-reference conflicts to
// ErrDuplicateReference.
type Store interface {
	Update(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Read-side queries, outside any unit of work.
	TransactionByReference(ctx context.Context, reference string) (Transaction, error)
	PendingTransactions(ctx context.Context, limit int) ([]Transaction, error)
	TransactionsByUser(ctx context.Context, userID string, limit, offset int) ([]Transaction, error)
}

// Tx is the contract available inside a unit of work.
type Tx interface {
	// WalletForUpdate locks the user's wallet row for the remainder of the
	// unit of work, creating the wallet lazily on first access.
	WalletForUpdate(ctx context.Context, userID string) (Wallet, error)

	// WalletForUpdateByID locks an existing wallet row by wallet id.
	WalletForUpdateByID(ctx context.Context, walletID string) (Wallet, error)

	// SaveWalletBalances persists Balance/LockedBalance of a locked wallet.
	SaveWalletBalances(ctx context.Context, w Wallet) error

	InsertTransaction(ctx context.Context, t Transaction) error

	// TransactionByReferenceForUpdate locks the transaction row so a status
	// transition and its wallet mutation commit atomically.
	TransactionByReferenceForUpdate(ctx context.Context, reference string) (Transaction, error)

	// TransactionByTypeAndRequestRef finds the ledger entry a release/refund
	// resolves its wallet and amount from.
	TransactionByTypeAndRequestRef(ctx context.Context, typ TransactionType, requestRef string) (Transaction, error)

	// MarkTransaction moves a transaction out of PENDING. Terminal statuses
	// are never overwritten; implementations only update PENDING rows.
	MarkTransaction(ctx context.Context, id string, status TransactionStatus, externalReference, failureReason string) error
}
