package wallet

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryStore is an in-memory Store useful for tests.
// It is not intended for production use.
//
// Units of work are serialized by a single mutex and rolled back wholesale on
// error, which preserves the atomicity and per-wallet serialization the
// contract requires.
type MemoryStore struct {
	mu              sync.Mutex
	defaultCurrency string
	clock           func() time.Time

	wallets       map[string]Wallet // by wallet id
	walletsByUser map[string]string // user id -> wallet id
	txns          map[string]Transaction
	refs          map[string]string // reference -> transaction id
}

func NewMemoryStore(defaultCurrency string) *MemoryStore {
	return &MemoryStore{
		defaultCurrency: defaultCurrency,
		clock:           time.Now,
		wallets:         make(map[string]Wallet),
		walletsByUser:   make(map[string]string),
		txns:            make(map[string]Transaction),
		refs:            make(map[string]string),
	}
}

func (s *MemoryStore) Update(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(ctx, (*memTx)(s)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type memSnapshot struct {
	wallets       map[string]Wallet
	walletsByUser map[string]string
	txns          map[string]Transaction
	refs          map[string]string
}

func (s *MemoryStore) snapshot() memSnapshot {
	return memSnapshot{
		wallets:       copyMap(s.wallets),
		walletsByUser: copyMap(s.walletsByUser),
		txns:          copyMap(s.txns),
		refs:          copyMap(s.refs),
	}
}

func (s *MemoryStore) restore(snap memSnapshot) {
	s.wallets = snap.wallets
	s.walletsByUser = snap.walletsByUser
	s.txns = snap.txns
	s.refs = snap.refs
}

func copyMap[V any](m map[string]V) map[string]V {
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type memTx MemoryStore

func (t *memTx) WalletForUpdate(ctx context.Context, userID string) (Wallet, error) {
	if userID == "" {
		return Wallet{}, ErrInvalidArgument
	}
	if id, ok := t.walletsByUser[userID]; ok {
		return t.wallets[id], nil
	}
	now := t.clock().UTC()
	w := Wallet{
		ID:            uuid.NewString(),
		UserID:        userID,
		Balance:       decimal.Zero,
		LockedBalance: decimal.Zero,
		Currency:      t.defaultCurrency,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	t.wallets[w.ID] = w
	t.walletsByUser[userID] = w.ID
	return w, nil
}

func (t *memTx) WalletForUpdateByID(ctx context.Context, walletID string) (Wallet, error) {
	w, ok := t.wallets[walletID]
	if !ok {
		return Wallet{}, ErrNotFound
	}
	return w, nil
}

func (t *memTx) SaveWalletBalances(ctx context.Context, w Wallet) error {
	cur, ok := t.wallets[w.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Balance = w.Balance
	cur.LockedBalance = w.LockedBalance
	cur.UpdatedAt = t.clock().UTC()
	t.wallets[w.ID] = cur
	return nil
}

func (t *memTx) InsertTransaction(ctx context.Context, tr Transaction) error {
	if _, exists := t.refs[tr.Reference]; exists {
		return ErrDuplicateReference
	}
	t.txns[tr.ID] = tr
	t.refs[tr.Reference] = tr.ID
	return nil
}

func (t *memTx) TransactionByReferenceForUpdate(ctx context.Context, reference string) (Transaction, error) {
	id, ok := t.refs[reference]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	return t.txns[id], nil
}

func (t *memTx) TransactionByTypeAndRequestRef(ctx context.Context, typ TransactionType, requestRef string) (Transaction, error) {
	for _, tr := range t.txns {
		if tr.Type == typ && tr.RequestRef == requestRef {
			return tr, nil
		}
	}
	return Transaction{}, ErrNotFound
}

func (t *memTx) MarkTransaction(ctx context.Context, id string, status TransactionStatus, externalReference, failureReason string) error {
	tr, ok := t.txns[id]
	if !ok || tr.Status != StatusPending {
		return ErrNotFound
	}
	tr.Status = status
	if externalReference != "" {
		tr.ExternalReference = externalReference
	}
	if failureReason != "" {
		tr.FailureReason = failureReason
	}
	tr.UpdatedAt = t.clock().UTC()
	t.txns[id] = tr
	return nil
}

func (s *MemoryStore) TransactionByReference(ctx context.Context, reference string) (Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.refs[reference]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	return s.txns[id], nil
}

func (s *MemoryStore) PendingTransactions(ctx context.Context, limit int) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Transaction
	for _, tr := range s.txns {
		if tr.Status == StatusPending {
			out = append(out, tr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) TransactionsByUser(ctx context.Context, userID string, limit, offset int) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	walletID, ok := s.walletsByUser[userID]
	if !ok {
		return nil, nil
	}
	var out []Transaction
	for _, tr := range s.txns {
		if tr.WalletID == walletID {
			out = append(out, tr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Wallets returns a copy of all wallets, for test assertions.
func (s *MemoryStore) Wallets() []Wallet {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Wallet, 0, len(s.wallets))
	for _, w := range s.wallets {
		out = append(out, w)
	}
	return out
}

// Transactions returns a copy of the full ledger, for test assertions.
func (s *MemoryStore) Transactions() []Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Transaction, 0, len(s.txns))
	for _, tr := range s.txns {
		out = append(out, tr)
	}
	return out
}
