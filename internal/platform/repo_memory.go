package platform

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo is an in-memory repository useful for tests.
// It is not intended for production use.

type MemoryRepo struct {
	mu     sync.Mutex
	config *Snapshot
	banks  map[string][]Bank
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{banks: make(map[string][]Bank)}
}

func (r *MemoryRepo) ConfigSnapshot(ctx context.Context) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.config == nil {
		return Snapshot{}, ErrNotFound
	}
	return *r.config, nil
}

func (r *MemoryRepo) UpdateConfig(ctx context.Context, s Snapshot) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.UpdatedAt = time.Now().UTC()
	r.config = &s
	return s, nil
}

func (r *MemoryRepo) ListBanks(ctx context.Context, gatewayCode string) ([]Bank, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Bank, len(r.banks[gatewayCode]))
	copy(out, r.banks[gatewayCode])
	return out, nil
}

func (r *MemoryRepo) ReplaceBanks(ctx context.Context, gatewayCode string, banks []Bank) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := make([]Bank, len(banks))
	copy(cp, banks)
	r.banks[gatewayCode] = cp
	return nil
}
