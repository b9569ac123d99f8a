package platform

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Repository is the persistence contract for the platform config singleton
// and the bank directory.
type Repository interface {
	ConfigSnapshot(ctx context.Context) (Snapshot, error)
	UpdateConfig(ctx context.Context, s Snapshot) (Snapshot, error)
	ListBanks(ctx context.Context, gatewayCode string) ([]Bank, error)
	ReplaceBanks(ctx context.Context, gatewayCode string, banks []Bank) error
}

var ErrNotFound = errors.New("platform: not found")

const (
	configCacheKey = "platform:config"
	configCacheTTL = 5 * time.Minute
)

// Service reads the config singleton through a redis cache-aside layer.
//
// Stale reads only affect fee/commission amounts for not-yet-committed
// operations, so a short TTL plus explicit invalidation on update is enough.
type Service struct {
	repo Repository
	rdb  *redis.Client
}

func NewService(repo Repository, rdb *redis.Client) *Service {
	return &Service{repo: repo, rdb: rdb}
}

// Config returns the current configuration snapshot.
func (s *Service) Config(ctx context.Context) (Snapshot, error) {
	if s.rdb != nil {
		if raw, err := s.rdb.Get(ctx, configCacheKey).Bytes(); err == nil {
			var snap Snapshot
			if err := json.Unmarshal(raw, &snap); err == nil {
				return snap, nil
			}
			// Corrupt cache entry: fall through to the repository.
		}
	}

	snap, err := s.repo.ConfigSnapshot(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	if s.rdb != nil {
		if raw, err := json.Marshal(snap); err == nil {
			_ = s.rdb.Set(ctx, configCacheKey, raw, configCacheTTL).Err()
		}
	}
	return snap, nil
}

// UpdateConfig persists a new snapshot and invalidates the cache so the next
// Config call observes it.
func (s *Service) UpdateConfig(ctx context.Context, snap Snapshot) (Snapshot, error) {
	out, err := s.repo.UpdateConfig(ctx, snap)
	if err != nil {
		return Snapshot{}, err
	}
	s.Invalidate(ctx)
	return out, nil
}

// Invalidate drops the cached snapshot. Exposed for operational refresh.
func (s *Service) Invalidate(ctx context.Context) {
	if s.rdb != nil {
		_ = s.rdb.Del(ctx, configCacheKey).Err()
	}
}

func (s *Service) ListBanks(ctx context.Context, gatewayCode string) ([]Bank, error) {
	return s.repo.ListBanks(ctx, gatewayCode)
}

func (s *Service) ReplaceBanks(ctx context.Context, gatewayCode string, banks []Bank) error {
	return s.repo.ReplaceBanks(ctx, gatewayCode, banks)
}
