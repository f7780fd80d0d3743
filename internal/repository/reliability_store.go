package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SignalCoord/internal/domain/models"
	domrepo "SignalCoord/internal/domain/repository"
	"SignalCoord/pkg/cache"
)

// ReliabilitySnapshotKey is the cache key of the persisted reliability table.
var ReliabilitySnapshotKey = cache.GenerateKey("reliability", "snapshot")

// CacheReliabilityStore keeps the reliability snapshot as one JSON document
// in a cache.Service (Redis in production).
type CacheReliabilityStore struct {
	cache cache.Service
	ttl   time.Duration
}

// NewCacheReliabilityStore creates a store; ttl <= 0 keeps the snapshot forever.
func NewCacheReliabilityStore(c cache.Service, ttl time.Duration) *CacheReliabilityStore {
	return &CacheReliabilityStore{cache: c, ttl: ttl}
}

func (s *CacheReliabilityStore) Save(ctx context.Context, snap models.ReliabilitySnapshot) error {
	if err := s.cache.Set(ctx, ReliabilitySnapshotKey, snap, s.ttl); err != nil {
		return fmt.Errorf("save reliability snapshot: %w", err)
	}
	return nil
}

// Load returns ok=false when nothing has been saved yet.
func (s *CacheReliabilityStore) Load(ctx context.Context) (models.ReliabilitySnapshot, bool, error) {
	var snap models.ReliabilitySnapshot
	err := s.cache.Get(ctx, ReliabilitySnapshotKey, &snap)
	switch {
	case errors.Is(err, cache.ErrCacheMiss):
		return models.ReliabilitySnapshot{}, false, nil
	case err != nil:
		return models.ReliabilitySnapshot{}, false, fmt.Errorf("load reliability snapshot: %w", err)
	}
	return snap, true, nil
}

var _ domrepo.ReliabilityStore = (*CacheReliabilityStore)(nil)
