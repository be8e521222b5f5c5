package repository

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryCacheStore is the in-process cache used when redis is not configured.
type MemoryCacheStore struct {
	cache *ttlcache.Cache[string, []byte]
}

func NewMemoryCacheStore(defaultTTL time.Duration) *MemoryCacheStore {
	if defaultTTL <= 0 {
		defaultTTL = time.Hour
	}
	c := ttlcache.New(
		ttlcache.WithTTL[string, []byte](defaultTTL),
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	)
	go c.Start()
	return &MemoryCacheStore{cache: c}
}

func (s *MemoryCacheStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	item := s.cache.Get(key)
	if item == nil {
		return nil, false, nil
	}
	return item.Value(), true, nil
}

func (s *MemoryCacheStore) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = ttlcache.DefaultTTL
	}
	s.cache.Set(key, value, ttl)
	return nil
}

// Close stops the expiry loop.
func (s *MemoryCacheStore) Close() {
	s.cache.Stop()
}
