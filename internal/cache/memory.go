package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const DefaultExpiration = 24 * time.Hour
const DefaultCleanupInterval = 30 * time.Minute

// MemoryStore keeps records in process.
type MemoryStore struct {
	cache *gocache.Cache
}

func NewMemoryStore(defaultExpiration, cleanupInterval time.Duration) *MemoryStore {
	if defaultExpiration <= 0 {
		defaultExpiration = DefaultExpiration
	}
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}
	return &MemoryStore{
		cache: gocache.New(defaultExpiration, cleanupInterval),
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (Record, bool, error) {
	value, found := s.cache.Get(key)
	if !found {
		return nil, false, nil
	}

	record, ok := value.(Record)
	if !ok {
		s.cache.Delete(key)
		return nil, false, nil
	}
	return record, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value Record, ttl time.Duration) error {
	s.cache.Set(key, value, ttl)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		s.cache.Delete(key)
	}
	return nil
}

func (s *MemoryStore) Flush(_ context.Context) error {
	s.cache.Flush()
	return nil
}

func (s *MemoryStore) Len() int {
	return s.cache.ItemCount()
}
