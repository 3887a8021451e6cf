package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Record is a cached metadata record: field name to raw values.
type Record = map[string][]string

// Store is a key/value backend for records.
type Store interface {
	Get(ctx context.Context, key string) (Record, bool, error)
	Set(ctx context.Context, key string, value Record, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Flush(ctx context.Context) error
}

// LookupHook observes cache lookups, e.g. to feed metrics.
type LookupHook func(source string, hit bool)

// Manager caches records fetched from remote metadata services, keyed by
// service name and external identifier.
type Manager struct {
	store Store
	ttl   time.Duration

	onLookup LookupHook

	mu     sync.Mutex
	hits   uint64
	misses uint64
	errors uint64
}

func NewManager(store Store, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &Manager{
		store: store,
		ttl:   ttl,
	}
}

// OnLookup registers hook.
func (m *Manager) OnLookup(hook LookupHook) {
	m.onLookup = hook
}

// Key builds the cache key for a record.
func Key(source, externalID string) string {
	return "record:" + strings.ToLower(source) + ":" + externalID
}

// GetRecord returns a cached record. Backend failures count as misses.
func (m *Manager) GetRecord(ctx context.Context, source, externalID string) (Record, bool) {
	if m == nil {
		return nil, false
	}

	record, ok, err := m.store.Get(ctx, Key(source, externalID))
	if err != nil {
		m.record(func() { m.errors++ })
		ok = false
	}

	if ok {
		m.record(func() { m.hits++ })
	} else {
		m.record(func() { m.misses++ })
	}
	if m.onLookup != nil {
		m.onLookup(source, ok)
	}

	return cloneRecord(record), ok
}

func (m *Manager) SetRecord(ctx context.Context, source, externalID string, record Record) error {
	if m == nil {
		return nil
	}
	return m.store.Set(ctx, Key(source, externalID), cloneRecord(record), m.ttl)
}

func (m *Manager) Invalidate(ctx context.Context, source, externalID string) error {
	if m == nil {
		return nil
	}
	return m.store.Delete(ctx, Key(source, externalID))
}

// GetOrLoad returns the cached record for (source, externalID), calling load
// and caching its result on a miss. The boolean reports a cache hit. Load
// errors are returned and nothing is cached.
func (m *Manager) GetOrLoad(ctx context.Context, source, externalID string, load func(context.Context) (Record, error)) (Record, bool, error) {
	if record, ok := m.GetRecord(ctx, source, externalID); ok {
		return record, true, nil
	}

	record, err := load(ctx)
	if err != nil {
		return nil, false, err
	}

	if err := m.SetRecord(ctx, source, externalID, record); err != nil {
		m.record(func() { m.errors++ })
	}

	return record, false, nil
}

// Clear removes all entries from the cache
func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.hits = 0
	m.misses = 0
	m.errors = 0
	m.mu.Unlock()

	return m.store.Flush(ctx)
}

func (m *Manager) Stats() CacheStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	total := m.hits + m.misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(m.hits) / float64(total)
	}

	return CacheStats{
		Hits:    m.hits,
		Misses:  m.misses,
		Errors:  m.errors,
		HitRate: hitRate,
	}
}

// CacheStats holds cache statistics
type CacheStats struct {
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	Errors  uint64  `json:"errors"`
	HitRate float64 `json:"hit_rate"`
}

func (m *Manager) record(fn func()) {
	if m == nil {
		return
	}
	m.mu.Lock()
	fn()
	m.mu.Unlock()
}

func cloneRecord(r Record) Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = append([]string(nil), v...)
	}
	return out
}
