package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrLockHeld is returned by non-blocking acquisition when another holder
	// owns the resource.
	ErrLockHeld = errors.New("resource is already locked")
	// ErrNotHolder is returned when a token does not own the resource.
	ErrNotHolder = errors.New("lock is not held by this token")
)

// Manager is an in-process lock table with expiring leases.
type Manager struct {
	mu       sync.Mutex
	locks    map[string]*resourceLock
	released map[string]chan struct{}

	defaultTimeout time.Duration
	maxWaitTime    time.Duration

	stats LockStats
}

type resourceLock struct {
	token     string
	acquired  time.Time
	expiresAt time.Time
}

type LockStats struct {
	ActiveLocks   int
	TotalAcquired uint64
	TotalReleased uint64
	TotalTimeouts uint64
	TotalWaits    uint64
}

func NewManager(defaultTimeout, maxWaitTime time.Duration) *Manager {
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}
	if maxWaitTime <= 0 {
		maxWaitTime = 5 * time.Minute
	}

	return &Manager{
		locks:          make(map[string]*resourceLock),
		released:       make(map[string]chan struct{}),
		defaultTimeout: defaultTimeout,
		maxWaitTime:    maxWaitTime,
	}
}

// Lock blocks until resource is free, ctx ends, or the manager's maximum wait
// elapses. The returned token releases the lock.
func (m *Manager) Lock(ctx context.Context, resource string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = m.defaultTimeout
	}

	deadline := time.NewTimer(m.maxWaitTime)
	defer deadline.Stop()

	for {
		m.mu.Lock()
		token, ok := m.grantLocked(resource, ttl)
		if ok {
			m.mu.Unlock()
			return token, nil
		}
		wait := m.releasedLocked(resource)
		expiresIn := time.Until(m.locks[resource].expiresAt)
		m.stats.TotalWaits++
		m.mu.Unlock()

		expiry := time.NewTimer(expiresIn)
		select {
		case <-wait:
		case <-expiry.C:
		case <-ctx.Done():
			expiry.Stop()
			return "", ctx.Err()
		case <-deadline.C:
			expiry.Stop()
			return "", fmt.Errorf("failed to acquire lock on resource %s: timeout", resource)
		}
		expiry.Stop()
	}
}

// TryLock acquires resource without waiting.
func (m *Manager) TryLock(resource string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = m.defaultTimeout
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	token, ok := m.grantLocked(resource, ttl)
	if !ok {
		return "", fmt.Errorf("%s: %w", resource, ErrLockHeld)
	}
	return token, nil
}

func (m *Manager) grantLocked(resource string, ttl time.Duration) (string, bool) {
	now := time.Now()
	if current, held := m.locks[resource]; held {
		if now.Before(current.expiresAt) {
			return "", false
		}
		m.stats.TotalTimeouts++
	}

	token := uuid.New().String()
	m.locks[resource] = &resourceLock{
		token:     token,
		acquired:  now,
		expiresAt: now.Add(ttl),
	}
	m.stats.TotalAcquired++
	return token, true
}

func (m *Manager) releasedLocked(resource string) chan struct{} {
	ch, ok := m.released[resource]
	if !ok {
		ch = make(chan struct{})
		m.released[resource] = ch
	}
	return ch
}

// Unlock releases resource if token still owns it.
func (m *Manager) Unlock(resource, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.locks[resource]
	if !ok || current.token != token {
		return fmt.Errorf("%s: %w", resource, ErrNotHolder)
	}

	delete(m.locks, resource)
	m.stats.TotalReleased++

	if ch, ok := m.released[resource]; ok {
		close(ch)
		delete(m.released, resource)
	}
	return nil
}

// Extend pushes the lease of an owned lock ttl into the future.
func (m *Manager) Extend(resource, token string, ttl time.Duration) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.locks[resource]
	if !ok || current.token != token || time.Now().After(current.expiresAt) {
		return time.Time{}, fmt.Errorf("%s: %w", resource, ErrNotHolder)
	}
	current.expiresAt = time.Now().Add(ttl)
	return current.expiresAt, nil
}

func (m *Manager) IsLocked(resource string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.locks[resource]
	return ok && time.Now().Before(current.expiresAt)
}

func (m *Manager) GetStats() LockStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	stats := m.stats
	for _, l := range m.locks {
		if now.Before(l.expiresAt) {
			stats.ActiveLocks++
		}
	}
	return stats
}
