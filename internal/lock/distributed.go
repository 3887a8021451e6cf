package lock

import (
	"context"
	"sort"
	"time"
)

// DistributedLock defines the interface for distributed locking
type DistributedLock interface {
	// Acquire blocks until the lock is held or ctx ends
	Acquire(ctx context.Context, resource string, ttl time.Duration) (LockHandle, error)

	// TryAcquire fails with ErrLockHeld instead of waiting
	TryAcquire(ctx context.Context, resource string, ttl time.Duration) (LockHandle, error)

	Release(ctx context.Context, handle LockHandle) error

	IsLocked(ctx context.Context, resource string) (bool, error)

	Close() error
}

// LockHandle represents a handle to an acquired lock
type LockHandle interface {
	Resource() string
	Token() string
	ExpiresAt() time.Time
	Extend(ctx context.Context, ttl time.Duration) error
	IsValid() bool
}

type extendFunc func(ctx context.Context, resource, token string, ttl time.Duration) (time.Time, error)

type lockHandle struct {
	resource  string
	token     string
	expiresAt time.Time
	extend    extendFunc
}

func (h *lockHandle) Resource() string     { return h.resource }
func (h *lockHandle) Token() string        { return h.token }
func (h *lockHandle) ExpiresAt() time.Time { return h.expiresAt }

func (h *lockHandle) Extend(ctx context.Context, ttl time.Duration) error {
	expiresAt, err := h.extend(ctx, h.resource, h.token, ttl)
	if err != nil {
		return err
	}
	h.expiresAt = expiresAt
	return nil
}

func (h *lockHandle) IsValid() bool {
	return time.Now().Before(h.expiresAt)
}

// InMemoryDistributedLock serves single-instance deployments.
type InMemoryDistributedLock struct {
	*Manager
}

func NewInMemoryDistributedLock() *InMemoryDistributedLock {
	return &InMemoryDistributedLock{
		Manager: NewManager(30*time.Second, 5*time.Minute),
	}
}

func (imdl *InMemoryDistributedLock) Acquire(ctx context.Context, resource string, ttl time.Duration) (LockHandle, error) {
	token, err := imdl.Lock(ctx, resource, ttl)
	if err != nil {
		return nil, err
	}
	return imdl.handle(resource, token, ttl), nil
}

func (imdl *InMemoryDistributedLock) TryAcquire(ctx context.Context, resource string, ttl time.Duration) (LockHandle, error) {
	token, err := imdl.TryLock(resource, ttl)
	if err != nil {
		return nil, err
	}
	return imdl.handle(resource, token, ttl), nil
}

func (imdl *InMemoryDistributedLock) handle(resource, token string, ttl time.Duration) LockHandle {
	if ttl <= 0 {
		ttl = imdl.defaultTimeout
	}
	return &lockHandle{
		resource:  resource,
		token:     token,
		expiresAt: time.Now().Add(ttl),
		extend: func(_ context.Context, resource, token string, ttl time.Duration) (time.Time, error) {
			return imdl.Extend(resource, token, ttl)
		},
	}
}

func (imdl *InMemoryDistributedLock) Release(ctx context.Context, handle LockHandle) error {
	return imdl.Unlock(handle.Resource(), handle.Token())
}

func (imdl *InMemoryDistributedLock) IsLocked(ctx context.Context, resource string) (bool, error) {
	return imdl.Manager.IsLocked(resource), nil
}

func (imdl *InMemoryDistributedLock) Close() error {
	return nil
}

// LockManager serialises work on graph subjects.
type LockManager struct {
	distributedLock DistributedLock
}

func NewLockManager(distributedLock DistributedLock) *LockManager {
	if distributedLock == nil {
		distributedLock = NewInMemoryDistributedLock()
	}

	return &LockManager{
		distributedLock: distributedLock,
	}
}

// AcquireEntityLock locks the subject iri.
func (lm *LockManager) AcquireEntityLock(ctx context.Context, iri string, ttl time.Duration) (LockHandle, error) {
	return lm.distributedLock.Acquire(ctx, buildEntityLockKey(iri), ttl)
}

// AcquireGlobalLock acquires a lock for system-wide operations such as migrations.
func (lm *LockManager) AcquireGlobalLock(ctx context.Context, operation string, ttl time.Duration) (LockHandle, error) {
	return lm.distributedLock.Acquire(ctx, buildGlobalLockKey(operation), ttl)
}

func (lm *LockManager) ReleaseLock(ctx context.Context, handle LockHandle) error {
	return lm.distributedLock.Release(ctx, handle)
}

// IsEntityLocked reports whether iri is currently locked.
func (lm *LockManager) IsEntityLocked(ctx context.Context, iri string) (bool, error) {
	return lm.distributedLock.IsLocked(ctx, buildEntityLockKey(iri))
}

// WithEntityLock executes fn while holding the lock on iri.
func (lm *LockManager) WithEntityLock(ctx context.Context, iri string, ttl time.Duration, fn func() error) error {
	handle, err := lm.AcquireEntityLock(ctx, iri, ttl)
	if err != nil {
		return err
	}
	defer lm.ReleaseLock(context.WithoutCancel(ctx), handle)

	return fn()
}

// WithEntityLocks locks every iri in sorted order, so two callers locking
// overlapping sets cannot deadlock.
func (lm *LockManager) WithEntityLocks(ctx context.Context, iris []string, ttl time.Duration, fn func() error) error {
	sorted := sortedUnique(iris)
	held := make([]LockHandle, 0, len(sorted))
	defer func() {
		for i := len(held) - 1; i >= 0; i-- {
			_ = lm.ReleaseLock(context.WithoutCancel(ctx), held[i])
		}
	}()

	for _, iri := range sorted {
		handle, err := lm.AcquireEntityLock(ctx, iri, ttl)
		if err != nil {
			return err
		}
		held = append(held, handle)
	}
	return fn()
}

func (lm *LockManager) WithGlobalLock(ctx context.Context, operation string, ttl time.Duration, fn func() error) error {
	handle, err := lm.AcquireGlobalLock(ctx, operation, ttl)
	if err != nil {
		return err
	}
	defer lm.ReleaseLock(context.WithoutCancel(ctx), handle)

	return fn()
}

func (lm *LockManager) Close() error {
	return lm.distributedLock.Close()
}

func buildEntityLockKey(iri string) string {
	return "entity:" + iri
}

func buildGlobalLockKey(operation string) string {
	return "global:" + operation
}

func sortedUnique(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
