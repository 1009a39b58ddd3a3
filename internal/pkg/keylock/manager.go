package keylock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

const redisBreakerDuration = 30 * time.Second

// Manager prefers the Redis locker and falls back to the in-process locker
// while Redis is unreachable. The fallback only serializes within one
// instance; the row locks taken by callers still hold across instances.
type Manager struct {
	redis        Locker
	memory       *MemoryLocker
	nowFn        func() time.Time
	mu           sync.Mutex
	breakerUntil time.Time
}

// NewManager constructs a Manager. A nil client yields a memory-only manager.
func NewManager(client *redis.Client, prefix string) *Manager {
	m := &Manager{
		memory: NewMemoryLocker(),
		nowFn:  time.Now,
	}
	if client != nil {
		m.redis = NewRedisLocker(client, prefix)
	}
	return m
}

// NewMemoryManager constructs a Manager without Redis.
func NewMemoryManager() *Manager {
	return NewManager(nil, "")
}

// Lock acquires key using the best available backend.
func (m *Manager) Lock(ctx context.Context, key string, ttl time.Duration) (Unlock, error) {
	if m.redis != nil && !m.isBreakerActive() {
		unlock, err := m.redis.Lock(ctx, key, ttl)
		if err == nil {
			return unlock, nil
		}
		if errors.Is(err, ErrNotAcquired) {
			return nil, err
		}
		m.tripBreaker(err)
	}
	return m.memory.Lock(ctx, key, ttl)
}

func (m *Manager) isBreakerActive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.breakerUntil.IsZero() {
		return false
	}
	if m.nowFn().Before(m.breakerUntil) {
		return true
	}
	m.breakerUntil = time.Time{}
	return false
}

func (m *Manager) tripBreaker(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.nowFn()
	if !m.breakerUntil.IsZero() && now.Before(m.breakerUntil) {
		return
	}
	m.breakerUntil = now.Add(redisBreakerDuration)
	log.Warnf("[KeyLock] Redis unavailable, falling back to in-process locks: %v", err)
}
