// Package keylock provides short-lived mutual exclusion scoped to a string key,
// e.g. one account's download admission or one gateway payment id.
package keylock

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL bounds how long a crashed holder can block a key.
const DefaultTTL = 10 * time.Second

// ErrNotAcquired is returned when ctx ends before the key could be locked.
var ErrNotAcquired = errors.New("keylock: lock not acquired")

// Unlock releases a held key. It is safe to call more than once.
type Unlock func()

// Locker acquires exclusive ownership of a key until Unlock is called or ttl
// elapses, whichever comes first.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (Unlock, error)
}
