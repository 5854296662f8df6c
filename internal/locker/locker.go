// Package locker serialises borrow attempts on the same book.
//
// A lock is identified by a key and expires after its ttl even if the holder never
// releases it, so a crashed holder cannot block a book forever.
package locker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrLockHeld is returned when the lock could not be acquired before the context ended.
var ErrLockHeld = errors.New("lock is held by another holder")

const retryInterval = 10 * time.Millisecond

// Locker grants exclusive, expiring locks by key.
type Locker interface {
	// Acquire blocks until the lock is granted or ctx is done. The returned release
	// function is safe to call more than once.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// MemoryLocker is a process-local Locker.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]memoryLock
	now   func() time.Time
	seq   uint64
}

type memoryLock struct {
	token     uint64
	expiresAt time.Time
}

// NewMemoryLocker creates an empty in-process locker
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		locks: make(map[string]memoryLock),
		now:   time.Now,
	}
}

// Acquire implements Locker
func (l *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	return poll(ctx, key, func() (func(), bool) {
		return l.tryAcquire(key, ttl)
	})
}

func (l *MemoryLocker) tryAcquire(key string, ttl time.Duration) (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if held, ok := l.locks[key]; ok && now.Before(held.expiresAt) {
		return nil, false
	}

	l.seq++
	token := l.seq
	l.locks[key] = memoryLock{token: token, expiresAt: now.Add(ttl)}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			// an expired lock may already belong to someone else
			if held, ok := l.locks[key]; ok && held.token == token {
				delete(l.locks, key)
			}
		})
	}, true
}

// poll retries try until it succeeds or ctx is done.
func poll(ctx context.Context, key string, try func() (func(), bool)) (func(), error) {
	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()

	for {
		release, ok := try()
		if ok {
			return release, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrLockHeld, key, ctx.Err())
		case <-ticker.C:
		}
	}
}
