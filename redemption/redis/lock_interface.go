package redis

import (
	"context"
)

// LockHandle represents an acquired distributed lock.
// It is obtained from TryLock and must be released via its Unlock method.
//
//	handle, acquired, err := locker.TryLock(ctx, "lock:resource:123")
//	if err != nil {
//	    return err
//	}
//	if !acquired {
//	    return nil // lock busy, skip
//	}
//	defer handle.Unlock(ctx)
type LockHandle interface {
	// Unlock releases the distributed lock.
	Unlock(ctx context.Context) error
}

// LockManager provides an interface for distributed locking operations.
// This interface allows for easy mocking in tests without requiring a real
// Redis instance.
type LockManager interface {
	// WithLock executes a function while holding a distributed lock with
	// default options. The lock is automatically released when the function
	// returns.
	WithLock(ctx context.Context, lockKey string, fn func(context.Context) error) error

	// WithLockOptions executes a function while holding a distributed lock
	// with custom options.
	WithLockOptions(ctx context.Context, lockKey string, opts LockOptions, fn func(context.Context) error) error

	// TryLock attempts to acquire a lock with a single attempt.
	// Returns the handle and true if the lock was acquired, nil and false if
	// it is held elsewhere. Use LockHandle.Unlock to release the lock.
	TryLock(ctx context.Context, lockKey string) (LockHandle, bool, error)

	// TryLockOptions attempts to acquire a lock with custom options.
	// Contention after all tries reports (nil, false, nil); other failures
	// return an error.
	TryLockOptions(ctx context.Context, lockKey string, opts LockOptions) (LockHandle, bool, error)
}

// Ensure RedisLockManager implements LockManager at compile time.
var _ LockManager = (*RedisLockManager)(nil)
