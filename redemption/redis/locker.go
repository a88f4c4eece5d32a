package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/LerianStudio/redemption-gateway/redemption/service"
)

// operationLockPrefix namespaces per-holder operation locks so they never
// collide with other keys sharing the Redis instance.
const operationLockPrefix = "redemption:op:"

// ErrOperationLockBusy is returned by OperationLocker.Acquire when another
// gateway instance is already operating on the same holder.
var ErrOperationLockBusy = errors.New("operation lock busy")

// OperationLocker adapts a LockManager to the service layer's per-holder
// locking contract. Each holder maps to one lock key, so concurrent balance
// operations on the same holder are serialized across gateway instances
// while different holders proceed in parallel.
type OperationLocker struct {
	locks LockManager
	opts  LockOptions
}

var _ service.OperationLocker = (*OperationLocker)(nil)

// NewOperationLocker creates an operation locker with OperationLockOptions.
func NewOperationLocker(locks LockManager) (*OperationLocker, error) {
	return NewOperationLockerWithOptions(locks, OperationLockOptions())
}

// NewOperationLockerWithOptions creates an operation locker with custom lock
// options, for deployments that need a different expiry or retry profile.
func NewOperationLockerWithOptions(locks LockManager, opts LockOptions) (*OperationLocker, error) {
	if locks == nil {
		return nil, ErrNilLockManager
	}

	if err := validateLockOptions(opts); err != nil {
		return nil, err
	}

	return &OperationLocker{locks: locks, opts: opts}, nil
}

// Acquire takes the holder's operation lock. It retries briefly per the
// configured options; if the lock is still held elsewhere it returns
// ErrOperationLockBusy. On success the returned release function must be
// called exactly once to free the lock.
func (l *OperationLocker) Acquire(ctx context.Context, holderID string) (func(ctx context.Context) error, error) {
	if l == nil || l.locks == nil {
		return nil, ErrNilLockManager
	}

	if strings.TrimSpace(holderID) == "" {
		return nil, ErrEmptyLockKey
	}

	lockKey := operationLockPrefix + holderID

	handle, acquired, err := l.locks.TryLockOptions(ctx, lockKey, l.opts)
	if err != nil {
		return nil, fmt.Errorf("operation lock for %s: %w", safeLockKeyForLogs(lockKey), err)
	}

	if !acquired {
		return nil, fmt.Errorf("%w: %s", ErrOperationLockBusy, safeLockKeyForLogs(lockKey))
	}

	return handle.Unlock, nil
}
