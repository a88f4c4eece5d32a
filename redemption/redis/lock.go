package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redsync/redsync/v4"
	redsyncredis "github.com/go-redsync/redsync/v4/redis"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"

	"github.com/LerianStudio/redemption-gateway/redemption"
	"github.com/LerianStudio/redemption-gateway/redemption/assert"
	"github.com/LerianStudio/redemption-gateway/redemption/log"
	"github.com/LerianStudio/redemption-gateway/redemption/opentelemetry"
)

const maxLockTries = 1000

var (
	// ErrNilLockHandle is returned when a nil or uninitialized lock handle is used.
	ErrNilLockHandle = errors.New("lock handle is nil or not initialized")
	// ErrLockNotHeld is returned when unlock is called on a lock that was not held or already expired.
	ErrLockNotHeld = errors.New("lock was not held or already expired")
	// ErrNilLockManager is returned when a method is called on a nil RedisLockManager.
	ErrNilLockManager = errors.New("lock manager is nil")
	// ErrLockNotInitialized is returned when the distributed lock's redsync is not initialized.
	ErrLockNotInitialized = errors.New("distributed lock is not initialized")
	// ErrNilLockFn is returned when a nil function is passed to WithLock.
	ErrNilLockFn = errors.New("lock function is nil")
	// ErrEmptyLockKey is returned when an empty lock key is provided.
	ErrEmptyLockKey = errors.New("lock key cannot be empty")
	// ErrLockExpiryInvalid is returned when lock expiry is not positive.
	ErrLockExpiryInvalid = errors.New("lock expiry must be greater than 0")
	// ErrLockTriesInvalid is returned when lock tries is less than 1.
	ErrLockTriesInvalid = errors.New("lock tries must be at least 1")
	// ErrLockTriesExceeded is returned when lock tries exceeds the maximum.
	ErrLockTriesExceeded = errors.New("lock tries exceeds maximum")
	// ErrLockRetryDelayNegative is returned when retry delay is negative.
	ErrLockRetryDelayNegative = errors.New("lock retry delay cannot be negative")
	// ErrLockDriftFactorInvalid is returned when drift factor is outside [0, 1).
	ErrLockDriftFactorInvalid = errors.New("lock drift factor must be between 0 (inclusive) and 1 (exclusive)")
)

// RedisLockManager provides distributed locking using Redis and the RedLock
// algorithm, giving mutual exclusion across gateway instances for critical
// sections such as per-holder balance mutations.
//
// Thread-safe: multiple goroutines can share one RedisLockManager.
type RedisLockManager struct {
	redsync *redsync.Redsync
}

// LockOptions configures lock behavior for advanced use cases.
// Use DefaultLockOptions() for sensible defaults.
type LockOptions struct {
	// Expiry is how long the lock is held before auto-expiring (prevents
	// deadlocks). Default: 10 seconds.
	Expiry time.Duration

	// Tries is the number of attempts to acquire the lock before giving up.
	// Default: 3, Maximum: 1000.
	Tries int

	// RetryDelay is the delay between retry attempts. Default: 500ms.
	RetryDelay time.Duration

	// DriftFactor accounts for clock drift in distributed systems (RedLock
	// algorithm). Default: 0.01 (1%).
	DriftFactor float64
}

// DefaultLockOptions returns production-ready defaults for distributed locking.
func DefaultLockOptions() LockOptions {
	return LockOptions{
		Expiry:      10 * time.Second,
		Tries:       3,
		RetryDelay:  500 * time.Millisecond,
		DriftFactor: 0.01,
	}
}

// OperationLockOptions returns defaults tuned for per-holder balance
// operations: the expiry covers a database round-trip plus transfer calls,
// and a short retry window keeps a briefly-contended holder from failing
// immediately.
func OperationLockOptions() LockOptions {
	return LockOptions{
		Expiry:      15 * time.Second,
		Tries:       3,
		RetryDelay:  200 * time.Millisecond,
		DriftFactor: 0.01,
	}
}

// clientPool implements the redsync redis.Pool interface with lazy client
// resolution. On each Get call it resolves the latest redis.UniversalClient
// from the Client wrapper, so the pool survives reconnections.
type clientPool struct {
	conn *Client
}

func (p *clientPool) Get(ctx context.Context) (redsyncredis.Conn, error) {
	rdb, err := p.conn.GetClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get redis client for lock pool: %w", err)
	}

	return goredis.NewPool(rdb).Get(ctx)
}

// lockHandle wraps a redsync.Mutex to implement LockHandle.
type lockHandle struct {
	mutex  *redsync.Mutex
	logger log.Logger
}

// Unlock releases the distributed lock.
func (h *lockHandle) Unlock(ctx context.Context) error {
	if h == nil || h.mutex == nil {
		return ErrNilLockHandle
	}

	ok, err := h.mutex.UnlockContext(ctx)
	if err != nil {
		h.logger.Log(ctx, log.LevelError, "failed to release lock", log.Err(err))
		return fmt.Errorf("distributed lock: unlock: %w", err)
	}

	if !ok {
		h.logger.Log(ctx, log.LevelWarn, "lock was not held or already expired")
		return ErrLockNotHeld
	}

	return nil
}

// nilLockAssert fires a nil-receiver assertion and returns an error.
func nilLockAssert(ctx context.Context, operation string) error {
	a := assert.New(ctx, resolvePackageLogger(), "redis.RedisLockManager", operation)
	_ = a.Never(ctx, "nil receiver on *redis.RedisLockManager")

	return ErrNilLockManager
}

// NewRedisLockManager creates a distributed lock manager on top of the
// client wrapper. It uses a lazy pool that resolves the latest Redis client
// per operation, surviving reconnections.
func NewRedisLockManager(conn *Client) (*RedisLockManager, error) {
	if conn == nil {
		return nil, ErrNilClient
	}

	// Verify connectivity at construction time.
	ctx := context.Background()

	if _, err := conn.GetClient(ctx); err != nil {
		return nil, fmt.Errorf("failed to get redis client: %w", err)
	}

	pool := &clientPool{conn: conn}

	return &RedisLockManager{
		redsync: redsync.New(pool),
	}, nil
}

// WithLock executes a function while holding a distributed lock.
// The lock is released when the function returns, even on panic.
func (dl *RedisLockManager) WithLock(ctx context.Context, lockKey string, fn func(context.Context) error) error {
	if dl == nil {
		return nilLockAssert(ctx, "WithLock")
	}

	return dl.WithLockOptions(ctx, lockKey, DefaultLockOptions(), fn)
}

// WithLockOptions executes a function while holding a distributed lock with
// custom options. Use this for fine-grained control over lock behavior.
func (dl *RedisLockManager) WithLockOptions(ctx context.Context, lockKey string, opts LockOptions, fn func(context.Context) error) error {
	if dl == nil {
		return nilLockAssert(ctx, "WithLockOptions")
	}

	if dl.redsync == nil {
		return ErrLockNotInitialized
	}

	if fn == nil {
		return ErrNilLockFn
	}

	if strings.TrimSpace(lockKey) == "" {
		return ErrEmptyLockKey
	}

	if err := validateLockOptions(opts); err != nil {
		return err
	}

	logger, tracer, _, _ := redemption.NewTrackingFromContext(ctx)
	safeLockKey := safeLockKeyForLogs(lockKey)

	ctx, span := tracer.Start(ctx, "redis.lock.with_lock")
	defer span.End()

	mutex := dl.redsync.NewMutex(
		lockKey,
		redsync.WithExpiry(opts.Expiry),
		redsync.WithTries(opts.Tries),
		redsync.WithRetryDelay(opts.RetryDelay),
		redsync.WithDriftFactor(opts.DriftFactor),
	)

	logger.Log(ctx, log.LevelDebug, "attempting to acquire lock", log.String("lock_key", safeLockKey))

	if err := mutex.LockContext(ctx); err != nil {
		logger.Log(ctx, log.LevelError, "failed to acquire lock", log.String("lock_key", safeLockKey), log.Err(err))
		opentelemetry.HandleSpanError(span, "Failed to acquire lock", err)

		return fmt.Errorf("failed to acquire lock %s: %w", safeLockKey, err)
	}

	logger.Log(ctx, log.LevelDebug, "lock acquired", log.String("lock_key", safeLockKey))

	// Release even if fn panics.
	defer func() {
		if ok, err := mutex.UnlockContext(ctx); !ok || err != nil {
			logger.Log(ctx, log.LevelError, "failed to release lock", log.String("lock_key", safeLockKey), log.Bool("unlock_ok", ok), log.Err(err))
		} else {
			logger.Log(ctx, log.LevelDebug, "lock released", log.String("lock_key", safeLockKey))
		}
	}()

	if err := fn(ctx); err != nil {
		logger.Log(ctx, log.LevelError, "function execution failed under lock", log.String("lock_key", safeLockKey), log.Err(err))
		opentelemetry.HandleSpanError(span, "Function execution failed", err)

		return fmt.Errorf("distributed lock: function execution: %w", err)
	}

	return nil
}

// TryLock attempts to acquire a lock with a single attempt.
// Returns the handle and true if the lock was acquired, nil and false if it
// is held elsewhere. Errors are reserved for unexpected failures (network
// errors, context cancellation).
func (dl *RedisLockManager) TryLock(ctx context.Context, lockKey string) (LockHandle, bool, error) {
	if dl == nil {
		return nil, false, nilLockAssert(ctx, "TryLock")
	}

	opts := DefaultLockOptions()
	opts.Tries = 1

	return dl.TryLockOptions(ctx, lockKey, opts)
}

// TryLockOptions attempts to acquire a lock with custom options. Unlike
// WithLockOptions, contention is not an error: once the configured tries are
// exhausted it reports (nil, false, nil) and the caller decides what a busy
// lock means.
func (dl *RedisLockManager) TryLockOptions(ctx context.Context, lockKey string, opts LockOptions) (LockHandle, bool, error) {
	if dl == nil {
		return nil, false, nilLockAssert(ctx, "TryLockOptions")
	}

	if dl.redsync == nil {
		return nil, false, ErrLockNotInitialized
	}

	if strings.TrimSpace(lockKey) == "" {
		return nil, false, ErrEmptyLockKey
	}

	if err := validateLockOptions(opts); err != nil {
		return nil, false, err
	}

	logger, tracer, _, _ := redemption.NewTrackingFromContext(ctx)
	safeLockKey := safeLockKeyForLogs(lockKey)

	ctx, span := tracer.Start(ctx, "redis.lock.try_lock")
	defer span.End()

	mutex := dl.redsync.NewMutex(
		lockKey,
		redsync.WithExpiry(opts.Expiry),
		redsync.WithTries(opts.Tries),
		redsync.WithRetryDelay(opts.RetryDelay),
		redsync.WithDriftFactor(opts.DriftFactor),
	)

	if err := mutex.LockContext(ctx); err != nil {
		// redsync reports contention in several shapes: ErrFailed as the
		// base error, or "lock already taken" when another process holds it.
		errMsg := err.Error()
		isLockContention := errors.Is(err, redsync.ErrFailed) ||
			strings.Contains(errMsg, "lock already taken") ||
			strings.Contains(errMsg, "failed to acquire lock")

		if isLockContention {
			logger.Log(ctx, log.LevelDebug, "lock already held by another process", log.String("lock_key", safeLockKey))
			return nil, false, nil
		}

		// Anything else (network, context cancellation) is a real failure.
		logger.Log(ctx, log.LevelDebug, "could not acquire lock", log.String("lock_key", safeLockKey), log.Err(err))
		opentelemetry.HandleSpanError(span, "Failed to attempt lock acquisition", err)

		return nil, false, fmt.Errorf("failed to attempt lock acquisition for %s: %w", safeLockKey, err)
	}

	logger.Log(ctx, log.LevelDebug, "lock acquired", log.String("lock_key", safeLockKey))

	return &lockHandle{mutex: mutex, logger: logger}, true, nil
}

func validateLockOptions(opts LockOptions) error {
	if opts.Expiry <= 0 {
		return ErrLockExpiryInvalid
	}

	if opts.Tries < 1 {
		return ErrLockTriesInvalid
	}

	if opts.Tries > maxLockTries {
		return ErrLockTriesExceeded
	}

	if opts.RetryDelay < 0 {
		return ErrLockRetryDelayNegative
	}

	if opts.DriftFactor < 0 || opts.DriftFactor >= 1 {
		return ErrLockDriftFactorInvalid
	}

	return nil
}

func safeLockKeyForLogs(lockKey string) string {
	const maxLockKeyLogLength = 128

	safeLockKey := strconv.QuoteToASCII(lockKey)
	if len(safeLockKey) <= maxLockKeyLogLength {
		return safeLockKey
	}

	return safeLockKey[:maxLockKeyLogLength] + "...(truncated)"
}
