package redis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLockEnv(t *testing.T) (*miniredis.Miniredis, *RedisLockManager) {
	t.Helper()

	mr := miniredis.RunT(t)

	client, err := New(context.Background(), newStandaloneConfig(mr.Addr()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	manager, err := NewRedisLockManager(client)
	require.NoError(t, err)

	return mr, manager
}

func TestNewRedisLockManager(t *testing.T) {
	t.Run("nil client", func(t *testing.T) {
		manager, err := NewRedisLockManager(nil)
		require.ErrorIs(t, err, ErrNilClient)
		assert.Nil(t, manager)
	})

	t.Run("client that cannot connect", func(t *testing.T) {
		manager, err := NewRedisLockManager(&Client{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to get redis client")
		assert.Nil(t, manager)
	})

	t.Run("connected client", func(t *testing.T) {
		_, manager := newLockEnv(t)
		require.NotNil(t, manager)
	})
}

func TestWithLock_ExecutesFunction(t *testing.T) {
	mr, manager := newLockEnv(t)

	executed := false
	err := manager.WithLock(context.Background(), "test:lock", func(ctx context.Context) error {
		executed = true
		// The lock key is present while the function runs.
		assert.True(t, mr.Exists("test:lock"))

		return nil
	})
	require.NoError(t, err)
	assert.True(t, executed)

	// Released after the function returns.
	assert.False(t, mr.Exists("test:lock"))
}

func TestWithLock_PropagatesFunctionError(t *testing.T) {
	_, manager := newLockEnv(t)

	errBoom := errors.New("boom")
	err := manager.WithLock(context.Background(), "test:lock", func(ctx context.Context) error {
		return errBoom
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errBoom)
	assert.Contains(t, err.Error(), "function execution")
}

func TestWithLock_ReleasesOnPanic(t *testing.T) {
	_, manager := newLockEnv(t)

	require.Panics(t, func() {
		_ = manager.WithLock(context.Background(), "test:lock", func(ctx context.Context) error {
			panic("lock holder crashed")
		})
	})

	// The deferred unlock ran, so the lock is free again.
	handle, acquired, err := manager.TryLock(context.Background(), "test:lock")
	require.NoError(t, err)
	require.True(t, acquired)
	require.NoError(t, handle.Unlock(context.Background()))
}

func TestWithLock_ValidatesInput(t *testing.T) {
	_, manager := newLockEnv(t)
	noop := func(ctx context.Context) error { return nil }

	err := manager.WithLock(context.Background(), "test:lock", nil)
	assert.ErrorIs(t, err, ErrNilLockFn)

	err = manager.WithLock(context.Background(), "", noop)
	assert.ErrorIs(t, err, ErrEmptyLockKey)

	err = manager.WithLock(context.Background(), "   ", noop)
	assert.ErrorIs(t, err, ErrEmptyLockKey)
}

func TestWithLock_ContendedKeyFailsAfterTries(t *testing.T) {
	_, manager := newLockEnv(t)

	handle, acquired, err := manager.TryLock(context.Background(), "test:contended")
	require.NoError(t, err)
	require.True(t, acquired)
	t.Cleanup(func() { _ = handle.Unlock(context.Background()) })

	opts := DefaultLockOptions()
	opts.Tries = 1

	err = manager.WithLockOptions(context.Background(), "test:contended", opts, func(ctx context.Context) error {
		t.Error("function must not run while the lock is held elsewhere")
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to acquire lock")
}

func TestWithLock_MutualExclusion(t *testing.T) {
	_, manager := newLockEnv(t)

	const goroutines = 10

	opts := LockOptions{
		Expiry:      10 * time.Second,
		Tries:       50,
		RetryDelay:  50 * time.Millisecond,
		DriftFactor: 0.01,
	}

	var (
		wg       sync.WaitGroup
		inFlight atomic.Int32
		counter  int
	)

	errCh := make(chan error, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			errCh <- manager.WithLockOptions(context.Background(), "test:counter", opts, func(ctx context.Context) error {
				if inFlight.Add(1) > 1 {
					return errors.New("two holders inside the critical section")
				}
				defer inFlight.Add(-1)

				counter++
				time.Sleep(5 * time.Millisecond)

				return nil
			})
		}()
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		require.NoError(t, err)
	}

	assert.Equal(t, goroutines, counter)
}

func TestTryLock_SecondAttemptReportsHeld(t *testing.T) {
	mr, manager := newLockEnv(t)

	handle, acquired, err := manager.TryLock(context.Background(), "test:try")
	require.NoError(t, err)
	require.True(t, acquired)
	require.NotNil(t, handle)
	assert.True(t, mr.Exists("test:try"))

	// A second attempt sees the held lock: no error, not acquired.
	second, acquired, err := manager.TryLock(context.Background(), "test:try")
	require.NoError(t, err)
	assert.False(t, acquired)
	assert.Nil(t, second)

	// After release the key can be taken again.
	require.NoError(t, handle.Unlock(context.Background()))
	assert.False(t, mr.Exists("test:try"))

	third, acquired, err := manager.TryLock(context.Background(), "test:try")
	require.NoError(t, err)
	require.True(t, acquired)
	require.NoError(t, third.Unlock(context.Background()))
}

func TestTryLock_DifferentKeysAreIndependent(t *testing.T) {
	_, manager := newLockEnv(t)

	first, acquired, err := manager.TryLock(context.Background(), "test:key-a")
	require.NoError(t, err)
	require.True(t, acquired)
	t.Cleanup(func() { _ = first.Unlock(context.Background()) })

	second, acquired, err := manager.TryLock(context.Background(), "test:key-b")
	require.NoError(t, err)
	require.True(t, acquired)
	require.NoError(t, second.Unlock(context.Background()))
}

func TestTryLock_ValidatesInput(t *testing.T) {
	_, manager := newLockEnv(t)

	_, acquired, err := manager.TryLock(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyLockKey)
	assert.False(t, acquired)

	_, acquired, err = manager.TryLockOptions(context.Background(), "test:try", LockOptions{})
	assert.ErrorIs(t, err, ErrLockExpiryInvalid)
	assert.False(t, acquired)
}

func TestLockManager_NilAndUninitializedGuards(t *testing.T) {
	var manager *RedisLockManager
	noop := func(ctx context.Context) error { return nil }

	err := manager.WithLock(context.Background(), "test:lock", noop)
	assert.ErrorIs(t, err, ErrNilLockManager)

	_, acquired, err := manager.TryLock(context.Background(), "test:lock")
	assert.ErrorIs(t, err, ErrNilLockManager)
	assert.False(t, acquired)

	uninitialized := &RedisLockManager{}

	err = uninitialized.WithLock(context.Background(), "test:lock", noop)
	assert.ErrorIs(t, err, ErrLockNotInitialized)

	_, acquired, err = uninitialized.TryLock(context.Background(), "test:lock")
	assert.ErrorIs(t, err, ErrLockNotInitialized)
	assert.False(t, acquired)
}

func TestLockHandle_UnlockGuards(t *testing.T) {
	var handle *lockHandle
	assert.ErrorIs(t, handle.Unlock(context.Background()), ErrNilLockHandle)

	empty := &lockHandle{}
	assert.ErrorIs(t, empty.Unlock(context.Background()), ErrNilLockHandle)
}

func TestLockHandle_UnlockAfterExpiry(t *testing.T) {
	mr, manager := newLockEnv(t)

	opts := DefaultLockOptions()
	opts.Tries = 1
	opts.Expiry = 50 * time.Millisecond

	handle, acquired, err := manager.TryLockOptions(context.Background(), "test:expiring", opts)
	require.NoError(t, err)
	require.True(t, acquired)

	mr.FastForward(time.Second)

	err = handle.Unlock(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lock already expired")
}

func TestLockHandle_UnlockWhenValueReplaced(t *testing.T) {
	mr, manager := newLockEnv(t)

	handle, acquired, err := manager.TryLock(context.Background(), "test:hijacked")
	require.NoError(t, err)
	require.True(t, acquired)

	// Another writer replaced the key, so this holder no longer owns it.
	require.NoError(t, mr.Set("test:hijacked", "someone-else"))

	err = handle.Unlock(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lock already taken")
}

func TestDefaultLockOptions(t *testing.T) {
	opts := DefaultLockOptions()
	assert.Equal(t, 10*time.Second, opts.Expiry)
	assert.Equal(t, 3, opts.Tries)
	assert.Equal(t, 500*time.Millisecond, opts.RetryDelay)
	assert.InDelta(t, 0.01, opts.DriftFactor, 0.0001)
}

func TestOperationLockOptions(t *testing.T) {
	opts := OperationLockOptions()
	assert.Equal(t, 15*time.Second, opts.Expiry)
	assert.Equal(t, 3, opts.Tries)
	assert.Equal(t, 200*time.Millisecond, opts.RetryDelay)
	assert.InDelta(t, 0.01, opts.DriftFactor, 0.0001)
}

func TestValidateLockOptions(t *testing.T) {
	valid := DefaultLockOptions()

	tests := []struct {
		name    string
		mutate  func(*LockOptions)
		wantErr error
	}{
		{name: "defaults valid", mutate: func(o *LockOptions) {}},
		{name: "zero expiry", mutate: func(o *LockOptions) { o.Expiry = 0 }, wantErr: ErrLockExpiryInvalid},
		{name: "negative expiry", mutate: func(o *LockOptions) { o.Expiry = -time.Second }, wantErr: ErrLockExpiryInvalid},
		{name: "zero tries", mutate: func(o *LockOptions) { o.Tries = 0 }, wantErr: ErrLockTriesInvalid},
		{name: "max tries allowed", mutate: func(o *LockOptions) { o.Tries = maxLockTries }},
		{name: "tries above maximum", mutate: func(o *LockOptions) { o.Tries = maxLockTries + 1 }, wantErr: ErrLockTriesExceeded},
		{name: "zero retry delay allowed", mutate: func(o *LockOptions) { o.RetryDelay = 0 }},
		{name: "negative retry delay", mutate: func(o *LockOptions) { o.RetryDelay = -time.Millisecond }, wantErr: ErrLockRetryDelayNegative},
		{name: "zero drift factor allowed", mutate: func(o *LockOptions) { o.DriftFactor = 0 }},
		{name: "drift factor of one", mutate: func(o *LockOptions) { o.DriftFactor = 1 }, wantErr: ErrLockDriftFactorInvalid},
		{name: "negative drift factor", mutate: func(o *LockOptions) { o.DriftFactor = -0.1 }, wantErr: ErrLockDriftFactorInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := valid
			tt.mutate(&opts)

			err := validateLockOptions(opts)
			if tt.wantErr == nil {
				require.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestSafeLockKeyForLogs(t *testing.T) {
	assert.Equal(t, `"holder:abc"`, safeLockKeyForLogs("holder:abc"))

	// Non-printable and non-ASCII bytes are escaped before logging.
	escaped := safeLockKeyForLogs("holder:\x00\xff")
	assert.NotContains(t, escaped, "\x00")

	long := safeLockKeyForLogs(strings.Repeat("k", 500))
	assert.True(t, strings.HasSuffix(long, "...(truncated)"))
	assert.Len(t, long, 128+len("...(truncated)"))
}
