package zimage

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURILockSerializesSameURI(t *testing.T) {
	t.Parallel()

	locks := newURILocks()
	var (
		inside  atomic.Int32
		maxSeen atomic.Int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, _, err := locks.acquire(context.Background(), "https://e/x")
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			for {
				m := maxSeen.Load()
				if n <= m || maxSeen.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			release()
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, maxSeen.Load())
	assert.Equal(t, 0, locks.len(), "unused URIs leave the table")
}

func TestURILockDistinctURIsDoNotContend(t *testing.T) {
	t.Parallel()

	locks := newURILocks()
	ra, contended, err := locks.acquire(context.Background(), "a")
	require.NoError(t, err)
	assert.False(t, contended)
	rb, contended, err := locks.acquire(context.Background(), "b")
	require.NoError(t, err)
	assert.False(t, contended)
	assert.Equal(t, 2, locks.len())

	ra()
	ra() // idempotent
	rb()
	assert.Equal(t, 0, locks.len())
}

func TestURILockAcquireHonorsContext(t *testing.T) {
	t.Parallel()

	locks := newURILocks()
	release, _, err := locks.acquire(context.Background(), "u")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, contended, err := locks.acquire(ctx, "u")
	assert.True(t, contended)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	assert.Equal(t, 0, locks.len())

	again, contended, err := locks.acquire(context.Background(), "u")
	require.NoError(t, err)
	assert.False(t, contended)
	again()
}

func TestURILockClearKeepsHolders(t *testing.T) {
	t.Parallel()

	locks := newURILocks()
	old, _, err := locks.acquire(context.Background(), "u")
	require.NoError(t, err)

	locks.clear()
	fresh, contended, err := locks.acquire(context.Background(), "u")
	require.NoError(t, err)
	assert.False(t, contended, "cleared table hands out a new lock")

	old()
	assert.Equal(t, 1, locks.len(), "releasing a forgotten lock leaves the new entry alone")
	fresh()
	assert.Equal(t, 0, locks.len())
}
