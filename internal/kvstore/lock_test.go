package kvstore

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLock_AcquireRelease(t *testing.T) {
	ctx := context.Background()
	l := NewLock(NewMemory())

	ok, err := l.Acquire(ctx, "login", "holder-a", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.Acquire(ctx, "login", "holder-b", time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	released, err := l.Release(ctx, "login", "holder-b")
	require.NoError(t, err)
	assert.False(t, released, "non-holder release is a no-op")

	released, err = l.Release(ctx, "login", "holder-a")
	require.NoError(t, err)
	assert.True(t, released)

	ok, err = l.Acquire(ctx, "login", "holder-b", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLock_ExpiredRecordIsNotReleasedByOldHolder(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	l := NewLock(NewMemoryWithClock(clock.Now))

	ok, err := l.Acquire(ctx, "login", "old", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	clock.Advance(2 * time.Second)

	ok, err = l.Acquire(ctx, "login", "new", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	released, err := l.Release(ctx, "login", "old")
	require.NoError(t, err)
	assert.False(t, released)

	released, err = l.Release(ctx, "login", "new")
	require.NoError(t, err)
	assert.True(t, released)
}

func TestLock_RedisBackend(t *testing.T) {
	ctx := context.Background()
	_, r := newTestRedis(t)
	l := NewLock(r)

	ok, err := l.Acquire(ctx, "login", "a", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	released, err := l.Release(ctx, "login", "b")
	require.NoError(t, err)
	assert.False(t, released)

	released, err = l.Release(ctx, "login", "a")
	require.NoError(t, err)
	assert.True(t, released)
}

func TestNewToken_Unique(t *testing.T) {
	assert.NotEqual(t, NewToken(), NewToken())
}

func TestPoll(t *testing.T) {
	ctx := context.Background()

	t.Run("ready on third attempt", func(t *testing.T) {
		var calls atomic.Int32

		ok, err := Poll(ctx, time.Millisecond, 5, func(context.Context) (bool, error) {
			return calls.Add(1) == 3, nil
		})
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("exhausted", func(t *testing.T) {
		var calls atomic.Int32

		ok, err := Poll(ctx, time.Millisecond, 4, func(context.Context) (bool, error) {
			calls.Add(1)
			return false, nil
		})
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, int32(4), calls.Load())
	})

	t.Run("error stops polling", func(t *testing.T) {
		boom := errors.New("boom")
		var calls atomic.Int32

		ok, err := Poll(ctx, time.Millisecond, 4, func(context.Context) (bool, error) {
			calls.Add(1)
			return false, boom
		})
		require.ErrorIs(t, err, boom)
		assert.False(t, ok)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		ok, err := Poll(cctx, time.Millisecond, 4, func(context.Context) (bool, error) {
			return false, nil
		})
		require.ErrorIs(t, err, context.Canceled)
		assert.False(t, ok)
	})
}
