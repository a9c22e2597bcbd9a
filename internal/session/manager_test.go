package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/synophoto/internal/kvstore"
)

// countingLogin returns a LoginFunc that mints sid-1, sid-2, ... and records
// every device id it was handed.
type countingLogin struct {
	calls   atomic.Int32
	delay   time.Duration
	mu      sync.Mutex
	devices []string
}

func (c *countingLogin) login(_ context.Context, deviceID string) (*Session, error) {
	n := c.calls.Add(1)

	c.mu.Lock()
	c.devices = append(c.devices, deviceID)
	c.mu.Unlock()

	if c.delay > 0 {
		time.Sleep(c.delay)
	}

	return &Session{
		SessionID: fmt.Sprintf("sid-%d", n),
		CSRFToken: fmt.Sprintf("tok-%d", n),
		DeviceID:  "device-1",
	}, nil
}

func testOptions() Options {
	return Options{
		TTL:          time.Hour,
		LockTTL:      5 * time.Second,
		PollInterval: 2 * time.Millisecond,
		PollAttempts: 2000,
	}
}

func TestGetOrCreate_ConcurrentCallersLoginOnce(t *testing.T) {
	kv := kvstore.NewMemory()
	cl := &countingLogin{delay: 20 * time.Millisecond}

	const callers = 20

	results := make([]*Session, callers)
	var wg sync.WaitGroup

	for i := range callers {
		wg.Add(1)

		// Separate managers share only the store, like separate handlers.
		m := NewManager(kv, cl.login, testOptions())

		go func() {
			defer wg.Done()

			sess, err := m.GetOrCreate(context.Background())
			assert.NoError(t, err)
			results[i] = sess
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(1), cl.calls.Load())

	for _, sess := range results {
		require.NotNil(t, sess)
		assert.Equal(t, "sid-1", sess.SessionID)
	}

	v, err := NewManager(kv, cl.login, testOptions()).Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), v, "first login creates the baseline")
}

func TestGetOrCreate_ConcurrentCallersLoginOnceOnRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cl := &countingLogin{delay: 20 * time.Millisecond}

	const callers = 10

	results := make([]*Session, callers)
	var wg sync.WaitGroup

	for i := range callers {
		wg.Add(1)

		// Separate clients, like separate processes.
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { client.Close() })

		m := NewManager(kvstore.NewRedis(client, "test:"), cl.login, testOptions())

		go func() {
			defer wg.Done()

			sess, err := m.GetOrCreate(context.Background())
			assert.NoError(t, err)
			results[i] = sess
		}()
	}

	wg.Wait()

	assert.Equal(t, int32(1), cl.calls.Load())

	for _, sess := range results {
		require.NotNil(t, sess)
		assert.Equal(t, "sid-1", sess.SessionID)
	}

	assert.False(t, mr.Exists("test:"+lockKey), "login lock released")
}

func TestGetOrCreate_ReturnsStoredSession(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()
	cl := &countingLogin{}
	m := NewManager(kv, cl.login, testOptions())

	first, err := m.GetOrCreate(ctx)
	require.NoError(t, err)

	second, err := m.GetOrCreate(ctx)
	require.NoError(t, err)

	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Equal(t, int32(1), cl.calls.Load())
	assert.False(t, second.CreatedAt.IsZero())
}

func TestGetOrCreate_ExpiredSessionLogsInAgain(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	kv := kvstore.NewMemoryWithClock(func() time.Time { return now })
	cl := &countingLogin{}

	opts := testOptions()
	opts.TTL = DefaultLocalTTL
	m := NewManager(kv, cl.login, opts)

	_, err := m.GetOrCreate(ctx)
	require.NoError(t, err)

	now = now.Add(DefaultLocalTTL)

	sess, err := m.GetOrCreate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sid-2", sess.SessionID)
}

func TestForceRelogin_StaleVersionReturnsRefreshedSession(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()
	cl := &countingLogin{}
	m := NewManager(kv, cl.login, testOptions())

	_, err := m.GetOrCreate(ctx)
	require.NoError(t, err)

	observed, err := m.Version(ctx)
	require.NoError(t, err)

	refreshed, err := m.ForceRelogin(ctx, observed)
	require.NoError(t, err)
	assert.Equal(t, "sid-2", refreshed.SessionID)
	require.Equal(t, int32(2), cl.calls.Load())

	// A second caller that observed the same old version gets the
	// refreshed session without another login.
	again, err := m.ForceRelogin(ctx, observed)
	require.NoError(t, err)
	assert.Equal(t, "sid-2", again.SessionID)
	assert.Equal(t, int32(2), cl.calls.Load())

	v, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, observed+1, v)
}

// bumpHookStore runs afterBump once, right after the version counter is
// incremented and before the incrementing caller continues.
type bumpHookStore struct {
	*kvstore.Memory
	once      sync.Once
	afterBump func()
}

func (s *bumpHookStore) Incr(ctx context.Context, key string) (int64, error) {
	v, err := s.Memory.Incr(ctx, key)
	if err == nil && key == versionKey {
		s.once.Do(s.afterBump)
	}

	return v, err
}

func TestForceRelogin_CallerArrivingAtBumpGetsNewSession(t *testing.T) {
	ctx := context.Background()
	kv := &bumpHookStore{Memory: kvstore.NewMemory()}
	cl := &countingLogin{}

	first, err := NewManager(kv, cl.login, testOptions()).GetOrCreate(ctx)
	require.NoError(t, err)
	require.Equal(t, "sid-1", first.SessionID)

	var (
		wg      sync.WaitGroup
		other   *Session
		otherEr error
	)

	// A second handler saw sid-1 rejected under the same version and asks
	// for a relogin while the first is mid-way through its own.
	kv.afterBump = func() {
		wg.Add(1)

		go func() {
			defer wg.Done()
			other, otherEr = NewManager(kv, cl.login, testOptions()).ForceRelogin(ctx, 0)
		}()
	}

	sess, err := NewManager(kv, cl.login, testOptions()).ForceRelogin(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "sid-2", sess.SessionID)
	assert.Equal(t, int64(1), sess.Version)

	wg.Wait()
	require.NoError(t, otherEr)
	require.NotNil(t, other)
	assert.Equal(t, "sid-2", other.SessionID, "the rejected session is never handed back")
	assert.Equal(t, int32(2), cl.calls.Load())
}

func TestForceRelogin_IgnoresSessionMintedBeforeBump(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()
	cl := &countingLogin{}
	m := NewManager(kv, cl.login, testOptions())

	_, err := m.GetOrCreate(ctx)
	require.NoError(t, err)

	// A relogger bumped the version and died before replacing sid-1.
	_, err = kv.Incr(ctx, versionKey)
	require.NoError(t, err)

	sess, err := m.ForceRelogin(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "sid-2", sess.SessionID)
	assert.Equal(t, int64(2), sess.Version)
	assert.Equal(t, int32(2), cl.calls.Load())
}

func TestForceRelogin_CarriesDeviceIDForward(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()
	cl := &countingLogin{}
	m := NewManager(kv, cl.login, testOptions())

	_, err := m.GetOrCreate(ctx)
	require.NoError(t, err)

	_, err = m.ForceRelogin(ctx, 0)
	require.NoError(t, err)

	cl.mu.Lock()
	defer cl.mu.Unlock()

	assert.Equal(t, []string{"", "device-1"}, cl.devices)
}

func TestForceRelogin_ConcurrentCallersLoginOnce(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()
	cl := &countingLogin{delay: 20 * time.Millisecond}

	_, err := NewManager(kv, cl.login, testOptions()).GetOrCreate(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup

	for range 10 {
		wg.Add(1)

		m := NewManager(kv, cl.login, testOptions())

		go func() {
			defer wg.Done()

			sess, err := m.ForceRelogin(ctx, 0)
			assert.NoError(t, err)
			assert.Equal(t, "sid-2", sess.SessionID)
		}()
	}

	wg.Wait()
	assert.Equal(t, int32(2), cl.calls.Load())
}

func TestGetOrCreate_LockWaitExhaustedProceedsAlone(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()
	cl := &countingLogin{}

	// A crashed holder left the lock behind.
	ok, err := kvstore.NewLock(kv).Acquire(ctx, lockKey, "dead-holder", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)

	opts := testOptions()
	opts.PollAttempts = 3
	m := NewManager(kv, cl.login, opts)

	sess, err := m.GetOrCreate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sid-1", sess.SessionID)
	assert.Equal(t, int32(1), cl.calls.Load())
}

func TestGetOrCreate_LoginErrorPropagates(t *testing.T) {
	boom := errors.New("login refused")
	m := NewManager(kvstore.NewMemory(), func(context.Context, string) (*Session, error) {
		return nil, boom
	}, testOptions())

	_, err := m.GetOrCreate(context.Background())
	require.ErrorIs(t, err, boom)

	sess, err := m.Current(context.Background())
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestGetOrCreate_LoginSurvivesCallerCancellation(t *testing.T) {
	kv := kvstore.NewMemory()

	ctx, cancel := context.WithCancel(context.Background())

	m := NewManager(kv, func(loginCtx context.Context, _ string) (*Session, error) {
		cancel()

		if loginCtx.Err() != nil {
			return nil, loginCtx.Err()
		}

		return &Session{SessionID: "sid-x"}, nil
	}, testOptions())

	sess, err := m.GetOrCreate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sid-x", sess.SessionID)

	stored, err := m.Current(context.Background())
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "sid-x", stored.SessionID)
}

func TestInvalidate(t *testing.T) {
	ctx := context.Background()
	cl := &countingLogin{}
	m := NewManager(kvstore.NewMemory(), cl.login, testOptions())

	_, err := m.GetOrCreate(ctx)
	require.NoError(t, err)

	require.NoError(t, m.Invalidate(ctx))

	sess, err := m.Current(ctx)
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestStore_CorruptRecordIsDeleted(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()
	require.NoError(t, kv.Set(ctx, sessionKey, "{not json", 0))

	s := NewStore(kv, nil)

	sess, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, sess)

	_, ok, err := kv.Get(ctx, sessionKey)
	require.NoError(t, err)
	assert.False(t, ok)
}
