package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tonimelisma/synophoto/internal/kvstore"
)

// Defaults for Manager timings.
const (
	DefaultTTL          = 6 * time.Hour
	DefaultLocalTTL     = 5 * time.Second
	DefaultLockTTL      = 10 * time.Second
	DefaultPollInterval = 100 * time.Millisecond
	DefaultPollAttempts = 30
)

// LoginFunc performs one upstream login. deviceID is the prior session's
// device identifier, empty on a first login.
type LoginFunc func(ctx context.Context, deviceID string) (*Session, error)

// Options tune a Manager. Zero values select the defaults above.
type Options struct {
	TTL          time.Duration
	LockTTL      time.Duration
	PollInterval time.Duration
	PollAttempts uint
	Logger       *slog.Logger
	Now          func() time.Time
}

// Manager hands out the shared session, logging in only when no valid
// session is stored. Concurrent callers across processes coordinate through
// a login lock in the shared store.
type Manager struct {
	store  *Store
	lock   *kvstore.Lock
	login  LoginFunc
	opts   Options
	logger *slog.Logger
}

// NewManager returns a Manager persisting sessions in kv.
func NewManager(kv kvstore.Store, login LoginFunc, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}

	if opts.LockTTL <= 0 {
		opts.LockTTL = DefaultLockTTL
	}

	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}

	if opts.PollAttempts == 0 {
		opts.PollAttempts = DefaultPollAttempts
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Manager{
		store:  NewStore(kv, opts.Logger),
		lock:   kvstore.NewLock(kv),
		login:  login,
		opts:   opts,
		logger: opts.Logger,
	}
}

// Version returns the current invalidation version snapshot.
func (m *Manager) Version(ctx context.Context) (int64, error) {
	return m.store.Version(ctx)
}

// Invalidate deletes the stored session without logging in again.
func (m *Manager) Invalidate(ctx context.Context) error {
	m.logger.Info("invalidating stored session")
	return m.store.Delete(ctx)
}

// Current returns the stored session without logging in, or nil.
func (m *Manager) Current(ctx context.Context) (*Session, error) {
	return m.store.Load(ctx)
}

// GetOrCreate returns the stored session, logging in under the login lock
// when none exists. The stored session is re-checked after the lock is taken
// so a session published by another holder is reused.
func (m *Manager) GetOrCreate(ctx context.Context) (*Session, error) {
	sess, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	if sess != nil {
		return sess, nil
	}

	return m.underLock(ctx,
		func(ctx context.Context) (*Session, error) { return m.store.Load(ctx) },
		func(ctx context.Context) (*Session, error) {
			v, err := m.store.Version(ctx)
			if err != nil {
				return nil, err
			}

			return m.loginAndPersist(ctx, "", v)
		},
	)
}

// ForceRelogin replaces a session the caller observed as rejected. If the
// stored session was minted under a version past observedVersion, another
// caller already relogged and that session is returned without a login.
// Otherwise the stored session is dropped, the version bumped, and a fresh
// login carries the prior DeviceID forward.
func (m *Manager) ForceRelogin(ctx context.Context, observedVersion int64) (*Session, error) {
	refreshed := func(ctx context.Context) (*Session, error) {
		v, err := m.store.Version(ctx)
		if err != nil {
			return nil, err
		}

		if v <= observedVersion {
			return nil, nil
		}

		sess, err := m.store.Load(ctx)
		if err != nil || sess == nil {
			return nil, err
		}

		// A session minted before the bump is the one being replaced.
		if sess.Version <= observedVersion {
			return nil, nil
		}

		return sess, nil
	}

	if sess, err := refreshed(ctx); err != nil || sess != nil {
		return sess, err
	}

	return m.underLock(ctx, refreshed, func(ctx context.Context) (*Session, error) {
		var deviceID string

		if prior, err := m.store.Load(ctx); err != nil {
			return nil, err
		} else if prior != nil {
			deviceID = prior.DeviceID
		}

		if err := m.store.Delete(ctx); err != nil {
			return nil, err
		}

		v, err := m.store.BumpVersion(ctx)
		if err != nil {
			return nil, err
		}

		m.logger.Info("forcing upstream relogin",
			slog.Int64("observed_version", observedVersion),
			slog.Int64("version", v),
			slog.Bool("device_id", deviceID != ""),
		)

		return m.loginAndPersist(ctx, deviceID, v)
	})
}

// underLock runs create while holding the login lock, unless check finds a
// usable session first. Callers that lose the lock poll check; if the holder
// never publishes they fall through to create on their own.
func (m *Manager) underLock(
	ctx context.Context,
	check func(context.Context) (*Session, error),
	create func(context.Context) (*Session, error),
) (*Session, error) {
	token := kvstore.NewToken()

	acquired, err := m.lock.Acquire(ctx, lockKey, token, m.opts.LockTTL)
	if err != nil {
		return nil, err
	}

	if acquired {
		defer func() {
			if _, relErr := m.lock.Release(context.WithoutCancel(ctx), lockKey, token); relErr != nil {
				m.logger.Warn("failed to release login lock", slog.String("error", relErr.Error()))
			}
		}()

		sess, err := check(ctx)
		if err != nil || sess != nil {
			return sess, err
		}

		return create(ctx)
	}

	var published *Session

	found, err := kvstore.Poll(ctx, m.opts.PollInterval, m.opts.PollAttempts, func(ctx context.Context) (bool, error) {
		sess, err := check(ctx)
		if err != nil {
			return false, err
		}

		published = sess

		return sess != nil, nil
	})
	if err != nil {
		return nil, err
	}

	if found {
		return published, nil
	}

	m.logger.Warn("login lock wait exhausted, proceeding without lock",
		slog.Uint64("attempts", uint64(m.opts.PollAttempts)),
		slog.Duration("interval", m.opts.PollInterval),
	)

	return create(ctx)
}

// loginAndPersist logs in on a context detached from the caller's
// cancellation, since other callers may be waiting on the result. The
// session is stamped with version.
func (m *Manager) loginAndPersist(ctx context.Context, deviceID string, version int64) (*Session, error) {
	if m.login == nil {
		return nil, fmt.Errorf("session: no login function configured")
	}

	detached := context.WithoutCancel(ctx)

	sess, err := m.login(detached, deviceID)
	if err != nil {
		return nil, err
	}

	if sess == nil || sess.SessionID == "" {
		return nil, fmt.Errorf("session: login returned no session id")
	}

	if sess.DeviceID == "" {
		sess.DeviceID = deviceID
	}

	now := m.opts.Now().UTC()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}

	sess.UpdatedAt = now
	sess.Version = version

	if err := m.store.Save(detached, sess, m.opts.TTL); err != nil {
		return nil, err
	}

	if err := m.store.EnsureVersion(detached); err != nil {
		return nil, err
	}

	m.logger.Debug("stored upstream session",
		slog.Duration("ttl", m.opts.TTL),
		slog.Bool("csrf_token", sess.CSRFToken != ""),
	)

	return sess, nil
}
