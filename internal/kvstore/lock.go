package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
)

// errNotReady signals one unsuccessful poll.
var errNotReady = errors.New("kvstore: not ready")

// Lock is a best-effort distributed mutex over a Store. A record is
// {holder token, expiry}; only the holder whose token still matches may
// delete it, otherwise it self-expires.
type Lock struct {
	store Store
}

// NewLock returns a Lock backed by store.
func NewLock(store Store) *Lock {
	return &Lock{store: store}
}

// NewToken returns a fresh holder token.
func NewToken() string {
	return uuid.NewString()
}

// Acquire atomically sets key to token if absent, with ttl.
func (l *Lock) Acquire(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	ok, err := l.store.SetNX(ctx, key, token, ttl)
	if err != nil {
		return false, fmt.Errorf("kvstore: acquiring lock %s: %w", key, err)
	}

	return ok, nil
}

// Release deletes key only if it still holds token. A lock that expired and
// was taken by someone else is left alone.
func (l *Lock) Release(ctx context.Context, key, token string) (bool, error) {
	ok, err := l.store.CompareAndDelete(ctx, key, token)
	if err != nil {
		return false, fmt.Errorf("kvstore: releasing lock %s: %w", key, err)
	}

	return ok, nil
}

// Poll calls ready up to attempts times with a fixed interval between calls
// and reports whether it ever returned true. An error from ready stops the
// polling and is returned.
func Poll(ctx context.Context, interval time.Duration, attempts uint, ready func(context.Context) (bool, error)) (bool, error) {
	if attempts == 0 {
		attempts = 1
	}

	err := retry.Do(
		func() error {
			ok, err := ready(ctx)
			if err != nil {
				return retry.Unrecoverable(err)
			}

			if !ok {
				return errNotReady
			}

			return nil
		},
		retry.Attempts(attempts),
		retry.Delay(interval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
	)

	switch {
	case err == nil:
		return true, nil
	case ctx.Err() != nil:
		return false, ctx.Err()
	case errors.Is(err, errNotReady):
		return false, nil
	default:
		return false, err
	}
}
