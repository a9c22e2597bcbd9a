// Package session owns the upstream session lifecycle: the shared session
// record, its invalidation version counter, and the Manager that logs in at
// most once per invalidation across every process sharing the store.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/tonimelisma/synophoto/internal/kvstore"
)

// Store keys, relative to the kvstore prefix.
const (
	sessionKey = "session:current"
	versionKey = "session:version"
	lockKey    = "session:login-lock"
)

// Session is an authenticated upstream session. SessionID is never empty
// once stored. Version is the invalidation version the session was minted
// under.
type Session struct {
	SessionID string    `json:"sid"`
	CSRFToken string    `json:"synotoken,omitempty"`
	DeviceID  string    `json:"device_id,omitempty"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists the current Session and its version counter in a kvstore.
type Store struct {
	kv     kvstore.Store
	logger *slog.Logger
}

// NewStore returns a Store over kv.
func NewStore(kv kvstore.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{kv: kv, logger: logger}
}

// Load returns the stored session, or nil if none is stored. A corrupt or
// empty record is deleted and treated as absent.
func (s *Store) Load(ctx context.Context) (*Session, error) {
	raw, ok, err := s.kv.Get(ctx, sessionKey)
	if err != nil {
		return nil, fmt.Errorf("session: loading: %w", err)
	}

	if !ok {
		return nil, nil
	}

	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil || sess.SessionID == "" {
		s.logger.Warn("corrupt session record, deleting", slog.Bool("decode_error", err != nil))

		if delErr := s.kv.Delete(ctx, sessionKey); delErr != nil {
			s.logger.Warn("failed to remove corrupt session record", slog.String("error", delErr.Error()))
		}

		return nil, nil
	}

	return &sess, nil
}

// Save writes sess with the given lifetime.
func (s *Store) Save(ctx context.Context, sess *Session, ttl time.Duration) error {
	if sess == nil || sess.SessionID == "" {
		return fmt.Errorf("session: refusing to store a session without an id")
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session: marshaling: %w", err)
	}

	if err := s.kv.Set(ctx, sessionKey, string(data), ttl); err != nil {
		return fmt.Errorf("session: saving: %w", err)
	}

	return nil
}

// Delete removes the stored session.
func (s *Store) Delete(ctx context.Context) error {
	if err := s.kv.Delete(ctx, sessionKey); err != nil {
		return fmt.Errorf("session: deleting: %w", err)
	}

	return nil
}

// Version returns the current invalidation version, 0 when never set.
func (s *Store) Version(ctx context.Context) (int64, error) {
	raw, ok, err := s.kv.Get(ctx, versionKey)
	if err != nil {
		return 0, fmt.Errorf("session: reading version: %w", err)
	}

	if !ok {
		return 0, nil
	}

	v, err := kvstore.ParseCounter(raw)
	if err != nil {
		return 0, fmt.Errorf("session: reading version: %w", err)
	}

	return v, nil
}

// EnsureVersion creates the version counter at 0 if absent. An existing
// counter is never reset.
func (s *Store) EnsureVersion(ctx context.Context) error {
	if _, err := s.kv.SetNX(ctx, versionKey, "0", 0); err != nil {
		return fmt.Errorf("session: initializing version: %w", err)
	}

	return nil
}

// BumpVersion increments the invalidation version and returns the new value.
func (s *Store) BumpVersion(ctx context.Context) (int64, error) {
	v, err := s.kv.Incr(ctx, versionKey)
	if err != nil {
		return 0, fmt.Errorf("session: incrementing version: %w", err)
	}

	return v, nil
}
