// Package ratelimit implements a sliding-window log limiter on the shared
// store. Each (scope, client) pair keeps a log of attempt markers; an
// attempt is admitted and recorded only while the log holds fewer markers
// than the limit.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tonimelisma/synophoto/internal/apperr"
	"github.com/tonimelisma/synophoto/internal/kvstore"
)

const keyPrefix = "ratelimit:"

// Rule is one limit: at most Limit attempts per Window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Result describes one check.
type Result struct {
	Allowed   bool
	Remaining int
	// ResetAt is one full window after this check.
	ResetAt time.Time
}

// RetryAfter returns how long a rejected caller should wait, rounded up to
// whole seconds and never below one second.
func (r Result) RetryAfter(now time.Time) time.Duration {
	d := r.ResetAt.Sub(now)
	if d <= 0 {
		return time.Second
	}

	secs := (d + time.Second - 1) / time.Second

	return secs * time.Second
}

// Limiter checks rules against the shared store.
type Limiter struct {
	kv     kvstore.Store
	now    func() time.Time
	logger *slog.Logger
}

// New returns a Limiter on kv.
func New(kv kvstore.Store, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}

	return &Limiter{kv: kv, now: time.Now, logger: logger}
}

// WithClock replaces the time source and returns l.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Check prunes expired attempts, then admits and records this attempt if
// the window has room. A rejected attempt is not recorded.
func (l *Limiter) Check(ctx context.Context, scope, clientID string, rule Rule) (Result, error) {
	if rule.Limit <= 0 || rule.Window <= 0 {
		return Result{}, fmt.Errorf("ratelimit: invalid rule for %s: limit %d, window %s", scope, rule.Limit, rule.Window)
	}

	if clientID == "" {
		clientID = UnknownClient
	}

	now := l.now()
	member := fmt.Sprintf("%d:%s", now.UnixNano(), uuid.NewString())

	res, err := l.kv.SlidingWindow(ctx, keyPrefix+scope+":"+clientID, now, rule.Window, rule.Limit, member)
	if err != nil {
		return Result{}, fmt.Errorf("ratelimit: checking %s: %w", scope, err)
	}

	out := Result{
		Allowed:   res.Allowed,
		Remaining: max(rule.Limit-res.Count, 0),
		ResetAt:   now.Add(rule.Window),
	}

	if !out.Allowed {
		l.logger.Info("rate limit exceeded",
			slog.String("scope", scope),
			slog.Int("limit", rule.Limit),
			slog.Duration("window", rule.Window),
		)
	}

	return out, nil
}

// Enforce runs Check and converts a rejection into a rate-limited error
// carrying the retry hint.
func (l *Limiter) Enforce(ctx context.Context, scope, clientID string, rule Rule) (Result, error) {
	res, err := l.Check(ctx, scope, clientID, rule)
	if err != nil {
		return res, err
	}

	if !res.Allowed {
		return res, &apperr.RateLimitedError{Scope: scope, RetryAfter: res.RetryAfter(l.now())}
	}

	return res, nil
}
