package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tonimelisma/synophoto/internal/boundary"
	"github.com/tonimelisma/synophoto/internal/config"
	"github.com/tonimelisma/synophoto/internal/gallery"
	"github.com/tonimelisma/synophoto/internal/itemcache"
	"github.com/tonimelisma/synophoto/internal/kvstore"
	"github.com/tonimelisma/synophoto/internal/ratelimit"
	"github.com/tonimelisma/synophoto/internal/reports"
	"github.com/tonimelisma/synophoto/internal/session"
	"github.com/tonimelisma/synophoto/internal/synology"
	"github.com/tonimelisma/synophoto/internal/visibility"
)

// dataDirPermissions is owner-only: the database holds visitor identifiers.
const dataDirPermissions = 0o700

// app is the fully wired gateway for one command invocation.
type app struct {
	cc     *CLIContext
	logger *slog.Logger

	kv       kvstore.Store
	shared   bool
	sessions *session.Manager
	client   *synology.Client
	limiter  *ratelimit.Limiter
	reports  *reports.Store
	gallery  *gallery.Service
}

// appOptions select the optional parts of the wiring.
type appOptions struct {
	// withReports opens the reports database.
	withReports bool
}

// newApp connects the shared store, builds the session manager and the
// upstream client from the current config, and composes the gallery.
func newApp(ctx context.Context, cc *CLIContext, opts appOptions) (*app, error) {
	cfg := cc.Config()
	logger := cc.Logger

	kv, shared, err := kvstore.Open(ctx, kvstore.RedisConfig{
		URL:       cfg.Store.RedisURL,
		Addr:      cfg.Store.RedisAddr,
		Password:  cfg.Store.RedisPassword,
		DB:        cfg.Store.RedisDB,
		KeyPrefix: cfg.Store.KeyPrefix,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("opening shared store: %w", err)
	}

	a := &app{cc: cc, logger: logger, kv: kv, shared: shared}

	httpClient := newHTTPClient(cfg.Network)

	auth := synology.NewAuthenticator(cfg.Synology.BaseURL, httpClient, synology.Credentials{
		Username:   cfg.Synology.Username,
		Password:   cfg.Synology.Password,
		DeviceName: cfg.Synology.DeviceName,
	}, logger)

	a.sessions = session.NewManager(kv, auth.Login, sessionOptions(cfg.Session, shared, logger))

	a.client = synology.NewClient(cfg.Synology.BaseURL, httpClient, a.sessions, logger).
		WithRetryPolicy(retryPolicy(cfg.Retry)).
		WithUserAgent(cfg.Network.UserAgent)

	a.limiter = ratelimit.New(kv, logger)

	var index gallery.ReportIndex

	if opts.withReports {
		if a.reports, err = openReports(ctx, cfg.Reports, logger); err != nil {
			a.Close()
			return nil, err
		}

		index = a.reports
	}

	policy := visibility.FromHolder(cc.Holder)

	resolver := itemcache.New(a.client, kv, policy, itemcache.Options{
		TTL:      config.Duration(cfg.Cache.FolderScanTTL),
		PageSize: cfg.Cache.FolderScanPageSize,
		Logger:   logger,
	})

	gopts := gallery.Options{Origin: cfg.Synology.BaseURL, Logger: logger}
	if a.reports != nil {
		gopts.Tracker = a.reports
	}

	a.gallery = gallery.New(
		a.client,
		boundary.New(a.client, boundary.FromHolder(cc.Holder), logger),
		policy,
		resolver,
		index,
		gopts,
	)

	return a, nil
}

// sessionOptions maps the session config onto manager options. Without a
// shared store the session lives only briefly, since no other process can
// invalidate it.
func sessionOptions(sc config.SessionConfig, shared bool, logger *slog.Logger) session.Options {
	ttl := config.Duration(sc.TTL)
	if !shared {
		ttl = config.Duration(sc.LocalTTL)
	}

	return session.Options{
		TTL:          ttl,
		LockTTL:      config.Duration(sc.LockTTL),
		PollInterval: config.Duration(sc.LockPollInterval),
		PollAttempts: uint(max(sc.LockPollAttempts, 0)),
		Logger:       logger,
	}
}

func retryPolicy(rc config.RetryConfig) synology.RetryPolicy {
	return synology.RetryPolicy{
		NetworkRetries: rc.NetworkRetries,
		ReloginRetries: rc.ReloginRetries,
		BaseBackoff:    config.Duration(rc.BaseBackoff),
		MaxBackoff:     config.Duration(rc.MaxBackoff),
	}
}

func rateRule(r config.RateLimitRule) ratelimit.Rule {
	return ratelimit.Rule{Limit: r.Limit, Window: config.Duration(r.Window)}
}

func openReports(ctx context.Context, rc config.ReportsConfig, logger *slog.Logger) (*reports.Store, error) {
	if rc.DatabasePath != "" {
		if err := os.MkdirAll(filepath.Dir(rc.DatabasePath), dataDirPermissions); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	return reports.Open(ctx, rc.DatabasePath, reports.Options{
		DuplicateWindow:   config.Duration(rc.DuplicateWindow),
		MaxPerItem:        rc.MaxPerItem,
		Retention:         config.Duration(rc.Retention),
		FeedbackMax:       rc.FeedbackMax,
		FeedbackRetention: config.Duration(rc.FeedbackRetention),

		AnalyticsRetention: config.Duration(rc.AnalyticsRetention),
		Logger:             logger,
	})
}

// Close releases the store connections.
func (a *app) Close() error {
	var errs []error

	if a.reports != nil {
		errs = append(errs, a.reports.Close())
	}

	errs = append(errs, a.kv.Close())

	return errors.Join(errs...)
}

// openApp wires an app for the command's context. The caller closes it.
func openApp(ctx context.Context, withReports bool) (*app, error) {
	return newApp(ctx, mustCLIContext(ctx), appOptions{withReports: withReports})
}
