package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validation range constants.
const (
	maxNetworkRetries  = 10
	maxReloginRetries  = 5
	minPageSize        = 1
	maxPageSize        = 500
	maxLockPollAttempt = 600
	minTimeout         = 1 * time.Second
)

var (
	validLogLevels      = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats     = map[string]bool{"auto": true, "text": true, "json": true}
	validVisibilityMode = map[string]bool{VisibilityHide: true, VisibilityShow: true}
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// can fix all issues in one pass. Missing upstream credentials are not an
// error here: they surface as a configuration error on first upstream use.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateSynology(&cfg.Synology)...)
	errs = append(errs, validateVisibility(&cfg.Visibility)...)
	errs = append(errs, validateSession(&cfg.Session)...)
	errs = append(errs, validateRetry(&cfg.Retry)...)
	errs = append(errs, validateCache(&cfg.Cache)...)
	errs = append(errs, validateRule("ratelimit.reports", cfg.RateLimit.Reports)...)
	errs = append(errs, validateRule("ratelimit.feedback", cfg.RateLimit.Feedback)...)
	errs = append(errs, validateStore(&cfg.Store)...)
	errs = append(errs, validateReports(&cfg.Reports)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)

	return errors.Join(errs...)
}

func validateSynology(s *SynologyConfig) []error {
	if s.BaseURL == "" {
		return nil
	}

	u, err := url.Parse(s.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return []error{fmt.Errorf("synology.base_url: must be an absolute http(s) URL, got %q", s.BaseURL)}
	}

	return nil
}

func validateVisibility(v *VisibilityConfig) []error {
	var errs []error

	if !validVisibilityMode[v.Mode] {
		errs = append(errs, fmt.Errorf("visibility.mode: must be %q or %q, got %q",
			VisibilityHide, VisibilityShow, v.Mode))
	}

	if strings.TrimSpace(v.HideTag) == "" {
		errs = append(errs, errors.New("visibility.hide_tag: must not be empty"))
	}

	if strings.TrimSpace(v.ShowTag) == "" {
		errs = append(errs, errors.New("visibility.show_tag: must not be empty"))
	}

	if strings.TrimSpace(v.HideSuffix) == "" {
		errs = append(errs, errors.New("visibility.hide_suffix: must not be empty"))
	}

	return errs
}

func validateSession(s *SessionConfig) []error {
	var errs []error

	errs = append(errs, validatePositiveDuration("session.ttl", s.TTL)...)
	errs = append(errs, validatePositiveDuration("session.local_ttl", s.LocalTTL)...)
	errs = append(errs, validatePositiveDuration("session.lock_ttl", s.LockTTL)...)
	errs = append(errs, validatePositiveDuration("session.lock_poll_interval", s.LockPollInterval)...)

	if s.LockPollAttempts < 1 || s.LockPollAttempts > maxLockPollAttempt {
		errs = append(errs, fmt.Errorf("session.lock_poll_attempts: must be between 1 and %d, got %d",
			maxLockPollAttempt, s.LockPollAttempts))
	}

	return errs
}

func validateRetry(r *RetryConfig) []error {
	var errs []error

	if r.NetworkRetries < 0 || r.NetworkRetries > maxNetworkRetries {
		errs = append(errs, fmt.Errorf("retry.network_retries: must be between 0 and %d, got %d",
			maxNetworkRetries, r.NetworkRetries))
	}

	if r.ReloginRetries < 0 || r.ReloginRetries > maxReloginRetries {
		errs = append(errs, fmt.Errorf("retry.relogin_retries: must be between 0 and %d, got %d",
			maxReloginRetries, r.ReloginRetries))
	}

	baseErrs := validatePositiveDuration("retry.base_backoff", r.BaseBackoff)
	maxErrs := validatePositiveDuration("retry.max_backoff", r.MaxBackoff)
	errs = append(errs, baseErrs...)
	errs = append(errs, maxErrs...)

	if len(baseErrs) == 0 && len(maxErrs) == 0 && Duration(r.BaseBackoff) > Duration(r.MaxBackoff) {
		errs = append(errs, fmt.Errorf("retry.base_backoff: %s exceeds max_backoff %s", r.BaseBackoff, r.MaxBackoff))
	}

	return errs
}

func validateCache(c *CacheConfig) []error {
	errs := validatePositiveDuration("cache.folder_scan_ttl", c.FolderScanTTL)

	if c.FolderScanPageSize < minPageSize || c.FolderScanPageSize > maxPageSize {
		errs = append(errs, fmt.Errorf("cache.folder_scan_page_size: must be between %d and %d, got %d",
			minPageSize, maxPageSize, c.FolderScanPageSize))
	}

	return errs
}

func validateRule(name string, r RateLimitRule) []error {
	errs := validatePositiveDuration(name+".window", r.Window)

	if r.Limit < 1 {
		errs = append(errs, fmt.Errorf("%s.limit: must be at least 1, got %d", name, r.Limit))
	}

	return errs
}

func validateStore(s *StoreConfig) []error {
	var errs []error

	if s.RedisURL != "" {
		if _, err := url.Parse(s.RedisURL); err != nil {
			errs = append(errs, fmt.Errorf("store.redis_url: %w", err))
		}
	}

	if s.RedisDB < 0 {
		errs = append(errs, fmt.Errorf("store.redis_db: must not be negative, got %d", s.RedisDB))
	}

	return errs
}

func validateReports(r *ReportsConfig) []error {
	var errs []error

	errs = append(errs, validatePositiveDuration("reports.duplicate_window", r.DuplicateWindow)...)
	errs = append(errs, validatePositiveDuration("reports.retention", r.Retention)...)
	errs = append(errs, validatePositiveDuration("reports.feedback_retention", r.FeedbackRetention)...)
	errs = append(errs, validatePositiveDuration("reports.analytics_retention", r.AnalyticsRetention)...)

	if r.MaxPerItem < 1 {
		errs = append(errs, fmt.Errorf("reports.max_per_item: must be at least 1, got %d", r.MaxPerItem))
	}

	if r.FeedbackMax < 1 {
		errs = append(errs, fmt.Errorf("reports.feedback_max: must be at least 1, got %d", r.FeedbackMax))
	}

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !validLogLevels[l.LogLevel] {
		errs = append(errs, fmt.Errorf("logging.log_level: must be one of debug, info, warn, error; got %q", l.LogLevel))
	}

	if !validLogFormats[l.LogFormat] {
		errs = append(errs, fmt.Errorf("logging.log_format: must be one of auto, text, json; got %q", l.LogFormat))
	}

	return errs
}

func validateNetwork(n *NetworkConfig) []error {
	d, err := time.ParseDuration(n.Timeout)
	if err != nil {
		return []error{fmt.Errorf("network.timeout: invalid duration %q: %w", n.Timeout, err)}
	}

	if d < minTimeout {
		return []error{fmt.Errorf("network.timeout: must be at least %s, got %s", minTimeout, n.Timeout)}
	}

	return nil
}

func validatePositiveDuration(name, value string) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", name, value, err)}
	}

	if d <= 0 {
		return []error{fmt.Errorf("%s: must be positive, got %q", name, value)}
	}

	return nil
}

// Duration parses a duration setting. Values are checked by Validate, so an
// unparseable string yields zero, which callers treat as "use the default".
func Duration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}

	return d
}
