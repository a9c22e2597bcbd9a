package config

import "path/filepath"

// Default values for configuration options. These are "layer 0" of the
// override chain.
const (
	defaultDeviceName         = "synophoto"
	defaultVisibilityMode     = VisibilityHide
	defaultHideTag            = "hide"
	defaultShowTag            = "show"
	defaultHideSuffix         = "(hide)"
	defaultSessionTTL         = "6h"
	defaultSessionLocalTTL    = "5s"
	defaultLockTTL            = "10s"
	defaultLockPollInterval   = "100ms"
	defaultLockPollAttempts   = 30
	defaultNetworkRetries     = 3
	defaultReloginRetries     = 1
	defaultBaseBackoff        = "150ms"
	defaultMaxBackoff         = "1500ms"
	defaultFolderScanTTL      = "60s"
	defaultFolderScanPageSize = 200
	defaultReportsLimit       = 10
	defaultReportsWindow      = "60s"
	defaultFeedbackLimit      = 5
	defaultFeedbackWindow     = "60s"
	defaultKeyPrefix          = "synophoto:"
	defaultDuplicateWindow    = "1h"
	defaultMaxPerItem         = 200
	defaultReportRetention    = "720h"
	defaultFeedbackMax        = 1000
	defaultFeedbackRetention  = "2160h"
	defaultAnalyticsRetention = "8760h"
	defaultLogLevel           = "info"
	defaultLogFormat          = "auto"
	defaultTimeout            = "30s"
	defaultUserAgent          = "synophoto/0.1"
	reportsFileName           = "reports.db"
)

// Visibility modes.
const (
	VisibilityHide = "hide"
	VisibilityShow = "show"
)

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for TOML decoding, so unset fields retain defaults.
func DefaultConfig() *Config {
	return &Config{
		Synology:   SynologyConfig{DeviceName: defaultDeviceName},
		Visibility: defaultVisibilityConfig(),
		Session:    defaultSessionConfig(),
		Retry:      defaultRetryConfig(),
		Cache: CacheConfig{
			FolderScanTTL:      defaultFolderScanTTL,
			FolderScanPageSize: defaultFolderScanPageSize,
		},
		RateLimit: RateLimitConfig{
			Reports:  RateLimitRule{Limit: defaultReportsLimit, Window: defaultReportsWindow},
			Feedback: RateLimitRule{Limit: defaultFeedbackLimit, Window: defaultFeedbackWindow},
		},
		Store:   StoreConfig{KeyPrefix: defaultKeyPrefix},
		Reports: defaultReportsConfig(),
		Logging: LoggingConfig{LogLevel: defaultLogLevel, LogFormat: defaultLogFormat},
		Network: NetworkConfig{Timeout: defaultTimeout, UserAgent: defaultUserAgent},
	}
}

func defaultVisibilityConfig() VisibilityConfig {
	return VisibilityConfig{
		Mode:       defaultVisibilityMode,
		HideTag:    defaultHideTag,
		ShowTag:    defaultShowTag,
		HideSuffix: defaultHideSuffix,
	}
}

func defaultSessionConfig() SessionConfig {
	return SessionConfig{
		TTL:              defaultSessionTTL,
		LocalTTL:         defaultSessionLocalTTL,
		LockTTL:          defaultLockTTL,
		LockPollInterval: defaultLockPollInterval,
		LockPollAttempts: defaultLockPollAttempts,
	}
}

func defaultRetryConfig() RetryConfig {
	return RetryConfig{
		NetworkRetries: defaultNetworkRetries,
		ReloginRetries: defaultReloginRetries,
		BaseBackoff:    defaultBaseBackoff,
		MaxBackoff:     defaultMaxBackoff,
	}
}

func defaultReportsConfig() ReportsConfig {
	path := ""
	if dir := DefaultDataDir(); dir != "" {
		path = filepath.Join(dir, reportsFileName)
	}

	return ReportsConfig{
		DatabasePath:      path,
		DuplicateWindow:   defaultDuplicateWindow,
		MaxPerItem:        defaultMaxPerItem,
		Retention:         defaultReportRetention,
		FeedbackMax:       defaultFeedbackMax,
		FeedbackRetention: defaultFeedbackRetention,

		AnalyticsRetention: defaultAnalyticsRetention,
	}
}
