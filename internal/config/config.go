// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for synophoto. It supports a four-layer
// override chain (defaults -> config file -> environment -> CLI flags). The
// environment layer may be seeded from a .env file.
package config

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Synology   SynologyConfig   `toml:"synology"`
	Visibility VisibilityConfig `toml:"visibility"`
	Session    SessionConfig    `toml:"session"`
	Retry      RetryConfig      `toml:"retry"`
	Cache      CacheConfig      `toml:"cache"`
	RateLimit  RateLimitConfig  `toml:"ratelimit"`
	Store      StoreConfig      `toml:"store"`
	Reports    ReportsConfig    `toml:"reports"`
	Logging    LoggingConfig    `toml:"logging"`
	Network    NetworkConfig    `toml:"network"`
}

// SynologyConfig locates the upstream and the service account used to log in.
// RootFolderID, when set, confines every folder and item lookup to that
// folder's subtree.
type SynologyConfig struct {
	BaseURL      string `toml:"base_url"`
	Username     string `toml:"username"`
	Password     string `toml:"password"`
	RootFolderID string `toml:"root_folder_id"`
	DeviceName   string `toml:"device_name"`
}

// VisibilityConfig controls which folders and items are served. In "hide"
// mode items tagged HideTag are withheld; in "show" mode only items tagged
// ShowTag are served. Folders whose name ends in HideSuffix are always
// withheld.
type VisibilityConfig struct {
	Mode       string `toml:"mode"`
	HideTag    string `toml:"hide_tag"`
	ShowTag    string `toml:"show_tag"`
	HideSuffix string `toml:"hide_suffix"`
}

// SessionConfig controls upstream session lifetime and the login lock.
// LocalTTL replaces TTL when no shared store is configured.
type SessionConfig struct {
	TTL              string `toml:"ttl"`
	LocalTTL         string `toml:"local_ttl"`
	LockTTL          string `toml:"lock_ttl"`
	LockPollInterval string `toml:"lock_poll_interval"`
	LockPollAttempts int    `toml:"lock_poll_attempts"`
}

// RetryConfig bounds the per-call retry budget.
type RetryConfig struct {
	NetworkRetries int    `toml:"network_retries"`
	ReloginRetries int    `toml:"relogin_retries"`
	BaseBackoff    string `toml:"base_backoff"`
	MaxBackoff     string `toml:"max_backoff"`
}

// CacheConfig tunes the folder scan cache used for item resolution.
type CacheConfig struct {
	FolderScanTTL      string `toml:"folder_scan_ttl"`
	FolderScanPageSize int    `toml:"folder_scan_page_size"`
}

// RateLimitRule is one sliding-window limit.
type RateLimitRule struct {
	Limit  int    `toml:"limit"`
	Window string `toml:"window"`
}

// RateLimitConfig holds the per-scope limits.
type RateLimitConfig struct {
	Reports  RateLimitRule `toml:"reports"`
	Feedback RateLimitRule `toml:"feedback"`
}

// StoreConfig names the shared key-value store. With neither RedisURL nor
// RedisAddr set, state is kept in process memory.
type StoreConfig struct {
	RedisURL      string `toml:"redis_url"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	KeyPrefix     string `toml:"key_prefix"`
}

// ReportsConfig controls the local report and feedback database.
type ReportsConfig struct {
	DatabasePath      string `toml:"database_path"`
	DuplicateWindow   string `toml:"duplicate_window"`
	MaxPerItem        int    `toml:"max_per_item"`
	Retention         string `toml:"retention"`
	FeedbackMax       int    `toml:"feedback_max"`
	FeedbackRetention string `toml:"feedback_retention"`

	// AnalyticsRetention bounds how long view and download events are kept.
	AnalyticsRetention string `toml:"analytics_retention"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// NetworkConfig controls the upstream HTTP client.
type NetworkConfig struct {
	Timeout   string `toml:"timeout"`
	UserAgent string `toml:"user_agent"`
}

// CLIOverrides holds values from command-line flags. Pointer fields
// distinguish "not specified" (nil) from explicit values.
type CLIOverrides struct {
	ConfigPath   string
	EnvFile      string
	RootFolderID *string
	Visibility   *string
}
