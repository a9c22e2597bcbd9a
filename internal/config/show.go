package config

import (
	"fmt"
	"io"
)

// redacted replaces secret values in rendered output.
const redacted = "<redacted>"

// RenderEffective writes the resolved configuration as an annotated summary
// to w. Secrets are shown only as set or unset. This powers the
// "config show" command.
func RenderEffective(cfg *Config, path string, w io.Writer) error {
	ew := &errWriter{w: w}

	if path != "" {
		ew.printf("# Effective configuration (file: %s)\n\n", path)
	} else {
		ew.printf("# Effective configuration (no config file)\n\n")
	}

	renderSynologySection(ew, &cfg.Synology)

	v := cfg.Visibility
	ew.printf("[visibility]\n")
	ew.printf("  mode        = %q\n", v.Mode)
	ew.printf("  hide_tag    = %q\n", v.HideTag)
	ew.printf("  show_tag    = %q\n", v.ShowTag)
	ew.printf("  hide_suffix = %q\n\n", v.HideSuffix)

	s := cfg.Session
	ew.printf("[session]\n")
	ew.printf("  ttl                = %q\n", s.TTL)
	ew.printf("  local_ttl          = %q\n", s.LocalTTL)
	ew.printf("  lock_ttl           = %q\n", s.LockTTL)
	ew.printf("  lock_poll_interval = %q\n", s.LockPollInterval)
	ew.printf("  lock_poll_attempts = %d\n\n", s.LockPollAttempts)

	r := cfg.Retry
	ew.printf("[retry]\n")
	ew.printf("  network_retries = %d\n", r.NetworkRetries)
	ew.printf("  relogin_retries = %d\n", r.ReloginRetries)
	ew.printf("  base_backoff    = %q\n", r.BaseBackoff)
	ew.printf("  max_backoff     = %q\n\n", r.MaxBackoff)

	ew.printf("[cache]\n")
	ew.printf("  folder_scan_ttl       = %q\n", cfg.Cache.FolderScanTTL)
	ew.printf("  folder_scan_page_size = %d\n\n", cfg.Cache.FolderScanPageSize)

	ew.printf("[ratelimit]\n")
	ew.printf("  reports  = { limit = %d, window = %q }\n", cfg.RateLimit.Reports.Limit, cfg.RateLimit.Reports.Window)
	ew.printf("  feedback = { limit = %d, window = %q }\n\n", cfg.RateLimit.Feedback.Limit, cfg.RateLimit.Feedback.Window)

	renderStoreSection(ew, &cfg.Store)

	rp := cfg.Reports
	ew.printf("[reports]\n")
	ew.printf("  database_path       = %q\n", rp.DatabasePath)
	ew.printf("  duplicate_window    = %q\n", rp.DuplicateWindow)
	ew.printf("  max_per_item        = %d\n", rp.MaxPerItem)
	ew.printf("  retention           = %q\n", rp.Retention)
	ew.printf("  feedback_max        = %d\n", rp.FeedbackMax)
	ew.printf("  feedback_retention  = %q\n", rp.FeedbackRetention)
	ew.printf("  analytics_retention = %q\n\n", rp.AnalyticsRetention)

	ew.printf("[logging]\n")
	ew.printf("  log_level  = %q\n", cfg.Logging.LogLevel)
	ew.printf("  log_format = %q\n\n", cfg.Logging.LogFormat)

	ew.printf("[network]\n")
	ew.printf("  timeout    = %q\n", cfg.Network.Timeout)
	ew.printf("  user_agent = %q\n", cfg.Network.UserAgent)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func renderSynologySection(ew *errWriter, s *SynologyConfig) {
	ew.printf("[synology]\n")
	ew.printf("  base_url       = %q\n", s.BaseURL)
	ew.printf("  username       = %q\n", s.Username)
	ew.printf("  password       = %s\n", secret(s.Password))

	if s.RootFolderID != "" {
		ew.printf("  root_folder_id = %q\n", s.RootFolderID)
	}

	ew.printf("  device_name    = %q\n\n", s.DeviceName)
}

func renderStoreSection(ew *errWriter, s *StoreConfig) {
	ew.printf("[store]\n")

	if s.RedisURL != "" {
		// URLs may embed credentials.
		ew.printf("  redis_url      = %s\n", redacted)
	}

	if s.RedisAddr != "" {
		ew.printf("  redis_addr     = %q\n", s.RedisAddr)
		ew.printf("  redis_password = %s\n", secret(s.RedisPassword))
		ew.printf("  redis_db       = %d\n", s.RedisDB)
	}

	ew.printf("  key_prefix     = %q\n\n", s.KeyPrefix)
}

func secret(v string) string {
	if v == "" {
		return `""`
	}

	return redacted
}
