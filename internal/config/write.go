package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// configFilePermissions is owner-only: the file may hold the upstream password.
const configFilePermissions = 0o600

// configDirPermissions is the standard permission mode for config directories.
const configDirPermissions = 0o755

// ErrConfigExists is returned by WriteTemplate when path already exists.
var ErrConfigExists = errors.New("config: file already exists")

// configTemplate is the starter config file. Every setting is present as a
// commented-out default.
const configTemplate = `# synophoto configuration
# Environment variables (SYNOLOGY_PHOTO_BASE_URL, SYNOLOGY_USERNAME,
# SYNOLOGY_PASSWORD, SYNOLOGY_ROOT_FOLDER_ID, PHOTO_VISIBILITY_MODE,
# REDIS_URL) override values set here.

[synology]
# base_url = "https://nas.example.com"
# username = ""
# password = ""
# root_folder_id = ""
# device_name = "synophoto"

[visibility]
# mode = "hide"          # "hide" or "show"
# hide_tag = "hide"
# show_tag = "show"
# hide_suffix = "(hide)"

[session]
# ttl = "6h"
# local_ttl = "5s"
# lock_ttl = "10s"
# lock_poll_interval = "100ms"
# lock_poll_attempts = 30

[retry]
# network_retries = 3
# relogin_retries = 1
# base_backoff = "150ms"
# max_backoff = "1500ms"

[cache]
# folder_scan_ttl = "60s"
# folder_scan_page_size = 200

[ratelimit]
# reports = { limit = 10, window = "60s" }
# feedback = { limit = 5, window = "60s" }

[store]
# redis_url = ""
# redis_addr = ""
# redis_password = ""
# redis_db = 0
# key_prefix = "synophoto:"

[reports]
# database_path = ""
# duplicate_window = "1h"
# max_per_item = 200
# retention = "720h"
# feedback_max = 1000
# feedback_retention = "2160h"
# analytics_retention = "8760h"

[logging]
# log_level = "info"
# log_format = "auto"    # "auto", "text" or "json"

[network]
# timeout = "30s"
# user_agent = "synophoto/0.1"
`

// WriteTemplate creates a starter config file at path. It never overwrites.
func WriteTemplate(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrConfigExists, path)
	}

	slog.Info("creating config file", slog.String("path", path))

	return atomicWriteFile(path, []byte(configTemplate))
}

// atomicWriteFile writes data to a temporary file in the same directory as
// path, then renames it to the target path. Parent directories are created
// as needed.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, configDirPermissions); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	f, err := os.CreateTemp(dir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	tempPath := f.Name()

	succeeded := false
	defer func() {
		if !succeeded {
			os.Remove(tempPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()

		return fmt.Errorf("writing temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Chmod(tempPath, configFilePermissions); err != nil {
		return fmt.Errorf("setting file permissions: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	succeeded = true

	return nil
}
