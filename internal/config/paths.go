package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Platform identifiers.
const (
	platformLinux  = "linux"
	platformDarwin = "darwin"
)

// Application directory name used across all platforms.
const appName = "synophoto"

// Config file name.
const configFileName = "config.toml"

// DefaultConfigDir returns the platform-specific directory for config files.
// On Linux, respects XDG_CONFIG_HOME (defaults to ~/.config/synophoto).
// On macOS, uses ~/Library/Application Support/synophoto.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return xdgDir("XDG_CONFIG_HOME", home, ".config")
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".config", appName)
	}
}

// DefaultDataDir returns the platform-specific directory for application
// data (the reports database).
// On Linux, respects XDG_DATA_HOME (defaults to ~/.local/share/synophoto).
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return xdgDir("XDG_DATA_HOME", home, ".local", "share")
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".local", "share", appName)
	}
}

// xdgDir returns $env/synophoto when env is set, else home/fallback.../synophoto.
func xdgDir(env, home string, fallback ...string) string {
	if xdg := os.Getenv(env); xdg != "" {
		return filepath.Join(xdg, appName)
	}

	parts := append([]string{home}, fallback...)

	return filepath.Join(append(parts, appName)...)
}

// DefaultConfigPath returns the full path to the default config file.
// This is the fallback when neither SYNOPHOTO_CONFIG nor --config is given.
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, configFileName)
}
