package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variable names for overrides. The upstream and store names
// match the ones used by existing deployments.
const (
	EnvConfig         = "SYNOPHOTO_CONFIG"
	EnvBaseURL        = "SYNOLOGY_PHOTO_BASE_URL"
	EnvUsername       = "SYNOLOGY_USERNAME"
	EnvPassword       = "SYNOLOGY_PASSWORD"
	EnvRootFolderID   = "SYNOLOGY_ROOT_FOLDER_ID"
	EnvVisibilityMode = "PHOTO_VISIBILITY_MODE"
	EnvRedisURL       = "REDIS_URL"
)

// defaultEnvFile is read from the working directory when present.
const defaultEnvFile = ".env"

// EnvOverrides holds values derived from environment variables. Empty
// strings mean "not set".
type EnvOverrides struct {
	ConfigPath     string
	BaseURL        string
	Username       string
	Password       string
	RootFolderID   string
	VisibilityMode string
	RedisURL       string
}

// LoadEnvFile seeds the process environment from a .env file. Variables
// already set in the environment win. An empty path means ".env" in the
// working directory; a missing default file is not an error, a missing
// explicit one is.
func LoadEnvFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = defaultEnvFile
	}

	err := godotenv.Load(path)
	if err == nil {
		return nil
	}

	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return fmt.Errorf("loading env file %s: %w", path, err)
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// This does not modify the Config; ApplyEnv does.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:     os.Getenv(EnvConfig),
		BaseURL:        strings.TrimSpace(os.Getenv(EnvBaseURL)),
		Username:       os.Getenv(EnvUsername),
		Password:       os.Getenv(EnvPassword),
		RootFolderID:   strings.TrimSpace(os.Getenv(EnvRootFolderID)),
		VisibilityMode: strings.ToLower(strings.TrimSpace(os.Getenv(EnvVisibilityMode))),
		RedisURL:       strings.TrimSpace(os.Getenv(EnvRedisURL)),
	}
}

// ApplyEnv copies every set override onto cfg. An unrecognized visibility
// mode is ignored so the configured (or default) mode stays in force.
func ApplyEnv(cfg *Config, env EnvOverrides) {
	if env.BaseURL != "" {
		cfg.Synology.BaseURL = env.BaseURL
	}

	if env.Username != "" {
		cfg.Synology.Username = env.Username
	}

	if env.Password != "" {
		cfg.Synology.Password = env.Password
	}

	if env.RootFolderID != "" {
		cfg.Synology.RootFolderID = env.RootFolderID
	}

	if env.VisibilityMode == VisibilityHide || env.VisibilityMode == VisibilityShow {
		cfg.Visibility.Mode = env.VisibilityMode
	}

	if env.RedisURL != "" {
		cfg.Store.RedisURL = env.RedisURL
	}
}
