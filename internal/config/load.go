package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal, with "did you mean?" suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values. A deployment configured purely
// through the environment needs no file.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables -> CLI flags.
// It returns the validated config and the config path that was used.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Config, string, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, "", err
	}

	ApplyEnv(cfg, env)

	if cli.RootFolderID != nil {
		cfg.Synology.RootFolderID = *cli.RootFolderID
	}

	if cli.Visibility != nil {
		cfg.Visibility.Mode = *cli.Visibility
	}

	if err := Validate(cfg); err != nil {
		return nil, "", fmt.Errorf("config validation: %w", err)
	}

	return cfg, cfgPath, nil
}
