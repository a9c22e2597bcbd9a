package config

import "sync"

// Holder provides thread-safe access to a mutable *Config and an immutable
// config file path. Components that re-read settings per request (folder
// boundary, visibility) share one Holder, so a reload updates them all.
type Holder struct {
	mu   sync.RWMutex
	cfg  *Config
	path string // immutable after construction
}

// NewHolder creates a Holder with the initial config and config file path.
func NewHolder(cfg *Config, path string) *Holder {
	return &Holder{
		cfg:  cfg,
		path: path,
	}
}

// Config returns the current config snapshot.
func (h *Holder) Config() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.cfg
}

// Path returns the config file path.
func (h *Holder) Path() string {
	return h.path
}

// Update replaces the config.
func (h *Holder) Update(cfg *Config) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.cfg = cfg
}

// Reload re-resolves the config from the holder's path and the current
// environment, keeping the old snapshot when resolution fails.
func (h *Holder) Reload(cli CLIOverrides) error {
	cli.ConfigPath = h.path

	cfg, _, err := Resolve(ReadEnvOverrides(), cli)
	if err != nil {
		return err
	}

	h.Update(cfg)

	return nil
}
