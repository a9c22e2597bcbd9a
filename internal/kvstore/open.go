package kvstore

import (
	"context"
	"log/slog"
)

// Open returns a Redis store when cfg names an endpoint, otherwise an
// in-process Memory store. Shared reports whether the returned store
// coordinates across processes.
func Open(ctx context.Context, cfg RedisConfig, logger *slog.Logger) (store Store, shared bool, err error) {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.URL == "" && cfg.Addr == "" {
		logger.Warn("no redis endpoint configured, using in-process store")
		return NewMemory(), false, nil
	}

	r, err := OpenRedis(ctx, cfg)
	if err != nil {
		return nil, false, err
	}

	logger.Debug("connected to redis", slog.Bool("url", cfg.URL != ""), slog.Int("db", cfg.DB))

	return r, true, nil
}
