package cache

import (
	"context"
	"log/slog"

	"github.com/answerforge/ragcore/internal/config"
)

// New selects the backend from config: Redis when an address is set, the
// in-memory LRU otherwise. A Redis connection failure falls back to memory
// with a warning so the pipeline keeps serving.
func New(ctx context.Context, cfg config.CacheConfig, appName string, logger *slog.Logger) Cache {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.RedisAddr != "" {
		c, err := NewRedisCache(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, appName)
		if err == nil {
			logger.Info("using redis cache", "addr", cfg.RedisAddr)
			return c
		}
		logger.Warn("redis unavailable, falling back to memory cache", "error", err)
	}

	logger.Info("using in-memory cache", "max_entries", cfg.MaxEntries)
	return NewMemoryCache(cfg.MaxEntries, appName)
}
