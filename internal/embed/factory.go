package embed

import (
	"fmt"
	"log/slog"

	"github.com/answerforge/ragcore/internal/config"
)

// New constructs the embedder selected by cfg, wrapped in the LRU cache.
// Provider "openai" requires an API key; "static" never fails; an empty
// provider auto-detects (openai when a key is configured, else static).
func New(cfg config.EmbeddingsConfig, logger *slog.Logger) (Embedder, error) {
	if logger == nil {
		logger = slog.Default()
	}

	inner, err := newProvider(cfg, logger)
	if err != nil {
		return nil, err
	}

	return NewCachedEmbedder(inner, cfg.CacheSize), nil
}

func newProvider(cfg config.EmbeddingsConfig, logger *slog.Logger) (Embedder, error) {
	switch cfg.Provider {
	case "static":
		logger.Info("using static embedder", "dimensions", cfg.Dimensions)
		return NewStaticEmbedder(cfg.Dimensions), nil

	case "openai":
		return NewOpenAIEmbedder(OpenAIConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dims:      cfg.Dimensions,
			BatchSize: cfg.BatchSize,
		})

	case "":
		if cfg.APIKey != "" {
			e, err := NewOpenAIEmbedder(OpenAIConfig{
				APIKey:    cfg.APIKey,
				BaseURL:   cfg.BaseURL,
				Model:     cfg.Model,
				Dims:      cfg.Dimensions,
				BatchSize: cfg.BatchSize,
			})
			if err == nil {
				logger.Info("using openai embedder", "model", cfg.Model)
				return e, nil
			}
			logger.Warn("openai embedder unavailable, falling back to static", "error", err)
		}
		logger.Info("using static embedder", "dimensions", cfg.Dimensions)
		return NewStaticEmbedder(cfg.Dimensions), nil

	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", cfg.Provider)
	}
}
