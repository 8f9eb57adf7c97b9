package llm

import (
	"fmt"
	"log/slog"

	"github.com/answerforge/ragcore/internal/config"
)

// New selects the completion provider: "openai", "stub", or empty for
// auto-detection based on whether an API key is configured.
func New(cfg config.LLMConfig, logger *slog.Logger) (Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Provider {
	case "stub":
		return NewStubClient(), nil

	case "openai":
		return NewOpenAIClient(cfg, logger)

	case "", "auto":
		if cfg.APIKey != "" {
			client, err := NewOpenAIClient(cfg, logger)
			if err == nil {
				logger.Info("using openai completion provider", "model", cfg.Model)
				return client, nil
			}
			logger.Warn("openai provider unavailable, using stub", "error", err)
		}
		return NewStubClient(), nil

	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
