package llm

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// HealthChecker is an optional capability a generator can implement so the
// server can report provider reachability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Build constructs a Generator from a ProviderConfig.
func Build(cfg ProviderConfig, logger *log.Logger) (Generator, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[llm] ", log.LstdFlags)
	}
	cfg = cfg.withDefaults()
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: api key required", cfg.Provider)
	}
	switch cfg.Provider {
	case "openai":
		return NewOpenAI(cfg, logger), nil
	case "anthropic":
		return NewAnthropic(cfg, logger), nil
	case "openrouter":
		return NewOpenRouter(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", cfg.Provider)
	}
}

// TryHealthCheck runs a health check when the generator supports one.
func TryHealthCheck(ctx context.Context, g Generator) error {
	if h, ok := g.(HealthChecker); ok {
		return h.HealthCheck(ctx)
	}
	return nil
}

func normalize(s string) string {
	switch strings.ToLower(s) {
	case "openai", "open_ai", "chatgpt":
		return "openai"
	case "anthropic", "claude":
		return "anthropic"
	case "openrouter", "open_router":
		return "openrouter"
	default:
		return strings.ToLower(s)
	}
}
