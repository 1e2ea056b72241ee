package llm

import (
	"strings"
	"time"
)

// Default endpoints per provider.
const (
	DefaultOpenAIEndpoint     = "https://api.openai.com/v1"
	DefaultAnthropicEndpoint  = "https://api.anthropic.com"
	DefaultOpenRouterEndpoint = "https://openrouter.ai/api/v1"
)

// DefaultTimeout bounds every provider call.
const DefaultTimeout = 60 * time.Second

// Chat models offered in the configuration screen.
var ChatModels = []string{"gpt-4", "gpt-4-turbo", "gpt-3.5-turbo"}

// ProviderConfig defines runtime-selectable generator settings.
type ProviderConfig struct {
	Provider string        `json:"provider" mapstructure:"provider"` // "openai" | "anthropic" | "openrouter"
	Endpoint string        `json:"endpoint" mapstructure:"endpoint"`
	Model    string        `json:"model" mapstructure:"model"`
	APIKey   string        `json:"api_key" mapstructure:"api_key"`
	Timeout  time.Duration `json:"timeout" mapstructure:"timeout"`
}

// DefaultConfig targets OpenAI with the chat default model.
func DefaultConfig() ProviderConfig {
	return ProviderConfig{
		Provider: "openai",
		Endpoint: DefaultOpenAIEndpoint,
		Model:    "gpt-3.5-turbo",
		Timeout:  DefaultTimeout,
	}
}

// withDefaults fills the blanks of c for its provider.
func (c ProviderConfig) withDefaults() ProviderConfig {
	c.Provider = normalize(strings.TrimSpace(c.Provider))
	if c.Provider == "" {
		c.Provider = "openai"
	}
	c.Endpoint = strings.TrimSpace(c.Endpoint)
	if c.Endpoint == "" {
		switch c.Provider {
		case "openai":
			c.Endpoint = DefaultOpenAIEndpoint
		case "anthropic":
			c.Endpoint = DefaultAnthropicEndpoint
		case "openrouter":
			c.Endpoint = DefaultOpenRouterEndpoint
		}
	}
	c.Model = strings.TrimSpace(c.Model)
	if c.Model == "" {
		switch c.Provider {
		case "anthropic":
			c.Model = "claude-3-5-haiku-latest"
		case "openai":
			c.Model = "gpt-3.5-turbo"
		}
	}
	c.APIKey = strings.TrimSpace(c.APIKey)
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}
