package llm

import (
	"context"
	"fmt"
	"time"
)

type Config struct {
	// Provider is one of "openai", "deepseek", "anthropic", "gemini", "mock".
	// Empty disables the LLM.
	Provider string

	OpenAI    OpenAIConfig
	Anthropic AnthropicConfig
	Gemini    GeminiConfig
	Retry     RetryConfig
	Timeout   time.Duration
}

type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type AnthropicConfig struct {
	APIKey string
	Model  string
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

func DefaultConfig() Config {
	return Config{
		OpenAI:    OpenAIConfig{Model: "gpt-mini"},
		Anthropic: AnthropicConfig{Model: "claude-haiku"},
		Gemini:    GeminiConfig{Model: "gemini-flash"},
		Retry: RetryConfig{
			MaxAttempts: 3,
			InitialWait: time.Second,
			MaxWait:     10 * time.Second,
			Multiplier:  2,
		},
		Timeout: 30 * time.Second,
	}
}

// Enabled reports whether a provider is selected.
func (c Config) Enabled() bool { return c.Provider != "" }

// New builds the configured provider wrapped with retries.
func New(ctx context.Context, cfg Config) (Provider, error) {
	var (
		p   Provider
		err error
	)
	switch cfg.Provider {
	case "openai":
		p, err = NewOpenAIProvider(cfg.OpenAI)
	case "deepseek":
		oc := cfg.OpenAI
		if oc.BaseURL == "" {
			oc.BaseURL = DeepSeekBaseURL
		}
		if oc.Model == "" || oc.Model == "gpt-mini" {
			oc.Model = "deepseek-chat"
		}
		p, err = NewOpenAIProvider(oc)
	case "anthropic":
		p, err = NewAnthropicProvider(cfg.Anthropic)
	case "gemini":
		p, err = NewGeminiProvider(ctx, cfg.Gemini)
	case "mock":
		return NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s provider: %w", cfg.Provider, err)
	}
	retry := cfg.Retry
	retry.Timeout = cfg.Timeout
	return WithRetry(p, retry), nil
}
