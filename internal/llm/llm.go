// Package llm provides completion provider integrations. The chat pipeline
// treats every provider as an opaque prompt-in, text-out function.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Completer is the single operation the pipeline needs from a language model.
type Completer interface {
	// Complete sends one prompt and returns the model's text verbatim.
	Complete(ctx context.Context, prompt string) (string, error)

	// Name returns the provider name for logging/debugging.
	Name() string
}

const (
	DefaultMaxTokens = 600
	DefaultTimeout   = 60 * time.Second
)

// Config holds LLM provider configuration.
type Config struct {
	Provider  string        // "openai", "groq", "anthropic", "gemini" or "ollama"
	APIKey    string        // API key for the provider (unused by ollama)
	Model     string        // Model name (e.g., "gpt-4o-mini", "llama-3.3-70b-versatile")
	BaseURL   string        // Base URL (for OpenRouter, proxies, local servers)
	MaxTokens int           // Max tokens per completion (0 = DefaultMaxTokens)
	Timeout   time.Duration // Per-call HTTP timeout (0 = DefaultTimeout)
}

// APIError is a non-200 response from a provider.
type APIError struct {
	Provider string
	Status   int
	Message  string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s API error: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("%s API error: status %d", e.Provider, e.Status)
}

type providerDefaults struct {
	model   string
	baseURL string
}

var defaults = map[string]providerDefaults{
	"openai":    {model: "gpt-4o-mini", baseURL: "https://api.openai.com/v1"},
	"groq":      {model: "llama-3.3-70b-versatile", baseURL: "https://api.groq.com/openai/v1"},
	"anthropic": {model: "claude-sonnet-4-20250514", baseURL: "https://api.anthropic.com/v1"},
	"gemini":    {model: "gemini-2.0-flash"},
	"ollama":    {model: "llama3.2", baseURL: "http://localhost:11434"},
}

// NewCompleter creates a completion provider based on configuration.
func NewCompleter(ctx context.Context, cfg Config) (Completer, error) {
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	if cfg.Provider == "" {
		cfg.Provider = "openai"
	}

	d, ok := defaults[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown LLM provider: %q (supported: openai, groq, anthropic, gemini, ollama)", cfg.Provider)
	}
	if cfg.APIKey == "" && cfg.Provider != "ollama" {
		return nil, fmt.Errorf("LLM_API_KEY is required for provider %q", cfg.Provider)
	}
	if cfg.Model == "" {
		cfg.Model = d.model
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = d.baseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	switch cfg.Provider {
	case "openai", "groq":
		return NewOpenAIProvider(cfg.Provider, cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.MaxTokens, cfg.Timeout), nil
	case "anthropic":
		return NewAnthropicProvider(cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.MaxTokens, cfg.Timeout), nil
	case "gemini":
		return NewGeminiProvider(ctx, cfg.APIKey, cfg.Model, cfg.BaseURL, cfg.MaxTokens, cfg.Timeout)
	default:
		return NewOllamaProvider(cfg.BaseURL, cfg.Model, cfg.Timeout), nil
	}
}

// Func adapts a plain function to the Completer interface.
type Func func(ctx context.Context, prompt string) (string, error)

func (f Func) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

func (f Func) Name() string {
	return "func"
}
