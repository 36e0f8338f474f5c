package ai

import (
	"fmt"

	"github.com/federator/polyglot-query-federator/core"
)

// Provider names a supported LLM backend for the planner.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// NewClient builds an AIClient for the given provider, matching the
// planner's LLMConfig. Returns an error for unknown providers rather than
// silently falling back, so a misconfigured provider is caught at startup.
func NewClient(cfg core.LLMConfig, logger core.Logger) (core.AIClient, error) {
	switch Provider(cfg.Provider) {
	case ProviderAnthropic, "":
		return NewAnthropicClient(cfg.APIKey, cfg.Model, logger), nil
	case ProviderOpenAI:
		return NewOpenAIClient(cfg.APIKey, cfg.Model, logger), nil
	default:
		return nil, fmt.Errorf("%w: unknown llm provider %q", core.ErrInvalidConfiguration, cfg.Provider)
	}
}
