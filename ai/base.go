package ai

import (
	"fmt"
	"net/http"
	"time"

	"github.com/federator/polyglot-query-federator/core"
)

// BaseClient provides the HTTP plumbing and logging shared by every
// provider-specific client: a timeout-bound http.Client, a logger, and the
// default generation parameters applied when a planner call leaves them
// unset.
type BaseClient struct {
	HTTPClient *http.Client
	Logger     core.Logger

	DefaultModel       string
	DefaultTemperature float32
	DefaultMaxTokens   int
}

// NewBaseClient creates a base client with sane defaults.
func NewBaseClient(timeout time.Duration, logger core.Logger) *BaseClient {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &BaseClient{
		HTTPClient:         &http.Client{Timeout: timeout},
		Logger:             logger,
		DefaultTemperature: 0.2,
		DefaultMaxTokens:   2000,
	}
}

// ApplyDefaults fills unset fields of options with the client's defaults.
// The planner sends a low temperature by convention (plan generation wants
// determinism, not creativity) but callers may still override it.
func (b *BaseClient) ApplyDefaults(options *core.AIOptions) *core.AIOptions {
	if options == nil {
		options = &core.AIOptions{}
	}
	if options.Model == "" {
		options.Model = b.DefaultModel
	}
	if options.Temperature == 0 {
		options.Temperature = b.DefaultTemperature
	}
	if options.MaxTokens == 0 {
		options.MaxTokens = b.DefaultMaxTokens
	}
	return options
}

// LogRequest logs an outgoing planning request at debug level.
func (b *BaseClient) LogRequest(provider, model string, promptLen int) {
	b.Logger.Debug("ai request", map[string]interface{}{
		"provider":      provider,
		"model":         model,
		"prompt_length": promptLen,
	})
}

// LogResponse logs a completed planning request at debug level.
func (b *BaseClient) LogResponse(provider, model string, usage core.TokenUsage, d time.Duration) {
	b.Logger.Debug("ai response", map[string]interface{}{
		"provider":     provider,
		"model":        model,
		"total_tokens": usage.TotalTokens,
		"duration":     d,
	})
}

// HandleError translates an HTTP error response into a consistent message.
func (b *BaseClient) HandleError(statusCode int, body []byte, provider string) error {
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%s: invalid or missing API key", provider)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%s: rate limit exceeded", provider)
	case http.StatusBadRequest:
		return fmt.Errorf("%s: invalid request: %s", provider, string(body))
	default:
		return fmt.Errorf("%s: request failed (status %d): %s", provider, statusCode, string(body))
	}
}
