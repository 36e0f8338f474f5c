package ai

import (
	"context"
	"fmt"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/federator/polyglot-query-federator/core"
)

// AnthropicClient implements core.AIClient on top of Claude's Messages API.
// It is the planner's default LLM client: a single non-streaming completion
// call per query, since the planner needs one JSON plan back, not an
// incremental token stream.
type AnthropicClient struct {
	*BaseClient
	sdk *sdk.Client
}

// NewAnthropicClient builds a client from an API key. When apiKey is empty
// the SDK falls back to the ANTHROPIC_API_KEY environment variable.
func NewAnthropicClient(apiKey, model string, logger core.Logger) *AnthropicClient {
	base := NewBaseClient(60*time.Second, logger)
	base.DefaultModel = model
	if base.DefaultModel == "" {
		base.DefaultModel = string(sdk.ModelClaude3_5HaikuLatest)
	}

	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := sdk.NewClient(opts...)

	return &AnthropicClient{BaseClient: base, sdk: &client}
}

// GenerateResponse sends prompt (plus an optional system prompt) to Claude
// and returns the first text block of its reply.
func (c *AnthropicClient) GenerateResponse(ctx context.Context, prompt string, options *core.AIOptions) (*core.AIResponse, error) {
	options = c.ApplyDefaults(options)
	start := time.Now()
	c.LogRequest("anthropic", options.Model, len(prompt))

	params := sdk.MessageNewParams{
		Model:     sdk.Model(options.Model),
		MaxTokens: int64(options.MaxTokens),
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	}
	if options.Temperature > 0 {
		params.Temperature = sdk.Float(float64(options.Temperature))
	}
	if options.SystemPrompt != "" {
		params.System = []sdk.TextBlockParam{{Text: options.SystemPrompt}}
	}

	msg, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		c.Logger.Error("anthropic request failed", map[string]interface{}{"error": err.Error()})
		return nil, fmt.Errorf("anthropic messages.new: %w", err)
	}

	var content string
	for _, block := range msg.Content {
		if block.Type == "text" && block.Text != "" {
			content = block.Text
			break
		}
	}

	usage := core.TokenUsage{
		PromptTokens:     int(msg.Usage.InputTokens),
		CompletionTokens: int(msg.Usage.OutputTokens),
		TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
	}
	c.LogResponse("anthropic", options.Model, usage, time.Since(start))

	return &core.AIResponse{
		Content: content,
		Model:   options.Model,
		Usage:   usage,
	}, nil
}

var _ core.AIClient = (*AnthropicClient)(nil)
