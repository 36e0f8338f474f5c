package ai

import "github.com/federator/polyglot-query-federator/core"

// AIClient re-exports core.AIClient for callers that only import this
// package.
type AIClient = core.AIClient

var (
	_ AIClient = (*OpenAIClient)(nil)
	_ AIClient = (*AnthropicClient)(nil)
)
