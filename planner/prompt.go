package planner

import (
	"encoding/json"
	"fmt"

	"github.com/federator/polyglot-query-federator/catalog"
)

// promptTemplate is the fixed instruction set sent with every planning
// call. It names the allowed input shape per tool and the cross-step
// reference syntax verbatim, so the LLM's output can be validated
// mechanically rather than trusted.
const promptTemplate = `You are a query planner for a polyglot data federator. Given a
natural-language request and a description of the available data sources,
produce a JSON array of plan steps. Respond with the JSON array only - no
prose, no markdown fences.

Each step has this shape:
{
  "id": "string, unique within the plan",
  "description": "string",
  "mcp_id": "must be one of the source ids below",
  "db_type": "sql | nosql | graph | vector",
  "tool": "must be one of that source's tools",
  "input": { tool-specific payload },
  "depends_on": "optional: an earlier step's id",
  "output_alias": "required on every step, e.g. customer, customers, recent_orders, referrals, similar_customers",
  "optional": false
}

Allowed input per tool:
- execute_sql: {"query": "SELECT ... with ? placeholders", "params": [...]}. SELECT statements only, never INSERT/UPDATE/DELETE.
- find: {"filter": {...}, "limit": optional int, "sort": optional object}
- traverse: {"start": {"property": "...", "value": "..."}, "rel": "REFERRED", "depth": 1}
- search: {"embedding": [...], "top_k": int} OR {"embedding_from": "<step_id>.<field>", "top_k": int}

Cross-step references: any input key ending in "_from" takes a string value
of the form "<step_id>.<field>[.<field>...]", which the execution engine
resolves from an earlier step's first result row before dispatch. Only
reference step ids that appear earlier in the array.

Natural-language request:
%s

Available sources:
%s
`

// BuildPrompt substitutes nlQuery and the catalog's LLM-facing source
// descriptors into promptTemplate.
func BuildPrompt(nlQuery string, sources []catalog.SourceDescriptor) (string, error) {
	encoded, err := json.MarshalIndent(sources, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding sources for prompt: %w", err)
	}
	return fmt.Sprintf(promptTemplate, nlQuery, string(encoded)), nil
}
