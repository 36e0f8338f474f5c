// Package planner implements the Planner (C4): it turns a natural-language
// query into an ordered list of PlanStep values the execution engine can
// run, either by asking an LLM or, when that is unavailable or unusable, by
// falling back to a deterministic heuristic plan.
package planner

import "github.com/federator/polyglot-query-federator/catalog"

// Tool names the dispatcher operation a PlanStep invokes.
type Tool string

const (
	ToolExecuteSQL Tool = "execute_sql"
	ToolFind       Tool = "find"
	ToolTraverse   Tool = "traverse"
	ToolSearch     Tool = "search"
	ToolGetSchema  Tool = "get_schema"
)

// PlanStep is one unit of work in a plan: which source to call, with which
// tool and payload, and (optionally) which earlier step it depends on.
type PlanStep struct {
	ID          string                 `json:"id"`
	Description string                 `json:"description,omitempty"`
	SourceID    string                 `json:"mcp_id"`
	DbType      catalog.DbType         `json:"db_type"`
	Tool        Tool                   `json:"tool"`
	Input       map[string]interface{} `json:"input"`
	DependsOn   string                 `json:"depends_on,omitempty"`
	OutputAlias string                 `json:"output_alias,omitempty"`
	Optional    bool                   `json:"optional,omitempty"`
}
