package planner

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/federator/polyglot-query-federator/catalog"
	"github.com/federator/polyglot-query-federator/core"
)

// Catalog is the slice of the Schema Catalog the planner needs.
type Catalog interface {
	EnsureLoaded(ctx context.Context) error
	BuildSourcesForLLM() []catalog.SourceDescriptor
	DiscoverCandidates(nlQuery string) []catalog.Candidate
	Get(sourceID string) (catalog.SourceSchema, bool)
}

// fromRefPattern matches the cross-step reference syntax
// "<step_id>.<field>[.<field>...]".
var fromRefPattern = regexp.MustCompile(`^[A-Za-z0-9_\-]+(\.[A-Za-z0-9_\-]+)+$`)

var listCustomersPhrases = []string{
	"list of all customers",
	"all customers",
	"list all customers",
	"give me a list of all customers",
	"show all customers",
	"list customers",
	"list clients",
}

// Planner implements plan(nl_query) -> [PlanStep]: an LLM-driven planning
// call validated against the schema catalog, falling back to a
// deterministic heuristic plan when the LLM is unavailable, fails to
// parse, or returns nothing usable.
type Planner struct {
	catalog Catalog
	llm     core.AIClient
	logger  core.Logger
}

// New builds a Planner. llm may be nil, in which case every call uses the
// heuristic fallback.
func New(cat Catalog, llm core.AIClient, logger core.Logger) *Planner {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("federator/planner")
	}
	return &Planner{catalog: cat, llm: llm, logger: logger}
}

// Plan produces a validated plan for nlQuery.
func (p *Planner) Plan(ctx context.Context, nlQuery string) ([]PlanStep, error) {
	if err := p.catalog.EnsureLoaded(ctx); err != nil {
		p.logger.WarnWithContext(ctx, "schema catalog load failed, continuing with what loaded", map[string]interface{}{
			"error": err.Error(),
		})
	}
	sources := p.catalog.BuildSourcesForLLM()

	steps := p.planWithLLM(ctx, nlQuery, sources)
	if len(steps) > 0 {
		return steps, nil
	}

	p.logger.InfoWithContext(ctx, "falling back to heuristic plan", map[string]interface{}{"nl_query": nlQuery})
	return p.heuristicPlan(nlQuery, sources), nil
}

func (p *Planner) planWithLLM(ctx context.Context, nlQuery string, sources []catalog.SourceDescriptor) []PlanStep {
	if p.llm == nil {
		return nil
	}

	prompt, err := BuildPrompt(nlQuery, sources)
	if err != nil {
		p.logger.ErrorWithContext(ctx, "building planner prompt failed", map[string]interface{}{"error": err.Error()})
		return nil
	}

	resp, err := p.llm.GenerateResponse(ctx, prompt, &core.AIOptions{Temperature: 0.2})
	if err != nil {
		p.logger.WarnWithContext(ctx, "planner LLM call failed", map[string]interface{}{"error": err.Error()})
		return nil
	}

	raw := extractJSONArray(resp.Content)
	if raw == "" {
		p.logger.WarnWithContext(ctx, "planner LLM response had no JSON array", nil)
		return nil
	}

	var parsed []PlanStep
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		p.logger.WarnWithContext(ctx, "planner LLM response failed to parse", map[string]interface{}{"error": err.Error()})
		return nil
	}

	return p.validate(ctx, parsed, sources)
}

// extractJSONArray returns the first top-level "[...]" substring of text,
// tolerating prose or markdown fencing around it.
func extractJSONArray(text string) string {
	start := strings.IndexByte(text, '[')
	if start < 0 {
		return ""
	}
	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}

func (p *Planner) validate(ctx context.Context, steps []PlanStep, sources []catalog.SourceDescriptor) []PlanStep {
	sourceByID := make(map[string]catalog.SourceDescriptor, len(sources))
	for _, s := range sources {
		sourceByID[s.SourceID] = s
	}

	seen := make(map[string]bool, len(steps))
	valid := make([]PlanStep, 0, len(steps))

	for _, step := range steps {
		src, ok := sourceByID[step.SourceID]
		if !ok {
			p.logger.WarnWithContext(ctx, "dropping plan step: unknown mcp_id", map[string]interface{}{"step_id": step.ID, "mcp_id": step.SourceID})
			continue
		}

		if !toolAllowed(src.Tools, string(step.Tool)) {
			p.logger.WarnWithContext(ctx, "dropping plan step: disallowed tool for db_type", map[string]interface{}{"step_id": step.ID, "tool": step.Tool, "mcp_id": step.SourceID})
			continue
		}

		if step.DependsOn != "" && !seen[step.DependsOn] {
			p.logger.WarnWithContext(ctx, "dropping plan step: depends_on targets unknown or later step", map[string]interface{}{"step_id": step.ID, "depends_on": step.DependsOn})
			continue
		}

		if !refsValid(step.Input, seen) {
			p.logger.WarnWithContext(ctx, "dropping plan step: malformed cross-step reference", map[string]interface{}{"step_id": step.ID})
			continue
		}

		seen[step.ID] = true
		valid = append(valid, step)
	}

	return valid
}

func toolAllowed(allowed []string, tool string) bool {
	for _, t := range allowed {
		if t == tool {
			return true
		}
	}
	return false
}

// refsValid checks every "_from"-suffixed input key against
// fromRefPattern and requires its referenced step id to already be seen.
func refsValid(input map[string]interface{}, seen map[string]bool) bool {
	for key, value := range input {
		if !strings.HasSuffix(key, "_from") {
			continue
		}
		ref, ok := value.(string)
		if !ok || !fromRefPattern.MatchString(ref) {
			return false
		}
		stepID := strings.SplitN(ref, ".", 2)[0]
		if !seen[stepID] {
			return false
		}
	}
	return true
}

// heuristicPlan emits a deterministic single-step SQL plan when the LLM is
// unavailable or unusable, grounded entirely in registered sources.
func (p *Planner) heuristicPlan(nlQuery string, sources []catalog.SourceDescriptor) []PlanStep {
	candidates := p.catalog.DiscoverCandidates(nlQuery)
	if len(candidates) == 0 {
		return nil
	}

	top := candidates[0]
	schema, ok := p.catalog.Get(top.SourceID)
	if !ok {
		return nil
	}

	if isListCustomersQuery(nlQuery) {
		return []PlanStep{{
			ID:          "s1",
			Description: "list all customers (heuristic fallback)",
			SourceID:    top.SourceID,
			DbType:      schema.DbType,
			Tool:        ToolExecuteSQL,
			Input: map[string]interface{}{
				"query": "SELECT id, name, email FROM " + top.Entity,
			},
			OutputAlias: "customers",
		}}
	}

	return []PlanStep{{
		ID:          "s1",
		Description: "single-row lookup (heuristic fallback)",
		SourceID:    top.SourceID,
		DbType:      schema.DbType,
		Tool:        ToolExecuteSQL,
		Input: map[string]interface{}{
			"query": "SELECT * FROM " + top.Entity + " LIMIT 1",
		},
		OutputAlias: "customer",
	}}
}

func isListCustomersQuery(nlQuery string) bool {
	lower := strings.ToLower(nlQuery)
	for _, phrase := range listCustomersPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
