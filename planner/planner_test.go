package planner

import (
	"context"
	"testing"

	"github.com/federator/polyglot-query-federator/catalog"
	"github.com/federator/polyglot-query-federator/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalog struct {
	sources    []catalog.SourceDescriptor
	candidates []catalog.Candidate
	schemas    map[string]catalog.SourceSchema
}

func (f *fakeCatalog) EnsureLoaded(ctx context.Context) error                  { return nil }
func (f *fakeCatalog) BuildSourcesForLLM() []catalog.SourceDescriptor         { return f.sources }
func (f *fakeCatalog) DiscoverCandidates(nlQuery string) []catalog.Candidate  { return f.candidates }
func (f *fakeCatalog) Get(sourceID string) (catalog.SourceSchema, bool) {
	s, ok := f.schemas[sourceID]
	return s, ok
}

func customerSource() catalog.SourceDescriptor {
	return catalog.SourceDescriptor{
		SourceID: "postgres-customers",
		DbType:   catalog.DbTypeSQL,
		Tools:    []string{"execute_sql", "get_schema"},
		Entities: []catalog.EntityDescriptor{{Name: "customers", SemanticTags: []string{"entity:customer"}, DefaultIDField: "id"}},
	}
}

type fakeLLM struct {
	content string
	err     error
}

func (f *fakeLLM) GenerateResponse(ctx context.Context, prompt string, options *core.AIOptions) (*core.AIResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &core.AIResponse{Content: f.content}, nil
}

func TestPlanValidatesAndDropsUnknownSource(t *testing.T) {
	llmJSON := `[
	  {"id":"s1","mcp_id":"postgres-customers","db_type":"sql","tool":"execute_sql","input":{"query":"SELECT id FROM customers"},"output_alias":"customer"},
	  {"id":"s2","mcp_id":"unknown-source","db_type":"sql","tool":"execute_sql","input":{},"output_alias":"x"}
	]`
	cat := &fakeCatalog{sources: []catalog.SourceDescriptor{customerSource()}}
	p := New(cat, &fakeLLM{content: llmJSON}, nil)

	steps, err := p.Plan(context.Background(), "find a customer")
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, "postgres-customers", steps[0].SourceID)
}

func TestPlanDropsDisallowedTool(t *testing.T) {
	llmJSON := `[{"id":"s1","mcp_id":"postgres-customers","db_type":"sql","tool":"find","input":{},"output_alias":"customer"}]`
	cat := &fakeCatalog{sources: []catalog.SourceDescriptor{customerSource()}}
	p := New(cat, &fakeLLM{content: llmJSON}, nil)

	steps, err := p.Plan(context.Background(), "find a customer")
	require.NoError(t, err)
	assert.Empty(t, steps)
}

func TestPlanDropsMalformedDependsOn(t *testing.T) {
	llmJSON := `[{"id":"s1","mcp_id":"postgres-customers","db_type":"sql","tool":"execute_sql","input":{},"depends_on":"ghost","output_alias":"customer"}]`
	cat := &fakeCatalog{sources: []catalog.SourceDescriptor{customerSource()}}
	p := New(cat, &fakeLLM{content: llmJSON}, nil)

	steps, err := p.Plan(context.Background(), "find a customer")
	require.NoError(t, err)
	assert.Empty(t, steps)
}

func TestPlanValidatesFromReference(t *testing.T) {
	llmJSON := `[
	  {"id":"s1","mcp_id":"postgres-customers","db_type":"sql","tool":"execute_sql","input":{"query":"SELECT embedding FROM customers"},"output_alias":"customer"},
	  {"id":"s2","mcp_id":"postgres-customers","db_type":"sql","tool":"execute_sql","input":{"embedding_from":"s1.embedding"},"output_alias":"similar_customers","depends_on":"s1"}
	]`
	cat := &fakeCatalog{sources: []catalog.SourceDescriptor{customerSource()}}
	p := New(cat, &fakeLLM{content: llmJSON}, nil)

	steps, err := p.Plan(context.Background(), "find similar customers")
	require.NoError(t, err)
	require.Len(t, steps, 2)
}

func TestPlanDropsUnresolvableFromReference(t *testing.T) {
	llmJSON := `[{"id":"s1","mcp_id":"postgres-customers","db_type":"sql","tool":"execute_sql","input":{"embedding_from":"not-a-ref"},"output_alias":"similar_customers"}]`
	cat := &fakeCatalog{sources: []catalog.SourceDescriptor{customerSource()}}
	p := New(cat, &fakeLLM{content: llmJSON}, nil)

	steps, err := p.Plan(context.Background(), "find similar customers")
	require.NoError(t, err)
	assert.Empty(t, steps)
}

func TestPlanFallsBackWhenLLMUnavailable(t *testing.T) {
	cat := &fakeCatalog{
		candidates: []catalog.Candidate{{SourceID: "postgres-customers", Entity: "customers", Score: 5}},
		schemas:    map[string]catalog.SourceSchema{"postgres-customers": {SourceID: "postgres-customers", DbType: catalog.DbTypeSQL}},
	}
	p := New(cat, nil, nil)

	steps, err := p.Plan(context.Background(), "list all customers")
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, "customers", steps[0].OutputAlias)
	assert.Contains(t, steps[0].Input["query"], "customers")
}

func TestPlanFallsBackOnUnparseableResponse(t *testing.T) {
	cat := &fakeCatalog{
		candidates: []catalog.Candidate{{SourceID: "postgres-customers", Entity: "customers", Score: 5}},
		schemas:    map[string]catalog.SourceSchema{"postgres-customers": {SourceID: "postgres-customers", DbType: catalog.DbTypeSQL}},
	}
	p := New(cat, &fakeLLM{content: "not json at all"}, nil)

	steps, err := p.Plan(context.Background(), "find a specific customer")
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, "customer", steps[0].OutputAlias)
}
