package execution

import (
	"context"
	"testing"

	"github.com/federator/polyglot-query-federator/catalog"
	"github.com/federator/polyglot-query-federator/planner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDispatcher struct {
	responses map[string]map[string]interface{}
	errors    map[string]error
	callOrder []string
}

func (f *fakeDispatcher) Call(ctx context.Context, sourceID, tool string, payload map[string]interface{}) (map[string]interface{}, error) {
	f.callOrder = append(f.callOrder, sourceID+"/"+tool)
	if err, ok := f.errors[sourceID]; ok {
		return nil, err
	}
	return f.responses[sourceID], nil
}

func TestExecuteOrderPreservation(t *testing.T) {
	d := &fakeDispatcher{responses: map[string]map[string]interface{}{
		"s1-src": {"rows": []interface{}{map[string]interface{}{"id": "1"}}},
		"s2-src": {"rows": []interface{}{map[string]interface{}{"id": "2"}}},
	}}
	plan := []planner.PlanStep{
		{ID: "s1", SourceID: "s1-src", DbType: catalog.DbTypeSQL, Tool: planner.ToolExecuteSQL, Input: map[string]interface{}{"query": "SELECT 1"}},
		{ID: "s2", SourceID: "s2-src", DbType: catalog.DbTypeSQL, Tool: planner.ToolExecuteSQL, Input: map[string]interface{}{"query": "SELECT 2"}},
	}

	tasks := New(d, nil).Execute(context.Background(), plan)
	require.Len(t, tasks, 2)
	assert.Equal(t, "s1", tasks[0].PlanStepID)
	assert.Equal(t, "s2", tasks[1].PlanStepID)
}

func TestExecuteResolvesFromReference(t *testing.T) {
	d := &fakeDispatcher{responses: map[string]map[string]interface{}{
		"vec-src": {"rows": []interface{}{map[string]interface{}{"embedding": []interface{}{0.1, 0.2}}}},
	}}
	plan := []planner.PlanStep{
		{ID: "s1", SourceID: "vec-src", DbType: catalog.DbTypeSQL, Tool: planner.ToolExecuteSQL, Input: map[string]interface{}{"query": "SELECT embedding FROM t"}},
		{ID: "s2", SourceID: "vec-src", DbType: catalog.DbTypeVector, Tool: planner.ToolSearch, DependsOn: "s1", Input: map[string]interface{}{"embedding_from": "s1.embedding", "top_k": 5}},
	}

	tasks := New(d, nil).Execute(context.Background(), plan)
	require.Len(t, tasks, 2)
	assert.Equal(t, []string{"vec-src/execute_sql", "vec-src/search"}, d.callOrder)
}

func TestExecuteEmitsFailedTaskOnMissingDependency(t *testing.T) {
	d := &fakeDispatcher{responses: map[string]map[string]interface{}{}}
	plan := []planner.PlanStep{
		{ID: "s1", SourceID: "missing", DbType: catalog.DbTypeSQL, Tool: planner.ToolExecuteSQL, DependsOn: "nonexistent"},
	}

	tasks := New(d, nil).Execute(context.Background(), plan)
	require.Len(t, tasks, 1)
	assert.Empty(t, tasks[0].Rows)
	assert.Contains(t, tasks[0].Meta.Extra["error"], "Dependency nonexistent not found")
}

func TestExecuteSkipsOptionalStepOnMissingDependency(t *testing.T) {
	d := &fakeDispatcher{}
	plan := []planner.PlanStep{
		{ID: "s1", SourceID: "x", DependsOn: "nonexistent", Optional: true},
	}

	tasks := New(d, nil).Execute(context.Background(), plan)
	assert.Empty(t, tasks)
}

func TestExecuteDispatchErrorBecomesFailedTask(t *testing.T) {
	d := &fakeDispatcher{errors: map[string]error{"bad-src": assertErr("boom")}}
	plan := []planner.PlanStep{
		{ID: "s1", SourceID: "bad-src", Tool: planner.ToolExecuteSQL},
	}

	tasks := New(d, nil).Execute(context.Background(), plan)
	require.Len(t, tasks, 1)
	assert.Empty(t, tasks[0].Rows)
	assert.Equal(t, "boom", tasks[0].Meta.Extra["error"])
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

func TestExecuteInfersToolFromDbType(t *testing.T) {
	d := &fakeDispatcher{responses: map[string]map[string]interface{}{"doc-src": {"docs": []interface{}{}}}}
	plan := []planner.PlanStep{
		{ID: "s1", SourceID: "doc-src", DbType: catalog.DbTypeNoSQL},
	}

	New(d, nil).Execute(context.Background(), plan)
	assert.Equal(t, []string{"doc-src/find"}, d.callOrder)
}

func TestNormalizeRowsChecksAllKeys(t *testing.T) {
	assert.Equal(t, []map[string]interface{}{{"a": 1.0}}, normalizeRows(map[string]interface{}{"matches": []interface{}{map[string]interface{}{"a": 1.0}}}))
	assert.Empty(t, normalizeRows(map[string]interface{}{}))
}
