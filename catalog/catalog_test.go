package catalog

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister struct{ ids []string }

func (f fakeLister) IDs() []string { return f.ids }

type fakeDispatcher struct {
	mu       sync.Mutex
	calls    int32
	schemas  map[string]map[string]interface{}
	fail     map[string]bool
}

func (f *fakeDispatcher) Call(ctx context.Context, sourceID, tool string, payload map[string]interface{}) (map[string]interface{}, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.fail[sourceID] {
		return nil, assertErr("simulated transport failure")
	}
	return f.schemas[sourceID], nil
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

func sqlSchema() map[string]interface{} {
	return map[string]interface{}{
		"mcp_id": "postgres-customers",
		"db_type": "sql",
		"entities": []interface{}{
			map[string]interface{}{
				"name": "customers",
				"kind": "table",
				"semantic_tags": []interface{}{"entity:customer"},
				"default_id_field": "id",
				"fields": []interface{}{
					map[string]interface{}{"name": "id", "type": "string", "semantic_tags": []interface{}{"id"}},
					map[string]interface{}{"name": "email", "type": "string", "semantic_tags": []interface{}{"email"}},
				},
			},
		},
	}
}

func TestEnsureLoadedPopulatesSchemas(t *testing.T) {
	dispatcher := &fakeDispatcher{schemas: map[string]map[string]interface{}{
		"postgres-customers": sqlSchema(),
	}}
	cat := New(fakeLister{ids: []string{"postgres-customers"}}, dispatcher, nil, nil)

	err := cat.EnsureLoaded(context.Background())
	require.NoError(t, err)

	schema, ok := cat.Get("postgres-customers")
	require.True(t, ok)
	assert.Equal(t, DbTypeSQL, schema.DbType)
	assert.Len(t, schema.Entities, 1)
	assert.Equal(t, int32(1), dispatcher.calls)
}

func TestEnsureLoadedSkipsFailingSources(t *testing.T) {
	dispatcher := &fakeDispatcher{
		schemas: map[string]map[string]interface{}{"good": sqlSchema()},
		fail:    map[string]bool{"bad": true},
	}
	cat := New(fakeLister{ids: []string{"good", "bad"}}, dispatcher, nil, nil)

	err := cat.EnsureLoaded(context.Background())
	require.NoError(t, err)

	_, ok := cat.Get("good")
	assert.True(t, ok)
	_, ok = cat.Get("bad")
	assert.False(t, ok)
}

func TestEnsureLoadedIsOneShotUnderConcurrency(t *testing.T) {
	dispatcher := &fakeDispatcher{schemas: map[string]map[string]interface{}{"s1": sqlSchema()}}
	cat := New(fakeLister{ids: []string{"s1"}}, dispatcher, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = cat.EnsureLoaded(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), dispatcher.calls, "concurrent first-requests must trigger exactly one population pass")
}

func TestBuildSourcesForLLM(t *testing.T) {
	dispatcher := &fakeDispatcher{schemas: map[string]map[string]interface{}{"postgres-customers": sqlSchema()}}
	cat := New(fakeLister{ids: []string{"postgres-customers"}}, dispatcher, nil, nil)
	require.NoError(t, cat.EnsureLoaded(context.Background()))

	descriptors := cat.BuildSourcesForLLM()
	require.Len(t, descriptors, 1)
	assert.Equal(t, DbTypeSQL, descriptors[0].DbType)
	assert.ElementsMatch(t, []string{"execute_sql", "get_schema"}, descriptors[0].Tools)
	require.Len(t, descriptors[0].Entities, 1)
	assert.Equal(t, "id", descriptors[0].Entities[0].DefaultIDField)
}

func TestDiscoverCandidatesScoresCustomerTag(t *testing.T) {
	dispatcher := &fakeDispatcher{schemas: map[string]map[string]interface{}{"postgres-customers": sqlSchema()}}
	cat := New(fakeLister{ids: []string{"postgres-customers"}}, dispatcher, nil, nil)
	require.NoError(t, cat.EnsureLoaded(context.Background()))

	candidates := cat.DiscoverCandidates("list all customers please")
	require.NotEmpty(t, candidates)
	assert.Equal(t, "postgres-customers", candidates[0].SourceID)
	assert.GreaterOrEqual(t, candidates[0].Score, 5)
}

func TestSearchReturnsScoredHits(t *testing.T) {
	dispatcher := &fakeDispatcher{schemas: map[string]map[string]interface{}{"postgres-customers": sqlSchema()}}
	cat := New(fakeLister{ids: []string{"postgres-customers"}}, dispatcher, nil, nil)
	require.NoError(t, cat.EnsureLoaded(context.Background()))

	hits := cat.Search("email", 10)
	require.NotEmpty(t, hits)
	assert.Equal(t, "postgres-customers", hits[0].MCP)
}
