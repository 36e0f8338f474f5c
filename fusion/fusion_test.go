package fusion

import (
	"testing"

	"github.com/federator/polyglot-query-federator/execution"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func taskWithAlias(sourceID, alias string, rows []map[string]interface{}) execution.ExecutionTask {
	return execution.ExecutionTask{
		SourceID: sourceID,
		Rows:     rows,
		Meta:     execution.TaskMeta{OutputAlias: alias, SourceType: "sql", Extra: map[string]interface{}{}},
	}
}

func TestFuseListCustomersIntentShortCircuits(t *testing.T) {
	rows := []map[string]interface{}{{"id": "1"}, {"id": "2"}}
	tasks := []execution.ExecutionTask{taskWithAlias("postgres-customers", aliasCustomers, rows)}

	resp := Fuse(tasks, "list all customers")
	assert.Equal(t, rows, resp.Customers)
	require.Len(t, resp.Explain, 1)
	assert.Empty(t, resp.RecentOrders)
}

func TestFusePrimaryCustomerFromAlias(t *testing.T) {
	tasks := []execution.ExecutionTask{
		taskWithAlias("postgres-customers", aliasCustomer, []map[string]interface{}{{"id": "42", "name": "Ada"}}),
	}
	resp := Fuse(tasks, "find customer 42")
	assert.Equal(t, "42", resp.Customer["id"])
}

func TestFuseConcatenatesOrdersInEncounterOrder(t *testing.T) {
	tasks := []execution.ExecutionTask{
		taskWithAlias("orders-mongo-1", aliasRecentOrders, []map[string]interface{}{{"id": "o1"}}),
		taskWithAlias("orders-mongo-2", aliasRecentOrders, []map[string]interface{}{{"id": "o2"}}),
	}
	resp := Fuse(tasks, "show orders")
	require.Len(t, resp.RecentOrders, 2)
	assert.Equal(t, "o1", resp.RecentOrders[0]["id"])
	assert.Equal(t, "o2", resp.RecentOrders[1]["id"])
}

func TestFuseInfersCustomerFromOrders(t *testing.T) {
	tasks := []execution.ExecutionTask{
		taskWithAlias("orders-mongo", aliasRecentOrders, []map[string]interface{}{{"id": "o1", "customer_id": "c9"}}),
	}
	resp := Fuse(tasks, "show orders")
	require.Equal(t, "c9", resp.Customer["id"])
	assert.Contains(t, resp.Explain, "Inferred primary customer from recent orders")
	assert.Equal(t, "orders", resp.Provenance["customer"].(map[string]interface{})["inferred_from"])
}

func TestFuseInfersCustomerFromCustIDFallback(t *testing.T) {
	tasks := []execution.ExecutionTask{
		taskWithAlias("orders-mongo", aliasRecentOrders, []map[string]interface{}{{"id": "o1", "cust_id": "c7"}}),
	}
	resp := Fuse(tasks, "show orders")
	assert.Equal(t, "c7", resp.Customer["id"])
}

func TestFuseClassifiesBySourceTypeWhenAliasAbsent(t *testing.T) {
	task := execution.ExecutionTask{
		SourceID: "graph-referrals",
		Rows:     []map[string]interface{}{{"id": "r1"}},
		Meta:     execution.TaskMeta{SourceType: "query.graph", Extra: map[string]interface{}{}},
	}
	resp := Fuse([]execution.ExecutionTask{task}, "who referred them")
	assert.Len(t, resp.Referrals, 1)
}

func TestFuseClassifiesBySourceIDSubstringAsLastResort(t *testing.T) {
	task := execution.ExecutionTask{
		SourceID: "vector-milvus-customers",
		Rows:     []map[string]interface{}{{"id": "v1"}},
		Meta:     execution.TaskMeta{Extra: map[string]interface{}{}},
	}
	resp := Fuse([]execution.ExecutionTask{task}, "find similar customers")
	assert.Len(t, resp.SimilarCustomers, 1)
}

func TestFuseIsDeterministic(t *testing.T) {
	tasks := []execution.ExecutionTask{
		taskWithAlias("b-src", aliasRecentOrders, []map[string]interface{}{{"id": "1"}}),
		taskWithAlias("a-src", aliasRecentOrders, []map[string]interface{}{{"id": "2"}}),
	}
	first := Fuse(tasks, "show orders")
	second := Fuse(tasks, "show orders")
	assert.Equal(t, first, second)
}
