package fusion

import (
	"fmt"
	"sort"
	"strings"

	"github.com/federator/polyglot-query-federator/execution"
)

const (
	aliasCustomer         = "customer"
	aliasCustomers        = "customers"
	aliasRecentOrders     = "recent_orders"
	aliasReferrals        = "referrals"
	aliasSimilarCustomers = "similar_customers"
)

var listCustomersPhrases = []string{
	"list of all customers",
	"all customers",
	"list all customers",
	"give me a list of all customers",
	"show all customers",
	"list customers",
	"list clients",
}

// Fuse classifies tasks into a FusedResponse, deterministically, with no
// LLM involvement: identical tasks and nlQuery always produce an identical
// response.
func Fuse(tasks []execution.ExecutionTask, nlQuery string) *FusedResponse {
	resp := newFusedResponse()

	buckets := map[string][]execution.ExecutionTask{
		aliasCustomer:         {},
		aliasCustomers:        {},
		aliasRecentOrders:     {},
		aliasReferrals:        {},
		aliasSimilarCustomers: {},
	}
	for _, task := range tasks {
		alias := classify(task)
		if alias == "" {
			continue
		}
		buckets[alias] = append(buckets[alias], task)
	}

	if isListCustomersQuery(nlQuery) {
		if src, ok := firstListCustomersSource(buckets); ok {
			resp.Customers = src.Rows
			resp.Explain = []string{fmt.Sprintf("Customer list from %s", src.SourceID)}
			resp.Provenance = map[string]interface{}{"source": src.SourceID, "meta": src.Meta.Extra}
			return resp
		}
	}

	if len(buckets[aliasCustomer]) > 0 {
		resp.Customer = firstRow(buckets[aliasCustomer][0])
	}
	if len(buckets[aliasCustomers]) > 0 {
		for _, t := range buckets[aliasCustomers] {
			resp.Customers = append(resp.Customers, t.Rows...)
		}
	}

	var provOrders, provReferrals, provSimilar []map[string]interface{}
	var srcOrders, srcReferrals, srcSimilar []string
	resp.RecentOrders, provOrders, srcOrders = concatWithProvenance(buckets[aliasRecentOrders])
	resp.Referrals, provReferrals, srcReferrals = concatWithProvenance(buckets[aliasReferrals])
	resp.SimilarCustomers, provSimilar, srcSimilar = concatWithProvenance(buckets[aliasSimilarCustomers])

	var explain []string
	if len(resp.Customer) > 0 {
		explain = append(explain, fmt.Sprintf("Customer from %s", resp.Customer["_source"]))
	}
	if len(resp.Customers) > 0 && len(buckets[aliasCustomers]) > 0 {
		explain = append(explain, "Customers list assembled")
	}
	if len(srcOrders) > 0 {
		explain = append(explain, fmt.Sprintf("Orders from %s", strings.Join(srcOrders, ", ")))
	}
	if len(srcReferrals) > 0 {
		explain = append(explain, fmt.Sprintf("Referrals from %s", strings.Join(srcReferrals, ", ")))
	}
	if len(srcSimilar) > 0 {
		explain = append(explain, fmt.Sprintf("Similar customers from %s", strings.Join(srcSimilar, ", ")))
	}

	resp.Provenance["recent_orders"] = provOrders
	resp.Provenance["referrals"] = provReferrals
	resp.Provenance["similar_customers"] = provSimilar

	if len(resp.Customer) == 0 && len(resp.RecentOrders) > 0 {
		firstOrder := resp.RecentOrders[0]
		id := firstOrder["customer_id"]
		if id == nil {
			id = firstOrder["cust_id"]
		}
		resp.Customer = map[string]interface{}{"id": id}
		explain = append(explain, "Inferred primary customer from recent orders")
		resp.Provenance["customer"] = map[string]interface{}{"inferred_from": "orders", "sample_order": firstOrder}
	}

	resp.Explain = explain
	return resp
}

// classify assigns a task to one of the five canonical buckets, preferring
// an explicit output_alias, then source_type, then a source_id substring
// match.
func classify(task execution.ExecutionTask) string {
	switch task.Meta.OutputAlias {
	case aliasCustomer, aliasCustomers, aliasRecentOrders, aliasReferrals, aliasSimilarCustomers:
		return task.Meta.OutputAlias
	}

	switch dbFamily(task.Meta.SourceType) {
	case "sql":
		return aliasCustomer
	case "document":
		return aliasRecentOrders
	case "graph":
		return aliasReferrals
	case "vector":
		return aliasSimilarCustomers
	}

	id := strings.ToLower(task.SourceID)
	switch {
	case strings.Contains(id, "sql"):
		return aliasCustomer
	case strings.Contains(id, "orders"), strings.Contains(id, "mongo"):
		return aliasRecentOrders
	case strings.Contains(id, "graph"), strings.Contains(id, "neo4j"):
		return aliasReferrals
	case strings.Contains(id, "vector"), strings.Contains(id, "milvus"):
		return aliasSimilarCustomers
	}
	return ""
}

func dbFamily(sourceType string) string {
	s := strings.ToLower(strings.TrimPrefix(strings.ToLower(sourceType), "query."))
	switch {
	case strings.Contains(s, "document"), strings.Contains(s, "nosql"), strings.Contains(s, "mongo"):
		return "document"
	case strings.Contains(s, "sql"):
		return "sql"
	case strings.Contains(s, "graph"):
		return "graph"
	case strings.Contains(s, "vector"):
		return "vector"
	}
	return ""
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

// firstListCustomersSource picks the source that answers a
// list-all-customers intent: an explicit "customers"-aliased task first,
// else the first sql-classified task.
func firstListCustomersSource(buckets map[string][]execution.ExecutionTask) (execution.ExecutionTask, bool) {
	if len(buckets[aliasCustomers]) > 0 {
		return buckets[aliasCustomers][0], true
	}
	if len(buckets[aliasCustomer]) > 0 {
		return buckets[aliasCustomer][0], true
	}
	return execution.ExecutionTask{}, false
}

func firstRow(task execution.ExecutionTask) map[string]interface{} {
	if len(task.Rows) == 0 {
		return map[string]interface{}{}
	}
	row := make(map[string]interface{}, len(task.Rows[0])+1)
	for k, v := range task.Rows[0] {
		row[k] = v
	}
	row["_source"] = task.SourceID
	return row
}

// concatWithProvenance concatenates every task's rows in encounter order
// and returns a provenance list plus the set of contributing source ids in
// sorted order.
func concatWithProvenance(tasks []execution.ExecutionTask) ([]map[string]interface{}, []map[string]interface{}, []string) {
	rows := make([]map[string]interface{}, 0)
	provenance := make([]map[string]interface{}, 0, len(tasks))
	seen := make(map[string]bool)

	for _, t := range tasks {
		rows = append(rows, t.Rows...)
		provenance = append(provenance, map[string]interface{}{"source": t.SourceID, "meta": t.Meta.Extra})
		seen[t.SourceID] = true
	}

	sources := make([]string, 0, len(seen))
	for src := range seen {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	return rows, provenance, sources
}
