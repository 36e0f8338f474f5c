// Package catalog implements the Schema Catalog (C3): a lazily-populated,
// per-process map of source_id to SourceSchema, rendered into a compact
// descriptor for the planner and searchable for schema debugging.
package catalog

// EntityKind labels the shape an Entity takes in its backend.
type EntityKind string

const (
	EntityKindTable        EntityKind = "table"
	EntityKindCollection   EntityKind = "collection"
	EntityKindNode         EntityKind = "node"
	EntityKindRelationship EntityKind = "relationship"
	EntityKindIndex        EntityKind = "index"
)

// DbType labels which family of backend a source belongs to; it determines
// the tool set the dispatcher and planner may use against that source.
type DbType string

const (
	DbTypeSQL    DbType = "sql"
	DbTypeNoSQL  DbType = "nosql"
	DbTypeGraph  DbType = "graph"
	DbTypeVector DbType = "vector"
)

// Field describes one attribute of an Entity. SemanticTags are free-form
// but conventional (id, customer_id, email, embedding, entity:customer, ...)
// and drive both the heuristic planner fallback and LLM grounding; they are
// never enforced against the backend.
type Field struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Description  string   `json:"description,omitempty"`
	SemanticTags []string `json:"semantic_tags,omitempty"`
}

// Entity describes one addressable shape within a source (a table, a
// Mongo collection, a graph node label, a vector index...).
type Entity struct {
	Name            string     `json:"name"`
	Kind            EntityKind `json:"kind"`
	Fields          []Field    `json:"fields"`
	SemanticTags    []string   `json:"semantic_tags,omitempty"`
	DefaultIDField  string     `json:"default_id_field,omitempty"`
}

// SourceSchema is the typed schema reported by one backend's get_schema
// tool call.
type SourceSchema struct {
	SourceID string   `json:"mcp_id"`
	DbType   DbType   `json:"db_type"`
	Entities []Entity `json:"entities"`
}

// FieldDescriptor is the trimmed field shape rendered into the sources-for-LLM
// descriptor: name, type and tags only, no description (kept out of the
// prompt to save tokens).
type FieldDescriptor struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	SemanticTags []string `json:"semantic_tags,omitempty"`
}

// EntityDescriptor is the trimmed entity shape rendered into the
// sources-for-LLM descriptor.
type EntityDescriptor struct {
	Name           string            `json:"name"`
	SemanticTags   []string          `json:"semantic_tags,omitempty"`
	DefaultIDField string            `json:"default_id_field,omitempty"`
	Fields         []FieldDescriptor `json:"fields"`
}

// SourceDescriptor is what the planner shows the LLM for one source: enough
// to ground tool and field choices without the full schema payload.
type SourceDescriptor struct {
	SourceID string             `json:"mcp_id"`
	DbType   DbType             `json:"db_type"`
	Tools    []string           `json:"tools"`
	Entities []EntityDescriptor `json:"entities"`
}

// Candidate is a heuristic-scored guess at which source/entity answers a
// natural-language query, used only by the deterministic planner fallback.
type Candidate struct {
	SourceID string
	Entity   string
	Score    int
}

// SearchHit is one result of a debug schema search, matching the shape the
// original implementation's schema-search endpoint returned.
type SearchHit struct {
	ID     string `json:"id"`
	MCP    string `json:"mcp"`
	Parent string `json:"parent"`
	Field  string `json:"field"`
	Score  int    `json:"score"`
}

// toolsFor returns the tool set the dispatcher allows for a db_type,
// matching the table in the dispatcher's documentation.
func toolsFor(dbType DbType) []string {
	switch dbType {
	case DbTypeSQL:
		return []string{"execute_sql", "get_schema"}
	case DbTypeNoSQL:
		return []string{"find", "get_schema"}
	case DbTypeGraph:
		return []string{"traverse", "get_schema"}
	case DbTypeVector:
		return []string{"search", "get_schema"}
	default:
		return []string{"get_schema"}
	}
}
