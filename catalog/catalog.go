package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/federator/polyglot-query-federator/core"
)

// Dispatcher is the narrow slice of the Tool Dispatcher (C2) the catalog
// needs: a single JSON-in/JSON-out tool call.
type Dispatcher interface {
	Call(ctx context.Context, sourceID, tool string, payload map[string]interface{}) (map[string]interface{}, error)
}

// SourceLister is the narrow slice of the Source Registry (C1) the catalog
// needs: the set of known source ids, in a stable order.
type SourceLister interface {
	IDs() []string
}

// SchemaValidator optionally checks a raw get_schema response body before it
// is decoded. A source whose schema fails validation is skipped exactly like
// a transport failure - it never aborts catalog load.
type SchemaValidator interface {
	Validate(raw map[string]interface{}) error
}

// Cache optionally persists the assembled schema set so a second process (or
// a restart) can skip the get_schema round trip. A cache miss or error is
// never fatal: ensure_loaded always falls back to a full fetch.
type Cache interface {
	Load(ctx context.Context) (map[string]SourceSchema, bool)
	Store(ctx context.Context, schemas map[string]SourceSchema)
}

// Catalog implements C3: a lazily-populated, process-lifetime map of
// source_id to SourceSchema. It is owned by whatever constructs the
// orchestrator - never a package-level singleton - so a test binary can hold
// as many independent catalogs as it needs.
type Catalog struct {
	registry   SourceLister
	dispatcher Dispatcher
	validator  SchemaValidator
	cache      Cache
	logger     core.Logger

	mu       sync.RWMutex
	schemas  map[string]SourceSchema
	loaded   bool
	loadOnce sync.Once
	loadErr  error
}

// New builds an empty Catalog. validator and cache may be nil.
func New(registry SourceLister, dispatcher Dispatcher, validator SchemaValidator, cache Cache) *Catalog {
	return &Catalog{
		registry:   registry,
		dispatcher: dispatcher,
		validator:  validator,
		cache:      cache,
		logger:     &core.NoOpLogger{},
		schemas:    make(map[string]SourceSchema),
	}
}

// SetLogger scopes the catalog's logger to "federator/catalog".
func (c *Catalog) SetLogger(logger core.Logger) {
	if logger == nil {
		c.logger = &core.NoOpLogger{}
		return
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		c.logger = cal.WithComponent("federator/catalog")
	} else {
		c.logger = logger
	}
}

// EnsureLoaded populates the catalog on first call; subsequent calls, even
// from concurrent goroutines, observe the same one-shot population pass -
// losers wait for the winner's completion rather than re-fetching.
func (c *Catalog) EnsureLoaded(ctx context.Context) error {
	c.loadOnce.Do(func() {
		c.loadErr = c.load(ctx)
	})
	return c.loadErr
}

func (c *Catalog) load(ctx context.Context) error {
	if c.cache != nil {
		if cached, ok := c.cache.Load(ctx); ok {
			c.mu.Lock()
			c.schemas = cached
			c.loaded = true
			c.mu.Unlock()
			c.logger.Info("schema catalog populated from cache", map[string]interface{}{
				"sources": len(cached),
			})
			return nil
		}
	}

	schemas := make(map[string]SourceSchema)
	for _, sourceID := range c.registry.IDs() {
		raw, err := c.dispatcher.Call(ctx, sourceID, "get_schema", map[string]interface{}{})
		if err != nil {
			c.logger.Warn("schema fetch failed, skipping source", map[string]interface{}{
				"source_id": sourceID,
				"error":     err.Error(),
			})
			continue
		}
		if c.validator != nil {
			if err := c.validator.Validate(raw); err != nil {
				c.logger.Warn("schema failed validation, skipping source", map[string]interface{}{
					"source_id": sourceID,
					"error":     err.Error(),
				})
				continue
			}
		}
		schema, err := decodeSourceSchema(raw)
		if err != nil {
			c.logger.Warn("schema decode failed, skipping source", map[string]interface{}{
				"source_id": sourceID,
				"error":     err.Error(),
			})
			continue
		}
		schemas[sourceID] = schema
	}

	c.mu.Lock()
	c.schemas = schemas
	c.loaded = true
	c.mu.Unlock()

	if c.cache != nil {
		c.cache.Store(ctx, schemas)
	}

	c.logger.Info("schema catalog populated", map[string]interface{}{
		"sources_registered": len(c.registry.IDs()),
		"sources_loaded":     len(schemas),
	})
	return nil
}

// decodeSourceSchema converts a raw JSON-decoded get_schema response into a
// typed SourceSchema via a marshal/unmarshal round trip - the response shape
// already matches SourceSchema's JSON tags by contract (see spec §3/§6).
func decodeSourceSchema(raw map[string]interface{}) (SourceSchema, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return SourceSchema{}, fmt.Errorf("marshaling raw schema: %w", err)
	}
	var schema SourceSchema
	if err := json.Unmarshal(data, &schema); err != nil {
		return SourceSchema{}, fmt.Errorf("decoding schema: %w", err)
	}
	return schema, nil
}

// Get returns the loaded schema for sourceID, or false if it was never
// loaded (not registered, or its get_schema call failed/was skipped).
func (c *Catalog) Get(sourceID string) (SourceSchema, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.schemas[sourceID]
	return s, ok
}

// BuildSourcesForLLM renders the compact, JSON-serializable descriptor list
// the planner embeds in its prompt.
func (c *Catalog) BuildSourcesForLLM() []SourceDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.schemas))
	for id := range c.schemas {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	descriptors := make([]SourceDescriptor, 0, len(ids))
	for _, id := range ids {
		schema := c.schemas[id]
		entities := make([]EntityDescriptor, 0, len(schema.Entities))
		for _, e := range schema.Entities {
			fields := make([]FieldDescriptor, 0, len(e.Fields))
			for _, f := range e.Fields {
				fields = append(fields, FieldDescriptor{
					Name:         f.Name,
					Type:         f.Type,
					SemanticTags: f.SemanticTags,
				})
			}
			entities = append(entities, EntityDescriptor{
				Name:           e.Name,
				SemanticTags:   e.SemanticTags,
				DefaultIDField: e.DefaultIDField,
				Fields:         fields,
			})
		}
		descriptors = append(descriptors, SourceDescriptor{
			SourceID: id,
			DbType:   schema.DbType,
			Tools:    toolsFor(schema.DbType),
			Entities: entities,
		})
	}
	return descriptors
}

// tagWeight scores one (token, tag) match, mirroring the heuristic weights
// specified for discover_candidates. The word lists per tag (plurals and
// synonyms included) follow the original heuristic planner's
// mentions_customer/mentions_similar/mentions_graph word sets verbatim.
func tagWeight(token, tag string) int {
	switch {
	case tag == "entity:customer" && (token == "customer" || token == "customers" || token == "client" || token == "clients"):
		return 5
	case tag == "email" && (token == "email" || token == "name"):
		return 3
	case tag == "embedding" && (token == "similar" || token == "embedding" || token == "similarity"):
		return 3
	case tag == "referral" && (token == "referral" || token == "referrals" || token == "referred" || token == "connections" || token == "friends"):
		return 3
	default:
		return 0
	}
}

// DiscoverCandidates is the heuristic lexical scorer used by the planner's
// deterministic fallback. Its candidates are not included in the LLM prompt.
func (c *Catalog) DiscoverCandidates(nlQuery string) []Candidate {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tokens := tokenize(nlQuery)
	scores := make(map[[2]string]int) // [sourceID, entity] -> score

	ids := make([]string, 0, len(c.schemas))
	for id := range c.schemas {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		schema := c.schemas[id]
		for _, e := range schema.Entities {
			key := [2]string{id, e.Name}
			for _, token := range tokens {
				for _, tag := range e.SemanticTags {
					scores[key] += tagWeight(token, tag)
				}
				for _, f := range e.Fields {
					for _, tag := range f.SemanticTags {
						scores[key] += tagWeight(token, tag)
					}
				}
			}
		}
	}

	candidates := make([]Candidate, 0, len(scores))
	for key, score := range scores {
		if score <= 0 {
			continue
		}
		candidates = append(candidates, Candidate{SourceID: key[0], Entity: key[1], Score: score})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		if candidates[i].SourceID != candidates[j].SourceID {
			return candidates[i].SourceID < candidates[j].SourceID
		}
		return candidates[i].Entity < candidates[j].Entity
	})
	return candidates
}

// Search implements the debug GET /api/v1/schema/search endpoint: tokenizing
// q and scoring hits the same way DiscoverCandidates does, returning up to
// limit hits sorted by score.
func (c *Catalog) Search(q string, limit int) []SearchHit {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tokens := tokenize(q)
	var hits []SearchHit

	ids := make([]string, 0, len(c.schemas))
	for id := range c.schemas {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		schema := c.schemas[id]
		for _, e := range schema.Entities {
			if score := scoreTags(tokens, e.SemanticTags); score > 0 {
				hits = append(hits, SearchHit{ID: id + "." + e.Name, MCP: id, Parent: "", Field: e.Name, Score: score})
			}
			for _, f := range e.Fields {
				if score := scoreTags(tokens, f.SemanticTags); score > 0 {
					hits = append(hits, SearchHit{ID: id + "." + e.Name + "." + f.Name, MCP: id, Parent: e.Name, Field: f.Name, Score: score})
				}
			}
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

func scoreTags(tokens []string, tags []string) int {
	score := 0
	for _, token := range tokens {
		for _, tag := range tags {
			score += tagWeight(token, tag)
		}
	}
	return score
}

func tokenize(q string) []string {
	fields := strings.Fields(strings.ToLower(q))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, ".,!?\"'")
		if len(f) > 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}
