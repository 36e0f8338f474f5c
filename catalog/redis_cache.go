package catalog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/federator/polyglot-query-federator/core"
)

// RedisCache persists the assembled schema set on core.RedisDBSchemaCache so
// a second process, or a process restarted after a deploy, can skip the
// get_schema fan-out entirely. A cache miss or any Redis error is treated as
// "not cached" - EnsureLoaded always falls back to a full fetch, so
// correctness never depends on this cache being reachable.
type RedisCache struct {
	client *core.RedisClient
	key    string
	ttl    time.Duration
	logger core.Logger
}

// NewRedisCache wraps an already-constructed Redis client (DB should be
// core.RedisDBSchemaCache) for a given cache key and freshness window.
func NewRedisCache(client *core.RedisClient, key string, ttl time.Duration, logger core.Logger) *RedisCache {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &RedisCache{client: client, key: key, ttl: ttl, logger: logger}
}

// Load returns the cached schema set and true if present and decodable.
func (c *RedisCache) Load(ctx context.Context) (map[string]SourceSchema, bool) {
	raw, err := c.client.Get(ctx, c.key)
	if err != nil || raw == "" {
		return nil, false
	}
	var schemas map[string]SourceSchema
	if err := json.Unmarshal([]byte(raw), &schemas); err != nil {
		c.logger.Warn("schema cache decode failed, ignoring", map[string]interface{}{
			"key":   c.key,
			"error": err.Error(),
		})
		return nil, false
	}
	return schemas, true
}

// Store writes the freshly-loaded schema set back to Redis for the next
// process to find. Failures are logged and otherwise ignored - the cache is
// a pure optimization.
func (c *RedisCache) Store(ctx context.Context, schemas map[string]SourceSchema) {
	data, err := json.Marshal(schemas)
	if err != nil {
		c.logger.Warn("schema cache encode failed, not caching", map[string]interface{}{"error": err.Error()})
		return
	}
	if err := c.client.Set(ctx, c.key, string(data), c.ttl); err != nil {
		c.logger.Warn("schema cache write failed", map[string]interface{}{"error": err.Error()})
	}
}
