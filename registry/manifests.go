package registry

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/federator/polyglot-query-federator/core"
)

// manifestYAML mirrors one entry of a registry manifest file.
type manifestYAML struct {
	ID           string   `yaml:"id"`
	Host         string   `yaml:"host"`
	Capabilities []string `yaml:"capabilities"`
}

type manifestFile struct {
	Sources []manifestYAML `yaml:"sources"`
}

// DefaultManifests returns the canonical four-backend seed topology the
// federator falls back to when no registry file or Redis bootstrap set is
// configured: one of each db_type, addressed by conventional local
// hostnames that an operator overrides via FEDERATOR_REGISTRY_FILE in any
// real deployment.
func DefaultManifests() []Manifest {
	mk := func(id, host string, cap Capability) Manifest {
		m, err := NewManifest(id, host, cap)
		if err != nil {
			// Unreachable: the hardcoded hosts below always parse.
			panic(err)
		}
		return m
	}
	return []Manifest{
		mk("postgres-customers", "http://localhost:9001", CapabilitySQL),
		mk("mongo-orders", "http://localhost:9002", CapabilityDocument),
		mk("neo4j-referrals", "http://localhost:9003", CapabilityGraph),
		mk("milvus-vectors", "http://localhost:9004", CapabilityVector),
	}
}

// LoadManifestsFromYAML reads a registry file shaped like:
//
//	sources:
//	  - id: postgres-customers
//	    host: http://sql-adapter:9001
//	    capabilities: [query.sql]
func LoadManifestsFromYAML(path string) ([]Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading registry file %s: %w", path, err)
	}
	var file manifestFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing registry file %s: %w", path, err)
	}

	manifests := make([]Manifest, 0, len(file.Sources))
	for _, s := range file.Sources {
		caps := make([]Capability, 0, len(s.Capabilities))
		for _, c := range s.Capabilities {
			caps = append(caps, Capability(c))
		}
		m, err := NewManifest(s.ID, s.Host, caps...)
		if err != nil {
			return nil, err
		}
		manifests = append(manifests, m)
	}
	return manifests, nil
}

// BootstrapFromRedis reads a previously-published manifest set from the
// shared RedisDBRegistryBootstrap database, letting several federator
// processes start from one operator-maintained source list instead of each
// carrying its own copy of the registry file.
func BootstrapFromRedis(ctx context.Context, redisURL, key string) ([]Manifest, error) {
	client, err := core.NewRedisClient(core.RedisClientOptions{
		RedisURL:  redisURL,
		DB:        core.RedisDBRegistryBootstrap,
		Namespace: "federator",
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to registry bootstrap redis: %w", err)
	}
	defer client.Close()

	raw, err := client.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("fetching manifest set %q: %w", key, err)
	}

	var file manifestFile
	if err := yaml.Unmarshal([]byte(raw), &file); err != nil {
		return nil, fmt.Errorf("parsing bootstrapped manifest set: %w", err)
	}

	manifests := make([]Manifest, 0, len(file.Sources))
	for _, s := range file.Sources {
		caps := make([]Capability, 0, len(s.Capabilities))
		for _, c := range s.Capabilities {
			caps = append(caps, Capability(c))
		}
		m, err := NewManifest(s.ID, s.Host, caps...)
		if err != nil {
			return nil, err
		}
		manifests = append(manifests, m)
	}
	return manifests, nil
}
