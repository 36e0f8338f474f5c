// Package registry implements the Source Registry (C1): an in-process,
// write-once-at-setup table of backend manifests. It performs no I/O of its
// own — manifests are supplied by YAML config or Redis bootstrap and simply
// held in memory for the rest of the pipeline to read.
package registry

import (
	"fmt"
	"net/url"
	"sort"
	"sync"

	"github.com/federator/polyglot-query-federator/core"
)

// Capability labels the kind of tool a source supports.
type Capability string

const (
	CapabilitySQL      Capability = "query.sql"
	CapabilityDocument Capability = "query.document"
	CapabilityGraph    Capability = "query.graph"
	CapabilityVector   Capability = "query.vector"
)

// Manifest describes one backend: where it lives and what it can do.
type Manifest struct {
	ID           string
	Host         *url.URL
	Capabilities map[Capability]bool
}

// NewManifest builds a Manifest from a raw host URL, validating it parses.
func NewManifest(id, host string, capabilities ...Capability) (Manifest, error) {
	u, err := url.Parse(host)
	if err != nil {
		return Manifest{}, fmt.Errorf("%w: invalid host %q for source %q: %v", core.ErrInvalidConfiguration, host, id, err)
	}
	caps := make(map[Capability]bool, len(capabilities))
	for _, c := range capabilities {
		caps[c] = true
	}
	return Manifest{ID: id, Host: u, Capabilities: caps}, nil
}

// HasCapability reports whether the manifest declares cap.
func (m Manifest) HasCapability(cap Capability) bool {
	return m.Capabilities[cap]
}

// Registry holds the set of known backend manifests for the lifetime of the
// process. Registration happens during setup; after that, reads are safe
// from any number of concurrent goroutines.
type Registry struct {
	mu        sync.RWMutex
	manifests map[string]Manifest
	logger    core.Logger
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		manifests: make(map[string]Manifest),
		logger:    &core.NoOpLogger{},
	}
}

// SetLogger scopes the registry's logger to "federator/registry".
func (r *Registry) SetLogger(logger core.Logger) {
	if logger == nil {
		r.logger = &core.NoOpLogger{}
		return
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		r.logger = cal.WithComponent("federator/registry")
	} else {
		r.logger = logger
	}
}

// Register inserts or replaces a manifest by id.
func (r *Registry) Register(m Manifest) error {
	if m.ID == "" {
		return fmt.Errorf("%w: manifest id is required", core.ErrInvalidConfiguration)
	}
	if m.Host == nil {
		return fmt.Errorf("%w: manifest %q has no host", core.ErrInvalidConfiguration, m.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.manifests[m.ID] = m
	r.logger.Info("source registered", map[string]interface{}{
		"source_id": m.ID,
		"host":      m.Host.String(),
	})
	return nil
}

// Get returns the manifest for id, or ErrSourceNotFound.
func (r *Registry) Get(id string) (Manifest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.manifests[id]
	if !ok {
		return Manifest{}, fmt.Errorf("%w: %q", core.ErrSourceNotFound, id)
	}
	return m, nil
}

// IDs returns every registered source id, sorted for deterministic
// iteration (schema-catalog population walks them in this order).
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.manifests))
	for id := range r.manifests {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len reports how many sources are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.manifests)
}

// EnsureDefaults pre-registers manifests from defaults when the registry is
// still empty, matching the spec's "pre-registers a default set at
// initialization if empty" rule.
func (r *Registry) EnsureDefaults(defaults []Manifest) error {
	if r.Len() > 0 {
		return nil
	}
	for _, m := range defaults {
		if err := r.Register(m); err != nil {
			return err
		}
	}
	return nil
}
