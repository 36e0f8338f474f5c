package registry

import (
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManifestRejectsInvalidHost(t *testing.T) {
	_, err := NewManifest("bad", "://not-a-url", CapabilitySQL)
	require.Error(t, err)
}

func TestManifestHasCapability(t *testing.T) {
	m, err := NewManifest("sql-1", "http://localhost:9001", CapabilitySQL)
	require.NoError(t, err)
	assert.True(t, m.HasCapability(CapabilitySQL))
	assert.False(t, m.HasCapability(CapabilityGraph))
}

func TestRegisterAndGet(t *testing.T) {
	r := New()
	m, err := NewManifest("postgres-customers", "http://localhost:9001", CapabilitySQL)
	require.NoError(t, err)
	require.NoError(t, r.Register(m))

	got, err := r.Get("postgres-customers")
	require.NoError(t, err)
	assert.Equal(t, m.ID, got.ID)
}

func TestGetUnknownSourceReturnsSourceNotFound(t *testing.T) {
	r := New()
	_, err := r.Get("missing")
	assert.ErrorContains(t, err, "missing")
}

func TestRegisterRejectsMissingIDOrHost(t *testing.T) {
	r := New()
	assert.Error(t, r.Register(Manifest{}))
	assert.Error(t, r.Register(Manifest{ID: "x"}))
}

func TestRegisterReplacesExistingManifest(t *testing.T) {
	r := New()
	m1, _ := NewManifest("s1", "http://localhost:9001", CapabilitySQL)
	m2, _ := NewManifest("s1", "http://localhost:9999", CapabilityGraph)
	require.NoError(t, r.Register(m1))
	require.NoError(t, r.Register(m2))

	got, err := r.Get("s1")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9999", got.Host.String())
	assert.Equal(t, 1, r.Len())
}

func TestIDsReturnsSortedIDs(t *testing.T) {
	r := New()
	for _, id := range []string{"zebra", "alpha", "mongo-orders"} {
		m, _ := NewManifest(id, "http://localhost:9001", CapabilitySQL)
		require.NoError(t, r.Register(m))
	}
	assert.Equal(t, []string{"alpha", "mongo-orders", "zebra"}, r.IDs())
}

func TestEnsureDefaultsBackfillsOnlyWhenEmpty(t *testing.T) {
	r := New()
	defaults := DefaultManifests()

	require.NoError(t, r.EnsureDefaults(defaults))
	assert.Equal(t, len(defaults), r.Len())

	custom, _ := NewManifest("only-one", "http://localhost:9005", CapabilityVector)
	r2 := New()
	require.NoError(t, r2.Register(custom))
	require.NoError(t, r2.EnsureDefaults(defaults))
	assert.Equal(t, 1, r2.Len(), "EnsureDefaults must not touch a non-empty registry")
}

func TestConcurrentRegisterAndRead(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			m, _ := NewManifest("source", "http://localhost:9001", CapabilitySQL)
			_ = r.Register(m)
			_ = r.IDs()
			_ = r.Len()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, r.Len())
}

func TestDefaultManifestsCoverEveryCapability(t *testing.T) {
	defaults := DefaultManifests()
	require.Len(t, defaults, 4)

	caps := map[Capability]bool{}
	for _, m := range defaults {
		for c := range m.Capabilities {
			caps[c] = true
		}
	}
	assert.True(t, caps[CapabilitySQL])
	assert.True(t, caps[CapabilityDocument])
	assert.True(t, caps[CapabilityGraph])
	assert.True(t, caps[CapabilityVector])
}

func TestLoadManifestsFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/registry.yaml"
	content := []byte(`sources:
  - id: postgres-customers
    host: http://sql-adapter:9001
    capabilities: [query.sql]
  - id: mongo-orders
    host: http://nosql-adapter:9002
    capabilities: [query.document]
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	manifests, err := LoadManifestsFromYAML(path)
	require.NoError(t, err)
	require.Len(t, manifests, 2)
	assert.Equal(t, "postgres-customers", manifests[0].ID)
	assert.True(t, manifests[0].HasCapability(CapabilitySQL))
	assert.True(t, manifests[1].HasCapability(CapabilityDocument))
}

func TestLoadManifestsFromYAMLMissingFile(t *testing.T) {
	_, err := LoadManifestsFromYAML("/nonexistent/registry.yaml")
	assert.Error(t, err)
}
