package dispatch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/federator/polyglot-query-federator/core"
	"github.com/federator/polyglot-query-federator/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T, id, host string) *registry.Registry {
	t.Helper()
	reg := registry.New()
	m, err := registry.NewManifest(id, host, registry.CapabilitySQL)
	require.NoError(t, err)
	require.NoError(t, reg.Register(m))
	return reg
}

func TestCallSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/execute_sql", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"rows": [{"id": "1"}]}`))
	}))
	defer srv.Close()

	reg := testRegistry(t, "pg", srv.URL)
	d := New(reg, &core.NoOpLogger{})

	result, err := d.Call(context.Background(), "pg", "execute_sql", map[string]interface{}{"query": "select 1"})
	require.NoError(t, err)
	rows, ok := result["rows"].([]interface{})
	require.True(t, ok)
	assert.Len(t, rows, 1)
}

func TestCallSourceNotFound(t *testing.T) {
	reg := registry.New()
	d := New(reg, &core.NoOpLogger{})

	_, err := d.Call(context.Background(), "missing", "execute_sql", nil)
	require.Error(t, err)
	var te *TransportError
	assert.ErrorAs(t, err, &te)
}

func TestCallToolErrorOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "bad query"}`))
	}))
	defer srv.Close()

	reg := testRegistry(t, "pg", srv.URL)
	d := New(reg, &core.NoOpLogger{})

	_, err := d.Call(context.Background(), "pg", "execute_sql", nil)
	require.Error(t, err)
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, http.StatusBadRequest, toolErr.Status)
}

func TestCallProtocolErrorOnNonJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	reg := testRegistry(t, "pg", srv.URL)
	d := New(reg, &core.NoOpLogger{})

	_, err := d.Call(context.Background(), "pg", "execute_sql", nil)
	require.Error(t, err)
	var protoErr *ProtocolError
	assert.ErrorAs(t, err, &protoErr)
}

func TestCallTimesOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	reg := testRegistry(t, "slow", srv.URL)
	d := New(reg, &core.NoOpLogger{}).WithTimeout(5 * time.Millisecond)

	_, err := d.Call(context.Background(), "slow", "execute_sql", nil)
	require.Error(t, err)
	var transportErr *TransportError
	assert.ErrorAs(t, err, &transportErr)
}

func TestAllowedToolTable(t *testing.T) {
	assert.True(t, AllowedTool(registry.CapabilitySQL, "execute_sql"))
	assert.True(t, AllowedTool(registry.CapabilitySQL, "get_schema"))
	assert.False(t, AllowedTool(registry.CapabilitySQL, "find"))
	assert.True(t, AllowedTool(registry.CapabilityDocument, "find"))
	assert.True(t, AllowedTool(registry.CapabilityGraph, "traverse"))
	assert.True(t, AllowedTool(registry.CapabilityVector, "search"))
}

func TestCircuitBreakerReusedPerSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	reg := testRegistry(t, "pg", srv.URL)
	d := New(reg, &core.NoOpLogger{})

	first := d.breakerFor("pg")
	second := d.breakerFor("pg")
	assert.Same(t, first, second, "breakerFor must cache one breaker per source id")
}
