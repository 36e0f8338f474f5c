// Package dispatch implements the Tool Dispatcher (C2): a uniform
// JSON-in/JSON-out call to a backend tool over HTTP, with a default
// 20-second timeout, per-source circuit breaking, and OpenTelemetry
// tracing. It never retries - retry policy is explicitly left to whatever
// calls the dispatcher.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/federator/polyglot-query-federator/core"
	"github.com/federator/polyglot-query-federator/registry"
	"github.com/federator/polyglot-query-federator/resilience"
	"github.com/federator/polyglot-query-federator/telemetry"
)

// DefaultTimeout is the dispatcher's default per-call deadline.
const DefaultTimeout = 20 * time.Second

// allowedTools maps each registry.Capability to the tool names a source
// with that capability may be called with, matching the (db_type, tool)
// table.
var allowedTools = map[registry.Capability]map[string]bool{
	registry.CapabilitySQL:      {"execute_sql": true, "get_schema": true},
	registry.CapabilityDocument: {"find": true, "get_schema": true},
	registry.CapabilityGraph:    {"traverse": true, "get_schema": true},
	registry.CapabilityVector:   {"search": true, "get_schema": true},
}

// TransportError wraps a network-level failure reaching a source (DNS,
// connection refused, timeout, context cancellation, or a tripped circuit
// breaker).
type TransportError struct {
	SourceID string
	Tool     string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("dispatch %s/%s: transport error: %v", e.SourceID, e.Tool, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError means the backend answered 2xx but the body was not valid
// JSON.
type ProtocolError struct {
	SourceID string
	Tool     string
	Body     string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("dispatch %s/%s: non-JSON 2xx response", e.SourceID, e.Tool)
}

// ToolError is an adapter-reported failure: any 4xx/5xx status.
type ToolError struct {
	SourceID string
	Tool     string
	Status   int
	Body     string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("dispatch %s/%s: tool error (status %d): %s", e.SourceID, e.Tool, e.Status, e.Body)
}

// Registry is the narrow slice of the Source Registry the dispatcher needs.
type Registry interface {
	Get(id string) (registry.Manifest, error)
}

// Dispatcher implements C2's call(source_id, tool_name, payload) operation.
type Dispatcher struct {
	registry Registry
	client   *http.Client
	timeout  time.Duration
	logger   core.Logger

	breakersMu sync.Mutex
	breakers   map[string]*resilience.CircuitBreaker

	metrics    *telemetry.MetricInstruments
	metricsCtx context.Context
}

// New builds a Dispatcher over registry using a traced HTTP client.
func New(reg Registry, logger core.Logger) *Dispatcher {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("federator/dispatch")
	}
	return &Dispatcher{
		registry: reg,
		client:   telemetry.NewTracedHTTPClient(nil),
		timeout:  DefaultTimeout,
		logger:   logger,
		breakers: make(map[string]*resilience.CircuitBreaker),
	}
}

// WithTimeout overrides the default 20-second per-call deadline.
func (d *Dispatcher) WithTimeout(timeout time.Duration) *Dispatcher {
	d.timeout = timeout
	return d
}

// WithMetrics enables OpenTelemetry instrument recording for every call.
func (d *Dispatcher) WithMetrics(ctx context.Context, meterName string) *Dispatcher {
	d.metricsCtx = ctx
	d.metrics = telemetry.NewMetricInstruments(meterName)
	return d
}

func (d *Dispatcher) breakerFor(sourceID string) *resilience.CircuitBreaker {
	d.breakersMu.Lock()
	defer d.breakersMu.Unlock()
	if cb, ok := d.breakers[sourceID]; ok {
		return cb
	}
	cb, err := resilience.CreateCircuitBreaker(sourceID, resilience.ResilienceDependencies{
		Logger:  d.logger,
		Metrics: d.metricsCtx,
	})
	if err != nil {
		// DefaultConfig() is always valid; this path is unreachable in
		// practice. Fall back to a breaker built straight from DefaultConfig
		// rather than panicking a request thread.
		cb, _ = resilience.NewCircuitBreaker(resilience.DefaultConfig())
	}
	d.breakers[sourceID] = cb
	return cb
}

// AllowedTool reports whether tool is permitted for a source with the given
// capability.
func AllowedTool(cap registry.Capability, tool string) bool {
	return allowedTools[cap][tool]
}

// Call performs one JSON-in/JSON-out tool call against source_id.
func (d *Dispatcher) Call(ctx context.Context, sourceID, tool string, payload map[string]interface{}) (map[string]interface{}, error) {
	start := time.Now()
	manifest, err := d.registry.Get(sourceID)
	if err != nil {
		d.recordError(ctx, sourceID, tool, "source_not_found")
		return nil, &TransportError{SourceID: sourceID, Tool: tool, Err: err}
	}

	cb := d.breakerFor(sourceID)

	var result map[string]interface{}
	var callErr error
	err = cb.Execute(ctx, func() error {
		result, callErr = d.post(ctx, manifest.Host, sourceID, tool, payload)
		return callErr
	})

	d.recordDuration(ctx, sourceID, tool, time.Since(start))

	if err != nil {
		d.recordError(ctx, sourceID, tool, "circuit_or_transport")
		if callErr != nil {
			return nil, callErr
		}
		return nil, &TransportError{SourceID: sourceID, Tool: tool, Err: err}
	}
	return result, nil
}

func (d *Dispatcher) post(ctx context.Context, host *url.URL, sourceID, tool string, payload map[string]interface{}) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding payload for %s/%s: %w", sourceID, tool, err)
	}

	endpoint := *host
	endpoint.Path = fmt.Sprintf("/%s", tool)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{SourceID: sourceID, Tool: tool, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	d.logger.DebugWithContext(ctx, "dispatching tool call", map[string]interface{}{
		"source_id": sourceID,
		"tool":      tool,
	})

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, &TransportError{SourceID: sourceID, Tool: tool, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{SourceID: sourceID, Tool: tool, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		d.logger.WarnWithContext(ctx, "tool call returned error status", map[string]interface{}{
			"source_id": sourceID,
			"tool":      tool,
			"status":    resp.StatusCode,
		})
		return nil, &ToolError{SourceID: sourceID, Tool: tool, Status: resp.StatusCode, Body: string(respBody)}
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return nil, &ProtocolError{SourceID: sourceID, Tool: tool, Body: string(respBody)}
	}
	return decoded, nil
}

func (d *Dispatcher) recordDuration(ctx context.Context, sourceID, tool string, elapsed time.Duration) {
	if d.metrics == nil {
		return
	}
	_ = d.metrics.RecordDuration(d.metricsCtx, telemetry.MetricDispatchDuration, float64(elapsed.Milliseconds()))
}

func (d *Dispatcher) recordError(ctx context.Context, sourceID, tool, reason string) {
	if d.metrics == nil {
		return
	}
	_ = d.metrics.RecordError(d.metricsCtx, telemetry.MetricDispatchErrors, reason)
}
