package resilience

import (
	"context"

	"github.com/federator/polyglot-query-federator/core"
)

// ResilienceDependencies holds optional dependencies for a circuit breaker.
type ResilienceDependencies struct {
	Logger  core.Logger
	Metrics context.Context // non-nil enables OpenTelemetry-backed metrics
}

// CreateCircuitBreaker builds a circuit breaker for name with a production
// logger and, when a metrics context is supplied, OpenTelemetry-backed
// counters/histograms wired through MetricsCollector.
func CreateCircuitBreaker(name string, deps ResilienceDependencies) (*CircuitBreaker, error) {
	config := DefaultConfig()
	config.Name = name

	if deps.Logger != nil {
		config.Logger = deps.Logger
	} else {
		config.Logger = core.NewProductionLogger(core.LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		}, "circuit-breaker")
	}

	if deps.Metrics != nil {
		collector := NewOTelMetricsCollector(deps.Metrics)
		config.Metrics = collector
		config.Logger.Info("telemetry enabled for circuit breaker", map[string]interface{}{
			"operation": "telemetry_integration",
			"name":      name,
			"component": "circuit_breaker",
		})

		cb, err := NewCircuitBreaker(config)
		if err != nil {
			return nil, err
		}
		if err := collector.RegisterStateGauge(name, cb.GetState); err != nil {
			config.Logger.Error("failed to register circuit breaker state gauge", map[string]interface{}{
				"name":  name,
				"error": err.Error(),
			})
		}
		return cb, nil
	}

	config.Logger.Info("creating circuit breaker", map[string]interface{}{
		"operation":        "circuit_breaker_creation",
		"name":             name,
		"error_threshold":  config.ErrorThreshold,
		"volume_threshold": config.VolumeThreshold,
	})

	return NewCircuitBreaker(config)
}

// WithLogger sets the logger dependency.
func WithLogger(logger core.Logger) func(*ResilienceDependencies) {
	return func(d *ResilienceDependencies) {
		d.Logger = logger
	}
}

// WithMetrics enables OpenTelemetry-backed circuit breaker metrics, scoped
// to ctx for instrument creation.
func WithMetrics(ctx context.Context) func(*ResilienceDependencies) {
	return func(d *ResilienceDependencies) {
		d.Metrics = ctx
	}
}
