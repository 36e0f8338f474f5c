package resilience

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/federator/polyglot-query-federator/core"
)

// These tests cover the circuit breaker surface dispatch.Dispatcher actually
// drives: Execute/ExecuteWithTimeout, the closed->open->half-open->closed
// state machine, DefaultErrorClassifier's user-error carve-outs, panic
// recovery inside Execute, and concurrent use of one breaker per source_id.
// Manual overrides, the legacy Record*/CanExecute API, state-change
// listeners, and orphaned-token cleanup are teacher config knobs the
// federator never exposes (see DESIGN.md); they are not tested here.

func testConfig(name string) *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:             name,
		ErrorThreshold:   0.5,
		VolumeThreshold:  5,
		SleepWindow:      100 * time.Millisecond,
		HalfOpenRequests: 2,
		SuccessThreshold: 0.5,
		WindowSize:       1 * time.Second,
		BucketCount:      10,
		ErrorClassifier:  DefaultErrorClassifier,
		Logger:           &core.NoOpLogger{},
		Metrics:          &noopMetrics{},
	}
}

func TestCircuitBreakerStateTransitions(t *testing.T) {
	config := testConfig("state-transitions")
	cb, err := NewCircuitBreaker(config)
	require := func(cond bool, msg string) {
		if !cond {
			t.Fatal(msg)
		}
	}
	require(err == nil, "NewCircuitBreaker failed")

	if cb.GetState() != "closed" {
		t.Fatalf("expected initial state closed, got %s", cb.GetState())
	}

	for i := 0; i < 6; i++ {
		if execErr := cb.Execute(context.Background(), func() error {
			return errors.New("dispatch transport error")
		}); execErr == nil {
			t.Error("expected error from Execute")
		}
	}
	if cb.GetState() != "open" {
		t.Fatalf("expected open after exceeding error threshold, got %s", cb.GetState())
	}

	if err := cb.Execute(context.Background(), func() error { return nil }); !errors.Is(err, core.ErrCircuitBreakerOpen) {
		t.Errorf("expected ErrCircuitBreakerOpen while open, got %v", err)
	}

	time.Sleep(250 * time.Millisecond) // past SleepWindow, with CI buffer

	for i := 0; i < config.HalfOpenRequests; i++ {
		if err := cb.Execute(context.Background(), func() error { return nil }); err != nil {
			t.Errorf("expected success during half-open probe, got %v", err)
		}
	}
	if cb.GetState() != "closed" {
		t.Fatalf("expected closed after half-open recovery, got %s", cb.GetState())
	}
}

func TestCircuitBreakerErrorClassificationIgnoresUserErrors(t *testing.T) {
	config := testConfig("error-classification")
	config.VolumeThreshold = 3
	cb, err := NewCircuitBreaker(config)
	if err != nil {
		t.Fatalf("NewCircuitBreaker failed: %v", err)
	}

	// Not-found responses (e.g. an unknown tool) must never trip the
	// breaker: they are the caller's mistake, not the backend's.
	for i := 0; i < 5; i++ {
		_ = cb.Execute(context.Background(), func() error { return core.ErrSourceNotFound })
	}
	if cb.GetState() != "closed" {
		t.Errorf("expected closed state with only not-found errors, got %s", cb.GetState())
	}

	// Transport-level failures must count.
	for i := 0; i < 4; i++ {
		_ = cb.Execute(context.Background(), func() error { return core.ErrConnectionFailed })
	}
	if cb.GetState() != "open" {
		t.Errorf("expected open state after transport errors, got %s", cb.GetState())
	}
}

func TestCircuitBreakerExecuteWithTimeout(t *testing.T) {
	cb, err := NewCircuitBreaker(DefaultConfig())
	if err != nil {
		t.Fatalf("NewCircuitBreaker failed: %v", err)
	}

	if err := cb.ExecuteWithTimeout(context.Background(), 100*time.Millisecond, func() error {
		time.Sleep(10 * time.Millisecond)
		return nil
	}); err != nil {
		t.Errorf("expected success when function completes before timeout, got %v", err)
	}

	err = cb.ExecuteWithTimeout(context.Background(), 20*time.Millisecond, func() error {
		time.Sleep(100 * time.Millisecond)
		return nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestCircuitBreakerRecoversPanicIntoError(t *testing.T) {
	cb, err := NewCircuitBreaker(DefaultConfig())
	if err != nil {
		t.Fatalf("NewCircuitBreaker failed: %v", err)
	}

	err = cb.Execute(context.Background(), func() error {
		panic("adapter returned malformed payload")
	})
	if err == nil || !strings.Contains(err.Error(), "panic in circuit breaker") {
		t.Fatalf("expected panic converted to error, got %v", err)
	}

	// The breaker must stay usable after a panic.
	if err := cb.Execute(context.Background(), func() error { return nil }); err != nil {
		t.Errorf("expected success after panic recovery, got %v", err)
	}
}

func TestCircuitBreakerConcurrentAccess(t *testing.T) {
	config := testConfig("concurrent")
	config.VolumeThreshold = 10
	cb, err := NewCircuitBreaker(config)
	if err != nil {
		t.Fatalf("NewCircuitBreaker failed: %v", err)
	}

	var wg sync.WaitGroup
	var successes, failures int32
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				execErr := cb.Execute(context.Background(), func() error {
					if (id+j)%2 == 0 {
						return nil
					}
					return errors.New("simulated failure")
				})
				if execErr == nil {
					atomic.AddInt32(&successes, 1)
				} else if !errors.Is(execErr, core.ErrCircuitBreakerOpen) {
					atomic.AddInt32(&failures, 1)
				}
			}
		}(i)
	}
	wg.Wait()

	if successes+failures == 0 {
		t.Error("no operations completed")
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("DefaultConfig must validate, got %v", err)
	}
}

func TestCircuitBreakerConfigValidationRejectsBadInput(t *testing.T) {
	cases := []struct {
		name   string
		config *CircuitBreakerConfig
	}{
		{"empty name", &CircuitBreakerConfig{Name: "", ErrorThreshold: 0.5, VolumeThreshold: 10, HalfOpenRequests: 1, BucketCount: 1}},
		{"negative error threshold", &CircuitBreakerConfig{Name: "t", ErrorThreshold: -0.1, VolumeThreshold: 10, HalfOpenRequests: 1, BucketCount: 1}},
		{"error threshold over 1", &CircuitBreakerConfig{Name: "t", ErrorThreshold: 1.5, VolumeThreshold: 10, HalfOpenRequests: 1, BucketCount: 1}},
		{"negative volume threshold", &CircuitBreakerConfig{Name: "t", ErrorThreshold: 0.5, VolumeThreshold: -1, HalfOpenRequests: 1, BucketCount: 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.config.Validate(); err == nil {
				t.Errorf("expected validation error for %s", tc.name)
			}
		})
	}
}
