// Package orchestrator implements the Query Orchestrator (C7): the single
// entry point that wires the planner, execution engine, and fusion engine
// together for one request.
package orchestrator

import (
	"context"

	"github.com/google/uuid"

	"github.com/federator/polyglot-query-federator/core"
	"github.com/federator/polyglot-query-federator/execution"
	"github.com/federator/polyglot-query-federator/fusion"
	"github.com/federator/polyglot-query-federator/planner"
)

// Status is always "COMPLETE" in this single-phase design: Handle never
// returns a partial or pending result, it either completes or returns a
// FatalError.
const StatusComplete = "COMPLETE"

// Planner is the slice of the Planner the orchestrator needs.
type Planner interface {
	Plan(ctx context.Context, nlQuery string) ([]planner.PlanStep, error)
}

// Executor is the slice of the Execution Engine the orchestrator needs.
type Executor interface {
	Execute(ctx context.Context, plan []planner.PlanStep) []execution.ExecutionTask
}

// Response is what Handle returns to a caller.
type Response struct {
	RequestID string                 `json:"request_id"`
	Status    string                 `json:"status"`
	FusedData *fusion.FusedResponse  `json:"fused_data"`
	Explain   []string               `json:"explain"`
}

// Orchestrator implements handle(user_id, nl_query, context) -> Response.
// It owns no shared mutable state beyond what Planner/Executor hold; a
// binary may construct as many independent Orchestrators as it likes.
type Orchestrator struct {
	planner  Planner
	executor Executor
	logger   core.Logger
}

// New builds an Orchestrator from a planner and executor.
func New(p Planner, e Executor, logger core.Logger) *Orchestrator {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("federator/orchestrator")
	}
	return &Orchestrator{planner: p, executor: e, logger: logger}
}

// Handle plans, executes, and fuses one natural-language query into a
// single-phase Response. context carries caller-supplied request
// metadata (e.g. tenant, locale) that is logged but not otherwise
// interpreted by the core pipeline.
func (o *Orchestrator) Handle(ctx context.Context, userID, nlQuery string, reqContext map[string]interface{}) (*Response, error) {
	requestID := uuid.New().String()
	ctx = core.WithRequestID(ctx, requestID)
	log := o.logger
	log.InfoWithContext(ctx, "handling query", map[string]interface{}{
		"request_id": requestID,
		"user_id":    userID,
		"context":    reqContext,
	})

	plan, err := o.planner.Plan(ctx, nlQuery)
	if err != nil {
		return nil, core.NewFrameworkError("orchestrator.Handle", "orchestrator", err)
	}

	tasks := o.executor.Execute(ctx, plan)
	fused := fusion.Fuse(tasks, nlQuery)

	log.InfoWithContext(ctx, "query handled", map[string]interface{}{
		"request_id": requestID,
		"step_count": len(plan),
		"task_count": len(tasks),
	})

	return &Response{
		RequestID: requestID,
		Status:    StatusComplete,
		FusedData: fused,
		Explain:   fused.Explain,
	}, nil
}
