package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/federator/polyglot-query-federator/execution"
	"github.com/federator/polyglot-query-federator/planner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlanner struct {
	steps []planner.PlanStep
	err   error
}

func (f *fakePlanner) Plan(ctx context.Context, nlQuery string) ([]planner.PlanStep, error) {
	return f.steps, f.err
}

type fakeExecutor struct {
	tasks []execution.ExecutionTask
}

func (f *fakeExecutor) Execute(ctx context.Context, plan []planner.PlanStep) []execution.ExecutionTask {
	return f.tasks
}

func TestHandleReturnsCompleteStatus(t *testing.T) {
	p := &fakePlanner{steps: []planner.PlanStep{{ID: "s1", SourceID: "src", OutputAlias: "customer"}}}
	e := &fakeExecutor{tasks: []execution.ExecutionTask{{
		PlanStepID: "s1",
		SourceID:   "src",
		Rows:       []map[string]interface{}{{"id": "1"}},
		Meta:       execution.TaskMeta{OutputAlias: "customer", Extra: map[string]interface{}{}},
	}}}

	o := New(p, e, nil)
	resp, err := o.Handle(context.Background(), "user-1", "find customer 1", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, resp.Status)
	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, "1", resp.FusedData.Customer["id"])
	assert.Equal(t, resp.FusedData.Explain, resp.Explain)
}

func TestHandlePropagatesPlannerError(t *testing.T) {
	p := &fakePlanner{err: errors.New("llm unreachable")}
	e := &fakeExecutor{}

	o := New(p, e, nil)
	_, err := o.Handle(context.Background(), "user-1", "anything", nil)
	require.Error(t, err)
}

func TestHandleGeneratesDistinctRequestIDs(t *testing.T) {
	p := &fakePlanner{}
	e := &fakeExecutor{}
	o := New(p, e, nil)

	first, err := o.Handle(context.Background(), "user-1", "q", nil)
	require.NoError(t, err)
	second, err := o.Handle(context.Background(), "user-1", "q", nil)
	require.NoError(t, err)
	assert.NotEqual(t, first.RequestID, second.RequestID)
}
