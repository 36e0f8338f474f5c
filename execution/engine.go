package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/federator/polyglot-query-federator/catalog"
	"github.com/federator/polyglot-query-federator/core"
	"github.com/federator/polyglot-query-federator/planner"
)

// Dispatcher is the slice of the Tool Dispatcher the execution engine
// needs.
type Dispatcher interface {
	Call(ctx context.Context, sourceID, tool string, payload map[string]interface{}) (map[string]interface{}, error)
}

// defaultToolFor infers a tool from db_type when a step omits one,
// matching the dispatcher's allowed (db_type, tool) table.
func defaultToolFor(dbType catalog.DbType) planner.Tool {
	switch dbType {
	case catalog.DbTypeNoSQL:
		return planner.ToolFind
	case catalog.DbTypeGraph:
		return planner.ToolTraverse
	case catalog.DbTypeVector:
		return planner.ToolSearch
	default:
		return planner.ToolExecuteSQL
	}
}

// Engine implements execute(plan) -> [ExecutionTask].
type Engine struct {
	dispatcher Dispatcher
	logger     core.Logger
}

// New builds an Engine over dispatcher.
func New(dispatcher Dispatcher, logger core.Logger) *Engine {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("federator/execution")
	}
	return &Engine{dispatcher: dispatcher, logger: logger}
}

// Execute runs plan's steps strictly in order, never aborting because one
// step failed.
func (e *Engine) Execute(ctx context.Context, plan []planner.PlanStep) []ExecutionTask {
	tasksByStepID := make(map[string]ExecutionTask, len(plan))
	out := make([]ExecutionTask, 0, len(plan))

	for _, step := range plan {
		if step.DependsOn != "" {
			dep, ok := tasksByStepID[step.DependsOn]
			if !ok || len(dep.Rows) == 0 {
				if step.Optional {
					e.logger.InfoWithContext(ctx, "skipping optional step: dependency missing or empty", map[string]interface{}{
						"step_id": step.ID, "depends_on": step.DependsOn,
					})
					continue
				}
				task := e.failedTask(step, fmt.Sprintf("Dependency %s not found", step.DependsOn))
				tasksByStepID[step.ID] = task
				out = append(out, task)
				continue
			}
		}

		resolvedInput, unresolvedKeys := resolveReferences(step.Input, tasksByStepID)
		for _, key := range unresolvedKeys {
			e.logger.WarnWithContext(ctx, "dropping unresolvable reference", map[string]interface{}{"step_id": step.ID, "key": key})
		}

		tool := step.Tool
		if tool == "" {
			tool = defaultToolFor(step.DbType)
		}

		resp, err := e.dispatcher.Call(ctx, step.SourceID, string(tool), resolvedInput)
		if err != nil {
			e.logger.WarnWithContext(ctx, "dispatch failed", map[string]interface{}{"step_id": step.ID, "error": err.Error()})
			task := e.failedTask(step, err.Error())
			tasksByStepID[step.ID] = task
			out = append(out, task)
			continue
		}

		task := e.buildTask(step, tool, resolvedInput, resp)
		tasksByStepID[step.ID] = task
		out = append(out, task)
	}

	return out
}

func (e *Engine) failedTask(step planner.PlanStep, message string) ExecutionTask {
	return ExecutionTask{
		TaskID:      uuid.NewString(),
		PlanStepID:  step.ID,
		SourceID:    step.SourceID,
		NativeQuery: nativeQuery(step.Tool, step.Input),
		Rows:        []map[string]interface{}{},
		Meta: TaskMeta{
			SourceID:    step.SourceID,
			SourceType:  string(step.DbType),
			OutputAlias: step.OutputAlias,
			Extra:       map[string]interface{}{"error": message},
		},
	}
}

func (e *Engine) buildTask(step planner.PlanStep, tool planner.Tool, input map[string]interface{}, resp map[string]interface{}) ExecutionTask {
	meta := TaskMeta{
		SourceID:    step.SourceID,
		SourceType:  string(step.DbType),
		OutputAlias: step.OutputAlias,
		Extra:       map[string]interface{}{},
	}
	if respMeta, ok := resp["meta"].(map[string]interface{}); ok {
		for k, v := range respMeta {
			switch k {
			case "source_id":
				if s, ok := v.(string); ok {
					meta.SourceID = s
				}
			case "source_type":
				if s, ok := v.(string); ok {
					meta.SourceType = s
				}
			case "last_updated":
				if s, ok := v.(string); ok {
					meta.LastUpdated = s
				}
			default:
				meta.Extra[k] = v
			}
		}
	}

	return ExecutionTask{
		TaskID:      uuid.NewString(),
		PlanStepID:  step.ID,
		SourceID:    step.SourceID,
		NativeQuery: nativeQuery(tool, input),
		Rows:        normalizeRows(resp),
		Meta:        meta,
	}
}

// nativeQuery reports the SQL text when present, otherwise a
// tool(payload)-shaped description.
func nativeQuery(tool planner.Tool, input map[string]interface{}) string {
	if q, ok := input["query"].(string); ok && q != "" {
		return q
	}
	encoded, err := json.Marshal(input)
	if err != nil {
		encoded = []byte("{}")
	}
	return fmt.Sprintf("%s(%s)", tool, string(encoded))
}

// normalizeRows extracts the row list from a tool response body, checking
// "rows", "docs", "matches", "data" in that order.
func normalizeRows(resp map[string]interface{}) []map[string]interface{} {
	for _, key := range []string{"rows", "docs", "matches", "data"} {
		if raw, ok := resp[key]; ok {
			return toRows(raw)
		}
	}
	return []map[string]interface{}{}
}

func toRows(raw interface{}) []map[string]interface{} {
	list, ok := raw.([]interface{})
	if !ok {
		return []map[string]interface{}{}
	}
	rows := make([]map[string]interface{}, 0, len(list))
	for _, item := range list {
		if row, ok := item.(map[string]interface{}); ok {
			rows = append(rows, row)
		}
	}
	return rows
}

// resolveReferences rewrites every "<key>_from" entry in input into "<key>"
// by resolving it against completed tasks, dropping any that can't be
// resolved. It returns the resolved copy plus the list of dropped keys.
func resolveReferences(input map[string]interface{}, tasks map[string]ExecutionTask) (map[string]interface{}, []string) {
	resolved := make(map[string]interface{}, len(input))
	var dropped []string

	for key, value := range input {
		if !strings.HasSuffix(key, "_from") {
			resolved[key] = value
			continue
		}
		targetKey := strings.TrimSuffix(key, "_from")
		ref, ok := value.(string)
		if !ok {
			dropped = append(dropped, key)
			continue
		}
		resolvedValue, ok := resolveRef(tasks, ref)
		if !ok {
			dropped = append(dropped, key)
			continue
		}
		resolved[targetKey] = resolvedValue
	}

	return resolved, dropped
}

// resolveRef splits ref on ".", resolves the leading step id to a
// completed task's first row, then walks the remaining segments through
// nested objects.
func resolveRef(tasks map[string]ExecutionTask, ref string) (interface{}, bool) {
	segments := strings.Split(ref, ".")
	if len(segments) < 2 {
		return nil, false
	}
	task, ok := tasks[segments[0]]
	if !ok || len(task.Rows) == 0 {
		return nil, false
	}

	var current interface{} = task.Rows[0]
	for _, field := range segments[1:] {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = obj[field]
		if !ok {
			return nil, false
		}
	}
	return current, true
}
