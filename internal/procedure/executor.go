package procedure

import (
	"context"
	"fmt"
	"sort"

	"knowshowgo/internal/logging"
	"knowshowgo/internal/store"
	"knowshowgo/internal/types"
)

// ToolRunner executes one tool call. Has reports whether a tool name is
// registered; unknown tools become "no action taken" results rather than
// errors.
type ToolRunner interface {
	Run(ctx context.Context, tool string, params types.Props) (types.Props, error)
	Has(tool string) bool
}

// Executor runs procedures and plans sequentially with guard evaluation and
// selector fallback for web form filling.
type Executor struct {
	store  store.MemoryStore
	runner ToolRunner
}

// NewExecutor creates an executor.
func NewExecutor(memStore store.MemoryStore, runner ToolRunner) *Executor {
	return &Executor{store: memStore, runner: runner}
}

// ExecuteProcedure loads the steps of a stored procedure and runs them.
// Steps come from has_step edges when present, else from props.steps.
func (e *Executor) ExecuteProcedure(ctx context.Context, procedureUUID, traceID string) *types.ExecutionResults {
	steps, err := e.LoadSteps(ctx, procedureUUID)
	if err != nil {
		return &types.ExecutionResults{
			Status:  types.StatusError,
			Error:   err.Error(),
			TraceID: traceID,
		}
	}
	return e.ExecuteSteps(ctx, steps, traceID)
}

// LoadSteps hydrates a procedure's ordered steps.
func (e *Executor) LoadSteps(ctx context.Context, procedureUUID string) ([]*types.StepView, error) {
	proc, err := e.store.GetNode(ctx, procedureUUID)
	if err != nil {
		return nil, fmt.Errorf("procedure %s: %w", procedureUUID, err)
	}

	edges, err := e.store.GetEdges(ctx, procedureUUID, "", types.RelHasStep)
	if err != nil {
		return nil, fmt.Errorf("failed to load step edges: %w", err)
	}

	if len(edges) > 0 {
		sort.Slice(edges, func(i, j int) bool {
			return edges[i].Props.Int("order") < edges[j].Props.Int("order")
		})
		steps := make([]*types.StepView, 0, len(edges))
		for _, edge := range edges {
			node, err := e.store.GetNode(ctx, edge.ToNode)
			if err != nil {
				return nil, fmt.Errorf("step node %s: %w", edge.ToNode, err)
			}
			view, err := types.AsStep(node)
			if err != nil {
				return nil, err
			}
			steps = append(steps, view)
		}
		return steps, nil
	}

	// Legacy fallback: steps inlined in props.
	raw, ok := proc.Props["steps"].([]interface{})
	if !ok || len(raw) == 0 {
		return nil, fmt.Errorf("%w: procedure %s has no steps", types.ErrInvalidArgument, procedureUUID)
	}
	steps := make([]*types.StepView, 0, len(raw))
	for i, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: procedure %s step %d is not an object", types.ErrInvalidArgument, procedureUUID, i)
		}
		node := &types.Node{Kind: types.KindStep, Props: types.Props(m)}
		view, err := types.AsStep(node)
		if err != nil {
			return nil, err
		}
		view.Order = i
		steps = append(steps, view)
	}
	return steps, nil
}

// ExecuteSteps runs steps strictly sequentially. A failed guard skips the
// step; an unknown tool yields "no action taken"; a tool error halts with a
// structured error result.
func (e *Executor) ExecuteSteps(ctx context.Context, steps []*types.StepView, traceID string) *types.ExecutionResults {
	trace := logging.Get(logging.CategoryProcedure).WithTrace(traceID)

	results := make([]types.StepResult, 0, len(steps))
	var prior *types.StepResult

	for i, step := range steps {
		if !evaluateGuard(step.Guard, prior) {
			trace.Debug("step %d (%s) skipped by guard", i, step.Tool)
			r := types.StepResult{Tool: step.Tool, Params: step.Payload, Status: types.StatusSkipped}
			results = append(results, r)
			prior = &r
			continue
		}

		if e.runner == nil || !e.runner.Has(step.Tool) {
			trace.Debug("step %d tool %q unknown", i, step.Tool)
			r := types.StepResult{Tool: step.Tool, Params: step.Payload, Status: types.StatusNoAction}
			results = append(results, r)
			prior = &r
			continue
		}

		var output types.Props
		var err error
		if step.Tool == "web.fill" && hasSelectorMap(step.Payload) {
			output, err = e.fillWithFallback(ctx, step.Payload)
		} else {
			output, err = e.runner.Run(ctx, step.Tool, step.Payload)
		}
		if err != nil {
			trace.Warn("step %d (%s) failed: %v", i, step.Tool, err)
			return &types.ExecutionResults{
				Status:  types.StatusError,
				Tool:    step.Tool,
				Params:  step.Payload,
				Error:   err.Error(),
				TraceID: traceID,
				Results: results,
			}
		}

		status := types.StatusCompleted
		if s, ok := output["status"].(string); ok && s != "" {
			status = s
		}
		r := types.StepResult{Tool: step.Tool, Params: step.Payload, Status: status, Output: output}
		results = append(results, r)
		prior = &r

		// Blocked and staged shell results are terminal for the step but do
		// not halt the run; the guard of the next step decides.
		trace.Debug("step %d (%s) -> %s", i, step.Tool, status)
	}

	return &types.ExecutionResults{
		Status:  types.StatusCompleted,
		TraceID: traceID,
		Results: results,
	}
}

// ExecutePlan runs a plan's steps through the same machinery.
func (e *Executor) ExecutePlan(ctx context.Context, plan *types.Plan, traceID string) *types.ExecutionResults {
	steps := make([]*types.StepView, 0, len(plan.Steps))
	for i, ps := range plan.Steps {
		steps = append(steps, &types.StepView{
			Tool:    ps.Tool,
			Order:   i,
			Payload: ps.Params,
		})
	}
	return e.ExecuteSteps(ctx, steps, traceID)
}

// =============================================================================
// GUARDS
// =============================================================================

// evaluateGuard checks a structured guard against the prior step's result.
// An empty guard always passes. Supported types: equals, not_equals, exists.
func evaluateGuard(guard types.Props, prior *types.StepResult) bool {
	if len(guard) == 0 {
		return true
	}
	guardType := guard.String("type")
	path := guard.String("path")
	if guardType == "" || path == "" {
		return true
	}

	var value interface{}
	found := false
	if prior != nil {
		value, found = prior.Get(path)
	}

	switch guardType {
	case "exists":
		return found
	case "equals":
		return found && looseEqual(value, guard["value"])
	case "not_equals":
		return !found || !looseEqual(value, guard["value"])
	default:
		// Unknown guard types fail open so new guard vocabulary does not
		// silently skip steps.
		return true
	}
}

func looseEqual(a, b interface{}) bool {
	if af, ok := toNumber(a); ok {
		if bf, ok := toNumber(b); ok {
			return af == bf
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func toNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
