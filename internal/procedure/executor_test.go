package procedure

import (
	"context"
	"fmt"
	"testing"

	"knowshowgo/internal/types"
)

func TestExecuteProcedureSequential(t *testing.T) {
	s := newTestStore(t)
	b := NewBuilder(s)
	ctx := context.Background()

	procID, err := b.Build(ctx, "brief", "", []StepSpec{
		{Tool: "calendar.list"},
		{Tool: "tasks.list"},
	}, buildProv())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	runner := newFakeRunner("calendar.list", "tasks.list")
	ex := NewExecutor(s, runner)
	res := ex.ExecuteProcedure(ctx, procID, "trace-1")

	if res.Status != types.StatusCompleted {
		t.Fatalf("status = %q, err = %q", res.Status, res.Error)
	}
	if len(res.Results) != 2 {
		t.Fatalf("results = %d", len(res.Results))
	}
	if res.Results[0].Tool != "calendar.list" || res.Results[1].Tool != "tasks.list" {
		t.Errorf("execution order wrong: %+v", res.Results)
	}
	if res.TraceID != "trace-1" {
		t.Errorf("trace = %q", res.TraceID)
	}
}

func TestExecuteGuardSkipsStep(t *testing.T) {
	runner := newFakeRunner("a", "b", "c")
	runner.on("a", func(types.Props) (types.Props, error) {
		return types.Props{"status": types.StatusCompleted, "count": 0}, nil
	})
	ex := NewExecutor(newTestStore(t), runner)

	steps := []*types.StepView{
		{Tool: "a"},
		{Tool: "b", Guard: types.Props{"type": "equals", "path": "count", "value": 1}},
		{Tool: "c", Guard: types.Props{"type": "equals", "path": "status", "value": "skipped"}},
	}
	res := ex.ExecuteSteps(context.Background(), steps, "t")

	if res.Status != types.StatusCompleted {
		t.Fatalf("status = %q", res.Status)
	}
	if res.Results[1].Status != types.StatusSkipped {
		t.Errorf("guard count==1 should skip: %+v", res.Results[1])
	}
	// The skipped result becomes the prior for the next guard.
	if res.Results[2].Status != types.StatusCompleted {
		t.Errorf("guard against skipped status: %+v", res.Results[2])
	}
	if runner.callCount("b") != 0 {
		t.Error("skipped step must not run")
	}
}

func TestExecuteGuardVariants(t *testing.T) {
	prior := &types.StepResult{
		Tool:   "a",
		Status: types.StatusCompleted,
		Output: types.Props{"user": map[string]interface{}{"name": "ada"}},
	}

	cases := []struct {
		guard types.Props
		want  bool
	}{
		{nil, true},
		{types.Props{"type": "exists", "path": "user.name"}, true},
		{types.Props{"type": "exists", "path": "user.missing"}, false},
		{types.Props{"type": "equals", "path": "user.name", "value": "ada"}, true},
		{types.Props{"type": "equals", "path": "user.name", "value": "bob"}, false},
		{types.Props{"type": "not_equals", "path": "user.name", "value": "bob"}, true},
		{types.Props{"type": "not_equals", "path": "user.name", "value": "ada"}, false},
		{types.Props{"type": "not_equals", "path": "nope", "value": "x"}, true},
		{types.Props{"type": "equals", "path": "output.user.name", "value": "ada"}, true},
		{types.Props{"type": "mystery", "path": "x"}, true},
	}
	for i, c := range cases {
		if got := evaluateGuard(c.guard, prior); got != c.want {
			t.Errorf("case %d guard %v = %v, want %v", i, c.guard, got, c.want)
		}
	}

	// No prior step: exists fails, not_equals passes.
	if evaluateGuard(types.Props{"type": "exists", "path": "x"}, nil) {
		t.Error("exists with no prior should fail")
	}
	if !evaluateGuard(types.Props{"type": "not_equals", "path": "x", "value": "y"}, nil) {
		t.Error("not_equals with no prior should pass")
	}
}

func TestExecuteUnknownToolIsNoAction(t *testing.T) {
	ex := NewExecutor(newTestStore(t), newFakeRunner("known"))
	steps := []*types.StepView{
		{Tool: "teleport.user"},
		{Tool: "known"},
	}
	res := ex.ExecuteSteps(context.Background(), steps, "t")

	if res.Status != types.StatusCompleted {
		t.Fatalf("status = %q", res.Status)
	}
	if res.Results[0].Status != types.StatusNoAction {
		t.Errorf("unknown tool result: %+v", res.Results[0])
	}
	if res.Results[1].Status != types.StatusCompleted {
		t.Errorf("execution must continue past unknown tools: %+v", res.Results[1])
	}
}

func TestExecuteHaltsOnError(t *testing.T) {
	runner := newFakeRunner("a", "b", "c")
	runner.on("b", func(types.Props) (types.Props, error) {
		return nil, fmt.Errorf("boom")
	})
	ex := NewExecutor(newTestStore(t), runner)

	steps := []*types.StepView{{Tool: "a"}, {Tool: "b"}, {Tool: "c"}}
	res := ex.ExecuteSteps(context.Background(), steps, "trace-9")

	if res.Status != types.StatusError || res.Tool != "b" || res.Error != "boom" {
		t.Fatalf("error result = %+v", res)
	}
	if res.TraceID != "trace-9" {
		t.Errorf("trace = %q", res.TraceID)
	}
	if len(res.Results) != 1 {
		t.Errorf("partial results = %d, want 1", len(res.Results))
	}
	if runner.callCount("c") != 0 {
		t.Error("execution must halt at the failing step")
	}
}

func TestLoadStepsPropsFallback(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// A legacy procedure with inlined steps and no has_step edges.
	procNode := &types.Node{
		Kind: types.KindProcedure,
		Props: types.Props{
			"title": "legacy",
			"steps": []interface{}{
				map[string]interface{}{"tool": "web.get", "payload": map[string]interface{}{"url": "https://x"}},
				map[string]interface{}{"tool": "memory.remember"},
			},
		},
	}
	procID, err := s.UpsertNode(ctx, procNode, buildProv(), "")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	ex := NewExecutor(s, newFakeRunner("web.get", "memory.remember"))
	steps, err := ex.LoadSteps(ctx, procID)
	if err != nil {
		t.Fatalf("LoadSteps failed: %v", err)
	}
	if len(steps) != 2 || steps[0].Tool != "web.get" || steps[1].Order != 1 {
		t.Errorf("steps = %+v", steps)
	}

	res := ex.ExecuteProcedure(ctx, procID, "t")
	if res.Status != types.StatusCompleted || len(res.Results) != 2 {
		t.Errorf("legacy execution = %+v", res)
	}
}

func TestExecuteProcedureWithoutSteps(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	procID, _ := s.UpsertNode(ctx, &types.Node{Kind: types.KindProcedure, Props: types.Props{"title": "empty"}}, buildProv(), "")
	ex := NewExecutor(s, newFakeRunner())
	res := ex.ExecuteProcedure(ctx, procID, "t")
	if res.Status != types.StatusError {
		t.Errorf("empty procedure = %+v", res)
	}
}

func TestExecutePlan(t *testing.T) {
	runner := newFakeRunner("tasks.create")
	ex := NewExecutor(newTestStore(t), runner)

	plan := &types.Plan{
		Intent: types.IntentTask,
		Steps: []types.PlanStep{
			{Tool: "tasks.create", Params: types.Props{"title": "call mom"}},
		},
	}
	res := ex.ExecutePlan(context.Background(), plan, "t")
	if res.Status != types.StatusCompleted || len(res.Results) != 1 {
		t.Fatalf("plan execution = %+v", res)
	}
	if runner.calls[0].Params.String("title") != "call mom" {
		t.Errorf("params = %+v", runner.calls[0].Params)
	}
}
