package procedure

import (
	"context"
	"errors"
	"testing"

	"knowshowgo/internal/types"
)

func intp(i int) *int { return &i }

func TestManagerBuildEmitsDualEdgeSets(t *testing.T) {
	s := newTestStore(t)
	m := NewManager(s)
	ctx := context.Background()

	procID, err := m.Build(ctx, "guarded fetch", "fetch with retry", []GraphNodeSpec{
		{Type: NodeOperation, Tool: "web.get", Payload: map[string]interface{}{"url": "https://example.com"}},
		{Type: NodeConditional, BranchTrue: intp(2), BranchFalse: intp(0),
			Guard: map[string]interface{}{"type": "equals", "path": "status", "value": "completed"}},
		{Type: NodeOperation, Tool: "memory.remember"},
	}, buildProv())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	hasNode, _ := s.GetEdges(ctx, procID, "", types.RelHasNode)
	hasStep, _ := s.GetEdges(ctx, procID, "", types.RelHasStep)
	if len(hasNode) != 3 || len(hasStep) != 3 {
		t.Errorf("edge sets: has_node=%d has_step=%d, want 3 each", len(hasNode), len(hasStep))
	}

	conforms, _ := s.GetEdges(ctx, procID, "", types.RelConformsTo)
	if len(conforms) != 1 {
		t.Fatalf("conforms_to edges: %d", len(conforms))
	}
	schema, _ := s.GetNode(ctx, conforms[0].ToNode)
	if schema.Kind != types.KindSchema {
		t.Errorf("schema kind = %s", schema.Kind)
	}

	branchTrue, _ := s.GetEdges(ctx, "", "", types.RelBranchTrue)
	branchFalse, _ := s.GetEdges(ctx, "", "", types.RelBranchFalse)
	if len(branchTrue) != 1 || len(branchFalse) != 1 {
		t.Errorf("branch edges: true=%d false=%d", len(branchTrue), len(branchFalse))
	}

	// The dual has_step set must still be executable by the legacy loader.
	ex := NewExecutor(s, newFakeRunner("web.get", "memory.remember", "conditional"))
	steps, err := ex.LoadSteps(ctx, procID)
	if err != nil {
		t.Fatalf("LoadSteps over graph procedure: %v", err)
	}
	if len(steps) != 3 || steps[0].Tool != "web.get" {
		t.Errorf("hydrated steps = %+v", steps)
	}
}

func TestManagerBuildLoopAndProcedureCall(t *testing.T) {
	s := newTestStore(t)
	m := NewManager(s)
	ctx := context.Background()

	subID, err := m.Build(ctx, "sub", "", []GraphNodeSpec{
		{Type: NodeOperation, Tool: "tasks.list"},
	}, buildProv())
	if err != nil {
		t.Fatalf("sub build: %v", err)
	}

	procID, err := m.Build(ctx, "outer", "", []GraphNodeSpec{
		{Type: NodeOperation, Tool: "web.get"},
		{Type: NodeLoop, MaxIterations: 3, LoopBack: intp(0)},
		{Type: NodeProcedureCall, CallsProcedure: subID},
	}, buildProv())
	if err != nil {
		t.Fatalf("outer build: %v", err)
	}

	loopBack, _ := s.GetEdges(ctx, "", "", types.RelLoopBack)
	if len(loopBack) != 1 {
		t.Errorf("loop_back edges: %d", len(loopBack))
	}
	calls, _ := s.GetEdges(ctx, "", subID, types.RelCallsProcedure)
	if len(calls) != 1 {
		t.Errorf("calls_procedure edges: %d", len(calls))
	}
	subs, _ := s.GetEdges(ctx, procID, subID, types.RelHasSubprocedure)
	if len(subs) != 1 {
		t.Errorf("has_subprocedure edges: %d", len(subs))
	}
}

func TestManagerBuildValidation(t *testing.T) {
	m := NewManager(newTestStore(t))
	ctx := context.Background()

	cases := []struct {
		name  string
		nodes []GraphNodeSpec
	}{
		{"operation without tool", []GraphNodeSpec{{Type: NodeOperation}}},
		{"unknown type", []GraphNodeSpec{{Type: "teleport"}}},
		{"loop without max", []GraphNodeSpec{{Type: NodeLoop, LoopBack: intp(0)}}},
		{"branch out of range", []GraphNodeSpec{{Type: NodeConditional, BranchTrue: intp(9)}}},
		{"call without target", []GraphNodeSpec{{Type: NodeProcedureCall}}},
	}
	for _, c := range cases {
		if _, err := m.Build(ctx, "t", "", c.nodes, buildProv()); !errors.Is(err, types.ErrInvalidArgument) {
			t.Errorf("%s: %v", c.name, err)
		}
	}
}
