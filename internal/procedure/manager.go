package procedure

import (
	"context"
	"fmt"

	"knowshowgo/internal/logging"
	"knowshowgo/internal/store"
	"knowshowgo/internal/types"
)

// Graph-schema node types.
const (
	NodeOperation     = "operation"
	NodeConditional   = "conditional"
	NodeLoop          = "loop"
	NodeProcedureCall = "procedure_call"
)

// GraphNodeSpec describes one node of a graph-schema procedure.
type GraphNodeSpec struct {
	Type    string                 `json:"type"` // operation, conditional, loop, procedure_call
	Tool    string                 `json:"tool,omitempty"`
	Payload map[string]interface{} `json:"payload,omitempty"`

	// Conditional branches, indices into the node list.
	BranchTrue  *int `json:"branch_true,omitempty"`
	BranchFalse *int `json:"branch_false,omitempty"`

	// Loop control. LoopBack points at the loop body start.
	LoopBack      *int `json:"loop_back,omitempty"`
	MaxIterations int  `json:"max_iterations,omitempty"`

	// Procedure call target uuid.
	CallsProcedure string `json:"calls_procedure,omitempty"`

	Guard     map[string]interface{} `json:"guard,omitempty"`
	GuardText string                 `json:"guard_text,omitempty"`
}

// Manager constructs graph-schema procedures: a Procedure node conforming to
// a Schema node, with typed control-flow nodes. Both has_node and has_step
// edge sets are emitted so legacy consumers still see ordered steps.
type Manager struct {
	store store.MemoryStore
}

// NewManager creates a procedure manager.
func NewManager(memStore store.MemoryStore) *Manager {
	return &Manager{store: memStore}
}

// Build persists a graph-schema procedure and returns its uuid.
func (m *Manager) Build(ctx context.Context, title, goal string, nodes []GraphNodeSpec, prov types.Provenance) (string, error) {
	if title == "" {
		return "", fmt.Errorf("%w: procedure title required", types.ErrInvalidArgument)
	}
	if len(nodes) == 0 {
		return "", fmt.Errorf("%w: procedure needs at least one node", types.ErrInvalidArgument)
	}
	for i, n := range nodes {
		switch n.Type {
		case NodeOperation:
			if n.Tool == "" {
				return "", fmt.Errorf("%w: operation node %d has no tool", types.ErrInvalidArgument, i)
			}
		case NodeConditional:
			if err := checkRef(n.BranchTrue, len(nodes), i, "branch_true"); err != nil {
				return "", err
			}
			if err := checkRef(n.BranchFalse, len(nodes), i, "branch_false"); err != nil {
				return "", err
			}
		case NodeLoop:
			if n.MaxIterations <= 0 {
				return "", fmt.Errorf("%w: loop node %d needs max_iterations > 0", types.ErrInvalidArgument, i)
			}
			if err := checkRef(n.LoopBack, len(nodes), i, "loop_back"); err != nil {
				return "", err
			}
		case NodeProcedureCall:
			if n.CallsProcedure == "" {
				return "", fmt.Errorf("%w: procedure_call node %d has no target", types.ErrInvalidArgument, i)
			}
		default:
			return "", fmt.Errorf("%w: node %d has unknown type %q", types.ErrInvalidArgument, i, n.Type)
		}
	}

	procNode := &types.Node{
		Kind:   types.KindProcedure,
		Labels: []string{"Concept", "Procedure", "GraphSchema"},
		Props: types.Props{
			"title":         title,
			"goal":          goal,
			"schema":        "graph",
			"tested":        false,
			"success_count": 0,
			"failure_count": 0,
		},
	}
	procID, err := m.store.UpsertNode(ctx, procNode, prov, title+" "+goal)
	if err != nil {
		return "", fmt.Errorf("failed to create procedure: %w", err)
	}

	schemaNode := &types.Node{
		Kind:   types.KindSchema,
		Labels: []string{"Schema"},
		Props:  types.Props{"name": "procedure-graph", "version": 1},
	}
	schemaID, err := m.store.UpsertNode(ctx, schemaNode, prov, "")
	if err != nil {
		return "", fmt.Errorf("failed to create schema: %w", err)
	}
	conform := &types.Edge{FromNode: procID, ToNode: schemaID, Rel: types.RelConformsTo}
	if _, err := m.store.UpsertEdge(ctx, conform, prov); err != nil {
		return "", fmt.Errorf("failed to link schema: %w", err)
	}

	nodeIDs := make([]string, len(nodes))
	for i, n := range nodes {
		props := types.Props{
			"node_type":  n.Type,
			"order":      i,
			"guard":      n.Guard,
			"guard_text": n.GuardText,
		}
		switch n.Type {
		case NodeOperation:
			props["tool"] = n.Tool
			props["payload"] = n.Payload
		case NodeLoop:
			props["max_iterations"] = n.MaxIterations
			props["tool"] = "loop"
		case NodeConditional:
			props["tool"] = "conditional"
		case NodeProcedureCall:
			props["tool"] = "procedure_call"
			props["procedure_uuid"] = n.CallsProcedure
		}

		graphNode := &types.Node{Kind: types.KindNode, Labels: []string{"Node", n.Type}, Props: props}
		id, err := m.store.UpsertNode(ctx, graphNode, prov, "")
		if err != nil {
			return "", fmt.Errorf("failed to create node %d: %w", i, err)
		}
		nodeIDs[i] = id

		hasNode := &types.Edge{FromNode: procID, ToNode: id, Rel: types.RelHasNode, Props: types.Props{"order": i}}
		if _, err := m.store.UpsertEdge(ctx, hasNode, prov); err != nil {
			return "", fmt.Errorf("failed to link node %d: %w", i, err)
		}
		// Legacy consumers traverse has_step; the same ordered set is
		// emitted under both relations.
		hasStep := &types.Edge{FromNode: procID, ToNode: id, Rel: types.RelHasStep, Props: types.Props{"order": i}}
		if _, err := m.store.UpsertEdge(ctx, hasStep, prov); err != nil {
			return "", fmt.Errorf("failed to link step %d: %w", i, err)
		}
	}

	for i, n := range nodes {
		flow := map[string]*int{
			types.RelBranchTrue:  n.BranchTrue,
			types.RelBranchFalse: n.BranchFalse,
			types.RelLoopBack:    n.LoopBack,
		}
		for rel, target := range flow {
			if target == nil {
				continue
			}
			edge := &types.Edge{FromNode: nodeIDs[i], ToNode: nodeIDs[*target], Rel: rel}
			if _, err := m.store.UpsertEdge(ctx, edge, prov); err != nil {
				return "", fmt.Errorf("failed to link %s from node %d: %w", rel, i, err)
			}
		}
		if n.CallsProcedure != "" {
			edge := &types.Edge{FromNode: nodeIDs[i], ToNode: n.CallsProcedure, Rel: types.RelCallsProcedure}
			if _, err := m.store.UpsertEdge(ctx, edge, prov); err != nil {
				return "", fmt.Errorf("failed to link procedure call from node %d: %w", i, err)
			}
			sub := &types.Edge{FromNode: procID, ToNode: n.CallsProcedure, Rel: types.RelHasSubprocedure}
			if _, err := m.store.UpsertEdge(ctx, sub, prov); err != nil {
				return "", fmt.Errorf("failed to link subprocedure: %w", err)
			}
		}
	}

	logging.Procedure("Built graph-schema procedure %s (%s) with %d nodes", procID, title, len(nodes))
	return procID, nil
}

func checkRef(ref *int, n, node int, field string) error {
	if ref == nil {
		return nil
	}
	if *ref < 0 || *ref >= n {
		return fmt.Errorf("%w: node %d %s index %d out of range", types.ErrInvalidArgument, node, field, *ref)
	}
	return nil
}
