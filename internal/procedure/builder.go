// Package procedure builds, stores, and executes multi-step workflows over
// the concept graph: flat builder-style procedures, graph-schema procedures,
// and the guarded sequential executor with selector fallback.
package procedure

import (
	"context"
	"fmt"

	"knowshowgo/internal/logging"
	"knowshowgo/internal/store"
	"knowshowgo/internal/types"
)

// StepSpec describes one step handed to the builder. DependsOn holds indices
// into the step list.
type StepSpec struct {
	Tool      string                 `json:"tool"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	GuardText string                 `json:"guard_text,omitempty"`
	Guard     map[string]interface{} `json:"guard,omitempty"`
	OnFail    string                 `json:"on_fail,omitempty"`
	DependsOn []int                  `json:"depends_on,omitempty"`
}

// Builder constructs flat procedures: a Procedure node, one Step node per
// step, has_step edges carrying order, and depends_on edges between steps.
type Builder struct {
	store store.MemoryStore
}

// NewBuilder creates a procedure builder.
func NewBuilder(memStore store.MemoryStore) *Builder {
	return &Builder{store: memStore}
}

// Build validates the dependency graph and persists the procedure. Cycles
// and out-of-range dependency indices are rejected before any write.
func (b *Builder) Build(ctx context.Context, title, goal string, steps []StepSpec, prov types.Provenance) (string, error) {
	if title == "" {
		return "", fmt.Errorf("%w: procedure title required", types.ErrInvalidArgument)
	}
	if len(steps) == 0 {
		return "", fmt.Errorf("%w: procedure needs at least one step", types.ErrInvalidArgument)
	}
	for i, s := range steps {
		if s.Tool == "" {
			return "", fmt.Errorf("%w: step %d has no tool", types.ErrInvalidArgument, i)
		}
		for _, dep := range s.DependsOn {
			if dep < 0 || dep >= len(steps) {
				return "", fmt.Errorf("%w: step %d depends on out-of-range index %d", types.ErrInvalidArgument, i, dep)
			}
			if dep == i {
				return "", fmt.Errorf("%w: step %d depends on itself", types.ErrInvalidArgument, i)
			}
		}
	}
	if err := validateAcyclic(steps); err != nil {
		return "", err
	}

	procNode := &types.Node{
		Kind:   types.KindProcedure,
		Labels: []string{"Concept", "Procedure"},
		Props: types.Props{
			"title":         title,
			"goal":          goal,
			"tested":        false,
			"success_count": 0,
			"failure_count": 0,
		},
	}
	procID, err := b.store.UpsertNode(ctx, procNode, prov, title+" "+goal)
	if err != nil {
		return "", fmt.Errorf("failed to create procedure: %w", err)
	}

	stepIDs := make([]string, len(steps))
	for i, s := range steps {
		stepNode := &types.Node{
			Kind:   types.KindStep,
			Labels: []string{"Step"},
			Props: types.Props{
				"tool":       s.Tool,
				"payload":    s.Payload,
				"order":      i,
				"guard_text": s.GuardText,
				"guard":      s.Guard,
				"on_fail":    s.OnFail,
			},
		}
		stepID, err := b.store.UpsertNode(ctx, stepNode, prov, "")
		if err != nil {
			return "", fmt.Errorf("failed to create step %d: %w", i, err)
		}
		stepIDs[i] = stepID

		edge := &types.Edge{
			FromNode: procID,
			ToNode:   stepID,
			Rel:      types.RelHasStep,
			Props:    types.Props{"order": i},
		}
		if _, err := b.store.UpsertEdge(ctx, edge, prov); err != nil {
			return "", fmt.Errorf("failed to link step %d: %w", i, err)
		}
	}

	for i, s := range steps {
		for _, dep := range s.DependsOn {
			edge := &types.Edge{FromNode: stepIDs[i], ToNode: stepIDs[dep], Rel: types.RelDependsOn}
			if _, err := b.store.UpsertEdge(ctx, edge, prov); err != nil {
				return "", fmt.Errorf("failed to link dependency %d->%d: %w", i, dep, err)
			}
		}
	}

	logging.Procedure("Built procedure %s (%s) with %d steps", procID, title, len(steps))
	return procID, nil
}

// validateAcyclic runs Kahn's algorithm over the depends_on graph. If any
// node never reaches in-degree zero, there is a cycle.
func validateAcyclic(steps []StepSpec) error {
	n := len(steps)
	inDegree := make([]int, n)
	dependents := make([][]int, n)
	for i, s := range steps {
		inDegree[i] = len(s.DependsOn)
		for _, dep := range s.DependsOn {
			dependents[dep] = append(dependents[dep], i)
		}
	}

	queue := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if inDegree[i] == 0 {
			queue = append(queue, i)
		}
	}

	visited := 0
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		visited++
		for _, dep := range dependents[node] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if visited != n {
		return fmt.Errorf("%w: dependency cycle among %d of %d steps", types.ErrInvalidArgument, n-visited, n)
	}
	return nil
}
