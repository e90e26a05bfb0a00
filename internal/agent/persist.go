package agent

import (
	"context"

	"knowshowgo/internal/events"
	"knowshowgo/internal/logging"
	"knowshowgo/internal/procedure"
	"knowshowgo/internal/types"
)

// logMessage records the user utterance as a Message node with an embedding
// so later name and note queries can find it. Failures are swallowed.
func (a *Agent) logMessage(ctx context.Context, request string, prov types.Provenance) {
	node := &types.Node{
		Kind:   types.KindMessage,
		Labels: []string{"Message", "conversation"},
		Props: types.Props{
			"content":  request,
			"role":     "user",
			"trace_id": prov.TraceID,
		},
	}
	if _, err := a.store.UpsertNode(ctx, node, prov, request); err != nil {
		logging.Agent("failed to log message: %v", err)
		return
	}
	a.emit(events.TypeMessageLogged, map[string]interface{}{"trace_id": prov.TraceID})
}

// selfHeal rewrites stored Step selectors when a fill step succeeded only
// through a fallback. Runs only for reused procedures after a clean run.
func (a *Agent) selfHeal(ctx context.Context, plan *types.Plan, results *types.ExecutionResults, prov types.Provenance) {
	if plan.ProcedureUUID == "" {
		return
	}

	// field -> winning selector, collected across fill steps.
	winners := make(map[string]string)
	for _, r := range results.Results {
		raw, ok := r.Output["fallback_selectors"].(map[string]interface{})
		if !ok {
			continue
		}
		for field, sel := range raw {
			if s, ok := sel.(string); ok && s != "" {
				winners[field] = s
			}
		}
	}
	if len(winners) == 0 {
		return
	}

	edges, err := a.store.GetEdges(ctx, plan.ProcedureUUID, "", types.RelHasStep)
	if err != nil {
		logging.Agent("self-heal edge load failed: %v", err)
		return
	}
	for _, edge := range edges {
		node, err := a.store.GetNode(ctx, edge.ToNode)
		if err != nil || node.Props.String("tool") != "web.fill" {
			continue
		}
		payload, ok := node.Props["payload"].(map[string]interface{})
		if !ok {
			continue
		}
		selectors, ok := payload["selectors"].(map[string]interface{})
		if !ok {
			continue
		}

		changed := false
		for field, winner := range winners {
			if old, has := selectors[field]; has && old != winner {
				selectors[field] = winner
				changed = true
			}
		}
		if !changed {
			continue
		}
		if _, err := a.store.UpsertNode(ctx, node, prov, ""); err != nil {
			logging.Agent("self-heal write failed for step %s: %v", node.UUID, err)
			continue
		}
		logging.Agent("healed selectors on step %s: %v", node.UUID, winners)
	}
}

// persistRun records the run outcome on a Procedure node and attaches a
// ProcedureRun node via run_of. Failures are swallowed.
func (a *Agent) persistRun(ctx context.Context, request string, plan *types.Plan, results *types.ExecutionResults, prov types.Provenance) {
	procUUID := plan.ProcedureUUID
	succeeded := results.Status == types.StatusCompleted

	if procUUID == "" {
		if !succeeded || len(plan.Steps) == 0 {
			return
		}
		// First successful run of a fresh plan becomes a stored procedure.
		built, err := a.storePlanAsProcedure(ctx, request, plan, prov)
		if err != nil {
			logging.Agent("failed to store run as procedure: %v", err)
			return
		}
		procUUID = built
		plan.ProcedureUUID = built
	}

	node, err := a.store.GetNode(ctx, procUUID)
	if err != nil {
		logging.Agent("run persistence: procedure %s unreadable: %v", procUUID, err)
		return
	}
	node.Props["tested"] = true
	node.Props["goal"] = request
	node.Props["last_status"] = results.Status
	node.Props["last_trace_id"] = results.TraceID
	if succeeded {
		node.Props["success_count"] = node.Props.Int("success_count") + 1
	} else {
		node.Props["failure_count"] = node.Props.Int("failure_count") + 1
	}
	if _, err := a.store.UpsertNode(ctx, node, prov, ""); err != nil {
		logging.Agent("run persistence: procedure update failed: %v", err)
		return
	}

	run := &types.Node{
		Kind:   types.KindProcedureRun,
		Labels: []string{"ProcedureRun"},
		Props: types.Props{
			"status":     results.Status,
			"trace_id":   results.TraceID,
			"step_count": len(results.Results),
		},
	}
	if results.Error != "" {
		run.Props["error"] = results.Error
	}
	runUUID, err := a.store.UpsertNode(ctx, run, prov, "")
	if err != nil {
		logging.Agent("run persistence: run node failed: %v", err)
		return
	}
	if _, err := a.store.UpsertEdge(ctx, &types.Edge{
		FromNode: runUUID,
		ToNode:   procUUID,
		Rel:      types.RelRunOf,
	}, prov); err != nil {
		logging.Agent("run persistence: run_of edge failed: %v", err)
		return
	}
	a.emit(events.TypeMemoryUpsert, map[string]interface{}{
		"procedure_uuid": procUUID, "run_uuid": runUUID,
	})
}

// storePlanAsProcedure persists a fresh successful plan, through the
// graph-schema manager when configured, else the flat step builder.
func (a *Agent) storePlanAsProcedure(ctx context.Context, request string, plan *types.Plan, prov types.Provenance) (string, error) {
	if a.cfg.UseGraphSchemaProcedures {
		nodes := make([]procedure.GraphNodeSpec, 0, len(plan.Steps))
		for _, ps := range plan.Steps {
			nodes = append(nodes, procedure.GraphNodeSpec{
				Type:    procedure.NodeOperation,
				Tool:    ps.Tool,
				Payload: ps.Params,
			})
		}
		return a.manager.Build(ctx, taskTitle(request), request, nodes, prov)
	}

	specs := make([]procedure.StepSpec, 0, len(plan.Steps))
	for _, ps := range plan.Steps {
		specs = append(specs, procedure.StepSpec{Tool: ps.Tool, Payload: ps.Params})
	}
	return a.builder.Build(ctx, taskTitle(request), request, specs, prov)
}

// learn extracts lessons from the outcome and, with enough embedded concept
// matches, generalizes them into a shared abstraction. All failures are
// swallowed by the learning engine itself.
func (a *Agent) learn(ctx context.Context, request string, plan *types.Plan, results *types.ExecutionResults, matches []rankedMatch, prov types.Provenance) {
	if a.learner != nil {
		if results.Status == types.StatusCompleted {
			a.learner.LearnFromSuccess(ctx, request, plan, results, prov)
		} else if results.Error != "" {
			a.learner.AnalyzeFailure(ctx, request, plan, results, nil)
		}
	}

	if a.graph == nil || results.Status != types.StatusCompleted {
		return
	}
	var exemplars []string
	prototypeUUID := ""
	for _, m := range matches {
		if m.Node.Kind != types.KindConcept || len(m.Node.Embedding) == 0 {
			continue
		}
		exemplars = append(exemplars, m.Node.UUID)
		if prototypeUUID == "" {
			prototypeUUID = m.Node.Props.String("prototype_uuid")
		}
	}
	if len(exemplars) < a.cfg.AutoGeneralizeMinConcepts {
		return
	}
	generalized, err := a.graph.GeneralizeConcepts(ctx, exemplars,
		"generalized:"+taskTitle(request), request, prototypeUUID)
	if err != nil {
		logging.AgentDebug("auto-generalize skipped: %v", err)
		return
	}
	logging.Agent("generalized %d concepts into %s", len(exemplars), generalized)
}
