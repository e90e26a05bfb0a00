package agent

import (
	"context"

	"knowshowgo/internal/logging"
	"knowshowgo/internal/types"
)

// patternPlan builds a reuse-first form-fill plan from the best stored form
// pattern for the request's target URL. Returns nil when pattern reuse is
// disabled, the request names no URL, or no pattern clears the configured
// score threshold; the caller then falls through to LLM planning.
func (a *Agent) patternPlan(ctx context.Context, request string) *types.Plan {
	if !a.cfg.UsePatternsForForms || a.graph == nil {
		return nil
	}
	url := urlPattern.FindString(request)
	if url == "" {
		return nil
	}

	matches, err := a.graph.FindBestPattern(ctx, url, "", "", 1)
	if err != nil || len(matches) == 0 {
		logging.AgentDebug("no stored pattern for %s: %v", url, err)
		return nil
	}
	best := matches[0]
	if best.Score < a.cfg.PatternReuseMinScore {
		logging.AgentDebug("best pattern %s scored %.2f, below reuse threshold %.2f",
			best.Node.UUID, best.Score, a.cfg.PatternReuseMinScore)
		return nil
	}

	fields, _ := best.PatternData["fields"].(map[string]interface{})
	if len(fields) == 0 {
		return nil
	}

	plan := &types.Plan{
		Intent:      types.IntentWebIO,
		Reuse:       true,
		PatternUUID: best.Node.UUID,
		Steps: []types.PlanStep{
			{Tool: "web.get", Params: types.Props{"url": url}},
			{Tool: "web.fill", Params: types.Props{"url": url, "selectors": fields}},
		},
	}
	if submit, _ := best.PatternData["submit_selector"].(string); submit != "" {
		plan.Steps = append(plan.Steps, types.PlanStep{
			Tool:   "web.click_selector",
			Params: types.Props{"selector": submit},
		})
	}
	logging.Agent("reusing form pattern %s for %s (score %.2f)", best.Node.UUID, url, best.Score)
	return plan
}

// recordPatternUse bumps the source pattern's success counter after a clean
// run of a pattern-derived plan.
func (a *Agent) recordPatternUse(ctx context.Context, plan *types.Plan, traceID string) {
	if plan.PatternUUID == "" || a.graph == nil {
		return
	}
	err := a.graph.RecordPatternSuccess(ctx, plan.PatternUUID, map[string]interface{}{
		"trace_id": traceID,
	})
	if err != nil {
		logging.AgentDebug("pattern success record failed for %s: %v", plan.PatternUUID, err)
	}
}
