package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"knowshowgo/internal/llm"
	"knowshowgo/internal/logging"
	"knowshowgo/internal/types"
)

const plannerSystemPrompt = `You are a planning assistant for a personal agent.
Convert the user's request into a JSON plan:
{"intent": "<intent>", "confidence": 0..1, "steps": [{"tool": "<tool_name>", "params": {...}, "comment": "..."}]}
Use only tools from the provided list. Respond with JSON only.`

// parsePlanJSON accepts the two supported wire shapes. Anything else is a
// plan defect surfaced to the adaptation loop.
func parsePlanJSON(raw string) (*types.Plan, error) {
	var envelope map[string]interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &envelope); err != nil {
		return nil, fmt.Errorf("unrecognized plan shape: %w", err)
	}

	if ct, _ := envelope["commandtype"].(string); ct == "procedure" {
		return parseProcedureShape(envelope)
	}
	if _, ok := envelope["steps"]; ok {
		return parseLegacyShape(envelope)
	}
	return nil, fmt.Errorf("unrecognized plan shape")
}

// parseLegacyShape reads {intent, confidence?, steps: [{tool, params, comment}]}.
func parseLegacyShape(envelope map[string]interface{}) (*types.Plan, error) {
	plan := &types.Plan{}
	if intent, ok := envelope["intent"].(string); ok {
		plan.Intent = types.Intent(intent)
	}
	if conf, ok := envelope["confidence"].(float64); ok {
		plan.Confidence = &conf
	}

	rawSteps, ok := envelope["steps"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("unrecognized plan shape: steps is not a list")
	}
	for _, rs := range rawSteps {
		sm, ok := rs.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("unrecognized plan shape: step is not an object")
		}
		tool, _ := sm["tool"].(string)
		if tool == "" {
			return nil, fmt.Errorf("unrecognized plan shape: step has no tool")
		}
		params, _ := sm["params"].(map[string]interface{})
		comment, _ := sm["comment"].(string)
		plan.Steps = append(plan.Steps, types.PlanStep{
			Tool:    tool,
			Params:  types.Props(params),
			Comment: comment,
		})
	}
	return plan, nil
}

// parseProcedureShape reads the nested
// {commandtype: "procedure", metadata: {steps: [{commandtype, metadata, comment}]}}.
func parseProcedureShape(envelope map[string]interface{}) (*types.Plan, error) {
	metadata, ok := envelope["metadata"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unrecognized plan shape: procedure without metadata")
	}
	rawSteps, ok := metadata["steps"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("unrecognized plan shape: procedure without steps")
	}

	plan := &types.Plan{Intent: types.IntentProcedure}
	if conf, ok := envelope["confidence"].(float64); ok {
		plan.Confidence = &conf
	}
	for _, rs := range rawSteps {
		sm, ok := rs.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("unrecognized plan shape: step is not an object")
		}
		tool, _ := sm["commandtype"].(string)
		if tool == "" {
			return nil, fmt.Errorf("unrecognized plan shape: step has no commandtype")
		}
		params, _ := sm["metadata"].(map[string]interface{})
		comment, _ := sm["comment"].(string)
		plan.Steps = append(plan.Steps, types.PlanStep{
			Tool:    tool,
			Params:  types.Props(params),
			Comment: comment,
		})
	}
	return plan, nil
}

// toolNames lists the runner's registered tool names when the runner
// exposes them (the tools registry does); otherwise it returns nil.
func (a *Agent) toolNames() []string {
	if n, ok := a.runner.(interface{ Names() []string }); ok {
		return n.Names()
	}
	return nil
}

// planWithLLM asks the model for a plan with the pruned memory contexts.
func (a *Agent) planWithLLM(ctx context.Context, request string, intent types.Intent, contexts []string) (*types.Plan, error) {
	if a.chat == nil {
		return nil, fmt.Errorf("no chat client configured")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Request: %s\nIntent: %s\n", request, intent)
	if a.runner != nil {
		fmt.Fprintf(&sb, "Available tools: %s\n", strings.Join(a.toolNames(), ", "))
	}
	for i, c := range contexts {
		if i >= maxPlanContexts {
			break
		}
		fmt.Fprintf(&sb, "Context: %s\n", c)
	}

	out, err := a.chat.Chat(ctx, []llm.Message{
		{Role: "system", Content: plannerSystemPrompt},
		{Role: "user", Content: sb.String()},
	}, llm.ChatOptions{Temperature: 0, JSONOnly: true})
	if err != nil {
		return nil, err
	}

	plan, err := parsePlanJSON(out)
	if err != nil {
		return nil, err
	}
	if plan.Intent == "" {
		plan.Intent = intent
	}
	plan.RawLLM = out
	return plan, nil
}

// fallbackPlan constructs the deterministic per-intent plan used when the
// LLM is unavailable and no stored procedure matches.
func fallbackPlan(request string, intent types.Intent) *types.Plan {
	switch intent {
	case types.IntentTask, types.IntentSchedule:
		return &types.Plan{
			Intent: types.IntentTask,
			Steps: []types.PlanStep{{
				Tool:   "tasks.create",
				Params: types.Props{"title": taskTitle(request), "priority": 1},
			}},
		}
	case types.IntentRemember:
		return &types.Plan{
			Intent: types.IntentRemember,
			Steps: []types.PlanStep{{
				Tool:   "memory.remember",
				Params: types.Props{"content": request},
			}},
		}
	case types.IntentWebIO:
		params := types.Props{}
		if url := urlPattern.FindString(request); url != "" {
			params["url"] = url
		}
		steps := []types.PlanStep{{Tool: "web.get_dom", Params: params}}
		steps = append(steps, types.PlanStep{Tool: "web.screenshot", Params: types.Props{}})
		return &types.Plan{Intent: types.IntentWebIO, Steps: steps}
	}
	logging.AgentDebug("no fallback plan for intent %s", intent)
	return &types.Plan{Intent: intent}
}

// taskTitle strips the leading imperative filler from a request.
func taskTitle(request string) string {
	lowered := strings.ToLower(request)
	for _, prefix := range []string{"remind me to ", "create a task to ", "add a task to ", "todo: ", "todo "} {
		if strings.HasPrefix(lowered, prefix) {
			return strings.TrimSpace(request[len(prefix):])
		}
	}
	return strings.TrimSpace(request)
}
