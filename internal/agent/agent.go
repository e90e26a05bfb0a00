// Package agent runs the plan-execute-adapt loop: one request in, one
// structured outcome out. The loop never panics a request; every failure
// path terminates in a completed or ask_user response.
package agent

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"knowshowgo/internal/config"
	"knowshowgo/internal/embedding"
	"knowshowgo/internal/events"
	"knowshowgo/internal/ksg"
	"knowshowgo/internal/learning"
	"knowshowgo/internal/llm"
	"knowshowgo/internal/logging"
	"knowshowgo/internal/memory"
	"knowshowgo/internal/procedure"
	"knowshowgo/internal/store"
	"knowshowgo/internal/types"
)

const maxPlanContexts = 8

// ToolRunner is the executor-facing tool surface. The tools registry
// satisfies it.
type ToolRunner = procedure.ToolRunner

// Deps wires the agent's collaborators. Chat, Embedder, Working,
// Replicator, Learner, and Bus may be nil; the loop degrades instead of
// failing.
type Deps struct {
	Config     config.AgentConfig
	Store      store.MemoryStore
	Graph      *ksg.KnowShowGo
	Embedder   embedding.Engine
	Chat       llm.ChatClient
	Runner     ToolRunner
	Working    *memory.WorkingMemory
	Replicator *memory.Replicator
	Learner    *learning.Engine
	Bus        *events.Bus
}

// Agent owns one request loop.
type Agent struct {
	cfg        config.AgentConfig
	store      store.MemoryStore
	graph      *ksg.KnowShowGo
	embedder   embedding.Engine
	chat       llm.ChatClient
	runner     ToolRunner
	working    *memory.WorkingMemory
	replicator *memory.Replicator
	learner    *learning.Engine
	bus        *events.Bus
	executor   *procedure.Executor
	builder    *procedure.Builder
	manager    *procedure.Manager
}

// New creates an agent from its dependencies.
func New(deps Deps) *Agent {
	return &Agent{
		cfg:        deps.Config,
		store:      deps.Store,
		graph:      deps.Graph,
		embedder:   deps.Embedder,
		chat:       deps.Chat,
		runner:     deps.Runner,
		working:    deps.Working,
		replicator: deps.Replicator,
		learner:    deps.Learner,
		bus:        deps.Bus,
		executor:   procedure.NewExecutor(deps.Store, deps.Runner),
		builder:    procedure.NewBuilder(deps.Store),
		manager:    procedure.NewManager(deps.Store),
	}
}

// Response is the full outcome of one request.
type Response struct {
	TraceID            string                  `json:"trace_id"`
	Intent             types.Intent            `json:"intent"`
	Plan               *types.Plan             `json:"plan,omitempty"`
	Results            *types.ExecutionResults `json:"results"`
	AdaptationAttempts int                     `json:"adaptation_attempts,omitempty"`
}

// HandleRequest runs the full loop for one user request.
func (a *Agent) HandleRequest(ctx context.Context, request string) *Response {
	traceID := uuid.NewString()
	trace := logging.Get(logging.CategoryAgent).WithTrace(traceID)
	prov := types.NewProvenance(types.SourceUser, 1.0, traceID)
	timer := logging.StartTimer(logging.CategoryAgent, "handle_request")
	defer timer.Stop()

	a.emit(events.TypeRequestReceived, map[string]interface{}{
		"request": request, "trace_id": traceID,
	})
	a.logMessage(ctx, request, prov)

	intent := a.classifyIntent(ctx, request)
	trace.Info("request classified as %s", intent)

	matches := a.retrieve(ctx, request, intent)

	// Direct answers bypass planning entirely.
	if intent == types.IntentInform {
		if answer := a.directAnswer(request, matches); answer != "" {
			trace.Info("answered from memory")
			results := &types.ExecutionResults{
				Status:  types.StatusCompleted,
				TraceID: traceID,
				Message: answer,
			}
			a.emit(events.TypeExecutionCompleted, map[string]interface{}{
				"trace_id": traceID, "status": results.Status,
			})
			return &Response{
				TraceID: traceID,
				Intent:  intent,
				Plan:    &types.Plan{Intent: intent, RawLLM: answer},
				Results: results,
			}
		}
	}

	plan := a.producePlan(ctx, request, intent, matches, traceID)

	// Ask-user short-circuit: nothing to execute and no safe default.
	if len(plan.Steps) == 0 {
		if a.cfg.AskUserFallback &&
			intent != types.IntentRemember && intent != types.IntentTask && intent != types.IntentSchedule {
			return a.askUser(traceID, intent, plan,
				"I could not derive any steps for this request. What would you like me to do?")
		}
		// Safe-default intents fall through to the deterministic plan.
		plan = fallbackPlan(request, intent)
		if len(plan.Steps) == 0 {
			return a.askUser(traceID, intent, plan,
				"I could not derive any steps for this request. What would you like me to do?")
		}
	}

	// Confidence gate.
	if plan.Confidence != nil && *plan.Confidence < a.cfg.PlanMinConfidence {
		return a.askUser(traceID, intent, plan, fmt.Sprintf(
			"The plan has confidence %.2f. Approve before I continue?", *plan.Confidence))
	}

	a.emit(events.TypePlanReady, map[string]interface{}{
		"trace_id": traceID, "intent": plan.Intent, "steps": len(plan.Steps), "reuse": plan.Reuse,
	})

	results, attempts := a.executeWithAdaptation(ctx, request, plan, traceID)

	if results.Status == types.StatusCompleted {
		a.selfHeal(ctx, plan, results, prov)
		a.recordPatternUse(ctx, plan, traceID)
	}
	a.persistRun(ctx, request, plan, results, prov)
	a.learn(ctx, request, plan, results, matches, prov)

	a.emit(events.TypeExecutionCompleted, map[string]interface{}{
		"trace_id": traceID, "status": results.Status,
	})
	trace.Info("request finished with status %s after %d adaptation(s)", results.Status, attempts)

	return &Response{
		TraceID:            traceID,
		Intent:             intent,
		Plan:               plan,
		Results:            results,
		AdaptationAttempts: attempts,
	}
}

// producePlan runs plan generation: stored form patterns first for web
// requests, then the LLM, with procedure reuse and deterministic fallback
// behind it.
func (a *Agent) producePlan(ctx context.Context, request string, intent types.Intent, matches []rankedMatch, traceID string) *types.Plan {
	if intent == types.IntentWebIO {
		if reused := a.patternPlan(ctx, request); reused != nil {
			return reused
		}
	}

	plan, err := a.planWithLLM(ctx, request, intent, contextStrings(matches))
	if err == nil && len(plan.Steps) > 0 {
		return plan
	}
	if err != nil {
		logging.Agent("planning failed, trying reuse: %v", err)
	}

	if reused := a.reuseProcedure(ctx, matches, traceID); reused != nil {
		if plan != nil && plan.Confidence != nil {
			reused.Confidence = plan.Confidence
		}
		return reused
	}

	fallback := fallbackPlan(request, intent)
	if plan != nil && plan.RawLLM != "" {
		fallback.RawLLM = plan.RawLLM
	}
	return fallback
}

// reuseProcedure hydrates the top procedure match into an executable plan
// and reinforces the retrieval edge.
func (a *Agent) reuseProcedure(ctx context.Context, matches []rankedMatch, traceID string) *types.Plan {
	proc := topProcedure(matches)
	if proc == nil {
		return nil
	}

	steps, err := a.executor.LoadSteps(ctx, proc.UUID)
	if err != nil || len(steps) == 0 {
		logging.AgentDebug("procedure %s not reusable: %v", proc.UUID, err)
		return nil
	}

	plan := &types.Plan{
		Intent:        types.IntentProcedure,
		Reuse:         true,
		ProcedureUUID: proc.UUID,
	}
	for _, step := range steps {
		plan.Steps = append(plan.Steps, types.PlanStep{Tool: step.Tool, Params: step.Payload})
	}

	a.reinforce(traceID, proc.UUID)
	logging.Agent("reusing procedure %s (%d steps)", proc.UUID, len(steps))
	return plan
}

// reinforce links the trace to the selected node in working memory and
// queues the durable weight update.
func (a *Agent) reinforce(traceID, selectedUUID string) {
	if a.working == nil {
		return
	}
	a.working.Link(traceID, selectedUUID, a.cfg.ReinforceSeedWeight)
	if a.replicator != nil {
		a.replicator.EnqueueNowait(memory.EdgeUpdate{
			Source:    traceID,
			Target:    selectedUUID,
			Delta:     a.cfg.ReinforceSeedWeight,
			MaxWeight: 100.0,
		})
	}
}

// executeWithAdaptation runs the plan, re-planning on error up to the
// configured attempt cap. The trace id is stable across attempts.
func (a *Agent) executeWithAdaptation(ctx context.Context, request string, plan *types.Plan, traceID string) (*types.ExecutionResults, int) {
	results := a.executor.ExecutePlan(ctx, plan, traceID)
	attempts := 0

	for results.Status == types.StatusError && attempts < a.cfg.MaxAdaptationAttempts {
		attempts++
		augmented := fmt.Sprintf(
			"%s\nThe previous attempt failed at tool %s with error: %s\nProduce a corrected plan.",
			request, results.Tool, results.Error)

		adapted, err := a.planWithLLM(ctx, augmented, plan.Intent, nil)
		if err != nil || len(adapted.Steps) == 0 {
			logging.Agent("adaptation attempt %d produced no plan: %v", attempts, err)
			break
		}
		adapted.Adapted = true
		adapted.ProcedureUUID = plan.ProcedureUUID
		*plan = *adapted

		logging.Agent("adaptation attempt %d executing %d steps", attempts, len(plan.Steps))
		results = a.executor.ExecutePlan(ctx, plan, traceID)
	}

	if results.Status == types.StatusError {
		results.Status = types.StatusAskUser
		results.Message = fmt.Sprintf(
			"Execution failed after %d attempt(s): %s. How should I correct it?",
			attempts+1, results.Error)
	}
	return results, attempts
}

// askUser terminates the request with a question instead of an execution.
func (a *Agent) askUser(traceID string, intent types.Intent, plan *types.Plan, message string) *Response {
	results := &types.ExecutionResults{
		Status:  types.StatusAskUser,
		TraceID: traceID,
		Message: message,
	}
	a.emit(events.TypeExecutionCompleted, map[string]interface{}{
		"trace_id": traceID, "status": types.StatusAskUser,
	})
	return &Response{TraceID: traceID, Intent: intent, Plan: plan, Results: results}
}

func (a *Agent) emit(eventType string, payload interface{}) {
	if a.bus != nil {
		a.bus.Emit(eventType, payload)
	}
}
