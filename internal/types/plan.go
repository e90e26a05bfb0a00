package types

// =============================================================================
// INTENTS
// =============================================================================

// Intent classifies what the user is asking for.
type Intent string

const (
	IntentEvent     Intent = "event"
	IntentTask      Intent = "task"
	IntentQuery     Intent = "query"
	IntentProcedure Intent = "procedure"
	IntentWebIO     Intent = "web_io"
	IntentRemember  Intent = "remember"
	IntentInform    Intent = "inform"
	IntentSchedule  Intent = "schedule"
)

// =============================================================================
// PLAN
// =============================================================================

// PlanStep is one tool invocation in a plan.
type PlanStep struct {
	Tool    string `json:"tool"`
	Params  Props  `json:"params"`
	Comment string `json:"comment,omitempty"`
}

// Plan is the executable output of the planning stage. A plan may come from
// the LLM, from a reused stored procedure, or from a deterministic fallback.
type Plan struct {
	Intent     Intent     `json:"intent"`
	Steps      []PlanStep `json:"steps"`
	Confidence *float64   `json:"confidence,omitempty"`

	// ProcedureUUID is set when the plan was hydrated from a stored
	// procedure; selector self-healing writes back through it.
	ProcedureUUID string `json:"procedure_uuid,omitempty"`

	// PatternUUID is set when the plan was derived from a stored form
	// pattern; a clean run bumps the pattern's success counter through it.
	PatternUUID string `json:"pattern_uuid,omitempty"`

	// RawLLM carries the raw model output, or a direct memory answer when
	// planning was short-circuited.
	RawLLM string `json:"raw_llm,omitempty"`

	Reuse   bool `json:"reuse,omitempty"`
	Adapted bool `json:"adapted,omitempty"`
}

// =============================================================================
// EXECUTION RESULTS
// =============================================================================

// Execution status values. A request terminates in StatusCompleted or
// StatusAskUser; it never crashes.
const (
	StatusCompleted = "completed"
	StatusError     = "error"
	StatusAskUser   = "ask_user"
	StatusSkipped   = "skipped"
	StatusStaged    = "staged"
	StatusBlocked   = "blocked"
	StatusSuccess   = "success"
	StatusNoAction  = "no action taken"
)

// StepResult is the structured outcome of one executed step.
type StepResult struct {
	Tool   string `json:"tool"`
	Params Props  `json:"params,omitempty"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`

	// Output holds tool-specific result fields (dom, screenshot path,
	// created uuids, fallback_selector, attempted_selectors, ...).
	Output Props `json:"output,omitempty"`
}

// Get resolves a dotted path ("output.fallback_selector") against the
// result for guard evaluation.
func (r StepResult) Get(path string) (interface{}, bool) {
	return lookupPath(r.asMap(), path)
}

func (r StepResult) asMap() map[string]interface{} {
	m := map[string]interface{}{
		"tool":   r.Tool,
		"status": r.Status,
	}
	if r.Error != "" {
		m["error"] = r.Error
	}
	if r.Params != nil {
		m["params"] = map[string]interface{}(r.Params)
	}
	if r.Output != nil {
		m["output"] = map[string]interface{}(r.Output)
		// Output fields are also addressable at the top level so guards
		// written against tool payloads keep working.
		for k, v := range r.Output {
			if _, exists := m[k]; !exists {
				m[k] = v
			}
		}
	}
	return m
}

func lookupPath(m map[string]interface{}, path string) (interface{}, bool) {
	cur := interface{}(m)
	start := 0
	for i := 0; i <= len(path); i++ {
		if i != len(path) && path[i] != '.' {
			continue
		}
		key := path[start:i]
		start = i + 1
		cm, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = cm[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// ExecutionResults is the terminal outcome of running a plan.
type ExecutionResults struct {
	Status  string       `json:"status"`
	Tool    string       `json:"tool,omitempty"`
	Params  Props        `json:"params,omitempty"`
	Error   string       `json:"error,omitempty"`
	TraceID string       `json:"trace_id"`
	Results []StepResult `json:"results,omitempty"`

	// Message carries the user-facing text for ask_user and direct-answer
	// completions.
	Message string `json:"message,omitempty"`
}
