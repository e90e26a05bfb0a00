package agent

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"knowshowgo/internal/llm"
	"knowshowgo/internal/logging"
	"knowshowgo/internal/types"
)

var urlPattern = regexp.MustCompile(`https?://\S+`)

// intentKeywords maps each rule-based intent to its trigger words, checked
// in declaration order. The first hit wins.
var intentKeywords = []struct {
	intent   types.Intent
	keywords []string
}{
	{types.IntentEvent, []string{"remind", "schedule"}},
	{types.IntentTask, []string{"todo", "to-do", "create"}},
	{types.IntentQuery, []string{"what", "list"}},
	{types.IntentProcedure, []string{"workflow", "run"}},
	{types.IntentWebIO, []string{"login", "log in", "sign in", "fill out", "browse"}},
	{types.IntentRemember, []string{"remember", "note that"}},
}

// classifyDeterministic applies the keyword rules. The returned confidence
// is high on a keyword hit and low for the inform default, so the caller
// can decide whether to consult the LLM.
func classifyDeterministic(request string) (types.Intent, float64) {
	lowered := strings.ToLower(request)

	for _, rule := range intentKeywords {
		for _, kw := range rule.keywords {
			if strings.Contains(lowered, kw) {
				return rule.intent, 0.95
			}
		}
	}
	if urlPattern.MatchString(request) {
		return types.IntentWebIO, 0.95
	}
	return types.IntentInform, 0.3
}

var validIntents = map[types.Intent]bool{
	types.IntentEvent:     true,
	types.IntentTask:      true,
	types.IntentQuery:     true,
	types.IntentProcedure: true,
	types.IntentWebIO:     true,
	types.IntentRemember:  true,
	types.IntentInform:    true,
	types.IntentSchedule:  true,
}

// classifyIntent resolves the request's intent, preferring the rule-based
// parser when it is confident and the skip flag allows it.
func (a *Agent) classifyIntent(ctx context.Context, request string) types.Intent {
	intent, confidence := classifyDeterministic(request)
	if a.cfg.SkipLLMForObvious && confidence >= 0.9 {
		logging.AgentDebug("intent %s from rules (%.2f)", intent, confidence)
		return intent
	}
	if a.chat == nil {
		return intent
	}

	out, err := a.chat.Chat(ctx, []llm.Message{
		{Role: "system", Content: "Classify the user's intent. Respond with JSON only: {\"intent\": one of event, task, query, procedure, web_io, remember, inform, schedule}"},
		{Role: "user", Content: request},
	}, llm.ChatOptions{Temperature: 0, JSONOnly: true})
	if err != nil {
		logging.AgentDebug("intent classification fell back to rules: %v", err)
		return intent
	}

	var parsed struct {
		Intent types.Intent `json:"intent"`
	}
	if err := json.Unmarshal([]byte(out), &parsed); err != nil || !validIntents[parsed.Intent] {
		return intent
	}
	return parsed.Intent
}
