// Package learning extracts lessons from request outcomes via the LLM and
// stores them as concepts. Every operation swallows its own failures; a
// broken lesson must never break the request that produced it.
package learning

import (
	"context"
	"encoding/json"
	"fmt"

	"knowshowgo/internal/embedding"
	"knowshowgo/internal/llm"
	"knowshowgo/internal/logging"
	"knowshowgo/internal/store"
	"knowshowgo/internal/types"
)

// FailureAnalysis is the structured output of AnalyzeFailure.
type FailureAnalysis struct {
	RootCause             string         `json:"root_cause"`
	LessonsLearned        []string       `json:"lessons_learned"`
	SuggestedFixes        []SuggestedFix `json:"suggested_fixes"`
	TransferableKnowledge string         `json:"transferable_knowledge"`
	Confidence            float64        `json:"confidence"`
}

// SuggestedFix targets one step of the failed plan.
type SuggestedFix struct {
	StepIndex int    `json:"step_index"`
	Fix       string `json:"fix"`
	Reason    string `json:"reason"`
}

// Engine runs the three lesson-extraction operations.
type Engine struct {
	store    store.MemoryStore
	chat     llm.ChatClient
	embedder embedding.Engine // may be nil
}

// NewEngine creates a learning engine.
func NewEngine(memStore store.MemoryStore, chat llm.ChatClient, embedder embedding.Engine) *Engine {
	return &Engine{store: memStore, chat: chat, embedder: embedder}
}

// AnalyzeFailure asks the LLM for a root-cause analysis and stores it as a
// FailureAnalysis concept. Errors are logged and a nil analysis returned.
func (e *Engine) AnalyzeFailure(ctx context.Context, request string, plan *types.Plan, results *types.ExecutionResults, similarCases []string) *FailureAnalysis {
	if e.chat == nil {
		return nil
	}

	planJSON, _ := json.Marshal(plan)
	resultsJSON, _ := json.Marshal(results)
	casesJSON, _ := json.Marshal(similarCases)
	prompt := fmt.Sprintf(
		"A plan failed. Analyze the failure.\nRequest: %s\nPlan: %s\nResults: %s\nSimilar past cases: %s\nRespond with JSON: {\"root_cause\": str, \"lessons_learned\": [str], \"suggested_fixes\": [{\"step_index\": int, \"fix\": str, \"reason\": str}], \"transferable_knowledge\": str, \"confidence\": 0..1}",
		request, planJSON, resultsJSON, casesJSON)

	out, err := e.chat.Chat(ctx, []llm.Message{
		{Role: "system", Content: "You analyze failed automation runs. Respond with JSON only."},
		{Role: "user", Content: prompt},
	}, llm.ChatOptions{JSONOnly: true})
	if err != nil {
		logging.Learning("failure analysis skipped: %v", err)
		return nil
	}

	var analysis FailureAnalysis
	if err := json.Unmarshal([]byte(out), &analysis); err != nil {
		logging.Learning("failure analysis unparseable: %v", err)
		return nil
	}

	e.storeConcept(ctx, "FailureAnalysis", request, types.Props{
		"request":                request,
		"root_cause":             analysis.RootCause,
		"lessons_learned":        toInterfaceSlice(analysis.LessonsLearned),
		"transferable_knowledge": analysis.TransferableKnowledge,
		"confidence":             analysis.Confidence,
	}, results.TraceID)
	return &analysis
}

// LearnFromSuccess stores a Knowledge concept describing what worked.
func (e *Engine) LearnFromSuccess(ctx context.Context, request string, plan *types.Plan, results *types.ExecutionResults, prov types.Provenance) {
	if e.chat == nil {
		return
	}

	planJSON, _ := json.Marshal(plan)
	resultsJSON, _ := json.Marshal(results)
	prompt := fmt.Sprintf(
		"A plan succeeded. Extract reusable knowledge.\nRequest: %s\nPlan: %s\nResults: %s\nRespond with JSON: {\"what_worked\": str, \"key_success_factors\": [str], \"reusable_patterns\": [str], \"best_practices\": [str]}",
		request, planJSON, resultsJSON)

	out, err := e.chat.Chat(ctx, []llm.Message{
		{Role: "system", Content: "You extract reusable knowledge from successful automation runs. Respond with JSON only."},
		{Role: "user", Content: prompt},
	}, llm.ChatOptions{JSONOnly: true})
	if err != nil {
		logging.Learning("success lesson skipped: %v", err)
		return
	}

	var lesson struct {
		WhatWorked        string   `json:"what_worked"`
		KeySuccessFactors []string `json:"key_success_factors"`
		ReusablePatterns  []string `json:"reusable_patterns"`
		BestPractices     []string `json:"best_practices"`
	}
	if err := json.Unmarshal([]byte(out), &lesson); err != nil {
		logging.Learning("success lesson unparseable: %v", err)
		return
	}

	e.storeConcept(ctx, "Knowledge", request, types.Props{
		"request":             request,
		"what_worked":         lesson.WhatWorked,
		"key_success_factors": toInterfaceSlice(lesson.KeySuccessFactors),
		"reusable_patterns":   toInterfaceSlice(lesson.ReusablePatterns),
		"best_practices":      toInterfaceSlice(lesson.BestPractices),
	}, prov.TraceID)
}

// LearnFromUserFeedback stores a Correction concept from explicit feedback.
func (e *Engine) LearnFromUserFeedback(ctx context.Context, feedback, request string, plan *types.Plan, results *types.ExecutionResults, prov types.Provenance) {
	if e.chat == nil {
		return
	}

	planJSON, _ := json.Marshal(plan)
	resultsJSON, _ := json.Marshal(results)
	prompt := fmt.Sprintf(
		"The user corrected the agent.\nFeedback: %s\nOriginal request: %s\nPlan: %s\nResults: %s\nRespond with JSON: {\"what_was_wrong\": str, \"correct_approach\": str, \"lessons\": [str], \"future_guidance\": str}",
		feedback, request, planJSON, resultsJSON)

	out, err := e.chat.Chat(ctx, []llm.Message{
		{Role: "system", Content: "You turn user corrections into durable guidance. Respond with JSON only."},
		{Role: "user", Content: prompt},
	}, llm.ChatOptions{JSONOnly: true})
	if err != nil {
		logging.Learning("feedback lesson skipped: %v", err)
		return
	}

	var correction struct {
		WhatWasWrong    string   `json:"what_was_wrong"`
		CorrectApproach string   `json:"correct_approach"`
		Lessons         []string `json:"lessons"`
		FutureGuidance  string   `json:"future_guidance"`
	}
	if err := json.Unmarshal([]byte(out), &correction); err != nil {
		logging.Learning("feedback lesson unparseable: %v", err)
		return
	}

	e.storeConcept(ctx, "Correction", request, types.Props{
		"request":          request,
		"feedback":         feedback,
		"what_was_wrong":   correction.WhatWasWrong,
		"correct_approach": correction.CorrectApproach,
		"lessons":          toInterfaceSlice(correction.Lessons),
		"future_guidance":  correction.FutureGuidance,
	}, prov.TraceID)
}

// storeConcept persists a lesson concept with an embedding of the request.
// Storage failures are logged and dropped.
func (e *Engine) storeConcept(ctx context.Context, label, request string, props types.Props, traceID string) {
	var emb []float32
	if e.embedder != nil {
		vec, err := e.embedder.Embed(ctx, request)
		if err != nil {
			logging.LearningDebug("lesson embedding failed: %v", err)
		} else {
			emb = vec
		}
	}

	node := &types.Node{
		Kind:      types.KindConcept,
		Labels:    []string{"Concept", label},
		Props:     props,
		Embedding: emb,
	}
	id, err := e.store.UpsertNode(ctx, node, types.NewProvenance(types.SourceTool, 0.8, traceID), "")
	if err != nil {
		logging.Learning("failed to store %s concept: %v", label, err)
		return
	}
	logging.LearningDebug("stored %s concept %s", label, id)
}

func toInterfaceSlice(in []string) []interface{} {
	out := make([]interface{}, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
