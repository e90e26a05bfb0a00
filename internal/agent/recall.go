package agent

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"knowshowgo/internal/events"
	"knowshowgo/internal/logging"
	"knowshowgo/internal/store"
	"knowshowgo/internal/types"
)

// rankedMatch is a search result after activation-boost re-ranking.
type rankedMatch struct {
	Node  *types.Node
	Score float64
	Boost float64
}

// retrieve searches semantic memory for the request, merges in procedure
// candidates, and re-sorts by base score plus weighted activation boost.
func (a *Agent) retrieve(ctx context.Context, request string, intent types.Intent) []rankedMatch {
	topK := a.cfg.DefaultTopK
	if intent == types.IntentInform {
		topK = a.cfg.InformTopK
	}

	var queryEmb []float32
	if a.embedder != nil {
		if emb, err := a.embedder.Embed(ctx, request); err == nil {
			queryEmb = emb
		} else {
			logging.AgentDebug("query embedding failed: %v", err)
		}
	}

	merged := make(map[string]rankedMatch)
	addResults := func(results []store.SearchResult) {
		for _, res := range results {
			if _, seen := merged[res.Node.UUID]; seen {
				continue
			}
			merged[res.Node.UUID] = rankedMatch{Node: res.Node, Score: res.Score}
		}
	}

	general, err := a.store.Search(ctx, request, topK, nil, queryEmb)
	if err != nil {
		logging.Agent("memory search failed: %v", err)
	}
	addResults(general)

	procedures, err := a.store.Search(ctx, request, a.cfg.DefaultTopK,
		store.Filters{"kind": types.KindProcedure}, queryEmb)
	if err == nil {
		addResults(procedures)
	}
	procedureConcepts, err := a.store.Search(ctx, request, a.cfg.DefaultTopK,
		store.Filters{"kind": types.KindConcept, "label": "Procedure"}, queryEmb)
	if err == nil {
		addResults(procedureConcepts)
	}

	matches := make([]rankedMatch, 0, len(merged))
	for _, m := range merged {
		if a.working != nil {
			m.Boost = a.working.ActivationBoost(m.Node.UUID)
		}
		matches = append(matches, m)
	}
	sort.Slice(matches, func(i, j int) bool {
		si := matches[i].Score + a.cfg.ActivationWeight*matches[i].Boost
		sj := matches[j].Score + a.cfg.ActivationWeight*matches[j].Boost
		if si != sj {
			return si > sj
		}
		return matches[i].Node.UUID < matches[j].Node.UUID
	})

	a.emit(events.TypeRAGQuery, map[string]interface{}{
		"query": request, "matches": len(matches), "top_k": topK,
	})
	for _, m := range matches {
		if m.Node.Kind == types.KindProcedure {
			a.emit(events.TypeProcedureRecall, map[string]interface{}{"uuid": m.Node.UUID})
		} else if m.Node.Kind == types.KindConcept {
			a.emit(events.TypeConceptRecall, map[string]interface{}{"uuid": m.Node.UUID})
		}
	}
	return matches
}

var conceptTokenPattern = regexp.MustCompile(`\bconcept-[\w-]+\b`)
var namePattern = regexp.MustCompile(`(?i)\bmy name is ([A-Za-z][\w'-]*)`)

// directAnswer handles inform queries answerable straight from memory,
// without a planning call. Returns "" when no short-circuit applies.
func (a *Agent) directAnswer(request string, matches []rankedMatch) string {
	lowered := strings.ToLower(request)

	// Note lookup by concept token.
	if strings.Contains(lowered, "note") || strings.Contains(lowered, "concept") {
		if token := conceptTokenPattern.FindString(lowered); token != "" {
			for _, m := range matches {
				if !nodeMentions(m.Node, token) {
					continue
				}
				if note := m.Node.Props.String("note"); note != "" {
					return note
				}
			}
		}
	}

	if len(matches) == 0 {
		return ""
	}

	// Procedure-biased queries answer with title and description.
	if strings.Contains(lowered, "procedure") || strings.Contains(lowered, "workflow") {
		for _, m := range matches {
			if m.Node.Kind != types.KindProcedure && !m.Node.HasLabel("Procedure") {
				continue
			}
			title := m.Node.Props.String("title")
			if title == "" {
				title = m.Node.Props.String("name")
			}
			if title == "" {
				continue
			}
			if desc := m.Node.Props.String("description"); desc != "" {
				return title + ": " + desc
			}
			return title
		}
	}

	// Name queries extract from stored "my name is X" messages.
	if strings.Contains(lowered, "name") {
		for _, m := range matches {
			content := m.Node.Props.String("content")
			if sub := namePattern.FindStringSubmatch(content); sub != nil {
				return sub[1]
			}
		}
	}
	return ""
}

// nodeMentions reports whether the token appears in the node's labels or
// string props.
func nodeMentions(node *types.Node, token string) bool {
	for _, label := range node.Labels {
		if strings.EqualFold(label, token) {
			return true
		}
	}
	for _, v := range node.Props {
		if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), token) {
			return true
		}
	}
	return false
}

// topProcedure returns the best procedure candidate from the match set.
func topProcedure(matches []rankedMatch) *types.Node {
	for _, m := range matches {
		if m.Node.Kind == types.KindProcedure || m.Node.HasLabel("Procedure") {
			return m.Node
		}
	}
	return nil
}

// contextStrings renders the top matches as pruned planning context lines.
func contextStrings(matches []rankedMatch) []string {
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		var parts []string
		if title := m.Node.Props.String("title"); title != "" {
			parts = append(parts, title)
		}
		if name := m.Node.Props.String("name"); name != "" {
			parts = append(parts, name)
		}
		if content := m.Node.Props.String("content"); content != "" {
			parts = append(parts, content)
		}
		if len(parts) == 0 {
			continue
		}
		out = append(out, m.Node.Kind+": "+strings.Join(parts, " / "))
	}
	return out
}
