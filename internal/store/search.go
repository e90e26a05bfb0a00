package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"knowshowgo/internal/embedding"
	"knowshowgo/internal/logging"
	"knowshowgo/internal/types"
)

// Search ranks nodes by cosine similarity to queryEmbedding when one is
// given, breaking ties by token-overlap text relevance, else by text
// relevance alone. Prototype nodes are excluded unless the filters ask for
// them explicitly. With sqlite-vec loaded and a matching-dimension query
// embedding the ranking runs as a vec_index KNN lookup; otherwise every
// node is scanned.
func (s *LocalStore) Search(ctx context.Context, queryText string, topK int, filters Filters, queryEmbedding []float32) ([]SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if queryEmbedding != nil && s.vectorExt && s.vecDim == len(queryEmbedding) {
		return s.searchKNN(ctx, queryText, topK, filters, queryEmbedding)
	}

	query := "SELECT uuid, kind, labels, props, embedding, status FROM nodes WHERE 1=1"
	var args []interface{}
	if kind, ok := filters["kind"].(string); ok && kind != "" {
		query += " AND kind = ?"
		args = append(args, kind)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer rows.Close()

	queryTokens := tokenize(queryText)
	wantPrototypes := false
	if v, ok := filters["isPrototype"].(bool); ok {
		wantPrototypes = v
	}

	var results []SearchResult
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		if node.IsPrototype() != wantPrototypes {
			continue
		}
		if !matchesFilters(node, filters) {
			continue
		}

		r := SearchResult{Node: node, TextScore: textRelevance(node, queryTokens)}
		if queryEmbedding != nil && node.Embedding != nil {
			sim, err := embedding.CosineSimilarity(queryEmbedding, node.Embedding)
			if err != nil {
				// Dimension mismatch between embedding backends; the node
				// stays reachable through text relevance.
				logging.StoreDebug("skipping cosine for %s: %v", node.UUID, err)
				r.Score = r.TextScore
			} else {
				r.Score = sim
			}
		} else {
			r.Score = r.TextScore
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortResults(results)
	if len(results) > topK {
		results = results[:topK]
	}
	logging.StoreDebug("Search %q returned %d results (topK=%d)", truncateQuery(queryText), len(results), topK)
	return results, nil
}

// searchKNN ranks embedded nodes through the vec_index KNN query, then adds
// unindexed nodes by text relevance so keyword-only writes stay reachable.
// Caller holds s.mu.
func (s *LocalStore) searchKNN(ctx context.Context, queryText string, topK int, filters Filters, queryEmbedding []float32) ([]SearchResult, error) {
	// Over-fetch: the post-filters below can reject neighbors.
	hits, err := s.nearestEmbeddings(ctx, queryEmbedding, topK*4+16)
	if err != nil {
		return nil, err
	}

	queryTokens := tokenize(queryText)
	wantPrototypes := false
	if v, ok := filters["isPrototype"].(bool); ok {
		wantPrototypes = v
	}
	kindFilter, _ := filters["kind"].(string)

	var results []SearchResult
	for _, hit := range hits {
		node, err := s.fetchNode(ctx, hit.uuid)
		if err != nil {
			logging.StoreDebug("vec hit %s unreadable: %v", hit.uuid, err)
			continue
		}
		if kindFilter != "" && node.Kind != kindFilter {
			continue
		}
		if node.IsPrototype() != wantPrototypes {
			continue
		}
		if !matchesFilters(node, filters) {
			continue
		}
		results = append(results, SearchResult{
			Node:      node,
			Score:     hit.sim,
			TextScore: textRelevance(node, queryTokens),
		})
	}

	query := `SELECT uuid, kind, labels, props, embedding, status FROM nodes
		WHERE uuid NOT IN (SELECT node_uuid FROM vec_index)`
	var args []interface{}
	if kindFilter != "" {
		query += " AND kind = ?"
		args = append(args, kindFilter)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query unindexed nodes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		if node.IsPrototype() != wantPrototypes {
			continue
		}
		if !matchesFilters(node, filters) {
			continue
		}
		score := textRelevance(node, queryTokens)
		results = append(results, SearchResult{Node: node, Score: score, TextScore: score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortResults(results)
	if len(results) > topK {
		results = results[:topK]
	}
	logging.StoreDebug("KNN search %q returned %d results (topK=%d)", truncateQuery(queryText), len(results), topK)
	return results, nil
}

// sortResults orders by score, then text relevance, then uuid for a stable
// tie-break shared by both search paths.
func sortResults(results []SearchResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].TextScore != results[j].TextScore {
			return results[i].TextScore > results[j].TextScore
		}
		return results[i].Node.UUID < results[j].Node.UUID
	})
}

// matchesFilters applies the non-reserved filter keys as prop equality plus
// the "label" constraint.
func matchesFilters(node *types.Node, filters Filters) bool {
	for key, want := range filters {
		switch key {
		case "kind", "isPrototype":
			// handled by the caller
		case "label":
			label, _ := want.(string)
			if label != "" && !node.HasLabel(label) {
				return false
			}
		default:
			got, ok := node.Props[key]
			if !ok || !propEqual(got, want) {
				return false
			}
		}
	}
	return true
}

// propEqual compares prop values loosely: JSON round-tripping turns ints
// into float64, so numeric comparisons normalize first.
func propEqual(got, want interface{}) bool {
	if gf, ok := toFloat(got); ok {
		if wf, ok := toFloat(want); ok {
			return gf == wf
		}
	}
	return fmt.Sprintf("%v", got) == fmt.Sprintf("%v", want)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// textRelevance scores a node by the fraction of query tokens found in its
// labels and string props.
func textRelevance(node *types.Node, queryTokens []string) float64 {
	if len(queryTokens) == 0 {
		return 0
	}
	var sb strings.Builder
	for _, l := range node.Labels {
		sb.WriteString(l)
		sb.WriteString(" ")
	}
	for _, v := range node.Props {
		if str, ok := v.(string); ok {
			sb.WriteString(str)
			sb.WriteString(" ")
		}
	}
	haystack := strings.ToLower(sb.String())

	matched := 0
	for _, tok := range queryTokens {
		if strings.Contains(haystack, tok) {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTokens))
}

func tokenize(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, ".,!?\"'()[]{}:;")
		if len(f) > 1 {
			out = append(out, f)
		}
	}
	return out
}

func truncateQuery(q string) string {
	if len(q) <= 60 {
		return q
	}
	return q[:60] + "..."
}
