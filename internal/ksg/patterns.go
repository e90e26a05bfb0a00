package ksg

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"knowshowgo/internal/embedding"
	"knowshowgo/internal/llm"
	"knowshowgo/internal/logging"
	"knowshowgo/internal/store"
	"knowshowgo/internal/types"
)

// =============================================================================
// FORM PATTERNS - reuse-first web form filling
// =============================================================================

// PatternMatch is one ranked candidate from FindBestPattern.
type PatternMatch struct {
	Node        *types.Node            `json:"node"`
	PatternData map[string]interface{} `json:"pattern_data"`
	Score       float64                `json:"score"`
}

// StorePattern stores a FormPattern concept. patternData should carry at
// least url, fields (field name -> selector), and optionally form_type and
// submit_selector; the fingerprint is derived and stored alongside.
func (k *KnowShowGo) StorePattern(ctx context.Context, name string, patternData map[string]interface{}, emb []float32, conceptUUID string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: pattern name required", types.ErrInvalidArgument)
	}

	pageURL, _ := patternData["url"].(string)
	formType, _ := patternData["form_type"].(string)
	pageHTML, _ := patternData["html"].(string)
	fp := BuildFingerprint(pageURL, pageHTML, formType)
	if hint, ok := patternData["submit_selector"].(string); ok && hint != "" {
		fp.SubmitHint = hint
	}

	props := types.Props{
		"name":          name,
		"pattern_data":  patternData,
		"fingerprint":   fingerprintProps(fp),
		"success_count": 0,
	}
	node := &types.Node{
		Kind:      types.KindFormPattern,
		Labels:    []string{"Concept", "FormPattern"},
		Props:     props,
		Embedding: emb,
	}
	id, err := k.store.UpsertNode(ctx, node, types.NewProvenance(types.SourceTool, 1.0, ""), "")
	if err != nil {
		return "", err
	}

	if conceptUUID != "" {
		edge := &types.Edge{FromNode: conceptUUID, ToNode: id, Rel: types.RelHasPattern}
		if _, err := k.store.UpsertEdge(ctx, edge, types.NewProvenance(types.SourceTool, 1.0, "")); err != nil {
			return "", fmt.Errorf("failed to link pattern to concept: %w", err)
		}
	}

	logging.Store("Stored form pattern %s (%s) host=%s", id, name, fp.Host)
	return id, nil
}

func fingerprintProps(fp Fingerprint) map[string]interface{} {
	fieldTypes := map[string]interface{}{}
	for t, n := range fp.FieldTypes {
		fieldTypes[t] = n
	}
	return map[string]interface{}{
		"host":        fp.Host,
		"field_types": fieldTypes,
		"submit_hint": fp.SubmitHint,
		"form_type":   fp.FormType,
	}
}

func fingerprintFromProps(raw interface{}) Fingerprint {
	fp := Fingerprint{FieldTypes: map[string]int{}}
	m, ok := raw.(map[string]interface{})
	if !ok {
		return fp
	}
	fp.Host, _ = m["host"].(string)
	fp.SubmitHint, _ = m["submit_hint"].(string)
	fp.FormType, _ = m["form_type"].(string)
	if ft, ok := m["field_types"].(map[string]interface{}); ok {
		for t, n := range ft {
			if f, ok := n.(float64); ok {
				fp.FieldTypes[t] = int(f)
			} else if i, ok := n.(int); ok {
				fp.FieldTypes[t] = i
			}
		}
	}
	return fp
}

// FindBestPattern ranks stored patterns against the target page.
// Score components: host match +3.0, form-type match +1.0, field-type
// overlap 0..2.0, embedding similarity 0..1.0.
func (k *KnowShowGo) FindBestPattern(ctx context.Context, pageURL, pageHTML, formType string, topK int) ([]PatternMatch, error) {
	if topK <= 0 {
		topK = 3
	}
	target := BuildFingerprint(pageURL, pageHTML, formType)

	var queryEmbedding []float32
	if k.embedder != nil {
		vec, err := k.embedder.Embed(ctx, target.Host+" "+formType)
		if err != nil {
			logging.StoreDebug("pattern query embedding failed: %v", err)
		} else {
			queryEmbedding = vec
		}
	}

	candidates, err := k.store.Search(ctx, target.Host, 100, store.Filters{"kind": types.KindFormPattern}, nil)
	if err != nil {
		return nil, fmt.Errorf("pattern search failed: %w", err)
	}

	var matches []PatternMatch
	for _, c := range candidates {
		fp := fingerprintFromProps(c.Node.Props["fingerprint"])
		score := 0.0
		if fp.Host != "" && fp.Host == target.Host {
			score += 3.0
		}
		if formType != "" && fp.FormType == formType {
			score += 1.0
		}
		score += overlapScore(fp.FieldTypes, target.FieldTypes)
		if queryEmbedding != nil && len(c.Node.Embedding) > 0 {
			if sim, err := embedding.CosineSimilarity(queryEmbedding, c.Node.Embedding); err == nil && sim > 0 {
				score += sim
			}
		}

		patternData, _ := c.Node.Props["pattern_data"].(map[string]interface{})
		matches = append(matches, PatternMatch{Node: c.Node, PatternData: patternData, Score: score})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Node.UUID < matches[j].Node.UUID
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// RecordPatternSuccess bumps the pattern's success counter and remembers the
// last context it worked in. Repeat calls for the same URL all count.
func (k *KnowShowGo) RecordPatternSuccess(ctx context.Context, patternUUID string, successContext map[string]interface{}) error {
	node, err := k.store.GetNode(ctx, patternUUID)
	if err != nil {
		return err
	}

	node.Props["success_count"] = node.Props.Int("success_count") + 1
	if successContext != nil {
		node.Props["last_success_context"] = successContext
	}
	_, err = k.store.UpsertNode(ctx, node, types.NewProvenance(types.SourceTool, 1.0, ""), "")
	return err
}

// TransferResult is the outcome of remapping a pattern onto a new form.
type TransferResult struct {
	TransferredPattern map[string]interface{} `json:"transferred_pattern"`
	Mapping            map[string]string      `json:"mapping"`
}

// TargetContext describes the form the pattern is being transferred to.
type TargetContext struct {
	URL             string            `json:"url"`
	AvailableFields map[string]string `json:"available_fields"` // field name -> selector
}

// TransferPattern remaps a stored pattern's field selectors onto a target
// form. With an LLM the remapping is asked for as JSON; without one a
// deterministic fuzzy match on normalized field names applies.
func (k *KnowShowGo) TransferPattern(ctx context.Context, sourcePatternUUID string, target TargetContext, chat llm.ChatClient) (*TransferResult, error) {
	node, err := k.store.GetNode(ctx, sourcePatternUUID)
	if err != nil {
		return nil, err
	}
	patternData, _ := node.Props["pattern_data"].(map[string]interface{})
	sourceFields := map[string]string{}
	if fields, ok := patternData["fields"].(map[string]interface{}); ok {
		for name, sel := range fields {
			if s, ok := sel.(string); ok {
				sourceFields[name] = s
			}
		}
	}
	if len(sourceFields) == 0 {
		return nil, fmt.Errorf("%w: pattern %s has no fields", types.ErrInvalidArgument, sourcePatternUUID)
	}

	var mapping map[string]string
	if chat != nil {
		mapping, err = k.transferViaLLM(ctx, sourceFields, target, chat)
		if err != nil {
			logging.StoreDebug("LLM transfer failed, falling back to fuzzy match: %v", err)
			mapping = nil
		}
	}
	if mapping == nil {
		mapping = map[string]string{}
		targetNames := make([]string, 0, len(target.AvailableFields))
		for name := range target.AvailableFields {
			targetNames = append(targetNames, name)
		}
		for srcName := range sourceFields {
			if match := fuzzyMatchField(srcName, targetNames); match != "" {
				mapping[srcName] = match
			}
		}
	}

	transferred := map[string]interface{}{"url": target.URL, "fields": map[string]interface{}{}}
	fields := transferred["fields"].(map[string]interface{})
	for srcName, targetName := range mapping {
		if sel, ok := target.AvailableFields[targetName]; ok {
			fields[srcName] = sel
		}
	}
	return &TransferResult{TransferredPattern: transferred, Mapping: mapping}, nil
}

func (k *KnowShowGo) transferViaLLM(ctx context.Context, sourceFields map[string]string, target TargetContext, chat llm.ChatClient) (map[string]string, error) {
	srcJSON, _ := json.Marshal(sourceFields)
	tgtJSON, _ := json.Marshal(target.AvailableFields)
	prompt := fmt.Sprintf(
		"Map each source form field to the best matching target field.\nSource fields: %s\nTarget fields: %s\nRespond with JSON: {\"mapping\": {\"<source field>\": \"<target field>\"}}. Omit fields with no match.",
		srcJSON, tgtJSON)

	out, err := chat.Chat(ctx, []llm.Message{
		{Role: "system", Content: "You map web form fields between sites. Respond with JSON only."},
		{Role: "user", Content: prompt},
	}, llm.ChatOptions{JSONOnly: true})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Mapping map[string]string `json:"mapping"`
	}
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		return nil, fmt.Errorf("unparseable mapping: %w", err)
	}
	if len(parsed.Mapping) == 0 {
		return nil, fmt.Errorf("empty mapping")
	}
	return parsed.Mapping, nil
}

// AutoGeneralize promotes a pattern into a generalized concept once it has
// enough similar neighbors. Returns the generalized concept uuid, or "" when
// the neighbor condition does not hold.
func (k *KnowShowGo) AutoGeneralize(ctx context.Context, patternUUID string, minSimilar int, minSimilarity float64) (string, error) {
	if minSimilar <= 0 {
		minSimilar = 2
	}
	node, err := k.store.GetNode(ctx, patternUUID)
	if err != nil {
		return "", err
	}
	if len(node.Embedding) == 0 {
		return "", nil
	}

	candidates, err := k.store.Search(ctx, "", 50, store.Filters{"kind": types.KindFormPattern}, node.Embedding)
	if err != nil {
		return "", err
	}

	neighbors := []string{patternUUID}
	for _, c := range candidates {
		if c.Node.UUID == patternUUID || len(c.Node.Embedding) == 0 {
			continue
		}
		if c.Score >= minSimilarity {
			neighbors = append(neighbors, c.Node.UUID)
		}
	}
	if len(neighbors)-1 < minSimilar {
		return "", nil
	}

	name := "generalized:" + node.Props.String("name")
	genID, err := k.GeneralizeConcepts(ctx, neighbors, name, "Auto-generalized form pattern", "")
	if err != nil {
		return "", err
	}
	logging.Store("Auto-generalized pattern %s with %d neighbors into %s", patternUUID, len(neighbors)-1, genID)
	return genID, nil
}
