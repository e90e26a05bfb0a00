// Package ksg is the KnowShowGo semantic memory API: typed concepts linked
// to prototypes, versioned, embedded, and generalizable from exemplars.
package ksg

import (
	"context"
	"fmt"

	"knowshowgo/internal/embedding"
	"knowshowgo/internal/logging"
	"knowshowgo/internal/store"
	"knowshowgo/internal/types"
)

// KnowShowGo wraps the memory store with the concept-graph operations the
// agent consumes.
type KnowShowGo struct {
	store    store.MemoryStore
	embedder embedding.Engine // may be nil, degrades to text retrieval

	protoByName map[string]string // prototype name -> uuid, filled by SeedPrototypes
}

// New creates a KnowShowGo service. embedder may be nil.
func New(memStore store.MemoryStore, embedder embedding.Engine) *KnowShowGo {
	return &KnowShowGo{
		store:       memStore,
		embedder:    embedder,
		protoByName: make(map[string]string),
	}
}

// =============================================================================
// PROTOTYPE SEEDING
// =============================================================================

// corePrototypes is the fixed set seeded at startup. Prototypes are
// immutable after seeding.
var corePrototypes = []struct {
	Name        string
	Description string
}{
	{"Agent", "An autonomous actor in the system"},
	{"Place", "A physical or logical location"},
	{"Event", "A scheduled occurrence with start and end"},
	{"Task", "A unit of work with optional due date and priority"},
	{"Message", "One conversational utterance, user or agent"},
	{"Document", "A referenced document or file"},
	{"Device", "A physical device the user interacts with"},
	{"PreferenceRule", "A standing user preference the agent honors"},
	{"List", "An ordered collection of concepts"},
	{"Chain", "A linear sequence of dependent steps"},
	{"DAG", "A directed acyclic dependency structure"},
	{"Procedure", "A reusable multi-step workflow"},
	{"Credential", "A stored secret scoped to a domain"},
	{"FormPattern", "A learned web-form filling pattern"},
	{"QueueItem", "One item awaiting processing in a queue"},
	{"Person", "A human contact"},
	{"Name", "A proper name associated with a person or thing"},
}

// propertyDefs are seeded alongside the core prototypes so concepts can
// reference well-known property definitions.
var propertyDefs = []string{"title", "due", "priority", "location", "start", "end", "url", "notes"}

// SeedPrototypes creates the fixed prototype set, skipping any that already
// exist by name. Safe to call on every startup.
func (k *KnowShowGo) SeedPrototypes(ctx context.Context) error {
	existing, err := k.store.Search(ctx, "", 200, store.Filters{"isPrototype": true}, nil)
	if err != nil {
		return fmt.Errorf("failed to list prototypes: %w", err)
	}
	for _, r := range existing {
		if name := r.Node.Props.String("name"); name != "" {
			k.protoByName[name] = r.Node.UUID
		}
	}

	seeded := 0
	for _, p := range corePrototypes {
		if _, ok := k.protoByName[p.Name]; ok {
			continue
		}
		id, err := k.CreatePrototype(ctx, p.Name, p.Description, "core", nil, nil, "")
		if err != nil {
			return fmt.Errorf("failed to seed prototype %s: %w", p.Name, err)
		}
		k.protoByName[p.Name] = id
		seeded++
	}
	for _, prop := range propertyDefs {
		name := "PropertyDef:" + prop
		if _, ok := k.protoByName[name]; ok {
			continue
		}
		id, err := k.CreatePrototype(ctx, name, "Well-known property "+prop, "core", []string{"PropertyDef"}, nil, "")
		if err != nil {
			return fmt.Errorf("failed to seed property def %s: %w", prop, err)
		}
		k.protoByName[name] = id
		seeded++
	}

	logging.Store("Prototype seeding complete: %d created, %d total", seeded, len(k.protoByName))
	return nil
}

// PrototypeUUID resolves a seeded prototype by name.
func (k *KnowShowGo) PrototypeUUID(name string) (string, bool) {
	id, ok := k.protoByName[name]
	return id, ok
}

// =============================================================================
// PROTOTYPES AND CONCEPTS
// =============================================================================

// CreatePrototype creates a Prototype node, optionally inheriting from a
// base prototype.
func (k *KnowShowGo) CreatePrototype(ctx context.Context, name, description, contextTag string, labels []string, emb []float32, basePrototypeUUID string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: prototype name required", types.ErrInvalidArgument)
	}

	node := &types.Node{
		Kind:      types.KindPrototype,
		Labels:    append([]string{"Prototype"}, labels...),
		Embedding: emb,
		Props: types.Props{
			"name":        name,
			"description": description,
			"context":     contextTag,
			"isPrototype": true,
		},
	}
	id, err := k.store.UpsertNode(ctx, node, types.NewProvenance(types.SourceTool, 1.0, ""), "")
	if err != nil {
		return "", err
	}

	if basePrototypeUUID != "" {
		edge := &types.Edge{FromNode: id, ToNode: basePrototypeUUID, Rel: types.RelInheritsFrom}
		if _, err := k.store.UpsertEdge(ctx, edge, types.NewProvenance(types.SourceTool, 1.0, "")); err != nil {
			return "", fmt.Errorf("failed to link base prototype: %w", err)
		}
	}
	return id, nil
}

// CreateConcept instantiates a concept from a prototype. The prototype must
// exist; the concept gets exactly one instantiates edge.
func (k *KnowShowGo) CreateConcept(ctx context.Context, prototypeUUID string, props types.Props, emb []float32, previousVersionUUID string) (string, error) {
	proto, err := k.store.GetNode(ctx, prototypeUUID)
	if err != nil {
		return "", fmt.Errorf("prototype %s: %w", prototypeUUID, types.ErrNotFound)
	}

	p := props.Clone()
	if p == nil {
		p = types.Props{}
	}
	p["prototype_uuid"] = prototypeUUID
	if previousVersionUUID != "" {
		p["previous_version_uuid"] = previousVersionUUID
	}

	labels := []string{"Concept"}
	if protoName := proto.Props.String("name"); protoName != "" {
		labels = append(labels, protoName)
	}

	node := &types.Node{Kind: types.KindConcept, Labels: labels, Props: p, Embedding: emb}
	id, err := k.store.UpsertNode(ctx, node, types.NewProvenance(types.SourceUser, 1.0, ""), "")
	if err != nil {
		return "", err
	}

	edge := &types.Edge{FromNode: id, ToNode: prototypeUUID, Rel: types.RelInstantiates}
	if _, err := k.store.UpsertEdge(ctx, edge, types.NewProvenance(types.SourceTool, 1.0, "")); err != nil {
		return "", fmt.Errorf("failed to link prototype: %w", err)
	}

	logging.StoreDebug("Created concept %s instantiating %s", id, prototypeUUID)
	return id, nil
}

// CreateConceptRecursive creates a concept and, when props.steps holds a
// list, materializes each step as a child concept linked by has_step edges
// carrying an order prop. This is the canonical procedure storage.
func (k *KnowShowGo) CreateConceptRecursive(ctx context.Context, prototypeUUID string, props types.Props, emb []float32, previousVersionUUID string) (string, error) {
	parentID, err := k.CreateConcept(ctx, prototypeUUID, props, emb, previousVersionUUID)
	if err != nil {
		return "", err
	}

	steps, ok := props["steps"].([]interface{})
	if !ok {
		return parentID, nil
	}

	for i, raw := range steps {
		stepProps := types.Props{}
		if m, ok := raw.(map[string]interface{}); ok {
			stepProps = types.Props(m).Clone()
		}
		stepProps["order"] = i

		stepNode := &types.Node{
			Kind:   types.KindConcept,
			Labels: []string{"Concept", "Step"},
			Props:  stepProps,
		}
		stepID, err := k.store.UpsertNode(ctx, stepNode, types.NewProvenance(types.SourceTool, 1.0, ""), "")
		if err != nil {
			return "", fmt.Errorf("failed to create step %d: %w", i, err)
		}

		edge := &types.Edge{
			FromNode: parentID,
			ToNode:   stepID,
			Rel:      types.RelHasStep,
			Props:    types.Props{"order": i},
		}
		if _, err := k.store.UpsertEdge(ctx, edge, types.NewProvenance(types.SourceTool, 1.0, "")); err != nil {
			return "", fmt.Errorf("failed to link step %d: %w", i, err)
		}
	}

	logging.StoreDebug("Created concept %s with %d materialized steps", parentID, len(steps))
	return parentID, nil
}

// SearchConcepts searches the concept space, merging the caller's filters
// with kind=Concept.
func (k *KnowShowGo) SearchConcepts(ctx context.Context, queryText string, topK int, queryEmbedding []float32, filters store.Filters) ([]store.SearchResult, error) {
	merged := store.Filters{"kind": types.KindConcept}
	for key, v := range filters {
		merged[key] = v
	}
	if queryEmbedding == nil && queryText != "" && k.embedder != nil {
		vec, err := k.embedder.Embed(ctx, queryText)
		if err != nil {
			logging.StoreDebug("query embedding failed, text-only search: %v", err)
		} else {
			queryEmbedding = vec
		}
	}
	return k.store.Search(ctx, queryText, topK, merged, queryEmbedding)
}

// =============================================================================
// GENERALIZATION
// =============================================================================

// GeneralizeConcepts averages exemplar embeddings into a centroid concept
// linked to each exemplar by association:generalized_from edges. Exemplars
// without embeddings are rejected; mixed dimensionality falls back to the
// first exemplar's embedding unchanged.
func (k *KnowShowGo) GeneralizeConcepts(ctx context.Context, exemplarUUIDs []string, name, description, prototypeUUID string) (string, error) {
	if len(exemplarUUIDs) == 0 {
		return "", fmt.Errorf("%w: at least one exemplar required", types.ErrInvalidArgument)
	}

	var vectors [][]float32
	for _, id := range exemplarUUIDs {
		node, err := k.store.GetNode(ctx, id)
		if err != nil {
			return "", fmt.Errorf("exemplar %s: %w", id, err)
		}
		if len(node.Embedding) == 0 {
			return "", fmt.Errorf("%w: exemplar %s has no embedding", types.ErrInvalidArgument, id)
		}
		vectors = append(vectors, node.Embedding)
	}

	centroid, err := embedding.Centroid(vectors)
	if err != nil {
		// Mixed dimensionality across backends: keep the first exemplar's
		// vector so the generalized concept stays retrievable.
		logging.StoreDebug("centroid fell back to first exemplar: %v", err)
		centroid = vectors[0]
	}

	props := types.Props{
		"name":           name,
		"description":    description,
		"generalized":    true,
		"exemplar_count": len(exemplarUUIDs),
	}

	var genID string
	if prototypeUUID != "" {
		genID, err = k.CreateConcept(ctx, prototypeUUID, props, centroid, "")
	} else {
		node := &types.Node{Kind: types.KindConcept, Labels: []string{"Concept", "Generalized"}, Props: props, Embedding: centroid}
		genID, err = k.store.UpsertNode(ctx, node, types.NewProvenance(types.SourceTool, 1.0, ""), "")
	}
	if err != nil {
		return "", err
	}

	for _, exemplar := range exemplarUUIDs {
		edge := &types.Edge{FromNode: genID, ToNode: exemplar, Rel: types.AssociationPrefix + "generalized_from"}
		if _, err := k.store.UpsertEdge(ctx, edge, types.NewProvenance(types.SourceTool, 1.0, "")); err != nil {
			return "", fmt.Errorf("failed to link exemplar %s: %w", exemplar, err)
		}
	}

	logging.Store("Generalized %d exemplars into %s (%s)", len(exemplarUUIDs), genID, name)
	return genID, nil
}
