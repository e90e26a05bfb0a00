// Package store provides the persistent memory substrate: typed nodes and
// edges with JSON props, vector embeddings, and text + vector + filter
// retrieval over SQLite.
package store

import (
	"context"

	"knowshowgo/internal/types"
)

// Filters are conjunctive constraints applied to search candidates.
// Reserved keys: "kind" matches Node.Kind, "label" requires the label to be
// present, "isPrototype" opts prototypes into results. Any other key matches
// a prop by equality.
type Filters map[string]interface{}

// SearchResult is a node plus its retrieval scores. Score is the cosine
// similarity when a query embedding was given, otherwise the text relevance.
type SearchResult struct {
	Node      *types.Node `json:"node"`
	Score     float64     `json:"score"`
	TextScore float64     `json:"text_score"`
}

// MemoryStore is the capability interface the core consumes. Backends must
// provide linearizable single-key reads and writes; LocalStore serializes
// through a single connection plus a mutex.
type MemoryStore interface {
	// Search returns candidates ranked by cosine similarity when
	// queryEmbedding is non-nil (ties broken by text relevance), else by
	// text relevance. Prototypes are excluded unless filtered for.
	Search(ctx context.Context, queryText string, topK int, filters Filters, queryEmbedding []float32) ([]SearchResult, error)

	// UpsertNode writes a node by uuid, replacing props wholesale.
	// An empty uuid is assigned. When embedText is non-empty and an
	// embedding engine is configured, the node is (re)embedded.
	UpsertNode(ctx context.Context, node *types.Node, prov types.Provenance, embedText string) (string, error)

	// UpsertEdge writes an edge by uuid. Both endpoints must exist.
	UpsertEdge(ctx context.Context, edge *types.Edge, prov types.Provenance) (string, error)

	GetNode(ctx context.Context, uuid string) (*types.Node, error)

	// GetEdges filters by any combination of endpoints and relation;
	// empty strings match everything.
	GetEdges(ctx context.Context, fromNode, toNode, rel string) ([]*types.Edge, error)

	// IncrementEdgeWeight adds delta to the activation edge between the
	// pair, clamped to max, creating the edge if absent. Used by the
	// async replicator.
	IncrementEdgeWeight(ctx context.Context, source, target string, delta, max float64) error

	Close() error
}
