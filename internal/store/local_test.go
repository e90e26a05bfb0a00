package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"knowshowgo/internal/types"
)

func newTestStore(t *testing.T, opts ...Option) *LocalStore {
	t.Helper()
	s, err := NewLocalStore(":memory:", opts...)
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testProv() types.Provenance {
	return types.Provenance{Source: types.SourceUser, TS: time.Now(), Confidence: 1.0, TraceID: "t-1"}
}

func mustUpsertNode(t *testing.T, s *LocalStore, node *types.Node) string {
	t.Helper()
	id, err := s.UpsertNode(context.Background(), node, testProv(), "")
	if err != nil {
		t.Fatalf("UpsertNode failed: %v", err)
	}
	return id
}

func TestUpsertNodeAssignsUUIDAndRoundTrips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	node := &types.Node{
		Kind:   types.KindConcept,
		Labels: []string{"Concept", "dentist"},
		Props:  types.Props{"name": "Dr. Smith", "priority": 2},
	}
	id := mustUpsertNode(t, s, node)
	if id == "" {
		t.Fatal("expected generated uuid")
	}

	got, err := s.GetNode(ctx, id)
	if err != nil {
		t.Fatalf("GetNode failed: %v", err)
	}
	if got.Kind != types.KindConcept {
		t.Errorf("kind = %q", got.Kind)
	}
	if !got.HasLabel("dentist") {
		t.Errorf("labels = %v", got.Labels)
	}
	if got.Props.String("name") != "Dr. Smith" {
		t.Errorf("name prop = %v", got.Props["name"])
	}
	// JSON round trip turns ints into float64.
	if got.Props.Int("priority") != 2 {
		t.Errorf("priority prop = %v", got.Props["priority"])
	}
	if _, ok := got.Props["_provenance"]; !ok {
		t.Error("provenance not recorded in props")
	}
}

func TestUpsertNodeReplacesPropsWholesale(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	node := &types.Node{Kind: types.KindTask, Props: types.Props{"title": "call", "due": "2026-01-01"}}
	id := mustUpsertNode(t, s, node)

	node2 := &types.Node{UUID: id, Kind: types.KindTask, Props: types.Props{"title": "call mom"}}
	mustUpsertNode(t, s, node2)

	got, err := s.GetNode(ctx, id)
	if err != nil {
		t.Fatalf("GetNode failed: %v", err)
	}
	if got.Props.String("title") != "call mom" {
		t.Errorf("title = %v", got.Props["title"])
	}
	if _, ok := got.Props["due"]; ok {
		t.Error("stale prop survived upsert, props must replace wholesale")
	}
}

func TestUpsertNodeKeepsEmbeddingWhenNotReembedded(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	node := &types.Node{Kind: types.KindConcept, Embedding: []float32{1, 0, 0}}
	id := mustUpsertNode(t, s, node)

	// A later write without an embedding must not null out the stored one.
	mustUpsertNode(t, s, &types.Node{UUID: id, Kind: types.KindConcept, Props: types.Props{"x": "y"}})

	got, err := s.GetNode(ctx, id)
	if err != nil {
		t.Fatalf("GetNode failed: %v", err)
	}
	if len(got.Embedding) != 3 {
		t.Errorf("embedding lost on re-upsert: %v", got.Embedding)
	}
}

func TestUpsertNodeValidation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.UpsertNode(ctx, nil, testProv(), ""); !errors.Is(err, types.ErrInvalidArgument) {
		t.Errorf("nil node: %v", err)
	}
	if _, err := s.UpsertNode(ctx, &types.Node{}, testProv(), ""); !errors.Is(err, types.ErrInvalidArgument) {
		t.Errorf("missing kind: %v", err)
	}
}

func TestGetNodeNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetNode(context.Background(), "nope"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpsertEdgeRequiresEndpoints(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := mustUpsertNode(t, s, &types.Node{Kind: types.KindConcept})

	edge := &types.Edge{FromNode: a, ToNode: "ghost", Rel: types.RelInstantiates}
	if _, err := s.UpsertEdge(ctx, edge, testProv()); !errors.Is(err, types.ErrInvalidArgument) {
		t.Errorf("dangling target: %v", err)
	}

	b := mustUpsertNode(t, s, &types.Node{Kind: types.KindPrototype})
	edge.ToNode = b
	if _, err := s.UpsertEdge(ctx, edge, testProv()); err != nil {
		t.Fatalf("UpsertEdge failed: %v", err)
	}
}

func TestGetEdgesFiltering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := mustUpsertNode(t, s, &types.Node{Kind: types.KindConcept})
	b := mustUpsertNode(t, s, &types.Node{Kind: types.KindConcept})
	c := mustUpsertNode(t, s, &types.Node{Kind: types.KindPrototype})

	for _, e := range []*types.Edge{
		{FromNode: a, ToNode: b, Rel: "depends_on"},
		{FromNode: a, ToNode: c, Rel: types.RelInstantiates},
		{FromNode: b, ToNode: c, Rel: types.RelInstantiates},
	} {
		if _, err := s.UpsertEdge(ctx, e, testProv()); err != nil {
			t.Fatalf("UpsertEdge failed: %v", err)
		}
	}

	got, err := s.GetEdges(ctx, a, "", "")
	if err != nil || len(got) != 2 {
		t.Fatalf("from=a: %d edges, err=%v", len(got), err)
	}
	got, err = s.GetEdges(ctx, "", c, types.RelInstantiates)
	if err != nil || len(got) != 2 {
		t.Fatalf("to=c rel=instantiates: %d edges, err=%v", len(got), err)
	}
	got, err = s.GetEdges(ctx, a, c, types.RelInstantiates)
	if err != nil || len(got) != 1 {
		t.Fatalf("a->c instantiates: %d edges, err=%v", len(got), err)
	}
	got, err = s.GetEdges(ctx, "", "", "")
	if err != nil || len(got) != 3 {
		t.Fatalf("unfiltered: %d edges, err=%v", len(got), err)
	}
}

func TestIncrementEdgeWeightCreatesAndClamps(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := mustUpsertNode(t, s, &types.Node{Kind: types.KindConcept})
	b := mustUpsertNode(t, s, &types.Node{Kind: types.KindConcept})

	if err := s.IncrementEdgeWeight(ctx, a, b, 1.0, 3.0); err != nil {
		t.Fatalf("first increment: %v", err)
	}
	edges, err := s.GetEdges(ctx, a, b, activationRel)
	if err != nil || len(edges) != 1 {
		t.Fatalf("activation edge missing: %d, %v", len(edges), err)
	}
	if edges[0].Weight != 1.0 {
		t.Errorf("weight = %v, want 1", edges[0].Weight)
	}

	for i := 0; i < 5; i++ {
		if err := s.IncrementEdgeWeight(ctx, a, b, 1.0, 3.0); err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
	}
	edges, _ = s.GetEdges(ctx, a, b, activationRel)
	if len(edges) != 1 {
		t.Fatalf("expected single activation edge, got %d", len(edges))
	}
	if edges[0].Weight != 3.0 {
		t.Errorf("weight = %v, want clamp at 3", edges[0].Weight)
	}
}

func TestGetStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := mustUpsertNode(t, s, &types.Node{Kind: types.KindConcept, Embedding: []float32{1, 0}})
	b := mustUpsertNode(t, s, &types.Node{Kind: types.KindTask})
	if _, err := s.UpsertEdge(ctx, &types.Edge{FromNode: a, ToNode: b, Rel: "depends_on"}, testProv()); err != nil {
		t.Fatalf("UpsertEdge failed: %v", err)
	}

	stats, err := s.GetStats()
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats["nodes"] != 2 || stats["edges"] != 1 || stats["nodes_with_embeddings"] != 1 {
		t.Errorf("stats = %v", stats)
	}
	if stats["kind:Concept"] != 1 || stats["kind:Task"] != 1 {
		t.Errorf("per-kind stats = %v", stats)
	}
}
