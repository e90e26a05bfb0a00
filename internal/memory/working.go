// Package memory holds the in-process activation layer: a Hebbian working
// memory graph that boosts retrieval for recently-selected concepts, and an
// async replicator that persists activation weights off the hot path.
package memory

import (
	"sort"
	"sync"

	"knowshowgo/internal/logging"
)

// WorkingMemory is a directed weighted graph over node uuids. It is shared
// across requests in one process, so all mutation goes through the mutex.
// It is distinct from persistent semantic memory; Clear wipes it without
// touching the store.
type WorkingMemory struct {
	mu             sync.RWMutex
	edges          map[string]map[string]float64 // source -> target -> weight
	reinforceDelta float64
	maxWeight      float64
}

// NewWorkingMemory creates an empty graph. reinforceDelta is added on each
// repeat link or access; weights are clamped to [0, maxWeight].
func NewWorkingMemory(reinforceDelta, maxWeight float64) *WorkingMemory {
	if reinforceDelta <= 0 {
		reinforceDelta = 1.0
	}
	if maxWeight <= 0 {
		maxWeight = 100.0
	}
	return &WorkingMemory{
		edges:          make(map[string]map[string]float64),
		reinforceDelta: reinforceDelta,
		maxWeight:      maxWeight,
	}
}

// Link creates or reinforces the edge and returns the new weight. A new edge
// starts at min(seedWeight, maxWeight); an existing edge gains the reinforce
// delta, capped at maxWeight.
func (w *WorkingMemory) Link(source, target string, seedWeight float64) float64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	targets, ok := w.edges[source]
	if !ok {
		targets = make(map[string]float64)
		w.edges[source] = targets
	}

	weight, exists := targets[target]
	if exists {
		weight += w.reinforceDelta
	} else {
		weight = seedWeight
	}
	if weight > w.maxWeight {
		weight = w.maxWeight
	}
	if weight < 0 {
		weight = 0
	}
	targets[target] = weight

	logging.MemoryDebug("link %s -> %s weight=%.2f", source, target, weight)
	return weight
}

// Access reinforces an existing edge and returns its new weight. Returns
// (0, false) when the edge does not exist; unlike Link it never creates one.
func (w *WorkingMemory) Access(source, target string) (float64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	targets, ok := w.edges[source]
	if !ok {
		return 0, false
	}
	weight, ok := targets[target]
	if !ok {
		return 0, false
	}
	weight += w.reinforceDelta
	if weight > w.maxWeight {
		weight = w.maxWeight
	}
	targets[target] = weight
	return weight, true
}

// GetWeight reads an edge weight without reinforcing.
func (w *WorkingMemory) GetWeight(source, target string) (float64, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	targets, ok := w.edges[source]
	if !ok {
		return 0, false
	}
	weight, ok := targets[target]
	return weight, ok
}

// ActivationBoost sums the incoming edge weights of a node.
func (w *WorkingMemory) ActivationBoost(nodeUUID string) float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()

	var sum float64
	for _, targets := range w.edges {
		if weight, ok := targets[nodeUUID]; ok {
			sum += weight
		}
	}
	return sum
}

// DecayAll multiplies every weight by factor. Factors outside (0, 1] are
// ignored.
func (w *WorkingMemory) DecayAll(factor float64) {
	if factor <= 0 || factor > 1 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, targets := range w.edges {
		for target, weight := range targets {
			targets[target] = weight * factor
		}
	}
}

// Clear empties the graph.
func (w *WorkingMemory) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.edges = make(map[string]map[string]float64)
}

// Activated pairs a node uuid with its summed incoming activation.
type Activated struct {
	UUID  string
	Boost float64
}

// TopActivated returns nodes ordered by incoming activation, descending,
// uuid ascending on ties.
func (w *WorkingMemory) TopActivated(topK int) []Activated {
	w.mu.RLock()
	defer w.mu.RUnlock()

	sums := make(map[string]float64)
	for _, targets := range w.edges {
		for target, weight := range targets {
			sums[target] += weight
		}
	}

	out := make([]Activated, 0, len(sums))
	for id, boost := range sums {
		out = append(out, Activated{UUID: id, Boost: boost})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Boost != out[j].Boost {
			return out[i].Boost > out[j].Boost
		}
		return out[i].UUID < out[j].UUID
	})
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

// EdgeCount reports the number of edges, for stats output.
func (w *WorkingMemory) EdgeCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	n := 0
	for _, targets := range w.edges {
		n += len(targets)
	}
	return n
}
