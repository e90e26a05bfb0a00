package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

// recordingPersister captures IncrementEdgeWeight calls for assertions.
type recordingPersister struct {
	mu    sync.Mutex
	calls []EdgeUpdate
	fail  bool
}

func (p *recordingPersister) IncrementEdgeWeight(_ context.Context, source, target string, delta, max float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, EdgeUpdate{Source: source, Target: target, Delta: delta, MaxWeight: max})
	if p.fail {
		return fmt.Errorf("backend unavailable")
	}
	return nil
}

func (p *recordingPersister) snapshot() []EdgeUpdate {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]EdgeUpdate, len(p.calls))
	copy(out, p.calls)
	return out
}

func TestReplicatorAppliesUpdatesInOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := &recordingPersister{}
	r := NewReplicator(p, 16, 10*time.Millisecond)
	r.Start()

	for i := 0; i < 5; i++ {
		if !r.EnqueueNowait(EdgeUpdate{Source: "trace", Target: "concept", Delta: float64(i), MaxWeight: 100}) {
			t.Fatalf("enqueue %d rejected", i)
		}
	}
	if !r.Flush(2 * time.Second) {
		t.Fatal("flush timed out")
	}
	r.Stop()

	calls := p.snapshot()
	if len(calls) != 5 {
		t.Fatalf("applied %d updates, want 5", len(calls))
	}
	for i, c := range calls {
		if c.Delta != float64(i) {
			t.Errorf("call %d delta = %v, same-pair order must hold", i, c.Delta)
		}
	}
}

func TestReplicatorBackpressure(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := &recordingPersister{}
	r := NewReplicator(p, 2, 10*time.Millisecond)
	// Not started: the queue fills and stays full.

	if !r.EnqueueNowait(EdgeUpdate{Source: "a", Target: "b", Delta: 1}) {
		t.Fatal("first enqueue rejected")
	}
	if !r.EnqueueNowait(EdgeUpdate{Source: "a", Target: "b", Delta: 1}) {
		t.Fatal("second enqueue rejected")
	}
	if r.EnqueueNowait(EdgeUpdate{Source: "a", Target: "b", Delta: 1}) {
		t.Fatal("enqueue on full queue must return false")
	}

	// Stop drains nothing when never started; it must still not hang.
	r.Stop()
}

func TestReplicatorContinuesPastPersistenceErrors(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := &recordingPersister{fail: true}
	r := NewReplicator(p, 16, 10*time.Millisecond)
	r.Start()
	defer r.Stop()

	for i := 0; i < 3; i++ {
		r.EnqueueNowait(EdgeUpdate{Source: "a", Target: "b", Delta: 1, MaxWeight: 10})
	}
	if !r.Flush(2 * time.Second) {
		t.Fatal("errors must not wedge the queue")
	}
	if got := len(p.snapshot()); got != 3 {
		t.Errorf("attempted %d writes, want 3", got)
	}
}

func TestReplicatorStopIsIdempotent(t *testing.T) {
	defer goleak.VerifyNone(t)

	r := NewReplicator(&recordingPersister{}, 4, 10*time.Millisecond)
	// Stop before start, twice.
	r.Stop()
	r.Stop()

	r2 := NewReplicator(&recordingPersister{}, 4, 10*time.Millisecond)
	r2.Start()
	r2.Stop()
	r2.Stop()

	if r2.EnqueueNowait(EdgeUpdate{Source: "a", Target: "b"}) {
		t.Error("enqueue after stop should be rejected")
	}
}

func TestReplicatorFlushTimeoutLeavesNoGoroutine(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := &recordingPersister{}
	r := NewReplicator(p, 16, 10*time.Millisecond)
	// Not started: the update can never drain, so Flush must time out.
	if !r.EnqueueNowait(EdgeUpdate{Source: "a", Target: "b", Delta: 1}) {
		t.Fatal("enqueue rejected")
	}

	if r.Flush(30 * time.Millisecond) {
		t.Fatal("flush reported a drain with no worker running")
	}
	// goleak verifies the timed-out flush left no waiter behind.
	r.Stop()
}

func TestReplicatorStopDrainsQueue(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := &recordingPersister{}
	r := NewReplicator(p, 16, time.Hour) // poll never fires, drain relies on stop
	r.Start()

	for i := 0; i < 4; i++ {
		r.EnqueueNowait(EdgeUpdate{Source: "a", Target: "b", Delta: 1, MaxWeight: 10})
	}
	r.Stop()

	if got := len(p.snapshot()); got != 4 {
		t.Errorf("stop drained %d updates, want 4", got)
	}
}
