package memory

import (
	"context"
	"sync"
	"time"

	"knowshowgo/internal/logging"
)

// EdgeUpdate is one queued activation-weight increment.
type EdgeUpdate struct {
	Source    string
	Target    string
	Delta     float64
	MaxWeight float64
}

// WeightPersister is the slice of the store the replicator needs.
type WeightPersister interface {
	IncrementEdgeWeight(ctx context.Context, source, target string, delta, max float64) error
}

// Replicator drains a bounded queue of edge updates into the store on its
// own goroutine. Enqueue never blocks the request path; a full queue is a
// backpressure signal, not an error. Updates for the same pair apply in
// enqueue order because there is a single consumer.
type Replicator struct {
	store WeightPersister
	queue chan EdgeUpdate
	poll  time.Duration

	mu      sync.Mutex
	started bool
	stopped bool
	pending int // enqueued but not yet applied
	stopCh  chan struct{}
	done    chan struct{}
}

// NewReplicator creates a replicator with the given queue capacity. poll is
// how often the idle worker re-checks for shutdown; zero means 1s.
func NewReplicator(store WeightPersister, queueSize int, poll time.Duration) *Replicator {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if poll <= 0 {
		poll = time.Second
	}
	return &Replicator{
		store:  store,
		queue:  make(chan EdgeUpdate, queueSize),
		poll:   poll,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the worker. Calling twice is a no-op.
func (r *Replicator) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.stopped {
		return
	}
	r.started = true
	go r.run()
	logging.Memory("replicator started, queue capacity %d", cap(r.queue))
}

func (r *Replicator) run() {
	defer close(r.done)
	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()

	for {
		select {
		case update := <-r.queue:
			r.apply(update)
		case <-ticker.C:
			// Idle wakeup so a stop request is observed promptly.
		case <-r.stopCh:
			// Drain what is already queued before exiting.
			for {
				select {
				case update := <-r.queue:
					r.apply(update)
				default:
					return
				}
			}
		}
	}
}

func (r *Replicator) apply(update EdgeUpdate) {
	defer r.decPending()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.store.IncrementEdgeWeight(ctx, update.Source, update.Target, update.Delta, update.MaxWeight); err != nil {
		// A failed persistence write never blocks the queue.
		logging.Get(logging.CategoryMemory).Warn("replicator write %s->%s failed: %v", update.Source, update.Target, err)
	}
}

// EnqueueNowait queues an update without blocking. Returns false when the
// queue is full or the replicator is stopped.
func (r *Replicator) EnqueueNowait(update EdgeUpdate) bool {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return false
	}
	r.pending++
	r.mu.Unlock()

	select {
	case r.queue <- update:
		return true
	default:
		r.decPending()
		logging.MemoryDebug("replicator queue full, dropping %s->%s", update.Source, update.Target)
		return false
	}
}

func (r *Replicator) decPending() {
	r.mu.Lock()
	r.pending--
	r.mu.Unlock()
}

// Flush waits until every enqueued update has been applied, or the timeout
// elapses. Returns true on a complete drain. The wait polls the pending
// counter rather than parking a waiter, so a timed-out call leaves no
// goroutine behind.
func (r *Replicator) Flush(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		r.mu.Lock()
		pending := r.pending
		r.mu.Unlock()
		if pending == 0 {
			return true
		}
		if time.Now().After(deadline) {
			logging.MemoryDebug("flush timed out with %d update(s) pending", pending)
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Stop shuts the worker down after draining the queue. Safe to call before
// Start and safe to call repeatedly.
func (r *Replicator) Stop() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	started := r.started
	r.mu.Unlock()

	close(r.stopCh)
	if started {
		<-r.done
	}
	logging.Memory("replicator stopped")
}
