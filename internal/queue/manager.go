// Package queue manages named task queues persisted as single Queue nodes
// whose props.items list is re-sorted on every mutation.
package queue

import (
	"context"
	"fmt"
	"sort"
	"time"

	"knowshowgo/internal/logging"
	"knowshowgo/internal/store"
	"knowshowgo/internal/types"
)

// Item is one queued task reference.
type Item struct {
	TaskUUID  string `json:"task_uuid"`
	Title     string `json:"title"`
	Priority  *int   `json:"priority,omitempty"`
	Due       string `json:"due,omitempty"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	NotBefore string `json:"not_before,omitempty"`
}

// Manager persists one Queue node per queue name.
type Manager struct {
	store store.MemoryStore
	bus   Emitter
	now   func() time.Time
}

// Emitter is the slice of the event bus the queue needs.
type Emitter interface {
	Emit(eventType string, payload interface{})
}

// NewManager creates a queue manager. bus may be nil.
func NewManager(memStore store.MemoryStore, bus Emitter) *Manager {
	return &Manager{store: memStore, bus: bus, now: time.Now}
}

// Enqueue appends an item to the named queue. delaySeconds > 0 sets
// not_before to now + delay.
func (m *Manager) Enqueue(ctx context.Context, queueName string, item Item, delaySeconds int) error {
	if queueName == "" {
		return fmt.Errorf("%w: queue name required", types.ErrInvalidArgument)
	}
	if item.Title == "" && item.TaskUUID == "" {
		return fmt.Errorf("%w: queue item needs a title or task_uuid", types.ErrInvalidArgument)
	}

	now := m.now().UTC()
	if item.CreatedAt == "" {
		// Nano precision keeps same-second enqueues ordered.
		item.CreatedAt = now.Format(time.RFC3339Nano)
	}
	if item.Status == "" {
		item.Status = "pending"
	}
	if delaySeconds > 0 {
		item.NotBefore = now.Add(time.Duration(delaySeconds) * time.Second).Format(time.RFC3339)
	}

	node, items, err := m.load(ctx, queueName)
	if err != nil {
		return err
	}
	items = append(items, item)
	if err := m.save(ctx, node, queueName, items); err != nil {
		return err
	}

	logging.Queue("enqueued %q onto %s (%d items)", item.Title, queueName, len(items))
	m.emit(queueName, len(items))
	return nil
}

// Dequeue removes and returns the head item whose not_before has passed.
// Returns nil when the queue is empty or everything is deferred.
func (m *Manager) Dequeue(ctx context.Context, queueName string) (*Item, error) {
	node, items, err := m.load(ctx, queueName)
	if err != nil {
		return nil, err
	}

	now := m.now().UTC()
	for i, item := range items {
		if item.NotBefore != "" {
			nb, err := time.Parse(time.RFC3339, item.NotBefore)
			if err == nil && now.Before(nb) {
				continue
			}
		}
		items = append(items[:i], items[i+1:]...)
		if err := m.save(ctx, node, queueName, items); err != nil {
			return nil, err
		}
		m.emit(queueName, len(items))
		return &item, nil
	}
	return nil, nil
}

// Reprioritize updates the priority of the item referencing a task and
// re-sorts.
func (m *Manager) Reprioritize(ctx context.Context, queueName, taskUUID string, priority int) error {
	node, items, err := m.load(ctx, queueName)
	if err != nil {
		return err
	}
	found := false
	for i := range items {
		if items[i].TaskUUID == taskUUID {
			p := priority
			items[i].Priority = &p
			found = true
		}
	}
	if !found {
		return fmt.Errorf("task %s not queued on %s: %w", taskUUID, queueName, types.ErrNotFound)
	}
	if err := m.save(ctx, node, queueName, items); err != nil {
		return err
	}
	m.emit(queueName, len(items))
	return nil
}

// List returns the queue's items in sorted order.
func (m *Manager) List(ctx context.Context, queueName string) ([]Item, error) {
	_, items, err := m.load(ctx, queueName)
	return items, err
}

// load finds or initializes the Queue node for a name.
func (m *Manager) load(ctx context.Context, queueName string) (*types.Node, []Item, error) {
	results, err := m.store.Search(ctx, "", 1, store.Filters{"kind": types.KindQueue, "queue_name": queueName}, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find queue %s: %w", queueName, err)
	}

	var node *types.Node
	if len(results) > 0 {
		node = results[0].Node
	} else {
		node = &types.Node{
			Kind:   types.KindQueue,
			Labels: []string{"Queue", queueName},
			Props:  types.Props{"queue_name": queueName, "items": []interface{}{}},
		}
	}

	raw, _ := node.Props["items"].([]interface{})
	items := make([]Item, 0, len(raw))
	for _, r := range raw {
		mp, ok := r.(map[string]interface{})
		if !ok {
			continue
		}
		item := Item{
			TaskUUID:  types.Props(mp).String("task_uuid"),
			Title:     types.Props(mp).String("title"),
			Due:       types.Props(mp).String("due"),
			Status:    types.Props(mp).String("status"),
			CreatedAt: types.Props(mp).String("created_at"),
			NotBefore: types.Props(mp).String("not_before"),
		}
		if _, ok := mp["priority"]; ok {
			p := types.Props(mp).Int("priority")
			item.Priority = &p
		}
		items = append(items, item)
	}
	return node, items, nil
}

// save sorts and persists the item list.
func (m *Manager) save(ctx context.Context, node *types.Node, queueName string, items []Item) error {
	sortItems(items)

	raw := make([]interface{}, len(items))
	for i, item := range items {
		entry := map[string]interface{}{
			"task_uuid":  item.TaskUUID,
			"title":      item.Title,
			"status":     item.Status,
			"created_at": item.CreatedAt,
		}
		if item.Priority != nil {
			entry["priority"] = *item.Priority
		}
		if item.Due != "" {
			entry["due"] = item.Due
		}
		if item.NotBefore != "" {
			entry["not_before"] = item.NotBefore
		}
		raw[i] = entry
	}
	node.Props["items"] = raw
	node.Props["queue_name"] = queueName

	_, err := m.store.UpsertNode(ctx, node, types.NewProvenance(types.SourceTool, 1.0, ""), "")
	if err != nil {
		return fmt.Errorf("failed to persist queue %s: %w", queueName, err)
	}
	return nil
}

// sortItems orders by (priority or 999, due or "", created_at).
func sortItems(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		pi, pj := 999, 999
		if items[i].Priority != nil {
			pi = *items[i].Priority
		}
		if items[j].Priority != nil {
			pj = *items[j].Priority
		}
		if pi != pj {
			return pi < pj
		}
		if items[i].Due != items[j].Due {
			return items[i].Due < items[j].Due
		}
		return items[i].CreatedAt < items[j].CreatedAt
	})
}

func (m *Manager) emit(queueName string, size int) {
	if m.bus == nil {
		return
	}
	m.bus.Emit("queue_updated", map[string]interface{}{"queue": queueName, "size": size})
}
