package tools

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"knowshowgo/internal/store"
	"knowshowgo/internal/types"
)

// ===== LOCAL CALENDAR =====

// CalendarEvent is one entry in the local calendar.
type CalendarEvent struct {
	UUID     string `json:"uuid"`
	Title    string `json:"title"`
	Start    string `json:"start"`
	End      string `json:"end,omitempty"`
	Location string `json:"location,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// LocalCalendar keeps events in memory and mirrors each one as an Event node
// so calendar entries participate in semantic recall.
type LocalCalendar struct {
	mu     sync.Mutex
	store  store.MemoryStore
	events []CalendarEvent
}

// NewLocalCalendar creates an empty calendar backed by the store.
func NewLocalCalendar(memStore store.MemoryStore) *LocalCalendar {
	return &LocalCalendar{store: memStore}
}

// CreateEvent stores an event and its Event node.
func (c *LocalCalendar) CreateEvent(ctx context.Context, event CalendarEvent) (string, error) {
	if event.Title == "" {
		return "", fmt.Errorf("%w: event title required", types.ErrInvalidArgument)
	}
	event.UUID = uuid.NewString()

	node := &types.Node{
		UUID:   event.UUID,
		Kind:   types.KindEvent,
		Labels: []string{"Event"},
		Props: types.Props{
			"title":    event.Title,
			"start":    event.Start,
			"end":      event.End,
			"location": event.Location,
			"notes":    event.Notes,
		},
	}
	prov := types.NewProvenance(types.SourceTool, 1.0, "")
	if _, err := c.store.UpsertNode(ctx, node, prov, event.Title+" "+event.Notes); err != nil {
		return "", fmt.Errorf("failed to persist event node: %w", err)
	}

	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()
	return event.UUID, nil
}

// ListEvents returns all events.
func (c *LocalCalendar) ListEvents(ctx context.Context) []CalendarEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CalendarEvent, len(c.events))
	copy(out, c.events)
	return out
}

// ===== LOCAL TASKS =====

// TaskEntry is one entry in the local task list.
type TaskEntry struct {
	UUID     string `json:"uuid"`
	Title    string `json:"title"`
	Due      string `json:"due,omitempty"`
	Priority int    `json:"priority"`
	Notes    string `json:"notes,omitempty"`
	Done     bool   `json:"done"`
}

// LocalTasks keeps tasks in memory and mirrors each as a Task node. It is
// the scheduler's task creator.
type LocalTasks struct {
	mu    sync.Mutex
	store store.MemoryStore
	tasks []TaskEntry
}

// NewLocalTasks creates an empty task list backed by the store.
func NewLocalTasks(memStore store.MemoryStore) *LocalTasks {
	return &LocalTasks{store: memStore}
}

// CreateTask stores a task and its Task node, returning the task uuid.
func (t *LocalTasks) CreateTask(ctx context.Context, title, due string, priority int, notes string) (string, error) {
	if title == "" {
		return "", fmt.Errorf("%w: task title required", types.ErrInvalidArgument)
	}
	entry := TaskEntry{
		UUID:     uuid.NewString(),
		Title:    title,
		Due:      due,
		Priority: priority,
		Notes:    notes,
	}

	node := &types.Node{
		UUID:   entry.UUID,
		Kind:   types.KindTask,
		Labels: []string{"Task"},
		Props: types.Props{
			"title":      title,
			"due":        due,
			"priority":   priority,
			"notes":      notes,
			"created_at": time.Now().UTC().Format(time.RFC3339),
		},
	}
	prov := types.NewProvenance(types.SourceTool, 1.0, "")
	if _, err := t.store.UpsertNode(ctx, node, prov, title+" "+notes); err != nil {
		return "", fmt.Errorf("failed to persist task node: %w", err)
	}

	t.mu.Lock()
	t.tasks = append(t.tasks, entry)
	t.mu.Unlock()
	return entry.UUID, nil
}

// ListTasks returns all tasks.
func (t *LocalTasks) ListTasks(ctx context.Context) []TaskEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TaskEntry, len(t.tasks))
	copy(out, t.tasks)
	return out
}

// ===== LOCAL CONTACTS =====

// Contact is one entry in the local contact list.
type Contact struct {
	UUID  string `json:"uuid"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// LocalContacts keeps contacts in memory and mirrors each as a Person node.
type LocalContacts struct {
	mu       sync.Mutex
	store    store.MemoryStore
	contacts []Contact
}

// NewLocalContacts creates an empty contact list backed by the store.
func NewLocalContacts(memStore store.MemoryStore) *LocalContacts {
	return &LocalContacts{store: memStore}
}

// CreateContact stores a contact and its Person node.
func (c *LocalContacts) CreateContact(ctx context.Context, contact Contact) (string, error) {
	if contact.Name == "" {
		return "", fmt.Errorf("%w: contact name required", types.ErrInvalidArgument)
	}
	contact.UUID = uuid.NewString()

	node := &types.Node{
		UUID:   contact.UUID,
		Kind:   types.KindPerson,
		Labels: []string{"Person"},
		Props: types.Props{
			"name":  contact.Name,
			"email": contact.Email,
			"phone": contact.Phone,
		},
	}
	prov := types.NewProvenance(types.SourceTool, 1.0, "")
	if _, err := c.store.UpsertNode(ctx, node, prov, contact.Name); err != nil {
		return "", fmt.Errorf("failed to persist person node: %w", err)
	}

	c.mu.Lock()
	c.contacts = append(c.contacts, contact)
	c.mu.Unlock()
	return contact.UUID, nil
}

// ListContacts returns all contacts.
func (c *LocalContacts) ListContacts(ctx context.Context) []Contact {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Contact, len(c.contacts))
	copy(out, c.contacts)
	return out
}
