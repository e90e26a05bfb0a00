// Package scheduler fires time-of-day rules into tasks and queues. It is
// ticked from a single goroutine; the fired-set guarantees at most one
// firing per rule per minute for the process lifetime.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"knowshowgo/internal/logging"
	"knowshowgo/internal/queue"
	"knowshowgo/internal/store"
	"knowshowgo/internal/types"
)

// TimeRule fires when the wall clock matches hour and minute.
type TimeRule struct {
	Title    string                 `json:"title"`
	Notes    string                 `json:"notes,omitempty"`
	Hour     int                    `json:"hour"`
	Minute   int                    `json:"minute"`
	Priority int                    `json:"priority"`
	Labels   []string               `json:"labels,omitempty"`
	DAG      map[string]interface{} `json:"dag,omitempty"`
}

// TaskCreator is the slice of the task tool the scheduler needs.
type TaskCreator interface {
	CreateTask(ctx context.Context, title string, due string, priority int, notes string) (string, error)
}

// Scheduler evaluates rules against the clock. Not safe for concurrent
// Tick calls.
type Scheduler struct {
	rules []TimeRule
	fired map[string]bool

	store store.MemoryStore
	tasks TaskCreator
	queue *queue.Manager
}

// New creates a scheduler. queue manager and task creator may be nil for
// rule evaluation without side effects.
func New(memStore store.MemoryStore, tasks TaskCreator, queueMgr *queue.Manager) *Scheduler {
	return &Scheduler{
		fired: make(map[string]bool),
		store: memStore,
		tasks: tasks,
		queue: queueMgr,
	}
}

// AddRule registers a rule. Invalid hour/minute is rejected.
func (s *Scheduler) AddRule(rule TimeRule) error {
	if rule.Title == "" {
		return fmt.Errorf("%w: rule title required", types.ErrInvalidArgument)
	}
	if rule.Hour < 0 || rule.Hour > 23 || rule.Minute < 0 || rule.Minute > 59 {
		return fmt.Errorf("%w: rule %s has invalid time %02d:%02d", types.ErrInvalidArgument, rule.Title, rule.Hour, rule.Minute)
	}
	s.rules = append(s.rules, rule)
	return nil
}

// Rules returns the registered rules.
func (s *Scheduler) Rules() []TimeRule {
	return s.rules
}

// minuteKey dedupes firings: one per rule per ISO minute.
func minuteKey(rule TimeRule, now time.Time) string {
	return rule.Title + ":" + now.UTC().Truncate(time.Minute).Format(time.RFC3339)
}

// Tick evaluates every rule against now and fires the matches. Returns the
// titles fired this tick.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) []string {
	var firedNow []string
	for _, rule := range s.rules {
		if now.Hour() != rule.Hour || now.Minute() != rule.Minute {
			continue
		}
		key := minuteKey(rule, now)
		if s.fired[key] {
			continue
		}

		if err := s.fire(ctx, rule, now); err != nil {
			// The rule stays unfired so the next tick in the same minute
			// retries.
			logging.Get(logging.CategoryScheduler).Warn("rule %s failed to fire: %v", rule.Title, err)
			continue
		}
		s.fired[key] = true
		firedNow = append(firedNow, rule.Title)
		logging.Scheduler("fired rule %s at %s", rule.Title, now.Format(time.RFC3339))
	}
	return firedNow
}

// fire creates the task, upserts a Task node (with the optional DAG
// payload), and enqueues onto the default queue.
func (s *Scheduler) fire(ctx context.Context, rule TimeRule, now time.Time) error {
	var taskUUID string
	var err error
	if s.tasks != nil {
		taskUUID, err = s.tasks.CreateTask(ctx, rule.Title, "", rule.Priority, rule.Notes)
		if err != nil {
			return fmt.Errorf("task creation failed: %w", err)
		}
	}

	node := &types.Node{
		UUID:   taskUUID,
		Kind:   types.KindTask,
		Labels: append([]string{"Task", "scheduled"}, rule.Labels...),
		Props: types.Props{
			"title":    rule.Title,
			"notes":    rule.Notes,
			"priority": rule.Priority,
			"fired_at": now.UTC().Format(time.RFC3339),
		},
	}
	if rule.DAG != nil {
		node.Props["dag"] = rule.DAG
	}
	taskUUID, err = s.store.UpsertNode(ctx, node, types.NewProvenance(types.SourceTool, 1.0, ""), rule.Title+" "+rule.Notes)
	if err != nil {
		return fmt.Errorf("task node upsert failed: %w", err)
	}

	if s.queue != nil {
		item := queue.Item{
			TaskUUID: taskUUID,
			Title:    rule.Title,
			Priority: &rule.Priority,
		}
		if err := s.queue.Enqueue(ctx, "scheduled", item, 0); err != nil {
			return fmt.Errorf("enqueue failed: %w", err)
		}
	}
	return nil
}
