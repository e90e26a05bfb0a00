package tools

import (
	"context"
	"fmt"

	"knowshowgo/internal/ksg"
	"knowshowgo/internal/queue"
	"knowshowgo/internal/shell"
	"knowshowgo/internal/types"
)

// RegisterCalendarTools wires the calendar capability.
func RegisterCalendarTools(r *Registry, cal *LocalCalendar) {
	r.Register("calendar.create_event", func(ctx context.Context, params types.Props) (types.Props, error) {
		id, err := cal.CreateEvent(ctx, CalendarEvent{
			Title:    params.String("title"),
			Start:    params.String("start"),
			End:      params.String("end"),
			Location: params.String("location"),
			Notes:    params.String("notes"),
		})
		if err != nil {
			return nil, err
		}
		return types.Props{"event_uuid": id, "title": params.String("title")}, nil
	})

	r.Register("calendar.list", func(ctx context.Context, params types.Props) (types.Props, error) {
		events := cal.ListEvents(ctx)
		out := make([]interface{}, len(events))
		for i, e := range events {
			out[i] = map[string]interface{}{
				"uuid": e.UUID, "title": e.Title, "start": e.Start,
				"end": e.End, "location": e.Location,
			}
		}
		return types.Props{"events": out, "count": len(out)}, nil
	})
}

// RegisterTaskTools wires the task capability.
func RegisterTaskTools(r *Registry, tasks *LocalTasks) {
	r.Register("tasks.create", func(ctx context.Context, params types.Props) (types.Props, error) {
		id, err := tasks.CreateTask(ctx, params.String("title"), params.String("due"),
			params.Int("priority"), params.String("notes"))
		if err != nil {
			return nil, err
		}
		return types.Props{"task_uuid": id, "title": params.String("title")}, nil
	})

	r.Register("tasks.list", func(ctx context.Context, params types.Props) (types.Props, error) {
		entries := tasks.ListTasks(ctx)
		out := make([]interface{}, len(entries))
		for i, e := range entries {
			out[i] = map[string]interface{}{
				"uuid": e.UUID, "title": e.Title, "due": e.Due,
				"priority": e.Priority, "done": e.Done,
			}
		}
		return types.Props{"tasks": out, "count": len(out)}, nil
	})
}

// RegisterContactTools wires the contact capability.
func RegisterContactTools(r *Registry, contacts *LocalContacts) {
	r.Register("contacts.create", func(ctx context.Context, params types.Props) (types.Props, error) {
		id, err := contacts.CreateContact(ctx, Contact{
			Name:  params.String("name"),
			Email: params.String("email"),
			Phone: params.String("phone"),
		})
		if err != nil {
			return nil, err
		}
		return types.Props{"person_uuid": id, "name": params.String("name")}, nil
	})

	r.Register("contacts.list", func(ctx context.Context, params types.Props) (types.Props, error) {
		entries := contacts.ListContacts(ctx)
		out := make([]interface{}, len(entries))
		for i, c := range entries {
			out[i] = map[string]interface{}{
				"uuid": c.UUID, "name": c.Name, "email": c.Email, "phone": c.Phone,
			}
		}
		return types.Props{"contacts": out, "count": len(out)}, nil
	})
}

// RegisterMemoryTools wires remember and search over the knowledge graph.
func RegisterMemoryTools(r *Registry, graph *ksg.KnowShowGo) {
	r.Register("memory.remember", func(ctx context.Context, params types.Props) (types.Props, error) {
		content := params.String("content")
		if content == "" {
			content = params.String("text")
		}
		if content == "" {
			return nil, fmt.Errorf("%w: memory.remember requires content", types.ErrInvalidArgument)
		}
		protoName := params.String("prototype")
		if protoName == "" {
			protoName = "Document"
		}
		protoUUID, ok := graph.PrototypeUUID(protoName)
		if !ok {
			return nil, fmt.Errorf("%w: prototype %s", types.ErrNotFound, protoName)
		}

		props := types.Props{"content": content}
		if note := params.String("note"); note != "" {
			props["note"] = note
		}
		id, err := graph.CreateConcept(ctx, protoUUID, props, nil, "")
		if err != nil {
			return nil, err
		}
		return types.Props{"concept_uuid": id}, nil
	})

	r.Register("memory.search", func(ctx context.Context, params types.Props) (types.Props, error) {
		query := params.String("query")
		if query == "" {
			return nil, fmt.Errorf("%w: memory.search requires query", types.ErrInvalidArgument)
		}
		topK := params.Int("top_k")
		if topK <= 0 {
			topK = 5
		}
		results, err := graph.SearchConcepts(ctx, query, topK, nil, nil)
		if err != nil {
			return nil, err
		}
		matches := make([]interface{}, len(results))
		for i, res := range results {
			matches[i] = map[string]interface{}{
				"uuid":   res.Node.UUID,
				"labels": res.Node.Labels,
				"props":  map[string]interface{}(res.Node.Props),
				"score":  res.Score,
			}
		}
		return types.Props{"matches": matches, "count": len(matches)}, nil
	})
}

// RegisterQueueTools surfaces the queue manager to plans.
func RegisterQueueTools(r *Registry, mgr *queue.Manager) {
	r.Register("queue.enqueue", func(ctx context.Context, params types.Props) (types.Props, error) {
		queueName := params.String("queue")
		if queueName == "" {
			queueName = "default"
		}
		item := queue.Item{
			TaskUUID: firstString(params, "task_uuid", "uuid"),
			Title:    params.String("title"),
			Due:      params.String("due"),
		}
		if p, ok := params.Float("priority"); ok {
			pi := int(p)
			item.Priority = &pi
		}
		if err := mgr.Enqueue(ctx, queueName, item, params.Int("delay_seconds")); err != nil {
			return nil, err
		}
		return types.Props{"queue": queueName, "title": item.Title}, nil
	})

	r.Register("queue.dequeue", func(ctx context.Context, params types.Props) (types.Props, error) {
		queueName := params.String("queue")
		if queueName == "" {
			queueName = "default"
		}
		item, err := mgr.Dequeue(ctx, queueName)
		if err != nil {
			return nil, err
		}
		if item == nil {
			return types.Props{"queue": queueName, "empty": true}, nil
		}
		return types.Props{
			"queue":     queueName,
			"task_uuid": item.TaskUUID,
			"title":     item.Title,
			"status":    item.Status,
		}, nil
	})
}

// RegisterShellTool wires the safe executor.
func RegisterShellTool(r *Registry, exec *shell.SafeExecutor) {
	r.Register("shell.run", func(ctx context.Context, params types.Props) (types.Props, error) {
		command := params.String("command")
		if command == "" {
			return nil, fmt.Errorf("%w: shell.run requires command", types.ErrInvalidArgument)
		}

		res := exec.Run(ctx, command, params.Bool("dry_run"))
		out := types.Props{
			"status": res.Status,
			"output": res.Output,
		}
		if res.Error != "" {
			out["error"] = res.Error
		}
		if res.Status == types.StatusStaged {
			out["would_sandbox"] = res.WouldSandbox
			out["modifies_files"] = res.ModifiesFiles
			out["rollback_available"] = res.RollbackAvailable
		}
		if res.Sandboxed {
			out["sandboxed"] = true
		}
		return out, nil
	})
}

// RegisterPatternTools exposes form pattern recall to plans.
func RegisterPatternTools(r *Registry, graph *ksg.KnowShowGo) {
	r.Register("patterns.find", func(ctx context.Context, params types.Props) (types.Props, error) {
		matches, err := graph.FindBestPattern(ctx, params.String("url"), params.String("html"),
			params.String("form_type"), params.Int("top_k"))
		if err != nil {
			return nil, err
		}
		out := make([]interface{}, len(matches))
		for i, m := range matches {
			out[i] = map[string]interface{}{
				"uuid":         m.Node.UUID,
				"concept":      map[string]interface{}(m.Node.Props),
				"pattern_data": m.PatternData,
				"score":        m.Score,
			}
		}
		return types.Props{"patterns": out, "count": len(out)}, nil
	})
}

func firstString(params types.Props, keys ...string) string {
	for _, key := range keys {
		if v := params.String(key); v != "" {
			return v
		}
	}
	return ""
}
