// Package tools maps plan step names onto capability implementations. The
// registry is the single dispatch surface the procedure executor calls; every
// tool takes and returns Props so plans stay JSON-shaped end to end.
package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"knowshowgo/internal/logging"
	"knowshowgo/internal/types"
)

// Handler executes one tool invocation.
type Handler func(ctx context.Context, params types.Props) (types.Props, error)

// Emitter receives tool lifecycle events. The event bus satisfies it.
type Emitter interface {
	Emit(eventType string, payload interface{})
}

// Registry holds named tool handlers. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	bus      Emitter // may be nil
}

// NewRegistry creates an empty registry.
func NewRegistry(bus Emitter) *Registry {
	return &Registry{handlers: make(map[string]Handler), bus: bus}
}

// Register adds a handler. Re-registering a name replaces the handler.
func (r *Registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
	logging.ToolsDebug("registered tool %s", name)
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[name]
	return ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run dispatches one invocation and emits tool_start / tool_invoked.
func (r *Registry) Run(ctx context.Context, tool string, params types.Props) (types.Props, error) {
	r.mu.RLock()
	h, ok := r.handlers[tool]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown tool %s", types.ErrInvalidArgument, tool)
	}

	r.emit("tool_start", map[string]interface{}{"tool": tool})
	start := time.Now()
	out, err := h(ctx, params)
	elapsed := time.Since(start)

	status := types.StatusCompleted
	if err != nil {
		status = types.StatusError
		logging.Tools("%s failed after %s: %v", tool, elapsed, err)
	} else {
		logging.ToolsDebug("%s completed in %s", tool, elapsed)
	}
	r.emit("tool_invoked", map[string]interface{}{
		"tool":        tool,
		"status":      status,
		"duration_ms": elapsed.Milliseconds(),
	})
	return out, err
}

func (r *Registry) emit(eventType string, payload interface{}) {
	if r.bus != nil {
		r.bus.Emit(eventType, payload)
	}
}
