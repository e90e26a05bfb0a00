package procedure

import (
	"context"
	"fmt"
	"sync"

	"knowshowgo/internal/types"
)

// fakeRunner is a scriptable ToolRunner for executor tests.
type fakeRunner struct {
	mu    sync.Mutex
	known map[string]bool
	// handlers run per tool; absent handler returns an empty success.
	handlers map[string]func(params types.Props) (types.Props, error)
	calls    []recordedCall
}

type recordedCall struct {
	Tool   string
	Params types.Props
}

func newFakeRunner(tools ...string) *fakeRunner {
	known := map[string]bool{}
	for _, t := range tools {
		known[t] = true
	}
	return &fakeRunner{known: known, handlers: map[string]func(types.Props) (types.Props, error){}}
}

func (f *fakeRunner) on(tool string, fn func(types.Props) (types.Props, error)) *fakeRunner {
	f.known[tool] = true
	f.handlers[tool] = fn
	return f
}

func (f *fakeRunner) Has(tool string) bool {
	return f.known[tool]
}

func (f *fakeRunner) Run(_ context.Context, tool string, params types.Props) (types.Props, error) {
	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{Tool: tool, Params: params})
	handler := f.handlers[tool]
	f.mu.Unlock()

	if !f.known[tool] {
		return nil, fmt.Errorf("unregistered tool %s", tool)
	}
	if handler != nil {
		return handler(params)
	}
	return types.Props{"status": types.StatusCompleted}, nil
}

func (f *fakeRunner) callCount(tool string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Tool == tool {
			n++
		}
	}
	return n
}
