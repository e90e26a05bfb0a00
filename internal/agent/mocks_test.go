package agent

import (
	"context"
	"sync"
	"testing"

	"knowshowgo/internal/config"
	"knowshowgo/internal/events"
	"knowshowgo/internal/ksg"
	"knowshowgo/internal/llm"
	"knowshowgo/internal/memory"
	"knowshowgo/internal/store"
	"knowshowgo/internal/types"
)

// fakeRunner dispatches to scripted handlers and records call order.
type fakeRunner struct {
	mu       sync.Mutex
	handlers map[string]func(params types.Props) (types.Props, error)
	calls    []string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{handlers: make(map[string]func(types.Props) (types.Props, error))}
}

func (f *fakeRunner) on(tool string, h func(types.Props) (types.Props, error)) *fakeRunner {
	f.handlers[tool] = h
	return f
}

func (f *fakeRunner) ok(tool string) *fakeRunner {
	return f.on(tool, func(types.Props) (types.Props, error) {
		return types.Props{}, nil
	})
}

func (f *fakeRunner) Has(tool string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.handlers[tool]
	return ok
}

func (f *fakeRunner) Run(_ context.Context, tool string, params types.Props) (types.Props, error) {
	f.mu.Lock()
	h := f.handlers[tool]
	f.calls = append(f.calls, tool)
	f.mu.Unlock()
	return h(params)
}

func (f *fakeRunner) callOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// fixedEmbedder returns the same vector for every text.
type fixedEmbedder struct {
	vec []float32
}

func (e *fixedEmbedder) Embed(context.Context, string) ([]float32, error) {
	out := make([]float32, len(e.vec))
	copy(out, e.vec)
	return out, nil
}

func (e *fixedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i], _ = e.Embed(ctx, "")
	}
	return out, nil
}

func (e *fixedEmbedder) Dimensions() int { return len(e.vec) }
func (e *fixedEmbedder) Name() string    { return "fixed" }

// testHarness bundles the wired agent with its collaborators for assertions.
type testHarness struct {
	agent   *Agent
	store   *store.LocalStore
	runner  *fakeRunner
	chat    *llm.ScriptedClient
	working *memory.WorkingMemory
}

func newTestAgent(t *testing.T, mutate func(*Deps)) *testHarness {
	t.Helper()
	s, err := store.NewLocalStore(":memory:")
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	runner := newFakeRunner()
	chat := llm.NewScriptedClient()
	working := memory.NewWorkingMemory(1.0, 100.0)

	deps := Deps{
		Config:  config.DefaultAgentConfig(),
		Store:   s,
		Graph:   ksg.New(s, nil),
		Chat:    chat,
		Runner:  runner,
		Working: working,
		Bus:     events.NewBus(),
	}
	if mutate != nil {
		mutate(&deps)
	}
	return &testHarness{
		agent:   New(deps),
		store:   s,
		runner:  runner,
		chat:    chat,
		working: working,
	}
}

func testProv() types.Provenance {
	return types.NewProvenance(types.SourceUser, 1.0, "test-trace")
}
