package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"knowshowgo/internal/agent"
	"knowshowgo/internal/types"
)

func TestRuntimeWiring(t *testing.T) {
	logger = zap.NewNop()
	ws := t.TempDir()
	workspace = ws
	configPath = ""
	defer func() { workspace = "."; configPath = "" }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rt, err := newRuntime(ctx)
	require.NoError(t, err)
	defer rt.Close()

	require.NotNil(t, rt.agent)
	require.NotNil(t, rt.scheduler)
	assert.True(t, rt.registry.Has("web.get"))
	assert.True(t, rt.registry.Has("tasks.create"))
	assert.True(t, rt.registry.Has("memory.remember"))
	assert.True(t, rt.registry.Has("queue.enqueue"))
	assert.True(t, rt.registry.Has("shell.run"))

	// Prototypes were seeded, so the store is non-empty on first boot.
	stats, err := rt.store.GetStats()
	require.NoError(t, err)
	assert.Greater(t, stats["nodes"], int64(0))
}

func TestRuntimeHandlesDeterministicRequest(t *testing.T) {
	logger = zap.NewNop()
	ws := t.TempDir()
	workspace = ws
	defer func() { workspace = "." }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rt, err := newRuntime(ctx)
	require.NoError(t, err)
	defer rt.Close()

	// No LLM key is configured, so this rides the deterministic task path.
	resp := rt.agent.HandleRequest(ctx, "todo water the plants")
	require.NotNil(t, resp.Results)
	assert.Equal(t, types.IntentTask, resp.Intent)
	assert.Equal(t, types.StatusCompleted, resp.Results.Status)
}

func TestRenderResponse(t *testing.T) {
	resp := &agent.Response{
		TraceID: "trace-1",
		Intent:  types.IntentTask,
		Plan:    &types.Plan{Intent: types.IntentProcedure, Reuse: true, ProcedureUUID: "proc-9"},
		Results: &types.ExecutionResults{
			Status:  types.StatusCompleted,
			TraceID: "trace-1",
			Results: []types.StepResult{
				{Tool: "tasks.create", Status: types.StatusSuccess},
			},
		},
		AdaptationAttempts: 2,
	}

	out := renderResponse(resp)
	assert.Contains(t, out, "Status:  completed")
	assert.Contains(t, out, "Reused:  procedure proc-9")
	assert.Contains(t, out, "Adapted: 2 attempt(s)")
	assert.Contains(t, out, "1. tasks.create")
	assert.Contains(t, out, "trace-1")
}

func TestResolveConfigPath(t *testing.T) {
	workspace = "/tmp/ws"
	configPath = ""
	defer func() { workspace = "."; configPath = "" }()

	assert.True(t, strings.HasSuffix(resolveConfigPath(), ".ksg/config.yaml"))

	configPath = "/etc/ksg.yaml"
	assert.Equal(t, "/etc/ksg.yaml", resolveConfigPath())
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, 5*time.Second, parseDuration("5s", time.Minute))
	assert.Equal(t, time.Minute, parseDuration("", time.Minute))
	assert.Equal(t, time.Minute, parseDuration("bogus", time.Minute))
}
