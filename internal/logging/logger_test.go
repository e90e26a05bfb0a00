package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDisabledByDefault(t *testing.T) {
	ws := t.TempDir()
	if err := Initialize(ws); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer CloseAll()

	// No config file = production mode, no logs directory.
	Agent("this should go nowhere")
	if _, err := os.Stat(filepath.Join(ws, ".ksg", "logs")); !os.IsNotExist(err) {
		t.Error("logs directory should not exist in production mode")
	}
}

func TestCategoryFileWriting(t *testing.T) {
	ws := t.TempDir()
	EnableForTest(ws, "debug")
	defer CloseAll()

	Store("store message %d", 42)
	StoreDebug("store debug detail")
	CloseAll()

	date := time.Now().Format("2006-01-02")
	path := filepath.Join(ws, ".ksg", "logs", date+"_store.log")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected store log file: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "store message 42") {
		t.Errorf("missing info line in %q", content)
	}
	if !strings.Contains(content, "store debug detail") {
		t.Errorf("missing debug line in %q", content)
	}
}

func TestLevelGating(t *testing.T) {
	ws := t.TempDir()
	EnableForTest(ws, "info")
	defer CloseAll()

	Agent("visible")
	AgentDebug("invisible")
	CloseAll()

	date := time.Now().Format("2006-01-02")
	data, err := os.ReadFile(filepath.Join(ws, ".ksg", "logs", date+"_agent.log"))
	if err != nil {
		t.Fatalf("expected agent log file: %v", err)
	}
	if strings.Contains(string(data), "invisible") {
		t.Error("debug line should be gated at info level")
	}
}

func TestTraceLoggerPrefix(t *testing.T) {
	ws := t.TempDir()
	EnableForTest(ws, "debug")
	defer CloseAll()

	Get(CategoryAgent).WithTrace("trace-7").Info("classified intent")
	CloseAll()

	date := time.Now().Format("2006-01-02")
	data, err := os.ReadFile(filepath.Join(ws, ".ksg", "logs", date+"_agent.log"))
	if err != nil {
		t.Fatalf("expected agent log file: %v", err)
	}
	if !strings.Contains(string(data), "[trace:trace-7] classified intent") {
		t.Errorf("missing trace prefix in %q", string(data))
	}
}
