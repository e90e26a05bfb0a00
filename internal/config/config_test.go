package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Agent.MaxAdaptationAttempts != 3 {
		t.Errorf("MaxAdaptationAttempts = %d, want 3", cfg.Agent.MaxAdaptationAttempts)
	}
	if cfg.Agent.PlanMinConfidence != 0.9 {
		t.Errorf("PlanMinConfidence = %v, want 0.9", cfg.Agent.PlanMinConfidence)
	}
	if cfg.Memory.ReinforceDelta != 1.0 || cfg.Memory.MaxWeight != 100.0 {
		t.Errorf("working memory defaults = %v/%v", cfg.Memory.ReinforceDelta, cfg.Memory.MaxWeight)
	}
	if cfg.Agent.PatternReuseMinScore != 2.0 {
		t.Errorf("PatternReuseMinScore = %v, want 2.0", cfg.Agent.PatternReuseMinScore)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Name != "knowShowGo" {
		t.Errorf("Name = %q", cfg.Name)
	}
}

func TestLoadYAMLAndSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
agent:
  max_adaptation_attempts: 5
  plan_min_confidence: 0.7
memory:
  database_path: /tmp/alt.db
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Agent.MaxAdaptationAttempts != 5 {
		t.Errorf("MaxAdaptationAttempts = %d, want 5", cfg.Agent.MaxAdaptationAttempts)
	}
	if cfg.Agent.PlanMinConfidence != 0.7 {
		t.Errorf("PlanMinConfidence = %v, want 0.7", cfg.Agent.PlanMinConfidence)
	}
	if cfg.Memory.DatabasePath != "/tmp/alt.db" {
		t.Errorf("DatabasePath = %q", cfg.Memory.DatabasePath)
	}
	// Untouched sections keep defaults.
	if cfg.Embedding.OllamaModel != "embeddinggemma" {
		t.Errorf("OllamaModel = %q", cfg.Embedding.OllamaModel)
	}

	out := filepath.Join(dir, "saved.yaml")
	if err := cfg.Save(out); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	again, err := Load(out)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if again.Agent.MaxAdaptationAttempts != 5 {
		t.Errorf("round trip lost agent config: %d", again.Agent.MaxAdaptationAttempts)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MAX_ADAPTATION_ATTEMPTS", "7")
	t.Setenv("PLAN_MIN_CONFIDENCE", "0.55")
	t.Setenv("WORKING_MEMORY_MAX_WEIGHT", "50")
	t.Setenv("SKIP_LLM_FOR_OBVIOUS_INTENTS", "0")
	t.Setenv("USE_CPMS_FOR_PROCS", "1")
	t.Setenv("KSG_DB_PATH", "/tmp/env.db")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Agent.MaxAdaptationAttempts != 7 {
		t.Errorf("MaxAdaptationAttempts = %d, want 7", cfg.Agent.MaxAdaptationAttempts)
	}
	if cfg.Agent.PlanMinConfidence != 0.55 {
		t.Errorf("PlanMinConfidence = %v", cfg.Agent.PlanMinConfidence)
	}
	if cfg.Memory.MaxWeight != 50 {
		t.Errorf("MaxWeight = %v", cfg.Memory.MaxWeight)
	}
	if cfg.Agent.SkipLLMForObvious {
		t.Error("SkipLLMForObvious should be disabled")
	}
	if !cfg.Agent.UseGraphSchemaProcedures {
		t.Error("UseGraphSchemaProcedures should be enabled")
	}
	if cfg.Memory.DatabasePath != "/tmp/env.db" {
		t.Errorf("DatabasePath = %q", cfg.Memory.DatabasePath)
	}
}

func TestEnvOverrideIgnoresGarbage(t *testing.T) {
	t.Setenv("MAX_ADAPTATION_ATTEMPTS", "not-a-number")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Agent.MaxAdaptationAttempts != 3 {
		t.Errorf("garbage env should keep default, got %d", cfg.Agent.MaxAdaptationAttempts)
	}
}
