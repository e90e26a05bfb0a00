// Package config holds all knowShowGo configuration, one file per concern.
// Configuration loads from YAML with environment-variable overrides for the
// operational knobs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all knowShowGo configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	Agent     AgentConfig     `yaml:"agent"`
	Memory    MemoryConfig    `yaml:"memory"`
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Execution ExecutionConfig `yaml:"execution"`
	Browser   BrowserConfig   `yaml:"browser"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig configures the categorized file logger.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode" json:"debug_mode"`
	Level      string          `yaml:"level" json:"level"` // debug, info, warn, error
	JSONFormat bool            `yaml:"json_format" json:"json_format"`
	Categories map[string]bool `yaml:"categories" json:"categories"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "knowShowGo",
		Version: "0.4.0",

		Agent:     DefaultAgentConfig(),
		Memory:    DefaultMemoryConfig(),
		LLM:       DefaultLLMConfig(),
		Embedding: DefaultEmbeddingConfig(),
		Execution: DefaultExecutionConfig(),
		Browser:   DefaultBrowserConfig(),

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields defaults;
// environment overrides always apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides for the
// operational knobs.
func (c *Config) applyEnvOverrides() {
	if v, ok := envInt("MAX_ADAPTATION_ATTEMPTS"); ok {
		c.Agent.MaxAdaptationAttempts = v
	}
	if v, ok := envFloat("PLAN_MIN_CONFIDENCE"); ok {
		c.Agent.PlanMinConfidence = v
	}
	if v, ok := envBool("SKIP_LLM_FOR_OBVIOUS_INTENTS"); ok {
		c.Agent.SkipLLMForObvious = v
	}
	if v, ok := envBool("USE_CPMS_FOR_PROCS"); ok {
		c.Agent.UseGraphSchemaProcedures = v
	}
	if v, ok := envBool("USE_CPMS_FOR_FORMS"); ok {
		c.Agent.UsePatternsForForms = v
	}
	if v, ok := envBool("ASK_USER_FALLBACK"); ok {
		c.Agent.AskUserFallback = v
	}
	if v, ok := envFloat("PATTERN_REUSE_MIN_SCORE"); ok {
		c.Agent.PatternReuseMinScore = v
	}
	if v, ok := envFloat("WORKING_MEMORY_REINFORCE_DELTA"); ok {
		c.Memory.ReinforceDelta = v
	}
	if v, ok := envFloat("WORKING_MEMORY_MAX_WEIGHT"); ok {
		c.Memory.MaxWeight = v
	}
	if path := os.Getenv("KSG_DB_PATH"); path != "" {
		c.Memory.DatabasePath = path
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		if c.Embedding.GenAIAPIKey == "" {
			c.Embedding.GenAIAPIKey = key
		}
	}
	if ep := os.Getenv("OLLAMA_ENDPOINT"); ep != "" {
		c.Embedding.OllamaEndpoint = ep
	}
}

func envInt(name string) (int, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func envFloat(name string) (float64, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func envBool(name string) (bool, bool) {
	switch os.Getenv(name) {
	case "1", "true", "yes":
		return true, true
	case "0", "false", "no":
		return false, true
	}
	return false, false
}
