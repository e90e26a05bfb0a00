package config

// AgentConfig configures the plan-execute-adapt loop.
type AgentConfig struct {
	// MaxAdaptationAttempts bounds the re-plan loop after a failed
	// execution.
	MaxAdaptationAttempts int `yaml:"max_adaptation_attempts"`

	// PlanMinConfidence gates execution: plans carrying a confidence below
	// this threshold are routed to the user for approval.
	PlanMinConfidence float64 `yaml:"plan_min_confidence"`

	// SkipLLMForObvious lets the deterministic parser short-circuit intent
	// classification when it is confident.
	SkipLLMForObvious bool `yaml:"skip_llm_for_obvious"`

	// UseGraphSchemaProcedures stores new procedures through the
	// graph-schema manager instead of the flat builder.
	UseGraphSchemaProcedures bool `yaml:"use_graph_schema_procedures"`

	// UsePatternsForForms enables reuse-first form filling via stored
	// form patterns.
	UsePatternsForForms bool `yaml:"use_patterns_for_forms"`

	// PatternReuseMinScore is the minimum combined match score for a
	// stored pattern to be reused.
	PatternReuseMinScore float64 `yaml:"pattern_reuse_min_score"`

	// AskUserFallback controls whether an empty plan becomes an ask_user
	// response rather than a silent no-op.
	AskUserFallback bool `yaml:"ask_user_fallback"`

	// InformTopK / DefaultTopK size memory retrieval per intent.
	InformTopK int `yaml:"inform_top_k"`
	DefaultTopK int `yaml:"default_top_k"`

	// ActivationWeight scales working-memory boost when re-ranking search
	// results.
	ActivationWeight float64 `yaml:"activation_weight"`

	// ReinforceSeedWeight seeds a working-memory edge when a retrieval
	// leads to a concrete action.
	ReinforceSeedWeight float64 `yaml:"reinforce_seed_weight"`

	// AutoGeneralizeMinConcepts is the minimum number of embedded match
	// concepts required before a successful run triggers generalization.
	AutoGeneralizeMinConcepts int `yaml:"auto_generalize_min_concepts"`
}

// DefaultAgentConfig returns sensible defaults.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		MaxAdaptationAttempts:     3,
		PlanMinConfidence:         0.9,
		SkipLLMForObvious:         true,
		UseGraphSchemaProcedures:  false,
		UsePatternsForForms:       false,
		PatternReuseMinScore:      2.0,
		AskUserFallback:           true,
		InformTopK:                50,
		DefaultTopK:               5,
		ActivationWeight:          0.1,
		ReinforceSeedWeight:       2.0,
		AutoGeneralizeMinConcepts: 2,
	}
}
