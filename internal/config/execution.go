package config

// ExecutionConfig configures the safe shell executor.
type ExecutionConfig struct {
	// SafeBinaries run directly without sandboxing even when not
	// read-only.
	SafeBinaries []string `yaml:"safe_binaries"`

	// DefaultTimeout for commands, e.g. "30s".
	DefaultTimeout string `yaml:"default_timeout"`

	// WorkingDirectory commands run in (and the sandbox copies from).
	WorkingDirectory string `yaml:"working_directory"`

	// AllowSudo / AllowNetwork open the corresponding policy gates.
	AllowSudo    bool `yaml:"allow_sudo"`
	AllowNetwork bool `yaml:"allow_network"`

	// SandboxIgnore lists directory names excluded from the sandbox copy.
	SandboxIgnore []string `yaml:"sandbox_ignore"`
}

// DefaultExecutionConfig returns sensible defaults.
func DefaultExecutionConfig() ExecutionConfig {
	return ExecutionConfig{
		SafeBinaries: []string{
			"ls", "cat", "head", "tail", "grep", "find", "wc",
			"echo", "pwd", "date", "which", "env", "file", "stat",
		},
		DefaultTimeout:   "30s",
		WorkingDirectory: ".",
		SandboxIgnore: []string{
			".git", "node_modules", "__pycache__", ".venv", "venv",
			".cache", "dist", "build", ".ksg",
		},
	}
}
