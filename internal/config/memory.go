package config

// MemoryConfig configures the memory store, working memory, and the async
// replicator.
type MemoryConfig struct {
	// SQLite storage
	DatabasePath string `yaml:"database_path"`

	// RequireVec fails startup when the sqlite-vec extension is missing
	// instead of falling back to the cosine scan.
	RequireVec bool `yaml:"require_vec"`

	// Working memory (Hebbian activation layer)
	ReinforceDelta float64 `yaml:"reinforce_delta"`
	MaxWeight      float64 `yaml:"max_weight"`

	// Replicator queue
	ReplicatorQueueSize int    `yaml:"replicator_queue_size"`
	ReplicatorPoll      string `yaml:"replicator_poll"` // duration, e.g. "1s"
}

// DefaultMemoryConfig returns sensible defaults.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		DatabasePath:        "data/knowshowgo.db",
		ReinforceDelta:      1.0,
		MaxWeight:           100.0,
		ReplicatorQueueSize: 1024,
		ReplicatorPoll:      "1s",
	}
}
