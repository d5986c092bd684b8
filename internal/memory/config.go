package memory

import (
	"fmt"
	"time"
)

// Config holds MemoryIndex constants.
type Config struct {
	// Path of the SQLite database. Empty keeps memory in process and inlines
	// records into snapshots.
	Path string `mapstructure:"path" yaml:"path"`

	MinSimilarity   float64       `mapstructure:"min_similarity" yaml:"min_similarity"`
	CongruenceBoost float64       `mapstructure:"congruence_boost" yaml:"congruence_boost"`
	RecencyHalfLife time.Duration `mapstructure:"recency_half_life" yaml:"recency_half_life"`

	DailyDecay     float64 `mapstructure:"daily_decay" yaml:"daily_decay"`
	RetentionFloor float64 `mapstructure:"retention_floor" yaml:"retention_floor"`
	ReinforceBoost float64 `mapstructure:"reinforce_boost" yaml:"reinforce_boost"`

	// DecaySchedule is a cron spec for the background decay pass.
	DecaySchedule string `mapstructure:"decay_schedule" yaml:"decay_schedule"`

	DefaultK     int           `mapstructure:"default_k" yaml:"default_k"`
	EmbeddingDim int           `mapstructure:"embedding_dim" yaml:"embedding_dim"`
	IOTimeout    time.Duration `mapstructure:"io_timeout" yaml:"io_timeout"`
}

// DefaultConfig returns the default memory constants.
func DefaultConfig() Config {
	return Config{
		MinSimilarity:   0.15,
		CongruenceBoost: 0.5,
		RecencyHalfLife: 7 * 24 * time.Hour,
		DailyDecay:      0.98,
		RetentionFloor:  0.1,
		ReinforceBoost:  0.1,
		DecaySchedule:   "@daily",
		DefaultK:        5,
		EmbeddingDim:    256,
		IOTimeout:       2 * time.Second,
	}
}

// Validate checks the constants.
func (c Config) Validate() error {
	for name, v := range map[string]float64{
		"min_similarity":  c.MinSimilarity,
		"retention_floor": c.RetentionFloor,
		"reinforce_boost": c.ReinforceBoost,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("memory: %s must be in [0,1]", name)
		}
	}
	if c.DailyDecay <= 0 || c.DailyDecay > 1 {
		return fmt.Errorf("memory: daily_decay must be in (0,1]")
	}
	if c.CongruenceBoost < 0 {
		return fmt.Errorf("memory: congruence_boost must not be negative")
	}
	if c.RecencyHalfLife <= 0 || c.IOTimeout <= 0 {
		return fmt.Errorf("memory: recency_half_life and io_timeout must be positive")
	}
	if c.DefaultK <= 0 || c.EmbeddingDim <= 0 {
		return fmt.Errorf("memory: default_k and embedding_dim must be positive")
	}
	return nil
}
