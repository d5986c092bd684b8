package chain

import (
	"fmt"
	"time"

	"github.com/normanking/limbic/internal/emotion"
)

// Definition is the fixed shape of one chain type.
type Definition struct {
	Type      Type              `mapstructure:"type" yaml:"type"`
	Steps     []string          `mapstructure:"steps" yaml:"steps"`
	Threshold float64           `mapstructure:"threshold" yaml:"threshold"`
	Cooldown  time.Duration     `mapstructure:"cooldown" yaml:"cooldown"`
	Affinity  []emotion.Emotion `mapstructure:"affinity" yaml:"affinity"`
}

// AbortConditions end a chain early.
type AbortConditions struct {
	LowConfidence      float64 `mapstructure:"low_confidence" yaml:"low_confidence"`
	ResourceExhaustion float64 `mapstructure:"resource_exhaustion" yaml:"resource_exhaustion"`
}

// Weights of the motivation formula.
type Weights struct {
	Emotion float64 `mapstructure:"emotion" yaml:"emotion"`
	Boredom float64 `mapstructure:"boredom" yaml:"boredom"`
	Goal    float64 `mapstructure:"goal" yaml:"goal"`
	Novelty float64 `mapstructure:"novelty" yaml:"novelty"`
}

// Config holds the scheduler constants.
type Config struct {
	Definitions []Definition    `mapstructure:"definitions" yaml:"definitions"`
	Abort       AbortConditions `mapstructure:"abort" yaml:"abort"`
	Weights     Weights         `mapstructure:"weights" yaml:"weights"`
	MaxActive   int             `mapstructure:"max_active" yaml:"max_active"`
}

// DefaultConfig returns the built-in chain types.
func DefaultConfig() Config {
	return Config{
		Definitions: []Definition{
			{
				Type:      Reflection,
				Steps:     []string{"gather_memories", "compare_patterns", "write_insight"},
				Threshold: 0.35,
				Cooldown:  30 * time.Minute,
				Affinity:  []emotion.Emotion{emotion.Sadness, emotion.Trust},
			},
			{
				Type:      Exploration,
				Steps:     []string{"pick_topic", "research", "summarize"},
				Threshold: 0.4,
				Cooldown:  time.Hour,
				Affinity:  []emotion.Emotion{emotion.Anticipation, emotion.Surprise},
			},
			{
				Type:      Creation,
				Steps:     []string{"choose_form", "draft", "refine"},
				Threshold: 0.45,
				Cooldown:  2 * time.Hour,
				Affinity:  []emotion.Emotion{emotion.Joy, emotion.Anticipation},
			},
			{
				Type:      Organizing,
				Steps:     []string{"scan_memories", "consolidate", "prune"},
				Threshold: 0.3,
				Cooldown:  6 * time.Hour,
				Affinity:  []emotion.Emotion{emotion.Trust},
			},
			{
				Type:      SelfImprovement,
				Steps:     []string{"audit", "propose", "verify"},
				Threshold: 0.55,
				Cooldown:  12 * time.Hour,
				Affinity:  []emotion.Emotion{emotion.Anticipation, emotion.Disgust},
			},
		},
		Abort: AbortConditions{
			LowConfidence:      0.3,
			ResourceExhaustion: 0.8,
		},
		Weights:   Weights{Emotion: 0.3, Boredom: 0.2, Goal: 0.3, Novelty: 0.2},
		MaxActive: 2,
	}
}

// Definition returns the definition of t.
func (c Config) Definition(t Type) (Definition, error) {
	for _, d := range c.Definitions {
		if d.Type == t {
			return d, nil
		}
	}
	return Definition{}, fmt.Errorf("%w: %q", ErrUnknownChainType, t)
}

// Validate checks the definitions and limits.
func (c Config) Validate() error {
	seen := make(map[Type]bool, len(c.Definitions))
	for _, d := range c.Definitions {
		if d.Type == "" {
			return fmt.Errorf("chain: definition without a type")
		}
		if seen[d.Type] {
			return fmt.Errorf("chain: duplicate definition for %q", d.Type)
		}
		seen[d.Type] = true
		if len(d.Steps) == 0 {
			return fmt.Errorf("chain: %q has no steps", d.Type)
		}
		if d.Threshold < 0 || d.Threshold > 1 {
			return fmt.Errorf("chain: %q threshold must be in [0,1]", d.Type)
		}
		if d.Cooldown < 0 {
			return fmt.Errorf("chain: %q cooldown must not be negative", d.Type)
		}
		for _, e := range d.Affinity {
			if _, ok := emotion.Parse(string(e)); !ok {
				return fmt.Errorf("chain: %q has unknown affinity %q", d.Type, e)
			}
		}
	}
	if c.Abort.LowConfidence < 0 || c.Abort.LowConfidence > 1 {
		return fmt.Errorf("chain: abort.low_confidence must be in [0,1]")
	}
	if c.Abort.ResourceExhaustion <= 0 {
		return fmt.Errorf("chain: abort.resource_exhaustion must be positive")
	}
	w := c.Weights
	for _, v := range []float64{w.Emotion, w.Boredom, w.Goal, w.Novelty} {
		if v < 0 {
			return fmt.Errorf("chain: motivation weights must not be negative")
		}
	}
	if c.MaxActive <= 0 {
		return fmt.Errorf("chain: max_active must be positive")
	}
	return nil
}
