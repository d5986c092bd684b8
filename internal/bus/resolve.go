package bus

import (
	"fmt"
	"math"
	"time"
)

// Value is one side of a conflict: a level and when it was produced.
type Value struct {
	Level float64   `json:"level"`
	At    time.Time `json:"at"`
}

// Strategy settles a conflict between the current value and an incoming one.
type Strategy interface {
	Name() string
	Resolve(current, incoming Value) Value
}

// Strategy names accepted in configuration.
const (
	StrategyWeightedBlend    = "weighted_blend"
	StrategyRecencyPriority  = "recency_priority"
	StrategyGradualAlignment = "gradual_alignment"
)

// WeightedBlend mixes the two values: Weight*current + (1-Weight)*incoming.
type WeightedBlend struct {
	Weight float64
}

func (WeightedBlend) Name() string { return StrategyWeightedBlend }

func (w WeightedBlend) Resolve(current, incoming Value) Value {
	return Value{
		Level: w.Weight*current.Level + (1-w.Weight)*incoming.Level,
		At:    later(current.At, incoming.At),
	}
}

// RecencyPriority keeps whichever value is newer. Ties go to incoming.
type RecencyPriority struct{}

func (RecencyPriority) Name() string { return StrategyRecencyPriority }

func (RecencyPriority) Resolve(current, incoming Value) Value {
	if current.At.After(incoming.At) {
		return current
	}
	return incoming
}

// GradualAlignment moves current toward incoming by at most Step.
type GradualAlignment struct {
	Step float64
}

func (GradualAlignment) Name() string { return StrategyGradualAlignment }

func (g GradualAlignment) Resolve(current, incoming Value) Value {
	diff := incoming.Level - current.Level
	if math.Abs(diff) <= g.Step {
		return Value{Level: incoming.Level, At: later(current.At, incoming.At)}
	}
	return Value{
		Level: current.Level + math.Copysign(g.Step, diff),
		At:    later(current.At, incoming.At),
	}
}

// ResolveConfig selects a strategy for each pair of interacting values.
type ResolveConfig struct {
	EmotionCognition  string  `mapstructure:"emotion_cognition" yaml:"emotion_cognition"`
	MemoryDuplicates  string  `mapstructure:"memory_duplicates" yaml:"memory_duplicates"`
	PersonalityTraits string  `mapstructure:"personality_traits" yaml:"personality_traits"`
	BlendWeight       float64 `mapstructure:"blend_weight" yaml:"blend_weight"`
	AlignmentStep     float64 `mapstructure:"alignment_step" yaml:"alignment_step"`
}

// DefaultResolveConfig returns the default pairing.
func DefaultResolveConfig() ResolveConfig {
	return ResolveConfig{
		EmotionCognition:  StrategyWeightedBlend,
		MemoryDuplicates:  StrategyRecencyPriority,
		PersonalityTraits: StrategyGradualAlignment,
		BlendWeight:       0.6,
		AlignmentStep:     0.01,
	}
}

// Validate checks that every name is known and parameters are in range.
func (c ResolveConfig) Validate() error {
	for _, name := range []string{c.EmotionCognition, c.MemoryDuplicates, c.PersonalityTraits} {
		if _, err := c.Strategy(name); err != nil {
			return err
		}
	}
	if c.BlendWeight < 0 || c.BlendWeight > 1 {
		return fmt.Errorf("resolve: blend_weight must be in [0,1]")
	}
	if c.AlignmentStep <= 0 || c.AlignmentStep > 1 {
		return fmt.Errorf("resolve: alignment_step must be in (0,1]")
	}
	return nil
}

// Strategy builds the named strategy with this config's parameters.
func (c ResolveConfig) Strategy(name string) (Strategy, error) {
	switch name {
	case StrategyWeightedBlend:
		return WeightedBlend{Weight: c.BlendWeight}, nil
	case StrategyRecencyPriority:
		return RecencyPriority{}, nil
	case StrategyGradualAlignment:
		return GradualAlignment{Step: c.AlignmentStep}, nil
	}
	return nil, fmt.Errorf("resolve: unknown strategy %q", name)
}

// Must returns the named strategy, falling back to recency priority for an
// unknown name. Config validation rejects unknown names up front.
func (c ResolveConfig) Must(name string) Strategy {
	s, err := c.Strategy(name)
	if err != nil {
		return RecencyPriority{}
	}
	return s
}

func later(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
