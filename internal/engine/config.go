package engine

import (
	"fmt"
	"time"

	"github.com/normanking/limbic/internal/boredom"
	"github.com/normanking/limbic/internal/bus"
	"github.com/normanking/limbic/internal/chain"
	"github.com/normanking/limbic/internal/emotion"
	"github.com/normanking/limbic/internal/memory"
	"github.com/normanking/limbic/internal/personality"
)

// Config gathers every engine's constants.
type Config struct {
	Emotion     emotion.Config     `mapstructure:"emotion" yaml:"emotion"`
	Boredom     boredom.Config     `mapstructure:"boredom" yaml:"boredom"`
	Memory      memory.Config      `mapstructure:"memory" yaml:"memory"`
	Chain       chain.Config       `mapstructure:"chain" yaml:"chain"`
	Personality personality.Config `mapstructure:"personality" yaml:"personality"`
	Resolve     bus.ResolveConfig  `mapstructure:"resolve" yaml:"resolve"`
	Loop        LoopConfig         `mapstructure:"loop" yaml:"loop"`
}

// LoopConfig tunes the tick loop and the modifiers output.
type LoopConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval" yaml:"tick_interval"`
	HistorySize  int           `mapstructure:"history_size" yaml:"history_size"`

	// VerboseIntensity is the blended intensity at which responses may run long.
	VerboseIntensity float64 `mapstructure:"verbose_intensity" yaml:"verbose_intensity"`

	// StepCost is the resource cost of one locally executed chain step.
	StepCost float64 `mapstructure:"step_cost" yaml:"step_cost"`
}

// DefaultConfig returns every engine's defaults.
func DefaultConfig() Config {
	return Config{
		Emotion:     emotion.DefaultConfig(),
		Boredom:     boredom.DefaultConfig(),
		Memory:      memory.DefaultConfig(),
		Chain:       chain.DefaultConfig(),
		Personality: personality.DefaultConfig(),
		Resolve:     bus.DefaultResolveConfig(),
		Loop: LoopConfig{
			TickInterval:     time.Minute,
			HistorySize:      bus.DefaultHistorySize,
			VerboseIntensity: 0.5,
			StepCost:         0.15,
		},
	}
}

// Validate checks every section.
func (c Config) Validate() error {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"emotion", c.Emotion.Validate},
		{"boredom", c.Boredom.Validate},
		{"memory", c.Memory.Validate},
		{"chain", c.Chain.Validate},
		{"personality", c.Personality.Validate},
		{"resolve", c.Resolve.Validate},
		{"loop", c.Loop.Validate},
	}
	for _, check := range checks {
		if err := check.fn(); err != nil {
			return fmt.Errorf("%s: %w", check.name, err)
		}
	}
	return nil
}

// Validate checks the loop settings.
func (c LoopConfig) Validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive")
	}
	if c.HistorySize <= 0 {
		return fmt.Errorf("history_size must be positive")
	}
	if c.VerboseIntensity < 0 || c.VerboseIntensity > 1 {
		return fmt.Errorf("verbose_intensity must be in [0,1]")
	}
	if c.StepCost < 0 {
		return fmt.Errorf("step_cost must not be negative")
	}
	return nil
}
