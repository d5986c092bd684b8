// Package boredom tracks a single motivational scalar that grows with
// inactivity and falls with engagement.
package boredom

import (
	"fmt"
	"time"

	"github.com/normanking/limbic/internal/stimulus"
)

// Threshold names a boredom band.
type Threshold string

const (
	Bored     Threshold = "bored"
	VeryBored Threshold = "very_bored"
	Critical  Threshold = "critical"
)

// Crossing is emitted when the level moves across a threshold.
type Crossing struct {
	Threshold Threshold `json:"threshold"`
	Rising    bool      `json:"rising"`
	Level     float64   `json:"level"`
	At        time.Time `json:"at"`
}

// Flags is the boredom flag set handed to response generation.
type Flags struct {
	Bored     bool `json:"bored"`
	VeryBored bool `json:"very_bored"`
	Critical  bool `json:"critical"`
}

// Entry is one activity-log record.
type Entry struct {
	Type      stimulus.ActivityType `json:"type"`
	Intensity float64               `json:"intensity"`
	Reduction float64               `json:"reduction"`
	At        time.Time             `json:"at"`
}

// State is the BoredomState.
type State struct {
	Level           float64   `json:"level"`
	LastInteraction time.Time `json:"last_interaction"`
	LastUpdate      time.Time `json:"last_update"`
	History         []Entry   `json:"history,omitempty"`
}

// NewState returns the cold-start state at now.
func NewState(now time.Time) State {
	return State{LastInteraction: now, LastUpdate: now}
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := s
	if s.History != nil {
		out.History = append([]Entry(nil), s.History...)
	}
	return out
}

// Config holds the boredom constants.
type Config struct {
	// growth_rate = BaseGrowthRate * min(MaxGrowthMultiplier, 1 + hours_inactive*InactivityFactor)
	BaseGrowthRate      float64 `mapstructure:"base_growth_rate" yaml:"base_growth_rate"`
	InactivityFactor    float64 `mapstructure:"inactivity_factor" yaml:"inactivity_factor"`
	MaxGrowthMultiplier float64 `mapstructure:"max_growth_multiplier" yaml:"max_growth_multiplier"` // 0 disables the cap

	Conversation float64 `mapstructure:"conversation" yaml:"conversation"`
	Command      float64 `mapstructure:"command" yaml:"command"`
	Thinking     float64 `mapstructure:"thinking" yaml:"thinking"`
	System       float64 `mapstructure:"system" yaml:"system"`
	Unknown      float64 `mapstructure:"unknown" yaml:"unknown"`

	BoredThreshold     float64 `mapstructure:"bored_threshold" yaml:"bored_threshold"`
	VeryBoredThreshold float64 `mapstructure:"very_bored_threshold" yaml:"very_bored_threshold"`
	CriticalThreshold  float64 `mapstructure:"critical_threshold" yaml:"critical_threshold"`

	HistorySize int `mapstructure:"history_size" yaml:"history_size"`
}

// DefaultConfig returns the default boredom constants.
func DefaultConfig() Config {
	return Config{
		BaseGrowthRate:      0.05,
		InactivityFactor:    0.5,
		MaxGrowthMultiplier: 3.0,

		Conversation: 0.15,
		Command:      0.10,
		Thinking:     0.08,
		System:       0.03,
		Unknown:      0.05,

		BoredThreshold:     0.7,
		VeryBoredThreshold: 0.9,
		CriticalThreshold:  0.95,

		HistorySize: 50,
	}
}

// Multiplier returns the reduction multiplier for an activity type.
func (c Config) Multiplier(t stimulus.ActivityType) float64 {
	switch t {
	case stimulus.ActivityConversation:
		return c.Conversation
	case stimulus.ActivityCommand:
		return c.Command
	case stimulus.ActivityThinking:
		return c.Thinking
	case stimulus.ActivitySystem:
		return c.System
	}
	return c.Unknown
}

// Validate checks the constants.
func (c Config) Validate() error {
	if c.BaseGrowthRate <= 0 {
		return fmt.Errorf("boredom: base_growth_rate must be positive")
	}
	if c.InactivityFactor < 0 || c.MaxGrowthMultiplier < 0 {
		return fmt.Errorf("boredom: growth factors must not be negative")
	}
	if c.MaxGrowthMultiplier > 0 && c.MaxGrowthMultiplier < 1 {
		return fmt.Errorf("boredom: max_growth_multiplier must be 0 or at least 1")
	}
	for _, m := range []float64{c.Conversation, c.Command, c.Thinking, c.System, c.Unknown} {
		if m < 0 || m > 1 {
			return fmt.Errorf("boredom: activity multipliers must be in [0,1]")
		}
	}
	if !(0 < c.BoredThreshold && c.BoredThreshold <= c.VeryBoredThreshold &&
		c.VeryBoredThreshold <= c.CriticalThreshold && c.CriticalThreshold <= 1) {
		return fmt.Errorf("boredom: thresholds must satisfy 0 < bored <= very_bored <= critical <= 1")
	}
	if c.HistorySize <= 0 {
		return fmt.Errorf("boredom: history_size must be positive")
	}
	return nil
}
