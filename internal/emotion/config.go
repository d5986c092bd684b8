package emotion

import (
	"fmt"
)

// Params are the per-emotion constants.
type Params struct {
	BaseIncrement float64 `mapstructure:"base_increment" yaml:"base_increment"`
	DecayRate     float64 `mapstructure:"decay_rate" yaml:"decay_rate"` // per second
}

// Effect is one emotion change caused by a reaction pattern.
type Effect struct {
	Emotion   Emotion `mapstructure:"emotion" yaml:"emotion"`
	Increment float64 `mapstructure:"increment" yaml:"increment"`
}

// Reaction maps a behavioural sentiment tag (compliment, insult, ...) to
// fixed emotion increments.
type Reaction struct {
	Tag     string   `mapstructure:"tag" yaml:"tag"`
	Effects []Effect `mapstructure:"effects" yaml:"effects"`
}

// Config holds the emotion engine constants.
type Config struct {
	Joy          Params `mapstructure:"joy" yaml:"joy"`
	Trust        Params `mapstructure:"trust" yaml:"trust"`
	Fear         Params `mapstructure:"fear" yaml:"fear"`
	Surprise     Params `mapstructure:"surprise" yaml:"surprise"`
	Sadness      Params `mapstructure:"sadness" yaml:"sadness"`
	Disgust      Params `mapstructure:"disgust" yaml:"disgust"`
	Anger        Params `mapstructure:"anger" yaml:"anger"`
	Anticipation Params `mapstructure:"anticipation" yaml:"anticipation"`

	// Intensity formula: base + length + context + memory, clamped to [0,1].
	BaseIntensity float64 `mapstructure:"base_intensity" yaml:"base_intensity"`
	LengthWeight  float64 `mapstructure:"length_weight" yaml:"length_weight"`
	LengthNorm    float64 `mapstructure:"length_norm" yaml:"length_norm"`
	ContextWeight float64 `mapstructure:"context_weight" yaml:"context_weight"`
	MemoryWeight  float64 `mapstructure:"memory_weight" yaml:"memory_weight"`

	// OppositeDamping lowers the opposite emotion by this fraction of a rise.
	OppositeDamping float64 `mapstructure:"opposite_damping" yaml:"opposite_damping"`

	Reactions []Reaction `mapstructure:"reactions" yaml:"reactions"`
}

// DefaultConfig returns the default emotion constants.
func DefaultConfig() Config {
	return Config{
		Joy:          Params{BaseIncrement: 0.20, DecayRate: 0.0008},
		Trust:        Params{BaseIncrement: 0.15, DecayRate: 0.0004},
		Fear:         Params{BaseIncrement: 0.20, DecayRate: 0.0015},
		Surprise:     Params{BaseIncrement: 0.25, DecayRate: 0.0030},
		Sadness:      Params{BaseIncrement: 0.15, DecayRate: 0.0006},
		Disgust:      Params{BaseIncrement: 0.15, DecayRate: 0.0010},
		Anger:        Params{BaseIncrement: 0.20, DecayRate: 0.0012},
		Anticipation: Params{BaseIncrement: 0.15, DecayRate: 0.0008},

		BaseIntensity:   0.3,
		LengthWeight:    0.2,
		LengthNorm:      1000,
		ContextWeight:   0.3,
		MemoryWeight:    0.25,
		OppositeDamping: 0.3,

		Reactions: []Reaction{
			{Tag: "compliment", Effects: []Effect{{Joy, 0.2}, {Trust, 0.1}}},
			{Tag: "insult", Effects: []Effect{{Anger, 0.2}, {Sadness, 0.1}}},
			{Tag: "question", Effects: []Effect{{Anticipation, 0.1}, {Surprise, 0.05}}},
			{Tag: "gratitude", Effects: []Effect{{Joy, 0.15}, {Trust, 0.15}}},
			{Tag: "threat", Effects: []Effect{{Fear, 0.25}, {Anger, 0.1}}},
			{Tag: "loss", Effects: []Effect{{Sadness, 0.25}}},
			{Tag: "novelty", Effects: []Effect{{Surprise, 0.2}, {Anticipation, 0.1}}},
		},
	}
}

// Params returns the constants for e.
func (c Config) Params(e Emotion) Params {
	switch e {
	case Joy:
		return c.Joy
	case Trust:
		return c.Trust
	case Fear:
		return c.Fear
	case Surprise:
		return c.Surprise
	case Sadness:
		return c.Sadness
	case Disgust:
		return c.Disgust
	case Anger:
		return c.Anger
	case Anticipation:
		return c.Anticipation
	}
	return Params{}
}

// Reaction looks up a reaction pattern by tag.
func (c Config) Reaction(tag string) (Reaction, bool) {
	for _, r := range c.Reactions {
		if r.Tag == tag {
			return r, true
		}
	}
	return Reaction{}, false
}

// Validate checks every constant is in range.
func (c Config) Validate() error {
	for _, e := range Primaries {
		p := c.Params(e)
		if p.DecayRate <= 0 {
			return fmt.Errorf("emotion %s: decay_rate must be positive", e)
		}
		if p.BaseIncrement < 0 || p.BaseIncrement > 1 {
			return fmt.Errorf("emotion %s: base_increment must be in [0,1]", e)
		}
	}
	if c.LengthNorm <= 0 {
		return fmt.Errorf("emotion: length_norm must be positive")
	}
	for name, w := range map[string]float64{
		"base_intensity":   c.BaseIntensity,
		"length_weight":    c.LengthWeight,
		"context_weight":   c.ContextWeight,
		"memory_weight":    c.MemoryWeight,
		"opposite_damping": c.OppositeDamping,
	} {
		if w < 0 || w > 1 {
			return fmt.Errorf("emotion: %s must be in [0,1]", name)
		}
	}
	for _, r := range c.Reactions {
		for _, eff := range r.Effects {
			if _, ok := Parse(string(eff.Emotion)); !ok {
				return fmt.Errorf("emotion: reaction %q targets unknown emotion %q", r.Tag, eff.Emotion)
			}
		}
	}
	return nil
}
