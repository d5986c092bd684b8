// Package personality holds slow-moving response traits that drift toward
// targets derived from mood and boredom.
package personality

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/limbic/internal/bus"
	"github.com/normanking/limbic/internal/emotion"
	"github.com/normanking/limbic/internal/stimulus"
)

// Traits are each in [0,1].
type Traits struct {
	Warmth        float64 `json:"warmth" mapstructure:"warmth" yaml:"warmth"`
	Curiosity     float64 `json:"curiosity" mapstructure:"curiosity" yaml:"curiosity"`
	Assertiveness float64 `json:"assertiveness" mapstructure:"assertiveness" yaml:"assertiveness"`
	Playfulness   float64 `json:"playfulness" mapstructure:"playfulness" yaml:"playfulness"`
	Caution       float64 `json:"caution" mapstructure:"caution" yaml:"caution"`
}

func (t Traits) fields() []*float64 {
	return []*float64{&t.Warmth, &t.Curiosity, &t.Assertiveness, &t.Playfulness, &t.Caution}
}

// Clamp returns t with every trait in [0,1].
func (t Traits) Clamp() Traits {
	return Traits{
		Warmth:        stimulus.Clamp01(t.Warmth),
		Curiosity:     stimulus.Clamp01(t.Curiosity),
		Assertiveness: stimulus.Clamp01(t.Assertiveness),
		Playfulness:   stimulus.Clamp01(t.Playfulness),
		Caution:       stimulus.Clamp01(t.Caution),
	}
}

// Config holds the baseline personality and how strongly mood pulls on it.
type Config struct {
	Baseline Traits  `mapstructure:"baseline" yaml:"baseline"`
	Pull     float64 `mapstructure:"pull" yaml:"pull"`
}

// DefaultConfig returns a balanced baseline.
func DefaultConfig() Config {
	return Config{
		Baseline: Traits{Warmth: 0.6, Curiosity: 0.6, Assertiveness: 0.5, Playfulness: 0.5, Caution: 0.5},
		Pull:     0.3,
	}
}

// Validate checks the baseline and pull.
func (c Config) Validate() error {
	for _, v := range c.Baseline.fields() {
		if *v < 0 || *v > 1 {
			return fmt.Errorf("personality: baseline traits must be in [0,1]")
		}
	}
	if c.Pull < 0 || c.Pull > 1 {
		return fmt.Errorf("personality: pull must be in [0,1]")
	}
	return nil
}

// Target is where the traits drift under the given mood and boredom level.
func (c Config) Target(m emotion.Mood, boredom float64) Traits {
	b, p := c.Baseline, c.Pull
	return Traits{
		Warmth:        b.Warmth + p*m.Valence,
		Curiosity:     b.Curiosity + p*stimulus.Clamp01(boredom),
		Assertiveness: b.Assertiveness + p*m.Dominance,
		Playfulness:   b.Playfulness + p*(m.Valence+m.Energy-0.5),
		Caution:       b.Caution - p*m.Dominance,
	}.Clamp()
}

// Engine moves the traits toward their target once per alignment.
type Engine struct {
	cfg      Config
	strategy bus.Strategy
	traits   Traits
	at       time.Time
	log      zerolog.Logger
}

// NewEngine starts at the baseline. strategy defaults to GradualAlignment
// with a 0.01 step.
func NewEngine(cfg Config, strategy bus.Strategy, now time.Time, log zerolog.Logger) *Engine {
	if strategy == nil {
		strategy = bus.GradualAlignment{Step: 0.01}
	}
	return &Engine{
		cfg:      cfg,
		strategy: strategy,
		traits:   cfg.Baseline.Clamp(),
		at:       now,
		log:      log.With().Str("component", "personality").Logger(),
	}
}

// SetConfig swaps the baseline and strategy. Current traits are kept.
func (e *Engine) SetConfig(cfg Config, strategy bus.Strategy) {
	e.cfg = cfg
	if strategy != nil {
		e.strategy = strategy
	}
}

// Traits returns the current traits.
func (e *Engine) Traits() Traits { return e.traits }

// Restore replaces the traits.
func (e *Engine) Restore(t Traits, now time.Time) {
	e.traits = t.Clamp()
	e.at = now
}

// Align resolves every trait against its target and returns the result.
func (e *Engine) Align(m emotion.Mood, boredom float64, now time.Time) Traits {
	target := e.cfg.Target(m, boredom)
	cur := e.traits

	resolve := func(c, t float64) float64 {
		v := e.strategy.Resolve(bus.Value{Level: c, At: e.at}, bus.Value{Level: t, At: now})
		return stimulus.Clamp01(v.Level)
	}
	e.traits = Traits{
		Warmth:        resolve(cur.Warmth, target.Warmth),
		Curiosity:     resolve(cur.Curiosity, target.Curiosity),
		Assertiveness: resolve(cur.Assertiveness, target.Assertiveness),
		Playfulness:   resolve(cur.Playfulness, target.Playfulness),
		Caution:       resolve(cur.Caution, target.Caution),
	}
	if now.After(e.at) {
		e.at = now
	}
	e.log.Trace().Str("mood", m.Label).Interface("traits", e.traits).Msg("traits aligned")
	return e.traits
}
