package boredom

import (
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/limbic/internal/stimulus"
)

// Engine owns the BoredomState.
type Engine struct {
	cfg   Config
	state State
	log   zerolog.Logger
}

// NewEngine creates an engine in the cold-start state.
func NewEngine(cfg Config, now time.Time, log zerolog.Logger) *Engine {
	return &Engine{
		cfg:   cfg,
		state: NewState(now),
		log:   log.With().Str("component", "boredom").Logger(),
	}
}

// State returns a copy of the current state.
func (e *Engine) State() State { return e.state.Clone() }

// Level returns the current level without advancing time.
func (e *Engine) Level() float64 { return e.state.Level }

// Restore replaces the state with a saved one.
func (e *Engine) Restore(s State) {
	s = s.Clone()
	s.Level = stimulus.Clamp01(s.Level)
	if s.LastUpdate.Before(s.LastInteraction) {
		s.LastUpdate = s.LastInteraction
	}
	if n := len(s.History); n > e.cfg.HistorySize {
		s.History = s.History[n-e.cfg.HistorySize:]
	}
	e.state = s
}

// SetConfig swaps the constants.
func (e *Engine) SetConfig(cfg Config) { e.cfg = cfg }

// Tick applies passive growth up to now and returns the new level.
//
// Growth accumulated after h hours of inactivity is
// G(h) = BaseGrowthRate * multiplier(h) * h, and a tick adds G(h1) - G(h0).
// Splitting an idle period across ticks therefore gives the same result as a
// single tick over the whole period.
func (e *Engine) Tick(now time.Time) (float64, []Crossing) {
	if !now.After(e.state.LastUpdate) {
		return e.state.Level, nil
	}
	h0 := e.state.LastUpdate.Sub(e.state.LastInteraction).Hours()
	h1 := now.Sub(e.state.LastInteraction).Hours()

	prev := e.state.Level
	e.state.Level = stimulus.Clamp01(prev + e.growth(h1) - e.growth(h0))
	e.state.LastUpdate = now

	crossings := e.crossings(prev, e.state.Level, now)
	for _, c := range crossings {
		e.log.Info().Str("threshold", string(c.Threshold)).Float64("level", c.Level).Msg("boredom threshold crossed")
	}
	return e.state.Level, crossings
}

// OnActivity brings growth up to the activity time, then reduces the level by
// intensity times the activity multiplier.
func (e *Engine) OnActivity(a stimulus.Activity) []Crossing {
	if a.Normalize(e.state.LastUpdate) {
		e.log.Warn().Str("type", string(a.Type)).Msg("activity intensity clamped")
	}
	if !a.Type.Valid() {
		e.log.Warn().Str("type", string(a.Type)).Msg("unknown activity type, using fallback multiplier")
	}

	_, crossings := e.Tick(a.Timestamp)

	prev := e.state.Level
	reduction := a.Intensity * e.cfg.Multiplier(a.Type)
	e.state.Level = stimulus.Clamp01(prev - reduction)
	if a.Timestamp.After(e.state.LastInteraction) {
		e.state.LastInteraction = a.Timestamp
	}
	e.state.LastUpdate = maxTime(e.state.LastUpdate, e.state.LastInteraction)

	e.state.History = append(e.state.History, Entry{
		Type:      a.Type,
		Intensity: a.Intensity,
		Reduction: prev - e.state.Level,
		At:        a.Timestamp,
	})
	if n := len(e.state.History); n > e.cfg.HistorySize {
		e.state.History = e.state.History[n-e.cfg.HistorySize:]
	}

	return append(crossings, e.crossings(prev, e.state.Level, a.Timestamp)...)
}

// Flags returns the current flag set.
func (e *Engine) Flags() Flags {
	return e.cfg.flags(e.state.Level)
}

// Suggest names the kind of self-directed activity the current level calls
// for, or "" when not bored.
func (e *Engine) Suggest() string {
	f := e.Flags()
	switch {
	case f.Critical:
		return "creation"
	case f.VeryBored:
		return "exploration"
	case f.Bored:
		return "reflection"
	}
	return ""
}

// IdleHours returns the hours since the last interaction as of now.
func (e *Engine) IdleHours(now time.Time) float64 {
	h := now.Sub(e.state.LastInteraction).Hours()
	return math.Max(0, h)
}

func (e *Engine) growth(hours float64) float64 {
	if hours <= 0 {
		return 0
	}
	m := 1 + hours*e.cfg.InactivityFactor
	if e.cfg.MaxGrowthMultiplier > 0 && m > e.cfg.MaxGrowthMultiplier {
		m = e.cfg.MaxGrowthMultiplier
	}
	return e.cfg.BaseGrowthRate * m * hours
}

func (e *Engine) crossings(prev, cur float64, at time.Time) []Crossing {
	before, after := e.cfg.flags(prev), e.cfg.flags(cur)
	var out []Crossing
	check := func(t Threshold, was, is bool) {
		if was != is {
			out = append(out, Crossing{Threshold: t, Rising: is, Level: cur, At: at})
		}
	}
	check(Bored, before.Bored, after.Bored)
	check(VeryBored, before.VeryBored, after.VeryBored)
	check(Critical, before.Critical, after.Critical)
	return out
}

func (c Config) flags(level float64) Flags {
	return Flags{
		Bored:     level >= c.BoredThreshold,
		VeryBored: level >= c.VeryBoredThreshold,
		Critical:  level >= c.CriticalThreshold,
	}
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
