package emotion

import (
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/limbic/internal/stimulus"
)

// Appraisal describes what one stimulus did to the primaries.
type Appraisal struct {
	// Intensities holds the clamped intensity formula result per targeted emotion.
	Intensities map[Emotion]float64 `json:"intensities"`
	// Deltas holds the applied change per emotion, including opposite damping.
	Deltas map[Emotion]float64 `json:"deltas"`
	// Ignored lists tags that matched neither an emotion nor a reaction.
	Ignored []string `json:"ignored,omitempty"`
}

// Strength is the strongest intensity the stimulus produced.
func (a Appraisal) Strength() float64 {
	var best float64
	for _, v := range a.Intensities {
		if v > best {
			best = v
		}
	}
	return best
}

// Valence is the net positive minus negative rise.
func (a Appraisal) Valence() float64 {
	var v float64
	for e, d := range a.Deltas {
		if d <= 0 {
			continue
		}
		switch {
		case e.Positive():
			v += d
		case e.Negative():
			v -= d
		}
	}
	return v
}

// Tags returns the post-update level of every targeted emotion. This is the
// emotional tag map a memory records at encoding time.
func (a Appraisal) Tags(s State) map[Emotion]float64 {
	out := make(map[Emotion]float64, len(a.Intensities))
	for e := range a.Intensities {
		out[e] = s.Get(e)
	}
	return out
}

// Engine owns the EmotionalState. It is not safe for concurrent use; the bus
// serializes all calls.
type Engine struct {
	cfg   Config
	state State
	log   zerolog.Logger
}

// NewEngine creates an engine in the cold-start state.
func NewEngine(cfg Config, now time.Time, log zerolog.Logger) *Engine {
	return &Engine{
		cfg:   cfg,
		state: NewState(cfg, now),
		log:   log.With().Str("component", "emotion").Logger(),
	}
}

// State returns a copy of the current state.
func (e *Engine) State() State {
	return e.state.Clone()
}

// Restore replaces the state with a saved one. Missing emotions are
// initialized at 0 and stored values are clamped.
func (e *Engine) Restore(s State, now time.Time) {
	restored := NewState(e.cfg, now)
	for _, em := range Primaries {
		lvl, ok := s.Levels[em]
		if !ok {
			continue
		}
		lvl.Value = stimulus.Clamp01(lvl.Value)
		if lvl.DecayRate <= 0 {
			lvl.DecayRate = e.cfg.Params(em).DecayRate
		}
		restored.Levels[em] = lvl
	}
	e.state = restored
}

// SetConfig swaps the constants. Decay rates of the stored levels follow.
func (e *Engine) SetConfig(cfg Config) {
	e.cfg = cfg
	for _, em := range Primaries {
		lvl := e.state.Levels[em]
		lvl.DecayRate = cfg.Params(em).DecayRate
		e.state.Levels[em] = lvl
	}
}

// Update applies a stimulus at now. related carries the strongest memory
// association per emotion for the stimulus' entities.
//
// Every primary is first decayed to now. Each targeted emotion then rises by
// its increment scaled by the intensity formula, and its opposite is damped.
func (e *Engine) Update(stim stimulus.Stimulus, now time.Time, related map[Emotion]float64) Appraisal {
	targets, ignored := e.targets(stim.SentimentTags)
	for _, tag := range ignored {
		e.log.Warn().Str("tag", tag).Msg("ignoring unknown sentiment tag")
	}

	e.Decay(now)

	app := Appraisal{
		Intensities: make(map[Emotion]float64, len(targets)),
		Deltas:      make(map[Emotion]float64, len(targets)),
		Ignored:     ignored,
	}
	if len(targets) == 0 {
		return app
	}

	length := stimulus.LengthRatio(stim.TextLength, e.cfg.LengthNorm) * e.cfg.LengthWeight
	for _, em := range Primaries {
		inc, ok := targets[em]
		if !ok {
			continue
		}
		prev := e.state.Levels[em].Value
		intensity := stimulus.Clamp01(e.cfg.BaseIntensity +
			length +
			prev*e.cfg.ContextWeight +
			stimulus.Clamp01(related[em])*e.cfg.MemoryWeight)
		app.Intensities[em] = intensity
		app.Deltas[em] += e.set(em, prev+inc*intensity, now) - prev
	}

	for _, em := range Primaries {
		rise := app.Deltas[em]
		if rise <= 0 {
			continue
		}
		opp := em.Opposite()
		if _, targeted := targets[opp]; targeted {
			continue
		}
		prev := e.state.Levels[opp].Value
		if prev == 0 {
			continue
		}
		app.Deltas[opp] += e.set(opp, prev-rise*e.cfg.OppositeDamping, now) - prev
	}

	e.log.Debug().
		Interface("deltas", app.Deltas).
		Float64("strength", app.Strength()).
		Msg("stimulus appraised")
	return app
}

// Decay brings every primary forward to now: level *= exp(-rate * elapsed).
// A clock that moved backwards leaves the state untouched.
func (e *Engine) Decay(now time.Time) {
	for _, em := range Primaries {
		lvl := e.state.Levels[em]
		elapsed := now.Sub(lvl.UpdatedAt).Seconds()
		if elapsed <= 0 {
			continue
		}
		lvl.Value = stimulus.Clamp01(lvl.Value * math.Exp(-lvl.DecayRate*elapsed))
		lvl.UpdatedAt = now
		e.state.Levels[em] = lvl
	}
}

// targets resolves tags to base increments. Direct emotion tags use the
// emotion's base increment; reaction tags use their pattern. Repeated hits on
// the same emotion keep the larger increment.
func (e *Engine) targets(tags []string) (map[Emotion]float64, []string) {
	out := make(map[Emotion]float64)
	var ignored []string
	add := func(em Emotion, inc float64) {
		if inc > out[em] {
			out[em] = inc
		}
	}
	for _, tag := range tags {
		if em, ok := Parse(tag); ok {
			add(em, e.cfg.Params(em).BaseIncrement)
			continue
		}
		if r, ok := e.cfg.Reaction(tag); ok {
			for _, eff := range r.Effects {
				add(eff.Emotion, eff.Increment)
			}
			continue
		}
		ignored = append(ignored, tag)
	}
	return out, ignored
}

func (e *Engine) set(em Emotion, v float64, now time.Time) float64 {
	lvl := e.state.Levels[em]
	lvl.Value = stimulus.Clamp01(v)
	if now.After(lvl.UpdatedAt) {
		lvl.UpdatedAt = now
	}
	e.state.Levels[em] = lvl
	return lvl.Value
}
