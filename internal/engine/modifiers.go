package engine

import (
	"time"

	"github.com/normanking/limbic/internal/boredom"
	"github.com/normanking/limbic/internal/bus"
	"github.com/normanking/limbic/internal/chain"
	"github.com/normanking/limbic/internal/emotion"
	"github.com/normanking/limbic/internal/personality"
)

// Modifiers is the state summary handed to response generation.
type Modifiers struct {
	At time.Time `json:"at"`

	Dominant  emotion.Emotion             `json:"dominant"`
	Intensity float64                     `json:"intensity"`
	Emotions  map[emotion.Emotion]float64 `json:"emotions"`
	Secondary []emotion.Derived           `json:"secondary,omitempty"`
	Tertiary  []emotion.Derived           `json:"tertiary,omitempty"`
	Mood      emotion.Mood                `json:"mood"`

	Boredom    float64       `json:"boredom"`
	Flags      boredom.Flags `json:"flags"`
	Suggestion string        `json:"suggestion,omitempty"`

	Traits personality.Traits `json:"traits"`
	Chains []ChainStatus      `json:"chains,omitempty"`

	Memories int  `json:"memories"`
	Verbose  bool `json:"verbose"`
	Brief    bool `json:"brief"`
}

// ChainStatus is a live chain as seen from outside.
type ChainStatus struct {
	ID    string      `json:"id"`
	Type  chain.Type  `json:"type"`
	State chain.State `json:"state"`
	Step  string      `json:"step"`
}

// Modifiers reads the current state without changing it. Only active
// secondary and tertiary emotions are listed.
func (e *Engine) Modifiers(now time.Time) Modifiers {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.modifiers(now)
}

func (e *Engine) modifiers(now time.Time) Modifiers {
	state := e.emotion.State()
	dominant, level := emotion.Dominant(state)

	m := Modifiers{
		At:         now,
		Dominant:   dominant,
		Intensity:  e.blendIntensity(level, now),
		Emotions:   state.Values(),
		Secondary:  active(emotion.DeriveSecondary(state)),
		Tertiary:   active(emotion.DeriveTertiary(state, e.tertiaryContext(now))),
		Mood:       emotion.DeriveMood(state),
		Boredom:    e.boredom.Level(),
		Flags:      e.boredom.Flags(),
		Suggestion: e.boredom.Suggest(),
		Traits:     e.personality.Traits(),
		Memories:   e.memory.Len(),
	}
	for _, c := range e.chains.Live() {
		m.Chains = append(m.Chains, ChainStatus{ID: c.ID, Type: c.Type, State: c.State, Step: c.CurrentStep()})
	}
	m.Brief = m.Flags.VeryBored
	m.Verbose = !m.Flags.Bored && m.Intensity >= e.cfg.Loop.VerboseIntensity
	return m
}

// blendIntensity resolves the emotional intensity against the latest
// cognition value. Without one the emotional value passes through.
func (e *Engine) blendIntensity(level float64, now time.Time) float64 {
	if e.cognition == nil {
		return level
	}
	return e.blend.Resolve(bus.Value{Level: level, At: now}, *e.cognition).Level
}

func (e *Engine) tertiaryContext(now time.Time) emotion.TertiaryContext {
	return emotion.TertiaryContext{
		PositiveStreak:   e.positiveStreak,
		NegativeStreak:   e.negativeStreak,
		IdleHours:        e.boredom.IdleHours(now),
		RecalledMemories: e.recalled,
	}
}

func active(ds []emotion.Derived) []emotion.Derived {
	var out []emotion.Derived
	for _, d := range ds {
		if d.Active {
			out = append(out, d)
		}
	}
	return out
}
