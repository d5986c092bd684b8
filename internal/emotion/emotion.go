// Package emotion maintains the eight primary emotion levels and derives
// secondary, tertiary and mood values from them.
//
// Only primaries are stored. Everything else is a pure function of the
// primaries (plus a context for tertiaries), recomputed on every read.
package emotion

import (
	"time"
)

// Emotion names a primary emotion.
type Emotion string

const (
	Joy          Emotion = "joy"
	Trust        Emotion = "trust"
	Fear         Emotion = "fear"
	Surprise     Emotion = "surprise"
	Sadness      Emotion = "sadness"
	Disgust      Emotion = "disgust"
	Anger        Emotion = "anger"
	Anticipation Emotion = "anticipation"

	// Neutral is reported as the dominant emotion when every primary is 0.
	Neutral Emotion = "neutral"
)

// Primaries lists the primary emotions in their canonical order. Ties are
// broken by this order wherever a single emotion must be chosen.
var Primaries = [...]Emotion{Joy, Trust, Fear, Surprise, Sadness, Disgust, Anger, Anticipation}

// Parse maps a tag to a primary emotion.
func Parse(tag string) (Emotion, bool) {
	e := Emotion(tag)
	for _, p := range Primaries {
		if p == e {
			return e, true
		}
	}
	return "", false
}

// Opposite returns the emotion on the other side of the wheel.
func (e Emotion) Opposite() Emotion {
	switch e {
	case Joy:
		return Sadness
	case Sadness:
		return Joy
	case Trust:
		return Disgust
	case Disgust:
		return Trust
	case Fear:
		return Anger
	case Anger:
		return Fear
	case Surprise:
		return Anticipation
	case Anticipation:
		return Surprise
	}
	return ""
}

// Positive reports whether e has positive valence.
func (e Emotion) Positive() bool {
	return e == Joy || e == Trust || e == Anticipation
}

// Negative reports whether e has negative valence. Surprise is neither.
func (e Emotion) Negative() bool {
	return e == Fear || e == Sadness || e == Disgust || e == Anger
}

// Level is one primary emotion's stored value.
type Level struct {
	Value     float64   `json:"value"`
	DecayRate float64   `json:"decay_rate"` // per second
	UpdatedAt time.Time `json:"updated_at"`
}

// State is the EmotionalState: the eight primaries, nothing derived.
type State struct {
	Levels map[Emotion]Level `json:"levels"`
}

// NewState returns the cold-start state: every primary at 0.
func NewState(cfg Config, now time.Time) State {
	s := State{Levels: make(map[Emotion]Level, len(Primaries))}
	for _, e := range Primaries {
		s.Levels[e] = Level{DecayRate: cfg.Params(e).DecayRate, UpdatedAt: now}
	}
	return s
}

// Get returns the current value of e, 0 if unknown.
func (s State) Get(e Emotion) float64 {
	return s.Levels[e].Value
}

// Values returns a plain emotion to value map.
func (s State) Values() map[Emotion]float64 {
	out := make(map[Emotion]float64, len(Primaries))
	for _, e := range Primaries {
		out[e] = s.Levels[e].Value
	}
	return out
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := State{Levels: make(map[Emotion]Level, len(s.Levels))}
	for k, v := range s.Levels {
		out.Levels[k] = v
	}
	return out
}

// IsZero reports whether every primary is 0.
func (s State) IsZero() bool {
	for _, e := range Primaries {
		if s.Levels[e].Value != 0 {
			return false
		}
	}
	return true
}
