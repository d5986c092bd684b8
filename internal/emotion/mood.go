package emotion

// Mood is a three-axis summary of the primaries.
type Mood struct {
	Valence   float64 `json:"valence"`   // -1..1
	Energy    float64 `json:"energy"`    // 0..1
	Dominance float64 `json:"dominance"` // -1..1
	Label     string  `json:"label"`
}

// DeriveMood computes the mood for s.
func DeriveMood(s State) Mood {
	positive := mean(s, Joy, Trust, Anticipation)
	negative := mean(s, Fear, Sadness, Disgust, Anger)

	m := Mood{
		Valence:   positive - negative,
		Energy:    mean(s, Joy, Fear, Surprise, Anger, Anticipation),
		Dominance: mean(s, Anger, Trust, Joy) - mean(s, Fear, Sadness),
	}
	m.Label = moodLabel(m)
	return m
}

func moodLabel(m Mood) string {
	switch {
	case m.Energy < 0.05 && m.Valence > -0.05 && m.Valence < 0.05:
		return "calm"
	case m.Valence >= 0.2 && m.Energy >= 0.4:
		return "excited"
	case m.Valence >= 0.2:
		return "content"
	case m.Valence <= -0.2 && m.Energy >= 0.4:
		return "agitated"
	case m.Valence <= -0.2:
		return "down"
	default:
		return "neutral"
	}
}

func mean(s State, es ...Emotion) float64 {
	var sum float64
	for _, e := range es {
		sum += s.Get(e)
	}
	return sum / float64(len(es))
}
