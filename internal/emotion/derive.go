package emotion

// Derived is a secondary or tertiary emotion value.
type Derived struct {
	Name   string  `json:"name"`
	Level  float64 `json:"level"`
	Active bool    `json:"active"`
}

type part struct {
	emotion Emotion
	weight  float64
}

type blend struct {
	name  string
	parts [2]part
}

// Secondary emotions as weighted pairs of primaries.
var secondaries = []blend{
	{"love", [2]part{{Joy, 0.6}, {Trust, 0.4}}},
	{"submission", [2]part{{Trust, 0.5}, {Fear, 0.5}}},
	{"awe", [2]part{{Fear, 0.5}, {Surprise, 0.5}}},
	{"disappointment", [2]part{{Surprise, 0.5}, {Sadness, 0.5}}},
	{"remorse", [2]part{{Sadness, 0.5}, {Disgust, 0.5}}},
	{"contempt", [2]part{{Disgust, 0.5}, {Anger, 0.5}}},
	{"aggressiveness", [2]part{{Anger, 0.5}, {Anticipation, 0.5}}},
	{"optimism", [2]part{{Anticipation, 0.5}, {Joy, 0.5}}},
	{"guilt", [2]part{{Joy, 0.5}, {Fear, 0.5}}},
	{"curiosity", [2]part{{Trust, 0.5}, {Surprise, 0.5}}},
	{"despair", [2]part{{Fear, 0.5}, {Sadness, 0.5}}},
	{"unbelief", [2]part{{Surprise, 0.5}, {Disgust, 0.5}}},
	{"envy", [2]part{{Sadness, 0.5}, {Anger, 0.5}}},
	{"cynicism", [2]part{{Disgust, 0.5}, {Anticipation, 0.5}}},
	{"pride", [2]part{{Anger, 0.5}, {Joy, 0.5}}},
	{"hope", [2]part{{Anticipation, 0.5}, {Trust, 0.5}}},
	{"anxiety", [2]part{{Anticipation, 0.5}, {Fear, 0.5}}},
	{"delight", [2]part{{Joy, 0.5}, {Surprise, 0.5}}},
}

// DeriveSecondary computes every secondary emotion from the primaries.
// The output order is fixed.
func DeriveSecondary(s State) []Derived {
	out := make([]Derived, len(secondaries))
	for i, b := range secondaries {
		v := b.parts[0].weight*s.Get(b.parts[0].emotion) + b.parts[1].weight*s.Get(b.parts[1].emotion)
		out[i] = Derived{Name: b.name, Level: v, Active: v > 0}
	}
	return out
}

// TertiaryContext carries the interaction facts tertiary emotions depend on.
type TertiaryContext struct {
	PositiveStreak   int     `json:"positive_streak"`
	NegativeStreak   int     `json:"negative_streak"`
	IdleHours        float64 `json:"idle_hours"`
	RecalledMemories int     `json:"recalled_memories"`
}

type tertiary struct {
	name   string
	parts  []secondaryPart
	active func(TertiaryContext) bool
}

type secondaryPart struct {
	name   string
	weight float64
}

var tertiaries = []tertiary{
	{
		name:   "loyalty",
		parts:  []secondaryPart{{"love", 0.6}, {"hope", 0.4}},
		active: func(c TertiaryContext) bool { return c.PositiveStreak >= 3 },
	},
	{
		name:   "melancholy",
		parts:  []secondaryPart{{"despair", 0.5}, {"disappointment", 0.5}},
		active: func(c TertiaryContext) bool { return c.IdleHours >= 1 },
	},
	{
		name:   "nostalgia",
		parts:  []secondaryPart{{"love", 0.5}, {"disappointment", 0.5}},
		active: func(c TertiaryContext) bool { return c.RecalledMemories > 0 },
	},
	{
		name:   "gratitude",
		parts:  []secondaryPart{{"love", 0.5}, {"optimism", 0.5}},
		active: func(c TertiaryContext) bool { return c.PositiveStreak >= 1 },
	},
	{
		name:   "resentment",
		parts:  []secondaryPart{{"contempt", 0.5}, {"envy", 0.5}},
		active: func(c TertiaryContext) bool { return c.NegativeStreak >= 2 },
	},
}

// DeriveTertiary computes the complex emotions. An emotion whose context
// predicate does not hold is reported inactive with level 0.
func DeriveTertiary(s State, ctx TertiaryContext) []Derived {
	sec := make(map[string]float64, len(secondaries))
	for _, d := range DeriveSecondary(s) {
		sec[d.Name] = d.Level
	}

	out := make([]Derived, len(tertiaries))
	for i, t := range tertiaries {
		out[i] = Derived{Name: t.name}
		if !t.active(ctx) {
			continue
		}
		var v float64
		for _, p := range t.parts {
			v += p.weight * sec[p.name]
		}
		out[i].Level = v
		out[i].Active = v > 0
	}
	return out
}

// Lookup finds a derived value by name.
func Lookup(ds []Derived, name string) (Derived, bool) {
	for _, d := range ds {
		if d.Name == name {
			return d, true
		}
	}
	return Derived{}, false
}

// Dominant returns the strongest primary. Ties go to the earlier emotion in
// Primaries; an all-zero state is Neutral.
func Dominant(s State) (Emotion, float64) {
	best, bestVal := Neutral, 0.0
	for _, e := range Primaries {
		if v := s.Get(e); v > bestVal {
			best, bestVal = e, v
		}
	}
	return best, bestVal
}
