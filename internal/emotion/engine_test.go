package emotion

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/limbic/internal/stimulus"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestEngine() *Engine {
	return NewEngine(DefaultConfig(), t0, zerolog.Nop())
}

func TestNewEngine_ColdStartIsZero(t *testing.T) {
	e := newTestEngine()
	s := e.State()

	assert.True(t, s.IsZero())
	assert.Len(t, s.Levels, len(Primaries))
	for _, em := range Primaries {
		assert.Equal(t, DefaultConfig().Params(em).DecayRate, s.Levels[em].DecayRate)
	}
}

func TestUpdate_IntensityFormula(t *testing.T) {
	e := newTestEngine()

	app := e.Update(stimulus.Stimulus{TextLength: 500, SentimentTags: []string{"joy"}}, t0, nil)

	// base 0.3 + length 0.5*0.2 + context 0 + memory 0 = 0.4; increment 0.2*0.4
	assert.InDelta(t, 0.4, app.Intensities[Joy], 1e-12)
	assert.InDelta(t, 0.08, e.State().Get(Joy), 1e-12)

	app = e.Update(stimulus.Stimulus{TextLength: 500, SentimentTags: []string{"joy"}}, t0, nil)

	// context factor now contributes 0.08*0.3
	assert.InDelta(t, 0.424, app.Intensities[Joy], 1e-12)
	assert.InDelta(t, 0.08+0.2*0.424, e.State().Get(Joy), 1e-12)
}

func TestUpdate_MemoryFactor(t *testing.T) {
	e := newTestEngine()

	app := e.Update(stimulus.Stimulus{SentimentTags: []string{"trust"}}, t0, map[Emotion]float64{Trust: 1})

	assert.InDelta(t, 0.55, app.Intensities[Trust], 1e-12)
	assert.InDelta(t, 0.15*0.55, e.State().Get(Trust), 1e-12)
}

func TestUpdate_IntensityClamped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseIntensity = 0.9
	e := NewEngine(cfg, t0, zerolog.Nop())

	app := e.Update(stimulus.Stimulus{TextLength: 5000, SentimentTags: []string{"fear"}}, t0, map[Emotion]float64{Fear: 1})

	assert.Equal(t, 1.0, app.Intensities[Fear])
}

func TestUpdate_UnknownTagIgnored(t *testing.T) {
	e := newTestEngine()

	app := e.Update(stimulus.Stimulus{SentimentTags: []string{"schadenfreude"}}, t0, nil)

	assert.Equal(t, []string{"schadenfreude"}, app.Ignored)
	assert.True(t, e.State().IsZero())
}

func TestUpdate_ReactionPattern(t *testing.T) {
	e := newTestEngine()

	app := e.Update(stimulus.Stimulus{SentimentTags: []string{"compliment"}}, t0, nil)

	assert.InDelta(t, 0.2*0.3, e.State().Get(Joy), 1e-12)
	assert.InDelta(t, 0.1*0.3, e.State().Get(Trust), 1e-12)
	assert.Greater(t, app.Valence(), 0.0)
}

func TestUpdate_NonTargetedDecay(t *testing.T) {
	e := newTestEngine()
	e.Update(stimulus.Stimulus{SentimentTags: []string{"fear"}}, t0, nil)
	before := e.State().Get(Fear)

	later := t0.Add(100 * time.Second)
	e.Update(stimulus.Stimulus{SentimentTags: []string{"surprise"}}, later, nil)

	want := before * math.Exp(-DefaultConfig().Fear.DecayRate*100)
	assert.InDelta(t, want, e.State().Get(Fear), 1e-12)
	assert.Equal(t, later, e.State().Levels[Fear].UpdatedAt)
}

func TestUpdate_OppositeDamping(t *testing.T) {
	e := newTestEngine()
	e.Update(stimulus.Stimulus{SentimentTags: []string{"sadness"}}, t0, nil)
	sad := e.State().Get(Sadness)

	app := e.Update(stimulus.Stimulus{SentimentTags: []string{"joy"}}, t0, nil)

	rise := app.Deltas[Joy]
	assert.InDelta(t, sad-0.3*rise, e.State().Get(Sadness), 1e-12)
	assert.InDelta(t, -0.3*rise, app.Deltas[Sadness], 1e-12)
}

func TestUpdate_NoDampingWhenBothTargeted(t *testing.T) {
	e := newTestEngine()

	e.Update(stimulus.Stimulus{SentimentTags: []string{"joy", "sadness"}}, t0, nil)

	assert.InDelta(t, 0.2*0.3, e.State().Get(Joy), 1e-12)
	assert.InDelta(t, 0.15*0.3, e.State().Get(Sadness), 1e-12)
}

func TestDecay_MonotonicTowardZero(t *testing.T) {
	e := newTestEngine()
	e.Update(stimulus.Stimulus{SentimentTags: []string{"joy", "anger", "trust"}}, t0, nil)

	prev := e.State()
	for i := 1; i <= 20; i++ {
		e.Decay(t0.Add(time.Duration(i) * time.Minute))
		cur := e.State()
		for _, em := range Primaries {
			if prev.Get(em) == 0 {
				assert.Equal(t, 0.0, cur.Get(em))
				continue
			}
			assert.Less(t, cur.Get(em), prev.Get(em), "emotion %s", em)
			assert.GreaterOrEqual(t, cur.Get(em), 0.0)
		}
		prev = cur
	}
}

func TestDecay_PathIndependent(t *testing.T) {
	a := newTestEngine()
	b := newTestEngine()
	stim := stimulus.Stimulus{SentimentTags: []string{"joy", "fear"}}
	a.Update(stim, t0, nil)
	b.Update(stim, t0, nil)

	a.Decay(t0.Add(time.Hour))
	for i := 1; i <= 60; i++ {
		b.Decay(t0.Add(time.Duration(i) * time.Minute))
	}

	for _, em := range Primaries {
		assert.InDelta(t, a.State().Get(em), b.State().Get(em), 1e-12)
	}
}

func TestDecay_ClockBackwardsIgnored(t *testing.T) {
	e := newTestEngine()
	e.Update(stimulus.Stimulus{SentimentTags: []string{"joy"}}, t0, nil)
	before := e.State()

	e.Decay(t0.Add(-time.Hour))

	assert.Equal(t, before, e.State())
}

func TestUpdate_BoundsHoldForRandomSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	tags := []string{"joy", "trust", "fear", "surprise", "sadness", "disgust", "anger", "anticipation", "compliment", "threat", "bogus"}
	e := newTestEngine()
	now := t0

	for i := 0; i < 2000; i++ {
		now = now.Add(time.Duration(rng.Intn(600)) * time.Second)
		stim := stimulus.Stimulus{
			TextLength:    rng.Intn(4000) - 500,
			SentimentTags: []string{tags[rng.Intn(len(tags))], tags[rng.Intn(len(tags))]},
		}
		related := map[Emotion]float64{Primaries[rng.Intn(len(Primaries))]: rng.Float64() * 2}
		e.Update(stim, now, related)

		for _, em := range Primaries {
			v := e.State().Get(em)
			require.GreaterOrEqual(t, v, 0.0)
			require.LessOrEqual(t, v, 1.0)
		}
	}
}

func TestRestore_ClampsAndFillsMissing(t *testing.T) {
	e := newTestEngine()
	e.Restore(State{Levels: map[Emotion]Level{
		Joy:   {Value: 1.7, DecayRate: 0.01, UpdatedAt: t0},
		Anger: {Value: -0.2, UpdatedAt: t0},
	}}, t0)

	s := e.State()
	assert.Equal(t, 1.0, s.Get(Joy))
	assert.Equal(t, 0.01, s.Levels[Joy].DecayRate)
	assert.Equal(t, 0.0, s.Get(Anger))
	assert.Equal(t, DefaultConfig().Anger.DecayRate, s.Levels[Anger].DecayRate)
	assert.Len(t, s.Levels, len(Primaries))
}

func TestSetConfig_UpdatesDecayRates(t *testing.T) {
	e := newTestEngine()
	cfg := DefaultConfig()
	cfg.Joy.DecayRate = 0.5

	e.SetConfig(cfg)

	assert.Equal(t, 0.5, e.State().Levels[Joy].DecayRate)
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Fear.DecayRate = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.ContextWeight = 1.5
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Reactions = append(cfg.Reactions, Reaction{Tag: "x", Effects: []Effect{{Emotion: "glee", Increment: 0.1}}})
	assert.Error(t, cfg.Validate())
}
