package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	older = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer = older.Add(time.Minute)
)

func TestWeightedBlend(t *testing.T) {
	s := WeightedBlend{Weight: 0.6}
	got := s.Resolve(Value{Level: 1.0, At: older}, Value{Level: 0.0, At: newer})

	assert.InDelta(t, 0.6, got.Level, 1e-12)
	assert.Equal(t, newer, got.At)
}

func TestRecencyPriority(t *testing.T) {
	s := RecencyPriority{}

	assert.Equal(t, 0.2, s.Resolve(Value{Level: 0.9, At: older}, Value{Level: 0.2, At: newer}).Level)
	assert.Equal(t, 0.9, s.Resolve(Value{Level: 0.9, At: newer}, Value{Level: 0.2, At: older}).Level)
	assert.Equal(t, 0.2, s.Resolve(Value{Level: 0.9, At: older}, Value{Level: 0.2, At: older}).Level, "ties go to incoming")
}

func TestGradualAlignment(t *testing.T) {
	s := GradualAlignment{Step: 0.05}

	up := s.Resolve(Value{Level: 0.5}, Value{Level: 0.9})
	assert.InDelta(t, 0.55, up.Level, 1e-12)

	down := s.Resolve(Value{Level: 0.5}, Value{Level: 0.1})
	assert.InDelta(t, 0.45, down.Level, 1e-12)

	snap := s.Resolve(Value{Level: 0.5}, Value{Level: 0.52})
	assert.Equal(t, 0.52, snap.Level)
}

func TestGradualAlignment_ConvergesWithoutOvershoot(t *testing.T) {
	s := GradualAlignment{Step: 0.03}
	v := Value{Level: 0}
	for i := 0; i < 100; i++ {
		v = s.Resolve(v, Value{Level: 0.7})
		assert.LessOrEqual(t, v.Level, 0.7)
	}
	assert.Equal(t, 0.7, v.Level)
}

func TestResolveConfig(t *testing.T) {
	cfg := DefaultResolveConfig()
	require.NoError(t, cfg.Validate())

	s, err := cfg.Strategy(cfg.EmotionCognition)
	require.NoError(t, err)
	assert.Equal(t, WeightedBlend{Weight: 0.6}, s)

	assert.Equal(t, GradualAlignment{Step: 0.01}, cfg.Must(cfg.PersonalityTraits))
	assert.Equal(t, RecencyPriority{}, cfg.Must("bogus"))

	cfg.MemoryDuplicates = "coin_flip"
	assert.Error(t, cfg.Validate())

	cfg = DefaultResolveConfig()
	cfg.BlendWeight = 1.2
	assert.Error(t, cfg.Validate())
}
