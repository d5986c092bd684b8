package stimulus

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStimulus_Normalize(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := Stimulus{
		TextLength:    -20,
		SentimentTags: []string{"Joy", "joy", " trust ", ""},
		Entities:      []string{"go", "go", "coffee"},
	}

	changed := s.Normalize(now)

	assert.True(t, changed)
	assert.Equal(t, 0, s.TextLength)
	assert.Equal(t, []string{"joy", "trust"}, s.SentimentTags)
	assert.Equal(t, []string{"coffee", "go"}, s.Entities)
	assert.Equal(t, ActivityConversation, s.ActivityType)
	assert.Equal(t, now, s.Timestamp)
}

func TestStimulus_Engagement(t *testing.T) {
	assert.InDelta(t, 0.5, Stimulus{}.Engagement(), 1e-12)
	assert.InDelta(t, 0.75, Stimulus{TextLength: 500}.Engagement(), 1e-12)
	assert.InDelta(t, 1.0, Stimulus{TextLength: 5000}.Engagement(), 1e-12)
}

func TestActivity_Normalize(t *testing.T) {
	a := Activity{Type: ActivityCommand, Intensity: 1.7}
	assert.True(t, a.Normalize(time.Now()))
	assert.Equal(t, 1.0, a.Intensity)

	b := Activity{Type: ActivityCommand, Intensity: 0.4, Timestamp: time.Now()}
	assert.False(t, b.Normalize(time.Now()))
}

func TestClamp01(t *testing.T) {
	assert.Equal(t, 0.0, Clamp01(-1))
	assert.Equal(t, 1.0, Clamp01(2))
	assert.Equal(t, 0.3, Clamp01(0.3))
	assert.Equal(t, 0.0, Clamp01(math.NaN()))
}

func TestActivityType_Valid(t *testing.T) {
	assert.True(t, ActivityThinking.Valid())
	assert.False(t, ActivityType("dancing").Valid())
}
