package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/normanking/limbic/internal/emotion"
)

func TestObserveEmotions(t *testing.T) {
	s := emotion.State{Levels: map[emotion.Emotion]emotion.Level{
		emotion.Joy:  {Value: 0.4, UpdatedAt: time.Now()},
		emotion.Fear: {Value: 0.1, UpdatedAt: time.Now()},
	}}

	ObserveEmotions(s)

	assert.InDelta(t, 0.4, testutil.ToFloat64(EmotionLevel.WithLabelValues("joy")), 1e-12)
	assert.InDelta(t, 0.1, testutil.ToFloat64(EmotionLevel.WithLabelValues("fear")), 1e-12)
	assert.Zero(t, testutil.ToFloat64(EmotionLevel.WithLabelValues("anger")))
}

func TestResult(t *testing.T) {
	assert.Equal(t, "ok", Result(nil))
	assert.Equal(t, "error", Result(errors.New("x")))

	before := testutil.ToFloat64(MemoryOperations.WithLabelValues("store", Result(nil)))
	MemoryOperations.WithLabelValues("store", Result(nil)).Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(MemoryOperations.WithLabelValues("store", "ok")))
}
