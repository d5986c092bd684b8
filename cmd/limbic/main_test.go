package main

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/limbic/internal/bus"
	"github.com/normanking/limbic/internal/emotion"
	"github.com/normanking/limbic/internal/engine"
	"github.com/normanking/limbic/internal/stimulus"
)

func TestReadInputs_SkipsMalformedLines(t *testing.T) {
	log = zerolog.Nop()
	r := strings.NewReader(`{"kind":"stimulus","stimulus":{"text_length":10,"sentiment_tags":["joy"]}}
not json

{"kind":"cognition","cognition":0.4}
`)

	var got []engine.Input
	for in := range readInputs(context.Background(), r) {
		got = append(got, in)
	}

	require.Len(t, got, 2)
	assert.Equal(t, engine.InputStimulus, got[0].Kind)
	require.NotNil(t, got[0].Stimulus)
	assert.Equal(t, []string{"joy"}, got[0].Stimulus.SentimentTags)
	assert.Equal(t, engine.InputCognition, got[1].Kind)
	assert.Equal(t, 0.4, got[1].Cognition)
}

func TestReadInputs_StopsOnCancel(t *testing.T) {
	log = zerolog.Nop()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	in := readInputs(ctx, strings.NewReader(`{"kind":"tick"}`+"\n"+`{"kind":"tick"}`+"\n"))

	for range in {
	}
}

func TestRenderStatus(t *testing.T) {
	out := renderStatus(engine.Modifiers{
		Dominant:   emotion.Joy,
		Intensity:  0.42,
		Emotions:   map[emotion.Emotion]float64{emotion.Joy: 0.42, emotion.Trust: 0.1},
		Mood:       emotion.Mood{Label: "content"},
		Boredom:    0.75,
		Suggestion: "reflection",
		Memories:   3,
		Secondary:  []emotion.Derived{{Name: "love", Level: 0.3, Active: true}},
		Chains:     []engine.ChainStatus{{Type: "organizing", State: "in_progress", Step: "prune"}},
	})

	for _, want := range []string{"joy", "0.42", "content", "boredom", "reflection", "love", "organizing", "prune"} {
		assert.Contains(t, out, want)
	}
}

func TestStimulusFlags(t *testing.T) {
	cmd := stimulusCmd()
	require.NoError(t, cmd.Flags().Parse([]string{"--tags", "joy,compliment", "--length", "300", "--activity", "thinking"}))

	tags, err := cmd.Flags().GetStringSlice("tags")
	require.NoError(t, err)
	assert.Equal(t, []string{"joy", "compliment"}, tags)
	activity, err := cmd.Flags().GetString("activity")
	require.NoError(t, err)
	assert.Equal(t, string(stimulus.ActivityThinking), activity)
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestEmitOutputs_WritesModifiersAndRecalls(t *testing.T) {
	log = zerolog.Nop()
	feed := bus.NewFeed(16)
	t.Cleanup(func() { _ = feed.Close() })

	var out lockedBuffer
	stop := emitOutputs(feed, &out)
	defer stop()

	now := time.Now()
	require.NoError(t, feed.Publish(bus.NewEvent(bus.EventModifiers, now, engine.Modifiers{Dominant: emotion.Joy})))
	require.NoError(t, feed.Publish(bus.NewEvent(bus.EventChainStep, now, nil)))
	require.NoError(t, feed.Publish(bus.NewEvent(bus.EventMemoryRecalled, now, nil)))

	assert.Eventually(t, func() bool {
		return strings.Count(out.String(), "\n") == 2
	}, time.Second, 10*time.Millisecond)
	assert.Contains(t, out.String(), `"type":"modifiers"`)
	assert.Contains(t, out.String(), `"type":"memory_recalled"`)
	assert.NotContains(t, out.String(), "chain_step")
}
