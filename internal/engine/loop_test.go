package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/limbic/internal/bus"
	"github.com/normanking/limbic/internal/chain"
	"github.com/normanking/limbic/internal/emotion"
	"github.com/normanking/limbic/internal/memory"
	"github.com/normanking/limbic/internal/persistence"
	"github.com/normanking/limbic/internal/stimulus"
)

func quietLoopConfig() Config {
	cfg := DefaultConfig()
	cfg.Loop.TickInterval = time.Hour
	return cfg
}

func newSnapshotManager(t *testing.T) *persistence.Manager {
	t.Helper()
	cfg := persistence.DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "snapshot.json")
	return persistence.NewManager(cfg, zerolog.Nop())
}

func TestRun_ProcessesInputsAndSavesOnShutdown(t *testing.T) {
	e := newTestEngineWithConfig(t, quietLoopConfig())
	snaps := newSnapshotManager(t)
	inputs := make(chan Input)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- e.Run(ctx, Loop{Inputs: inputs, Snapshots: snaps, Now: func() time.Time { return t0 }})
	}()

	stim := joyStimulus(t0)
	inputs <- Input{Kind: InputStimulus, Stimulus: &stim}
	inputs <- Input{Kind: InputTick, At: t0.Add(time.Minute)}
	close(inputs)
	cancel()
	require.NoError(t, <-done)

	snap, mode, err := snaps.Load()
	require.NoError(t, err)
	assert.Equal(t, persistence.WarmStart, mode)
	assert.Equal(t, 1, snap.Memory.Count)
	assert.Greater(t, snap.Emotion.Get(emotion.Joy), 0.0)

	var saved bool
	for _, ev := range e.Bus().History() {
		if ev.Type == bus.EventSnapshotSaved {
			saved = true
		}
	}
	assert.True(t, saved)
}

func TestRun_AppliesReloadedConfig(t *testing.T) {
	e := newTestEngineWithConfig(t, quietLoopConfig())
	reload := make(chan Config)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx, Loop{Reload: reload}) }()

	next := quietLoopConfig()
	next.Boredom.BaseGrowthRate = 0.1
	reload <- next
	bad := quietLoopConfig()
	bad.Loop.StepCost = -1
	reload <- bad
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, 0.1, e.Config().Boredom.BaseGrowthRate)
	assert.Equal(t, 0.15, e.Config().Loop.StepCost)
}

func TestRun_RejectsBadDecaySchedule(t *testing.T) {
	cfg := quietLoopConfig()
	cfg.Memory.DecaySchedule = "whenever"
	e := newTestEngineWithConfig(t, cfg)

	err := e.Run(context.Background(), Loop{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "whenever")
}

func TestHandle(t *testing.T) {
	ctx := context.Background()

	t.Run("activity uses the fallback time", func(t *testing.T) {
		e := newTestEngine(t)
		require.NoError(t, e.Handle(ctx, Input{Kind: InputTick}, t0.Add(2*time.Hour)))
		require.NoError(t, e.Handle(ctx, Input{
			Kind:     InputActivity,
			Activity: &stimulus.Activity{Type: stimulus.ActivityThinking, Intensity: 1},
		}, t0.Add(2*time.Hour)))

		assert.InDelta(t, 0.12, e.Modifiers(t0.Add(2*time.Hour)).Boredom, 1e-12)
	})

	t.Run("cognition", func(t *testing.T) {
		e := newTestEngine(t)
		require.NoError(t, e.Handle(ctx, Input{Kind: InputCognition, Cognition: 1.4}, t0))

		require.NotNil(t, e.cognition)
		assert.Equal(t, 1.0, e.cognition.Level)
	})

	t.Run("interrupt", func(t *testing.T) {
		e := newTestEngine(t)
		require.NoError(t, e.Handle(ctx, Input{Kind: InputInterrupt, At: t0}, t0))
	})

	t.Run("trigger", func(t *testing.T) {
		e := newTestEngine(t)
		require.NoError(t, e.Handle(ctx, Input{Kind: InputTrigger, Chain: chain.Organizing}, t0))

		live := e.Modifiers(t0).Chains
		require.Len(t, live, 1)
		assert.Equal(t, chain.Organizing, live[0].Type)
		assert.ErrorIs(t, e.Handle(ctx, Input{Kind: InputTrigger, Chain: chain.Organizing}, t0), chain.ErrAlreadyActive)
	})

	t.Run("recall", func(t *testing.T) {
		e := newTestEngine(t)
		require.NoError(t, e.Handle(ctx, Input{Kind: InputStimulus, Stimulus: &stimulus.Stimulus{
			TextLength:    500,
			SentimentTags: []string{"joy"},
			Content:       "we shipped the release",
		}}, t0))
		require.NoError(t, e.Handle(ctx, Input{Kind: InputRecall, Query: &memory.Query{Text: "shipped the release"}}, t0))

		var recalled []memory.Scored
		for _, ev := range e.Bus().History() {
			if ev.Type == bus.EventMemoryRecalled {
				recalled, _ = ev.Payload.([]memory.Scored)
			}
		}
		require.NotEmpty(t, recalled)
		assert.Equal(t, "we shipped the release", recalled[0].Record.Content)
	})

	t.Run("missing payload", func(t *testing.T) {
		e := newTestEngine(t)
		assert.ErrorIs(t, e.Handle(ctx, Input{Kind: InputStimulus}, t0), ErrUnknownInput)
		assert.ErrorIs(t, e.Handle(ctx, Input{Kind: InputActivity}, t0), ErrUnknownInput)
		assert.ErrorIs(t, e.Handle(ctx, Input{Kind: InputTrigger}, t0), ErrUnknownInput)
		assert.ErrorIs(t, e.Handle(ctx, Input{Kind: InputRecall}, t0), ErrUnknownInput)
	})

	t.Run("unknown kind", func(t *testing.T) {
		e := newTestEngine(t)
		assert.ErrorIs(t, e.Handle(ctx, Input{Kind: "telepathy"}, t0), ErrUnknownInput)
	})
}
