package engine

import (
	"context"
	"time"

	"github.com/normanking/limbic/internal/bus"
	"github.com/normanking/limbic/internal/persistence"
	"github.com/normanking/limbic/internal/personality"
)

// Export brings emotion decay and boredom growth up to now through the bus,
// then captures the full state. Restoring the result at the same instant
// reproduces it exactly.
func (e *Engine) Export(ctx context.Context, now time.Time) persistence.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	now = e.clamp(now)
	if err := e.dispatch(ctx, bus.EventSettle, &Context{Now: now}, nil); err != nil {
		e.log.Warn().Err(err).Msg("settle before snapshot")
	}

	snap := persistence.New(now)
	snap.Emotion = e.emotion.State()
	snap.Boredom = e.boredom.State()
	snap.Memory = persistence.MemorySnapshot{
		Path:      e.cfg.Memory.Path,
		Count:     e.memory.Len(),
		LastDecay: e.memory.LastDecay(),
	}
	if !e.memory.Persistent() {
		snap.Memory.Records = e.memory.Records()
	}
	snap.Chains = e.chains.Export()
	snap.Personality = e.personality.Traits()
	snap.Context = persistence.ContextSnapshot{
		PositiveStreak: e.positiveStreak,
		NegativeStreak: e.negativeStreak,
		Cognition:      e.cognition,
		LastStimulus:   e.lastStimulus,
	}
	return snap
}

// Restore loads snap and corrects for the time spent offline: emotions decay
// to now, boredom grows for the idle gap and memory retention decays.
func (e *Engine) Restore(ctx context.Context, snap persistence.Snapshot, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.emotion.Restore(snap.Emotion, snap.SavedAt)
	e.boredom.Restore(snap.Boredom)

	if !e.memory.Persistent() && len(snap.Memory.Records) > 0 {
		e.memory.Import(snap.Memory.Records, snap.Memory.LastDecay)
	} else if !snap.Memory.LastDecay.IsZero() {
		e.memory.SetLastDecay(snap.Memory.LastDecay)
	}

	e.chains.Restore(snap.Chains)
	if snap.Personality != (personality.Traits{}) {
		e.personality.Restore(snap.Personality, snap.SavedAt)
	}

	e.positiveStreak = snap.Context.PositiveStreak
	e.negativeStreak = snap.Context.NegativeStreak
	e.cognition = snap.Context.Cognition
	e.lastStimulus = snap.Context.LastStimulus

	if now.Before(snap.SavedAt) {
		now = snap.SavedAt
	}
	e.now = now
	e.emotion.Decay(now)
	_, crossings := e.boredom.Tick(now)
	decayed, forgotten := e.memory.DecayPass(ctx, now)

	e.log.Info().
		Dur("offline", now.Sub(snap.SavedAt)).
		Float64("boredom", e.boredom.Level()).
		Int("crossings", len(crossings)).
		Int("memories_decayed", decayed).
		Int("memories_forgotten", forgotten).
		Int("live_chains", len(e.chains.Live())).
		Msg("warm start")
	e.observe()
}
