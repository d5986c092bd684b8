package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/normanking/limbic/internal/bus"
	"github.com/normanking/limbic/internal/chain"
	"github.com/normanking/limbic/internal/memory"
	"github.com/normanking/limbic/internal/metrics"
	"github.com/normanking/limbic/internal/persistence"
	"github.com/normanking/limbic/internal/stimulus"
)

// InputKind names a loop input.
type InputKind string

const (
	InputStimulus  InputKind = "stimulus"
	InputActivity  InputKind = "activity"
	InputInterrupt InputKind = "interrupt"
	InputCognition InputKind = "cognition"
	InputTick      InputKind = "tick"
	InputTrigger   InputKind = "trigger"
	InputRecall    InputKind = "recall"
)

// Input is one message for the loop. Exactly the field matching Kind is read.
type Input struct {
	Kind      InputKind          `json:"kind"`
	Stimulus  *stimulus.Stimulus `json:"stimulus,omitempty"`
	Activity  *stimulus.Activity `json:"activity,omitempty"`
	Cognition float64            `json:"cognition,omitempty"`
	Chain     chain.Type         `json:"chain,omitempty"`
	Query     *memory.Query      `json:"query,omitempty"`
	K         int                `json:"k,omitempty"`
	At        time.Time          `json:"at,omitempty"`
}

// Loop wires Run to the outside world. Only Inputs is required.
type Loop struct {
	Inputs <-chan Input

	// Reload delivers new tunables, applied between events.
	Reload <-chan Config

	// Snapshots, when set, is saved every SnapshotInterval and on shutdown.
	Snapshots        *persistence.Manager
	SnapshotInterval time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

// Run processes inputs, ticks and scheduled jobs on a single goroutine until
// ctx is done. A final snapshot is written on the way out.
func (e *Engine) Run(ctx context.Context, l Loop) error {
	if l.Now == nil {
		l.Now = time.Now
	}

	ticker := time.NewTicker(e.cfg.Loop.TickInterval)
	defer ticker.Stop()

	var snapC <-chan time.Time
	if l.Snapshots != nil && l.SnapshotInterval > 0 {
		snapTicker := time.NewTicker(l.SnapshotInterval)
		defer snapTicker.Stop()
		snapC = snapTicker.C
	}

	maintenance := make(chan struct{}, 1)
	sched := cron.New()
	if _, err := sched.AddFunc(e.cfg.Memory.DecaySchedule, func() {
		select {
		case maintenance <- struct{}{}:
		default:
		}
	}); err != nil {
		return fmt.Errorf("schedule memory decay %q: %w", e.cfg.Memory.DecaySchedule, err)
	}
	sched.Start()
	defer sched.Stop()

	e.log.Info().
		Dur("tick", e.cfg.Loop.TickInterval).
		Dur("snapshot_interval", l.SnapshotInterval).
		Str("decay_schedule", e.cfg.Memory.DecaySchedule).
		Msg("engine loop started")

	inputs := l.Inputs
	for {
		select {
		case <-ctx.Done():
			if l.Snapshots != nil {
				e.snapshot(ctx, l.Snapshots, l.Now())
			}
			e.log.Info().Msg("engine loop stopped")
			return nil

		case in, ok := <-inputs:
			if !ok {
				inputs = nil
				continue
			}
			if err := e.Handle(ctx, in, l.Now()); err != nil {
				e.log.Warn().Err(err).Str("kind", string(in.Kind)).Msg("input failed")
			}

		case <-ticker.C:
			if err := e.Tick(ctx, l.Now()); err != nil {
				e.log.Warn().Err(err).Msg("tick failed")
			}

		case <-maintenance:
			if err := e.Maintain(ctx, l.Now()); err != nil {
				e.log.Warn().Err(err).Msg("memory maintenance failed")
			}

		case <-snapC:
			e.snapshot(ctx, l.Snapshots, l.Now())

		case cfg := <-l.Reload:
			if err := e.Reconfigure(cfg); err != nil {
				e.log.Warn().Err(err).Msg("rejected reloaded configuration")
			}
		}
	}
}

// ErrUnknownInput is returned by Handle for an unrecognized kind.
var ErrUnknownInput = errors.New("engine: unknown input kind")

// Handle applies one input. now stands in for a missing timestamp.
func (e *Engine) Handle(ctx context.Context, in Input, now time.Time) error {
	at := in.At
	if at.IsZero() {
		at = now
	}
	switch in.Kind {
	case InputStimulus:
		if in.Stimulus == nil {
			return fmt.Errorf("%w: stimulus without payload", ErrUnknownInput)
		}
		stim := *in.Stimulus
		if stim.Timestamp.IsZero() {
			stim.Timestamp = at
		}
		_, err := e.Apply(ctx, stim)
		return err
	case InputActivity:
		if in.Activity == nil {
			return fmt.Errorf("%w: activity without payload", ErrUnknownInput)
		}
		a := *in.Activity
		if a.Timestamp.IsZero() {
			a.Timestamp = at
		}
		return e.RecordActivity(ctx, a)
	case InputInterrupt:
		return e.Interrupt(ctx, at)
	case InputCognition:
		return e.SetCognition(ctx, in.Cognition, at)
	case InputTick:
		return e.Tick(ctx, at)
	case InputTrigger:
		if in.Chain == "" {
			return fmt.Errorf("%w: trigger without chain type", ErrUnknownInput)
		}
		_, err := e.StartChain(ctx, in.Chain, at)
		return err
	case InputRecall:
		if in.Query == nil {
			return fmt.Errorf("%w: recall without query", ErrUnknownInput)
		}
		e.Recall(ctx, *in.Query, in.K, at)
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownInput, in.Kind)
}

// snapshot saves the current state, bounded by the manager's timeout. A
// skipped or timed-out write is logged and retried next interval.
func (e *Engine) snapshot(ctx context.Context, m *persistence.Manager, now time.Time) {
	start := time.Now()
	err := m.Save(ctx, e.Export(ctx, now))
	metrics.SnapshotDuration.Observe(time.Since(start).Seconds())

	ev := bus.NewEvent(bus.EventSnapshotSaved, now, m.Path())
	ev.Source = "persistence"
	switch {
	case err == nil:
		metrics.SnapshotResults.WithLabelValues("saved").Inc()
	case errors.Is(err, persistence.ErrSnapshotBusy), errors.Is(err, persistence.ErrSnapshotTimeout):
		metrics.SnapshotResults.WithLabelValues("skipped").Inc()
		ev.Type = bus.EventSnapshotSkipped
		ev.Error = err.Error()
	default:
		metrics.SnapshotResults.WithLabelValues("failed").Inc()
		ev.Type = bus.EventSnapshotSkipped
		ev.Error = err.Error()
		e.log.Error().Err(err).Msg("snapshot failed")
	}
	_ = e.bus.Publish(ev)
}

// Snapshot saves the state now. One-shot commands use it before exiting.
func (e *Engine) Snapshot(ctx context.Context, m *persistence.Manager, now time.Time) error {
	return m.Save(ctx, e.Export(ctx, now))
}
