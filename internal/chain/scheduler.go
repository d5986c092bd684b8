package chain

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/normanking/limbic/internal/dispatch"
)

// Scheduler is the ActionChainScheduler. It is not safe for concurrent use;
// the engine's loop goroutine owns it.
type Scheduler struct {
	cfg  Config
	exec Executor
	sink dispatch.Sink
	log  zerolog.Logger

	live    []*Chain
	lastEnd map[Type]time.Time
}

// Snapshot is the persistable scheduler state.
type Snapshot struct {
	Live      []Chain            `json:"live,omitempty"`
	Cooldowns map[Type]time.Time `json:"cooldowns,omitempty"`
}

// NewScheduler creates a scheduler with no live chains. sink may be nil.
func NewScheduler(cfg Config, exec Executor, sink dispatch.Sink, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		exec:    exec,
		sink:    sink,
		log:     log.With().Str("component", "chain").Logger(),
		lastEnd: make(map[Type]time.Time),
	}
}

// SetConfig swaps definitions and limits. Live chains keep their steps.
func (s *Scheduler) SetConfig(cfg Config) { s.cfg = cfg }

// Evaluate triggers every idle type whose motivation exceeds its threshold
// and whose cooldown has elapsed, in definition order, until MaxActive
// chains are live. It returns the newly triggered chains.
func (s *Scheduler) Evaluate(ctx context.Context, sig Signals, now time.Time) []Chain {
	var started []Chain
	for _, d := range s.cfg.Definitions {
		if len(s.live) >= s.cfg.MaxActive {
			break
		}
		if s.liveOf(d.Type) != nil || !s.cooledDown(d, now) {
			continue
		}
		m := s.cfg.Motivation(d, sig)
		if m <= d.Threshold {
			continue
		}
		c := s.start(ctx, d, m, now)
		started = append(started, c.clone())
	}
	return started
}

// Trigger starts a chain of type t regardless of threshold and cooldown.
func (s *Scheduler) Trigger(ctx context.Context, t Type, sig Signals, now time.Time) (Chain, error) {
	d, err := s.cfg.Definition(t)
	if err != nil {
		return Chain{}, err
	}
	if s.liveOf(t) != nil {
		return Chain{}, ErrAlreadyActive
	}
	c := s.start(ctx, d, s.cfg.Motivation(d, sig), now)
	return c.clone(), nil
}

// Step advances every live chain by one step and returns their states after
// the step. Ended chains are removed and their type's cooldown restarts.
func (s *Scheduler) Step(ctx context.Context, now time.Time) []Chain {
	if len(s.live) == 0 {
		return nil
	}
	out := make([]Chain, 0, len(s.live))
	for _, c := range s.live {
		s.advance(ctx, c, now)
		out = append(out, c.clone())
	}
	s.reap(now)
	return out
}

// Interrupt aborts every live chain.
func (s *Scheduler) Interrupt(ctx context.Context, now time.Time) []Chain {
	out := make([]Chain, 0, len(s.live))
	for _, c := range s.live {
		s.abort(ctx, c, ReasonInterrupt, now)
		out = append(out, c.clone())
	}
	s.reap(now)
	return out
}

// Live returns copies of the live chains.
func (s *Scheduler) Live() []Chain {
	out := make([]Chain, len(s.live))
	for i, c := range s.live {
		out[i] = c.clone()
	}
	return out
}

// CooldownRemaining returns how long until t may trigger again.
func (s *Scheduler) CooldownRemaining(t Type, now time.Time) time.Duration {
	d, err := s.cfg.Definition(t)
	if err != nil {
		return 0
	}
	last, ok := s.lastEnd[t]
	if !ok {
		return 0
	}
	if left := last.Add(d.Cooldown).Sub(now); left > 0 {
		return left
	}
	return 0
}

// Export returns the persistable state.
func (s *Scheduler) Export() Snapshot {
	snap := Snapshot{Live: s.Live(), Cooldowns: make(map[Type]time.Time, len(s.lastEnd))}
	for t, at := range s.lastEnd {
		snap.Cooldowns[t] = at
	}
	return snap
}

// Restore replaces the scheduler state. Live chains of unknown types, ended
// chains and chains whose step index is out of range are dropped. When more
// than MaxActive remain, the earliest triggered are kept.
func (s *Scheduler) Restore(snap Snapshot) {
	s.live = s.live[:0]
	s.lastEnd = make(map[Type]time.Time, len(snap.Cooldowns))
	for t, at := range snap.Cooldowns {
		s.lastEnd[t] = at
	}
	for _, c := range snap.Live {
		reason := ""
		switch _, err := s.cfg.Definition(c.Type); {
		case err != nil:
			reason = "unknown type"
		case c.State.Ended():
			reason = "ended"
		case c.StepIndex < 0 || c.StepIndex >= len(c.Steps):
			reason = "step index out of range"
		case s.liveOf(c.Type) != nil:
			reason = "duplicate type"
		}
		if reason != "" {
			s.log.Warn().Str("chain_id", c.ID).Str("type", string(c.Type)).Str("reason", reason).Msg("dropping unrestorable chain")
			continue
		}
		cp := c.clone()
		s.live = append(s.live, &cp)
	}
	sort.SliceStable(s.live, func(i, j int) bool { return s.live[i].TriggeredAt.Before(s.live[j].TriggeredAt) })

	if n := len(s.live); n > s.cfg.MaxActive {
		for _, c := range s.live[s.cfg.MaxActive:] {
			s.log.Warn().Str("chain_id", c.ID).Str("type", string(c.Type)).Str("reason", "max active").Msg("dropping unrestorable chain")
		}
		s.live = s.live[:s.cfg.MaxActive]
	}
}

func (s *Scheduler) start(ctx context.Context, d Definition, motivation float64, now time.Time) *Chain {
	c := &Chain{
		ID:          uuid.NewString(),
		Type:        d.Type,
		Steps:       append([]string(nil), d.Steps...),
		Abort:       s.cfg.Abort,
		State:       Triggered,
		Motivation:  motivation,
		TriggeredAt: now,
		UpdatedAt:   now,
	}
	s.live = append(s.live, c)
	s.log.Info().Str("chain_id", c.ID).Str("type", string(c.Type)).Float64("motivation", motivation).Msg("chain triggered")
	s.publish(ctx, c, now)
	return c
}

func (s *Scheduler) advance(ctx context.Context, c *Chain, now time.Time) {
	c.State = InProgress
	task := Task{
		ChainID:    c.ID,
		Type:       c.Type,
		Step:       c.CurrentStep(),
		StepIndex:  c.StepIndex,
		TotalSteps: len(c.Steps),
		Motivation: c.Motivation,
	}

	out, err := s.exec.Execute(ctx, task)
	if err != nil {
		s.log.Warn().Err(err).Str("chain_id", c.ID).Str("step", task.Step).Msg("chain step failed")
		s.abort(ctx, c, ReasonExecutorError, now)
		return
	}

	c.Confidence = append(c.Confidence, out.Confidence)
	c.ResourceUsage += out.Cost
	c.UpdatedAt = now

	switch {
	case out.Confidence < c.Abort.LowConfidence:
		s.abort(ctx, c, ReasonLowConfidence, now)
	case c.ResourceUsage > c.Abort.ResourceExhaustion:
		s.abort(ctx, c, ReasonResourceExhaustion, now)
	default:
		c.StepIndex++
		if c.StepIndex >= len(c.Steps) {
			c.State = Completed
			s.log.Info().Str("chain_id", c.ID).Str("type", string(c.Type)).Msg("chain completed")
		}
		s.publish(ctx, c, now)
	}
}

func (s *Scheduler) abort(ctx context.Context, c *Chain, reason string, now time.Time) {
	c.State = Aborted
	c.Reason = reason
	c.UpdatedAt = now
	s.log.Info().
		Str("chain_id", c.ID).
		Str("type", string(c.Type)).
		Str("reason", reason).
		Int("step_index", c.StepIndex).
		Float64("resource_usage", c.ResourceUsage).
		Msg("chain aborted")
	s.publish(ctx, c, now)
}

func (s *Scheduler) reap(now time.Time) {
	kept := s.live[:0]
	for _, c := range s.live {
		if c.State.Ended() {
			s.lastEnd[c.Type] = now
			continue
		}
		kept = append(kept, c)
	}
	for i := len(kept); i < len(s.live); i++ {
		s.live[i] = nil
	}
	s.live = kept
}

func (s *Scheduler) liveOf(t Type) *Chain {
	for _, c := range s.live {
		if c.Type == t {
			return c
		}
	}
	return nil
}

func (s *Scheduler) cooledDown(d Definition, now time.Time) bool {
	last, ok := s.lastEnd[d.Type]
	return !ok || now.Sub(last) >= d.Cooldown
}

func (s *Scheduler) publish(ctx context.Context, c *Chain, now time.Time) {
	if s.sink == nil {
		return
	}
	d := dispatch.Descriptor{
		ChainID:    c.ID,
		Type:       string(c.Type),
		State:      string(c.State),
		Step:       c.CurrentStep(),
		StepIndex:  c.StepIndex,
		TotalSteps: len(c.Steps),
		Motivation: c.Motivation,
		Reason:     c.Reason,
		At:         now,
	}
	if err := s.sink.Publish(ctx, d); err != nil {
		s.log.Warn().Err(err).Str("chain_id", c.ID).Msg("publishing chain descriptor failed")
	}
}
