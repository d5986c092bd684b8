// Package engine wires the emotion, boredom, memory, personality and chain
// engines to one event bus and exposes the cognitive state engine's API.
//
// All mutation goes through Engine methods, which dispatch an event through
// the bus. Handlers run in priority order and every handler for one event
// finishes before the next event starts. Engine methods are safe for
// concurrent use; handlers must not call them.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/limbic/internal/boredom"
	"github.com/normanking/limbic/internal/bus"
	"github.com/normanking/limbic/internal/chain"
	"github.com/normanking/limbic/internal/dispatch"
	"github.com/normanking/limbic/internal/emotion"
	"github.com/normanking/limbic/internal/memory"
	"github.com/normanking/limbic/internal/metrics"
	"github.com/normanking/limbic/internal/personality"
	"github.com/normanking/limbic/internal/stimulus"
)

// Engine is the cognitive state engine.
type Engine struct {
	// mu serializes entry points. It covers the logical clock, the
	// cross-event fields below and every sub-engine.
	mu sync.Mutex

	cfg Config
	log zerolog.Logger

	bus         *bus.Bus[*Context]
	emotion     *emotion.Engine
	boredom     *boredom.Engine
	memory      *memory.Index
	personality *personality.Engine
	chains      *chain.Scheduler

	sink          dispatch.Sink
	executor      chain.Executor
	backend       memory.Backend
	metacognition bus.Handler[*Context]
	blend         bus.Strategy

	// Cross-event state owned by the engine itself.
	positiveStreak int
	negativeStreak int
	recalled       int
	novelty        float64
	cognition      *bus.Value
	lastStimulus   time.Time
	now            time.Time

	errSub bus.SubscriptionID
}

// Option configures an Engine.
type Option func(*Engine)

// WithSink sends chain task descriptors to s.
func WithSink(s dispatch.Sink) Option { return func(e *Engine) { e.sink = s } }

// WithExecutor delegates non-built-in chain steps to x.
func WithExecutor(x chain.Executor) Option { return func(e *Engine) { e.executor = x } }

// WithMemoryBackend overrides the backend chosen from Config.Memory.Path.
func WithMemoryBackend(b memory.Backend) Option { return func(e *Engine) { e.backend = b } }

// WithMetacognition replaces the built-in metacognition handler. h should
// report bus.PriorityMetacognition.
func WithMetacognition(h bus.Handler[*Context]) Option {
	return func(e *Engine) { e.metacognition = h }
}

// New builds an engine in the cold-start state at now. When
// Config.Memory.Path is set the memory index is opened on SQLite and loaded.
func New(ctx context.Context, cfg Config, now time.Time, log zerolog.Logger, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg: cfg,
		log: log.With().Str("component", "engine").Logger(),
		now: now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.sink == nil {
		e.sink = dispatch.NewLogSink(log)
	}
	if e.backend == nil && cfg.Memory.Path != "" {
		be, err := memory.OpenSQLite(cfg.Memory.Path)
		if err != nil {
			return nil, fmt.Errorf("open memory store: %w", err)
		}
		e.backend = be
	}

	e.bus = bus.NewWithConfig[*Context](log, cfg.Loop.HistorySize)
	e.emotion = emotion.NewEngine(cfg.Emotion, now, log)
	e.boredom = boredom.NewEngine(cfg.Boredom, now, log)
	e.personality = personality.NewEngine(cfg.Personality, cfg.Resolve.Must(cfg.Resolve.PersonalityTraits), now, log)
	e.blend = cfg.Resolve.Must(cfg.Resolve.EmotionCognition)

	memOpts := []memory.Option{memory.WithDuplicateStrategy(cfg.Resolve.Must(cfg.Resolve.MemoryDuplicates))}
	if e.backend != nil {
		memOpts = append(memOpts, memory.WithBackend(e.backend))
	}
	e.memory = memory.NewIndex(cfg.Memory, now, log, memOpts...)
	if err := e.memory.Load(ctx); err != nil {
		e.log.Warn().Err(err).Msg("memory store unavailable, starting empty")
	}

	e.chains = chain.NewScheduler(cfg.Chain, &localExecutor{engine: e, next: e.executor}, e.sink, log)
	e.registerHandlers()

	e.errSub = e.bus.Subscribe(bus.EventHandlerError, func(ev bus.Event) {
		metrics.HandlerErrors.WithLabelValues(ev.Source).Inc()
	})

	e.observe()
	return e, nil
}

// Bus exposes the event feed for observers.
func (e *Engine) Bus() *bus.Bus[*Context] { return e.bus }

// Memory exposes the memory index.
func (e *Engine) Memory() *memory.Index { return e.memory }

// Config returns the active configuration.
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// Apply processes one stimulus and returns the resulting modifiers. The
// modifiers are also published to observers.
func (e *Engine) Apply(ctx context.Context, stim stimulus.Stimulus) (Modifiers, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	at := e.clamp(stim.Timestamp)
	stim.Timestamp = at
	if !stim.Normalize(at) {
		e.log.Debug().Msg("stimulus normalized")
	}
	c := &Context{Now: at, Stimulus: &stim}
	err := e.dispatch(ctx, bus.EventStimulus, c, stim)
	e.lastStimulus = at

	mods := e.modifiers(at)
	ev := bus.NewEvent(bus.EventModifiers, at, mods)
	ev.Source = "engine"
	ev.Value = mods.Intensity
	_ = e.bus.Publish(ev)
	return mods, err
}

// RecordActivity reports non-stimulus activity to the boredom engine.
func (e *Engine) RecordActivity(ctx context.Context, a stimulus.Activity) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	at := e.clamp(a.Timestamp)
	a.Timestamp = at
	a.Normalize(at)
	return e.dispatch(ctx, bus.EventActivity, &Context{Now: at, Activity: &a}, a)
}

// Tick advances time: decay, boredom growth, prefetch sync, personality
// alignment and one step of every live chain.
func (e *Engine) Tick(ctx context.Context, now time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	now = e.clamp(now)
	return e.dispatch(ctx, bus.EventTick, &Context{Now: now}, nil)
}

// Interrupt aborts the live action chains.
func (e *Engine) Interrupt(ctx context.Context, now time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	now = e.clamp(now)
	return e.dispatch(ctx, bus.EventInterrupt, &Context{Now: now}, nil)
}

// SetCognition hands the metacognition collaborator's intensity to the engine.
func (e *Engine) SetCognition(ctx context.Context, level float64, now time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	now = e.clamp(now)
	c := &Context{Now: now}
	ev := bus.NewEvent(bus.EventCognition, now, nil)
	ev.Value = level
	return e.dispatchEvent(ctx, ev, c)
}

// Maintain runs the scheduled memory decay pass.
func (e *Engine) Maintain(ctx context.Context, now time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	now = e.clamp(now)
	return e.dispatch(ctx, bus.EventMaintenance, &Context{Now: now}, nil)
}

// StartChain triggers a chain manually.
func (e *Engine) StartChain(ctx context.Context, t chain.Type, now time.Time) (chain.Chain, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now = e.clamp(now)
	c := &Context{Now: now, Trigger: t}
	if err := e.dispatch(ctx, bus.EventTrigger, c, t); err != nil {
		return chain.Chain{}, err
	}
	if c.Refused != nil {
		return chain.Chain{}, c.Refused
	}
	if len(c.Chains) == 0 {
		return chain.Chain{}, fmt.Errorf("start %s chain: no chain handler", t)
	}
	return c.Chains[0], nil
}

// Recall retrieves memories for q under the current emotional state and
// reinforces them. k <= 0 uses the configured default.
func (e *Engine) Recall(ctx context.Context, q memory.Query, k int, now time.Time) []memory.Scored {
	e.mu.Lock()
	defer e.mu.Unlock()

	now = e.clamp(now)
	c := &Context{Now: now, Query: &q, K: k}
	if err := e.dispatch(ctx, bus.EventRecall, c, q); err != nil {
		e.log.Warn().Err(err).Msg("recall")
	}
	return c.Recalled
}

// Prefetch starts a background retrieval merged at the next tick.
func (e *Engine) Prefetch(q memory.Query, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.memory.Prefetch(q, e.emotion.State(), e.cfg.Memory.DefaultK, e.clamp(now))
}

// Reconfigure applies new tunables between events.
func (e *Engine) Reconfigure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cfg = cfg
	e.emotion.SetConfig(cfg.Emotion)
	e.boredom.SetConfig(cfg.Boredom)
	e.memory.SetConfig(cfg.Memory)
	e.chains.SetConfig(cfg.Chain)
	e.personality.SetConfig(cfg.Personality, cfg.Resolve.Must(cfg.Resolve.PersonalityTraits))
	e.blend = cfg.Resolve.Must(cfg.Resolve.EmotionCognition)
	e.log.Info().Msg("configuration reloaded")
	return nil
}

// Close stops observers and releases the memory store.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	_ = e.bus.Unsubscribe(e.errSub)
	if err := e.bus.Close(); err != nil {
		return err
	}
	return e.memory.Close()
}

func (e *Engine) dispatch(ctx context.Context, t bus.EventType, c *Context, payload any) error {
	return e.dispatchEvent(ctx, bus.NewEvent(t, c.Now, payload), c)
}

// dispatchEvent and clamp expect e.mu to be held.
func (e *Engine) dispatchEvent(ctx context.Context, ev bus.Event, c *Context) error {
	start := time.Now()
	e.now = c.Now
	err := e.bus.Dispatch(ctx, ev, c)
	metrics.DispatchDuration.Observe(time.Since(start).Seconds())
	metrics.EventsDispatched.WithLabelValues(string(ev.Type)).Inc()

	if c.Cognition != nil {
		e.cognition = c.Cognition
	}
	for _, n := range c.notes {
		_ = e.bus.Publish(n)
	}
	e.observe()
	return err
}

// clamp keeps logical time from running backwards. A zero time means now.
func (e *Engine) clamp(t time.Time) time.Time {
	if t.IsZero() {
		t = time.Now()
	}
	if t.Before(e.now) {
		return e.now
	}
	return t
}

func (e *Engine) observe() {
	metrics.ObserveEmotions(e.emotion.State())
	metrics.BoredomLevel.Set(e.boredom.Level())
	metrics.MemoryRecords.Set(float64(e.memory.Len()))
	metrics.ActiveChains.Set(float64(len(e.chains.Live())))
}
