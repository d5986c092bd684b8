package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/normanking/limbic/internal/boredom"
	"github.com/normanking/limbic/internal/bus"
	"github.com/normanking/limbic/internal/chain"
	"github.com/normanking/limbic/internal/emotion"
	"github.com/normanking/limbic/internal/memory"
	"github.com/normanking/limbic/internal/metrics"
	"github.com/normanking/limbic/internal/stimulus"
)

// Context is the per-event scratchpad every handler receives by reference.
// Earlier handlers fill fields that later ones read.
type Context struct {
	Now time.Time

	Stimulus  *stimulus.Stimulus
	Activity  *stimulus.Activity
	Cognition *bus.Value
	Trigger   chain.Type
	Query     *memory.Query
	K         int

	Related   map[emotion.Emotion]float64
	Appraisal emotion.Appraisal
	Novelty   float64

	Stored    *memory.Record
	Recalled  []memory.Scored
	Crossings []boredom.Crossing
	Chains    []chain.Chain

	// Refused is why a manual trigger did not start.
	Refused error

	notes []bus.Event
}

func (c *Context) note(t bus.EventType, source string, value float64, payload any) {
	ev := bus.NewEvent(t, c.Now, payload)
	ev.Source = source
	ev.Value = value
	c.notes = append(c.notes, ev)
}

// Handler names.
const (
	HandlerEmotion       = "emotion"
	HandlerMetacognition = "metacognition"
	HandlerMemory        = "memory"
	HandlerBoredom       = "boredom"
	HandlerPersonality   = "personality"
	HandlerChain         = "chain"
)

func (e *Engine) registerHandlers() {
	e.bus.Register(bus.NewHandler(HandlerEmotion, bus.PriorityEmotion, e.handleEmotion))
	if e.metacognition != nil {
		e.bus.Register(e.metacognition)
	} else {
		e.bus.Register(bus.NewHandler(HandlerMetacognition, bus.PriorityMetacognition, handleCognition))
	}
	e.bus.Register(bus.NewHandler(HandlerMemory, bus.PriorityMemory, e.handleMemory))
	e.bus.Register(bus.NewHandler(HandlerBoredom, bus.PriorityBoredom, e.handleBoredom))
	e.bus.Register(bus.NewHandler(HandlerPersonality, bus.PriorityPersonality, e.handlePersonality))
	e.bus.Register(bus.NewHandler(HandlerChain, bus.PriorityChain, e.handleChain))
}

func (e *Engine) handleEmotion(_ context.Context, ev bus.Event, c *Context) error {
	switch ev.Type {
	case bus.EventStimulus:
		if c.Stimulus == nil {
			return nil
		}
		c.Related = e.memory.Associations(c.Stimulus.Entities)
		c.Appraisal = e.emotion.Update(*c.Stimulus, c.Now, c.Related)

		switch v := c.Appraisal.Valence(); {
		case v > 0:
			e.positiveStreak++
			e.negativeStreak = 0
		case v < 0:
			e.negativeStreak++
			e.positiveStreak = 0
		}
		c.note(bus.EventEmotionUpdated, HandlerEmotion, c.Appraisal.Strength(), c.Appraisal)

	case bus.EventTick, bus.EventSettle:
		e.emotion.Decay(c.Now)
	}
	return nil
}

// handleCognition records the metacognition collaborator's value. An external
// handler registered in this slot may also set Context.Cognition itself.
func handleCognition(_ context.Context, ev bus.Event, c *Context) error {
	if ev.Type != bus.EventCognition {
		return nil
	}
	c.Cognition = &bus.Value{Level: stimulus.Clamp01(ev.Value), At: c.Now}
	return nil
}

func (e *Engine) handleMemory(ctx context.Context, ev bus.Event, c *Context) error {
	switch ev.Type {
	case bus.EventStimulus:
		if c.Stimulus == nil {
			return nil
		}
		c.Novelty = e.memory.Novelty(c.Stimulus.Entities)
		e.novelty = c.Novelty

		q := memory.Query{Text: c.Stimulus.Content, Links: c.Stimulus.Entities}
		if q.Text != "" || len(q.Links) > 0 {
			e.memory.Prefetch(q, e.emotion.State(), e.cfg.Memory.DefaultK, c.Now)
		}

		if c.Stimulus.Content == "" || c.Appraisal.Strength() == 0 {
			return nil
		}
		rec, err := e.memory.Store(ctx, memory.Record{
			Content:   c.Stimulus.Content,
			Tags:      c.Appraisal.Tags(e.emotion.State()),
			Links:     c.Stimulus.Entities,
			CreatedAt: c.Now,
		}, c.Appraisal.Strength(), c.Now)
		metrics.MemoryOperations.WithLabelValues("store", metrics.Result(err)).Inc()
		switch {
		case errors.Is(err, memory.ErrDropped):
			c.note(bus.EventMemoryDropped, HandlerMemory, 0, nil)
			return nil
		case errors.Is(err, memory.ErrEmptyContent):
			return nil
		case err != nil:
			return fmt.Errorf("store memory: %w", err)
		}
		c.Stored = &rec
		c.note(bus.EventMemoryStored, HandlerMemory, rec.Importance, rec.ID)

	case bus.EventRecall:
		if c.Query == nil {
			return nil
		}
		c.Recalled = e.memory.Recall(ctx, *c.Query, e.emotion.State(), c.K, c.Now)
		metrics.MemoryOperations.WithLabelValues("recall", "ok").Inc()
		e.noteRecalled(c)

	case bus.EventTick:
		if results, ok := e.memory.Sync(ctx, c.Now); ok {
			c.Recalled = results
			e.noteRecalled(c)
		}

	case bus.EventMaintenance:
		decayed, forgotten := e.memory.DecayPass(ctx, c.Now)
		metrics.MemoryOperations.WithLabelValues("decay", "ok").Add(float64(decayed))
		metrics.MemoryOperations.WithLabelValues("forget", "ok").Add(float64(forgotten))
	}
	return nil
}

func (e *Engine) handleBoredom(_ context.Context, ev bus.Event, c *Context) error {
	switch ev.Type {
	case bus.EventStimulus:
		if c.Stimulus == nil {
			return nil
		}
		c.Crossings = e.boredom.OnActivity(stimulus.Activity{
			Type:      c.Stimulus.ActivityType,
			Intensity: c.Stimulus.Engagement(),
			Timestamp: c.Now,
		})
	case bus.EventActivity:
		if c.Activity == nil {
			return nil
		}
		c.Crossings = e.boredom.OnActivity(*c.Activity)
	case bus.EventTick, bus.EventSettle:
		_, c.Crossings = e.boredom.Tick(c.Now)
	default:
		return nil
	}
	for _, x := range c.Crossings {
		c.note(bus.EventBoredomThreshold, HandlerBoredom, x.Level, x)
	}
	return nil
}

func (e *Engine) handlePersonality(_ context.Context, ev bus.Event, c *Context) error {
	if ev.Type != bus.EventTick {
		return nil
	}
	e.personality.Align(emotion.DeriveMood(e.emotion.State()), e.boredom.Level(), c.Now)
	return nil
}

func (e *Engine) handleChain(ctx context.Context, ev bus.Event, c *Context) error {
	switch ev.Type {
	case bus.EventInterrupt:
		c.Chains = e.chains.Interrupt(ctx, c.Now)
	case bus.EventTrigger:
		started, err := e.chains.Trigger(ctx, c.Trigger, e.signals(), c.Now)
		if err != nil {
			c.Refused = err
			return nil
		}
		c.Chains = []chain.Chain{started}
	case bus.EventTick:
		c.Chains = e.chains.Step(ctx, c.Now)
		for _, started := range e.chains.Evaluate(ctx, e.signals(), c.Now) {
			c.Chains = append(c.Chains, started)
		}
	default:
		return nil
	}

	for _, ch := range c.Chains {
		metrics.ChainTransitions.WithLabelValues(string(ch.Type), string(ch.State)).Inc()
		c.note(chainEvent(ch.State), HandlerChain, ch.Motivation, ch)
	}
	return nil
}

func (e *Engine) signals() chain.Signals {
	state := e.emotion.State()
	_, intensity := emotion.Dominant(state)
	return chain.Signals{
		EmotionalIntensity: intensity,
		Boredom:            e.boredom.Level(),
		Novelty:            e.novelty,
		Levels:             state.Values(),
	}
}

func chainEvent(s chain.State) bus.EventType {
	switch s {
	case chain.Triggered:
		return bus.EventChainTriggered
	case chain.Completed:
		return bus.EventChainCompleted
	case chain.Aborted:
		return bus.EventChainAborted
	}
	return bus.EventChainStep
}

// noteRecalled publishes the ranked results, best first.
func (e *Engine) noteRecalled(c *Context) {
	e.recalled = len(c.Recalled)
	if len(c.Recalled) > 0 {
		c.note(bus.EventMemoryRecalled, HandlerMemory, float64(len(c.Recalled)), c.Recalled)
	}
}
