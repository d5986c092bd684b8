package bus

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Priority orders handlers. Lower runs first.
type Priority int

// Fixed delivery order. Later handlers observe state already updated by
// earlier ones within the same logical tick.
const (
	PriorityEmotion       Priority = 0
	PriorityMetacognition Priority = 10
	PriorityMemory        Priority = 20
	PriorityBoredom       Priority = 30
	PriorityPersonality   Priority = 40

	// PriorityChain runs after every state engine so triggers see the
	// tick's final state.
	PriorityChain Priority = 50
)

// Handler is an engine attached to the bus. S is the engine-owned context
// passed by reference to every handler.
type Handler[S any] interface {
	Name() string
	Priority() Priority
	Handle(ctx context.Context, ev Event, state S) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc[S any] struct {
	name     string
	priority Priority
	fn       func(ctx context.Context, ev Event, state S) error
}

// NewHandler creates a Handler from a function.
func NewHandler[S any](name string, p Priority, fn func(ctx context.Context, ev Event, state S) error) *HandlerFunc[S] {
	return &HandlerFunc[S]{name: name, priority: p, fn: fn}
}

func (h *HandlerFunc[S]) Name() string       { return h.name }
func (h *HandlerFunc[S]) Priority() Priority { return h.priority }
func (h *HandlerFunc[S]) Handle(ctx context.Context, ev Event, state S) error {
	return h.fn(ctx, ev, state)
}

// Bus is the only entry point for state mutation. Dispatch is serialized:
// one event runs through every handler before the next one starts.
type Bus[S any] struct {
	*Feed

	handlers   []Handler[S]
	handlersMu sync.RWMutex
	dispatchMu sync.Mutex

	log zerolog.Logger
}

// New creates a bus with the default history size.
func New[S any](log zerolog.Logger) *Bus[S] {
	return NewWithConfig[S](log, DefaultHistorySize)
}

// NewWithConfig creates a bus with a custom history size.
func NewWithConfig[S any](log zerolog.Logger, historySize int) *Bus[S] {
	return &Bus[S]{
		Feed: NewFeed(historySize),
		log:  log.With().Str("component", "bus").Logger(),
	}
}

// Register attaches a handler. Handlers with equal priority keep their
// registration order.
func (b *Bus[S]) Register(h Handler[S]) {
	b.handlersMu.Lock()
	defer b.handlersMu.Unlock()

	b.handlers = append(b.handlers, h)
	sort.SliceStable(b.handlers, func(i, j int) bool {
		return b.handlers[i].Priority() < b.handlers[j].Priority()
	})
}

// Handlers returns the handler names in delivery order.
func (b *Bus[S]) Handlers() []string {
	b.handlersMu.RLock()
	defer b.handlersMu.RUnlock()

	names := make([]string, len(b.handlers))
	for i, h := range b.handlers {
		names[i] = h.Name()
	}
	return names
}

// Dispatch delivers ev to every handler in priority order and then publishes
// it to observers. A failing handler is logged and skipped; the remaining
// handlers still run. The joined handler errors are returned.
func (b *Bus[S]) Dispatch(ctx context.Context, ev Event, state S) error {
	b.dispatchMu.Lock()
	defer b.dispatchMu.Unlock()

	b.handlersMu.RLock()
	handlers := append([]Handler[S](nil), b.handlers...)
	b.handlersMu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := b.invoke(ctx, h, ev, state); err != nil {
			b.log.Error().Err(err).
				Str("handler", h.Name()).
				Str("event", string(ev.Type)).
				Msg("handler failed")
			errs = append(errs, fmt.Errorf("%s: %w", h.Name(), err))

			failure := NewEvent(EventHandlerError, ev.Timestamp, nil)
			failure.Source = h.Name()
			failure.Error = err.Error()
			_ = b.Publish(failure)
		}
	}

	_ = b.Publish(ev)
	return errors.Join(errs...)
}

func (b *Bus[S]) invoke(ctx context.Context, h Handler[S], ev Event, state S) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.Handle(ctx, ev, state)
}
