package bus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

const (
	// DefaultHistorySize is the number of recent events to retain for replay.
	DefaultHistorySize = 1000

	// DefaultChannelBuffer is the buffer size for subscriber channels.
	DefaultChannelBuffer = 100
)

// SubscriptionID is a unique identifier for event subscriptions.
type SubscriptionID string

// Subscription represents a single observer.
type Subscription struct {
	ID        SubscriptionID
	EventType EventType
	Handler   func(Event)
	Channel   chan Event
	done      chan struct{}
}

// Feed is the asynchronous half of the bus: a history ring plus observers
// that each run on their own goroutine. Observers only see events; they never
// mutate engine state.
type Feed struct {
	subscriptions   map[SubscriptionID]*Subscription
	subscriptionsMu sync.RWMutex
	subCounter      atomic.Uint64

	typedSubs    map[EventType]map[SubscriptionID]*Subscription
	wildcardSubs map[SubscriptionID]*Subscription

	history     []Event
	historyMu   sync.RWMutex
	historySize int

	dropped atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

// NewFeed creates a feed that remembers historySize events.
func NewFeed(historySize int) *Feed {
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Feed{
		subscriptions: make(map[SubscriptionID]*Subscription),
		typedSubs:     make(map[EventType]map[SubscriptionID]*Subscription),
		wildcardSubs:  make(map[SubscriptionID]*Subscription),
		history:       make([]Event, 0, historySize),
		historySize:   historySize,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Subscribe registers an observer for a specific event type.
// Use EventType("") to receive every event.
func (f *Feed) Subscribe(eventType EventType, handler func(Event)) SubscriptionID {
	if f.closed.Load() {
		return ""
	}

	id := SubscriptionID(fmt.Sprintf("sub_%d", f.subCounter.Add(1)))
	sub := &Subscription{
		ID:        id,
		EventType: eventType,
		Handler:   handler,
		Channel:   make(chan Event, DefaultChannelBuffer),
		done:      make(chan struct{}),
	}

	f.subscriptionsMu.Lock()
	f.subscriptions[id] = sub
	if eventType == "" {
		f.wildcardSubs[id] = sub
	} else {
		if f.typedSubs[eventType] == nil {
			f.typedSubs[eventType] = make(map[SubscriptionID]*Subscription)
		}
		f.typedSubs[eventType][id] = sub
	}
	f.subscriptionsMu.Unlock()

	f.wg.Add(1)
	go f.handleSubscription(sub)

	return id
}

func (f *Feed) handleSubscription(sub *Subscription) {
	defer f.wg.Done()

	for {
		select {
		case event := <-sub.Channel:
			sub.Handler(event)
		case <-sub.done:
			return
		case <-f.ctx.Done():
			return
		}
	}
}

// Unsubscribe removes an observer.
func (f *Feed) Unsubscribe(id SubscriptionID) error {
	if f.closed.Load() {
		return fmt.Errorf("bus is closed")
	}

	f.subscriptionsMu.Lock()
	sub, exists := f.subscriptions[id]
	if !exists {
		f.subscriptionsMu.Unlock()
		return fmt.Errorf("subscription %s not found", id)
	}
	delete(f.subscriptions, id)
	if sub.EventType == "" {
		delete(f.wildcardSubs, id)
	} else if subs, ok := f.typedSubs[sub.EventType]; ok {
		delete(subs, id)
		if len(subs) == 0 {
			delete(f.typedSubs, sub.EventType)
		}
	}
	f.subscriptionsMu.Unlock()

	close(sub.done)
	return nil
}

// Publish records an event and hands it to matching observers. A full
// observer channel drops the event for that observer only.
func (f *Feed) Publish(event Event) error {
	if f.closed.Load() {
		return fmt.Errorf("bus is closed")
	}

	f.addToHistory(event)

	f.subscriptionsMu.RLock()
	defer f.subscriptionsMu.RUnlock()

	deliver := func(sub *Subscription) {
		select {
		case sub.Channel <- event:
		default:
			f.dropped.Add(1)
		}
	}
	for _, sub := range f.wildcardSubs {
		deliver(sub)
	}
	for _, sub := range f.typedSubs[event.Type] {
		deliver(sub)
	}
	return nil
}

func (f *Feed) addToHistory(event Event) {
	f.historyMu.Lock()
	defer f.historyMu.Unlock()

	f.history = append(f.history, event)
	if len(f.history) > f.historySize {
		f.history = f.history[len(f.history)-f.historySize:]
	}
}

// History returns a copy of the retained events.
func (f *Feed) History() []Event {
	f.historyMu.RLock()
	defer f.historyMu.RUnlock()

	result := make([]Event, len(f.history))
	copy(result, f.history)
	return result
}

// HistorySlice returns the last n events.
func (f *Feed) HistorySlice(n int) []Event {
	f.historyMu.RLock()
	defer f.historyMu.RUnlock()

	if n > len(f.history) {
		n = len(f.history)
	}
	if n <= 0 {
		return nil
	}
	result := make([]Event, n)
	copy(result, f.history[len(f.history)-n:])
	return result
}

// SubscriptionsCount returns the number of active observers.
func (f *Feed) SubscriptionsCount() int {
	f.subscriptionsMu.RLock()
	defer f.subscriptionsMu.RUnlock()
	return len(f.subscriptions)
}

// Dropped returns how many deliveries were dropped on full observer channels.
func (f *Feed) Dropped() uint64 { return f.dropped.Load() }

// Close stops every observer goroutine.
func (f *Feed) Close() error {
	if !f.closed.CompareAndSwap(false, true) {
		return fmt.Errorf("bus already closed")
	}

	f.cancel()
	f.wg.Wait()

	f.subscriptionsMu.Lock()
	f.subscriptions = make(map[SubscriptionID]*Subscription)
	f.typedSubs = make(map[EventType]map[SubscriptionID]*Subscription)
	f.wildcardSubs = make(map[SubscriptionID]*Subscription)
	f.subscriptionsMu.Unlock()

	return nil
}
