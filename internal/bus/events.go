// Package bus is limbic's event bus and state synchronizer. Stimuli and ticks
// are dispatched synchronously to engine handlers in a fixed priority order;
// the resulting notifications fan out asynchronously to observers.
package bus

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies what happened.
type EventType string

const (
	// Inputs, dispatched to handlers.
	EventStimulus  EventType = "stimulus"
	EventActivity  EventType = "activity"
	EventTick      EventType = "tick"
	EventInterrupt EventType = "interrupt"
	EventCognition EventType = "cognition"
	EventTrigger   EventType = "trigger"
	EventRecall    EventType = "recall"

	// EventMaintenance runs the scheduled memory decay pass.
	EventMaintenance EventType = "maintenance"

	// EventSettle brings time-dependent state up to the event time and
	// nothing else. It precedes every snapshot.
	EventSettle EventType = "settle"

	// Notifications, published to observers.
	EventEmotionUpdated   EventType = "emotion_updated"
	EventBoredomThreshold EventType = "boredom_threshold"
	EventMemoryStored     EventType = "memory_stored"
	EventMemoryDropped    EventType = "memory_dropped"
	EventMemoryRecalled   EventType = "memory_recalled"
	EventModifiers        EventType = "modifiers"
	EventChainTriggered   EventType = "chain_triggered"
	EventChainStep        EventType = "chain_step"
	EventChainCompleted   EventType = "chain_completed"
	EventChainAborted     EventType = "chain_aborted"
	EventSnapshotSaved    EventType = "snapshot_saved"
	EventSnapshotSkipped  EventType = "snapshot_skipped"
	EventHandlerError     EventType = "handler_error"
)

// Event is a single message on the bus.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`

	// Source names the handler or component that produced the event.
	Source string `json:"source,omitempty"`

	// Value carries a scalar such as a level or a confidence.
	Value float64 `json:"value,omitempty"`

	// Payload carries the typed input or result.
	Payload any `json:"payload,omitempty"`

	Details string `json:"details,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewEvent creates an event stamped with the logical time at.
func NewEvent(eventType EventType, at time.Time, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Timestamp: at,
		Type:      eventType,
		Payload:   payload,
	}
}
