// Package persistence saves and restores the engine's full state as a
// versioned JSON snapshot.
package persistence

import (
	"time"

	"github.com/normanking/limbic/internal/boredom"
	"github.com/normanking/limbic/internal/bus"
	"github.com/normanking/limbic/internal/chain"
	"github.com/normanking/limbic/internal/emotion"
	"github.com/normanking/limbic/internal/memory"
	"github.com/normanking/limbic/internal/personality"
)

const (
	SchemaName    = "limbic.snapshot"
	SchemaVersion = 1
)

// Snapshot is the persisted state of every engine.
type Snapshot struct {
	Schema  string    `json:"schema"`
	Version int       `json:"version"`
	SavedAt time.Time `json:"saved_at"`

	Emotion     emotion.State      `json:"emotion"`
	Boredom     boredom.State      `json:"boredom"`
	Memory      MemorySnapshot     `json:"memory"`
	Chains      chain.Snapshot     `json:"chains"`
	Personality personality.Traits `json:"personality"`
	Context     ContextSnapshot    `json:"context"`
}

// MemorySnapshot summarizes the index. Records are inlined only when the
// index has no durable backend.
type MemorySnapshot struct {
	Path      string          `json:"path,omitempty"`
	Count     int             `json:"count"`
	LastDecay time.Time       `json:"last_decay"`
	Records   []memory.Record `json:"records,omitempty"`
}

// ContextSnapshot carries the cross-engine values the engine keeps itself.
type ContextSnapshot struct {
	PositiveStreak int        `json:"positive_streak"`
	NegativeStreak int        `json:"negative_streak"`
	Cognition      *bus.Value `json:"cognition,omitempty"`
	LastStimulus   time.Time  `json:"last_stimulus,omitempty"`
}

// New returns an empty snapshot stamped with the current schema.
func New(savedAt time.Time) Snapshot {
	return Snapshot{Schema: SchemaName, Version: SchemaVersion, SavedAt: savedAt}
}

// StartMode reports how the engine came up.
type StartMode string

const (
	ColdStart StartMode = "cold"
	WarmStart StartMode = "warm"
)
