// Package chain schedules self-directed, multi-step action chains.
//
// Each chain moves Idle -> Triggered -> InProgress -> Completed|Aborted. A
// chain fires when its motivation exceeds the type's threshold and the type's
// cooldown has elapsed since its last chain ended. Steps run one at a time
// and cancellation only happens between steps.
package chain

import (
	"context"
	"errors"
	"time"

	"github.com/normanking/limbic/internal/emotion"
	"github.com/normanking/limbic/internal/stimulus"
)

var (
	// ErrUnknownChainType is returned for a type with no definition.
	ErrUnknownChainType = errors.New("chain: unknown chain type")

	// ErrAlreadyActive is returned when a chain of the type is already live.
	ErrAlreadyActive = errors.New("chain: type already active")
)

// Type identifies a known step sequence.
type Type string

const (
	Reflection      Type = "reflection"
	Exploration     Type = "exploration"
	Creation        Type = "creation"
	Organizing      Type = "organizing"
	SelfImprovement Type = "self_improvement"
)

// State is a chain's lifecycle state.
type State string

const (
	Idle       State = "idle"
	Triggered  State = "triggered"
	InProgress State = "in_progress"
	Completed  State = "completed"
	Aborted    State = "aborted"
)

// Ended reports whether s is terminal.
func (s State) Ended() bool { return s == Completed || s == Aborted }

// Abort reasons.
const (
	ReasonInterrupt          = "interrupt"
	ReasonLowConfidence      = "low_confidence"
	ReasonResourceExhaustion = "resource_exhaustion"
	ReasonExecutorError      = "executor_error"
)

// Chain is one ActionChain instance.
type Chain struct {
	ID            string          `json:"id"`
	Type          Type            `json:"type"`
	Steps         []string        `json:"steps"`
	StepIndex     int             `json:"step_index"`
	Confidence    []float64       `json:"confidence,omitempty"`
	ResourceUsage float64         `json:"resource_usage"`
	Abort         AbortConditions `json:"abort"`
	State         State           `json:"state"`
	Motivation    float64         `json:"motivation"`
	Reason        string          `json:"reason,omitempty"`
	TriggeredAt   time.Time       `json:"triggered_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// CurrentStep returns the step about to run, or "" once all have run.
func (c Chain) CurrentStep() string {
	if c.StepIndex < 0 || c.StepIndex >= len(c.Steps) {
		return ""
	}
	return c.Steps[c.StepIndex]
}

func (c Chain) clone() Chain {
	out := c
	out.Steps = append([]string(nil), c.Steps...)
	out.Confidence = append([]float64(nil), c.Confidence...)
	return out
}

// Signals are the trigger inputs sampled at evaluation time.
type Signals struct {
	EmotionalIntensity float64
	Boredom            float64
	Novelty            float64
	Levels             map[emotion.Emotion]float64
}

// GoalAlignment is the strongest emotion among the definition's affinities.
func (d Definition) GoalAlignment(levels map[emotion.Emotion]float64) float64 {
	best := 0.0
	for _, e := range d.Affinity {
		if v := levels[e]; v > best {
			best = v
		}
	}
	return stimulus.Clamp01(best)
}

// Motivation is the weighted trigger score of d under sig.
func (c Config) Motivation(d Definition, sig Signals) float64 {
	w := c.Weights
	m := w.Emotion*stimulus.Clamp01(sig.EmotionalIntensity) +
		w.Boredom*stimulus.Clamp01(sig.Boredom) +
		w.Goal*d.GoalAlignment(sig.Levels) +
		w.Novelty*stimulus.Clamp01(sig.Novelty)
	return stimulus.Clamp01(m)
}

// Task is one step handed to an Executor.
type Task struct {
	ChainID    string
	Type       Type
	Step       string
	StepIndex  int
	TotalSteps int
	Motivation float64
}

// Outcome is what a step produced.
type Outcome struct {
	Confidence float64
	Cost       float64
}

// Executor runs chain steps.
type Executor interface {
	Execute(ctx context.Context, task Task) (Outcome, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, task Task) (Outcome, error)

func (f ExecutorFunc) Execute(ctx context.Context, task Task) (Outcome, error) { return f(ctx, task) }
