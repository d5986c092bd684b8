// Package dispatch hands initiated action-chain tasks to external executors.
package dispatch

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Descriptor describes one action-chain transition.
type Descriptor struct {
	ChainID    string    `json:"chain_id"`
	Type       string    `json:"type"`
	State      string    `json:"state"`
	Step       string    `json:"step,omitempty"`
	StepIndex  int       `json:"step_index"`
	TotalSteps int       `json:"total_steps"`
	Motivation float64   `json:"motivation"`
	Reason     string    `json:"reason,omitempty"`
	At         time.Time `json:"at"`
}

// Values flattens the descriptor into stream fields.
func (d Descriptor) Values() map[string]interface{} {
	return map[string]interface{}{
		"chain_id":    d.ChainID,
		"type":        d.Type,
		"state":       d.State,
		"step":        d.Step,
		"step_index":  strconv.Itoa(d.StepIndex),
		"total_steps": strconv.Itoa(d.TotalSteps),
		"motivation":  strconv.FormatFloat(d.Motivation, 'f', 4, 64),
		"reason":      d.Reason,
		"at":          d.At.UTC().Format(time.RFC3339Nano),
	}
}

// Sink receives descriptors.
type Sink interface {
	Publish(ctx context.Context, d Descriptor) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, d Descriptor) error

func (f SinkFunc) Publish(ctx context.Context, d Descriptor) error { return f(ctx, d) }

// LogSink writes descriptors to the log.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log.With().Str("component", "dispatch").Logger()}
}

func (s *LogSink) Publish(_ context.Context, d Descriptor) error {
	s.log.Info().
		Str("chain_id", d.ChainID).
		Str("type", d.Type).
		Str("state", d.State).
		Str("step", d.Step).
		Int("step_index", d.StepIndex).
		Float64("motivation", d.Motivation).
		Str("reason", d.Reason).
		Msg("chain transition")
	return nil
}

// MultiSink fans a descriptor out to every sink. All sinks are tried.
type MultiSink []Sink

func (m MultiSink) Publish(ctx context.Context, d Descriptor) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Publish(ctx, d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MemorySink keeps published descriptors in memory.
type MemorySink struct {
	mu  sync.Mutex
	got []Descriptor
}

func (m *MemorySink) Publish(_ context.Context, d Descriptor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.got = append(m.got, d)
	return nil
}

// Descriptors returns a copy of everything published so far.
func (m *MemorySink) Descriptors() []Descriptor {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Descriptor(nil), m.got...)
}
