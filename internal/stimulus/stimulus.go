// Package stimulus defines the signals limbic consumes from its collaborators:
// extracted stimulus events and activity notifications.
package stimulus

import (
	"sort"
	"strings"
	"time"
)

// ActivityType classifies what the assistant was doing.
type ActivityType string

const (
	ActivityConversation ActivityType = "conversation"
	ActivityCommand      ActivityType = "command"
	ActivityThinking     ActivityType = "thinking"
	ActivitySystem       ActivityType = "system"
)

// Valid reports whether t is one of the known activity types.
func (t ActivityType) Valid() bool {
	switch t {
	case ActivityConversation, ActivityCommand, ActivityThinking, ActivitySystem:
		return true
	}
	return false
}

// Stimulus is an external event after NLU extraction.
type Stimulus struct {
	TextLength    int          `json:"text_length"`
	Entities      []string     `json:"detected_entities,omitempty"`
	SentimentTags []string     `json:"sentiment_tags,omitempty"`
	ActivityType  ActivityType `json:"activity_type,omitempty"`

	// Content is an opaque reference to the message. Empty content is not
	// stored in memory.
	Content   string    `json:"content,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Normalize clamps out-of-range fields in place. It reports whether anything
// had to be corrected.
func (s *Stimulus) Normalize(now time.Time) bool {
	changed := false
	if s.TextLength < 0 {
		s.TextLength = 0
		changed = true
	}
	if s.ActivityType == "" {
		s.ActivityType = ActivityConversation
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = now
	}

	tags := dedupe(s.SentimentTags, true)
	if len(tags) != len(s.SentimentTags) {
		changed = true
	}
	s.SentimentTags = tags
	s.Entities = dedupe(s.Entities, false)
	return changed
}

// Engagement is the activity intensity a stimulus represents for boredom
// relief. Longer messages engage more.
func (s Stimulus) Engagement() float64 {
	return 0.5 + 0.5*LengthRatio(s.TextLength, 1000)
}

// Activity is a notification that the assistant did something.
type Activity struct {
	Type      ActivityType `json:"type"`
	Intensity float64      `json:"intensity"`
	Timestamp time.Time    `json:"timestamp"`
}

// Normalize clamps intensity to [0,1] and fills a missing timestamp.
func (a *Activity) Normalize(now time.Time) bool {
	changed := false
	if c := Clamp01(a.Intensity); c != a.Intensity {
		a.Intensity = c
		changed = true
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = now
	}
	return changed
}

// LengthRatio returns min(1, n/norm).
func LengthRatio(n int, norm float64) float64 {
	if n <= 0 || norm <= 0 {
		return 0
	}
	r := float64(n) / norm
	if r > 1 {
		return 1
	}
	return r
}

// Clamp01 clamps v to [0,1]. NaN maps to 0.
func Clamp01(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func dedupe(in []string, lower bool) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if lower {
			v = strings.ToLower(v)
		}
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
