// Package memory is limbic's MemoryIndex: emotionally tagged experience
// records with similarity-, congruence- and recency-ranked retrieval, daily
// retention decay and soft forgetting.
package memory

import (
	"errors"
	"time"

	"github.com/normanking/limbic/internal/emotion"
)

var (
	// ErrEmptyContent is returned when a record has no content to store.
	ErrEmptyContent = errors.New("memory: empty content")

	// ErrNotFound is returned when a record ID is unknown.
	ErrNotFound = errors.New("memory: record not found")

	// ErrDropped is returned when the backend failed twice and the write was dropped.
	ErrDropped = errors.New("memory: dropped after retry")
)

// Record is one MemoryRecord.
type Record struct {
	ID      string                      `json:"id"`
	Content string                      `json:"content"`
	Tags    map[emotion.Emotion]float64 `json:"tags"`
	Links   []string                    `json:"links,omitempty"`

	Importance float64   `json:"importance"`
	CreatedAt  time.Time `json:"created_at"`

	Retention   float64   `json:"retention"`
	LastAccess  time.Time `json:"last_access"`
	AccessCount int       `json:"access_count"`
	Forgotten   bool      `json:"forgotten,omitempty"`

	Embedding []float32 `json:"-"`
}

// DominantTag returns the strongest emotional tag. Ties follow the canonical
// primary order; an untagged record is Neutral.
func (r Record) DominantTag() (emotion.Emotion, float64) {
	best, bestVal := emotion.Neutral, 0.0
	for _, e := range emotion.Primaries {
		if v := r.Tags[e]; v > bestVal {
			best, bestVal = e, v
		}
	}
	return best, bestVal
}

// TagStrength is the strongest tag intensity.
func (r Record) TagStrength() float64 {
	_, v := r.DominantTag()
	return v
}

func (r Record) clone() Record {
	out := r
	if r.Tags != nil {
		out.Tags = make(map[emotion.Emotion]float64, len(r.Tags))
		for k, v := range r.Tags {
			out.Tags[k] = v
		}
	}
	out.Links = append([]string(nil), r.Links...)
	out.Embedding = append([]float32(nil), r.Embedding...)
	return out
}

// Query is the retrieval context.
type Query struct {
	Text  string   `json:"text,omitempty"`
	Links []string `json:"links,omitempty"`
}

// Scored is a ranked retrieval result.
type Scored struct {
	Record     Record  `json:"record"`
	Score      float64 `json:"score"`
	Similarity float64 `json:"similarity"`
	Congruence float64 `json:"congruence"`
	Recency    float64 `json:"recency"`
}
