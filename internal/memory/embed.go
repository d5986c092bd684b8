package memory

import (
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// Embedder turns text into a vector. The similarity backend is pluggable;
// HashEmbedder is the dependency-free default.
type Embedder interface {
	Embed(text string) []float32
	Dimension() int
}

// HashEmbedder is a hashed bag-of-words embedder. Cosine similarity between
// two of its vectors approximates token overlap.
type HashEmbedder struct {
	Dim int
}

// NewHashEmbedder creates a hash embedder with dim buckets.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 256
	}
	return &HashEmbedder{Dim: dim}
}

// Dimension returns the vector size.
func (h *HashEmbedder) Dimension() int { return h.Dim }

// Embed returns the L2-normalized token histogram of text.
func (h *HashEmbedder) Embed(text string) []float32 {
	vec := make([]float32, h.Dim)
	for _, tok := range Tokenize(text) {
		f := fnv.New32a()
		f.Write([]byte(tok))
		vec[f.Sum32()%uint32(h.Dim)]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

// Tokenize lower-cases text and splits it on anything that is not a letter
// or digit. Single-character tokens are dropped.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) > 1 {
			out = append(out, f)
		}
	}
	return out
}
