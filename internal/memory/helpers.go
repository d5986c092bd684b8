package memory

import (
	"container/heap"
	"encoding/binary"
	"math"
	"sort"
)

// ============================================================================
// EMBEDDING HELPERS
// ============================================================================

// Float32SliceToBytes converts a float32 slice to bytes for SQLite BLOB storage.
func Float32SliceToBytes(slice []float32) []byte {
	if slice == nil {
		return nil
	}
	buf := make([]byte, len(slice)*4)
	for i, v := range slice {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// BytesToFloat32Slice converts bytes from a SQLite BLOB back to a float32 slice.
func BytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil
	}
	result := make([]float32, len(data)/4)
	for i := range result {
		result[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return result
}

// CosineSimilarity calculates the cosine similarity between two vectors.
// Mismatched or empty vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Jaccard returns |a∩b| / |a∪b| for two string sets.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]bool, len(a))
	for _, v := range a {
		set[v] = true
	}
	inter := 0
	union := len(set)
	seen := make(map[string]bool, len(b))
	for _, v := range b {
		if seen[v] {
			continue
		}
		seen[v] = true
		if set[v] {
			inter++
		} else {
			union++
		}
	}
	return float64(inter) / float64(union)
}

// ============================================================================
// TOP-K SELECTION
// ============================================================================

// ScoredItem represents an item with a relevance score.
type ScoredItem[T any] struct {
	Item  T
	Score float64
	seq   int
}

// scoredItemHeap keeps the K best items with the worst at the root. Equal
// scores rank the earlier item higher so selection is deterministic.
type scoredItemHeap[T any] []ScoredItem[T]

func (h scoredItemHeap[T]) Len() int { return len(h) }
func (h scoredItemHeap[T]) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score < h[j].Score
	}
	return h[i].seq > h[j].seq
}
func (h scoredItemHeap[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *scoredItemHeap[T]) Push(x any) { *h = append(*h, x.(ScoredItem[T])) }

func (h *scoredItemHeap[T]) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// TopKWithScores returns the K highest-scoring items in descending order.
// O(n log k).
func TopKWithScores[T any](items []ScoredItem[T], k int) []ScoredItem[T] {
	if k <= 0 || len(items) == 0 {
		return nil
	}

	h := make(scoredItemHeap[T], 0, k)
	for i, it := range items {
		it.seq = i
		if h.Len() < k {
			heap.Push(&h, it)
			continue
		}
		if it.Score > h[0].Score {
			heap.Pop(&h)
			heap.Push(&h, it)
		}
	}

	result := []ScoredItem[T](h)
	sort.Slice(result, func(i, j int) bool {
		if result[i].Score != result[j].Score {
			return result[i].Score > result[j].Score
		}
		return result[i].seq < result[j].seq
	})
	return result
}

// DecayRetention applies a daily decay factor over a fractional number of days.
func DecayRetention(retention, days, dailyFactor float64) float64 {
	if days <= 0 {
		return retention
	}
	return retention * math.Pow(dailyFactor, days)
}
