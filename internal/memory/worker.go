package memory

import (
	"context"
	"time"

	"github.com/normanking/limbic/internal/emotion"
)

type prefetchResult struct {
	query   Query
	results []Scored
}

// Prefetch starts ranking q on a background goroutine over a copy of the
// active records. It returns false if a prefetch is already in flight. The
// result is picked up by Sync or Await; nothing in the index changes until
// then.
func (ix *Index) Prefetch(q Query, state emotion.State, k int, now time.Time) bool {
	if !ix.inflight.CompareAndSwap(false, true) {
		return false
	}
	if k <= 0 {
		k = ix.cfg.DefaultK
	}
	dominant, _ := emotion.Dominant(state)

	ix.mu.RLock()
	candidates := ix.activeLocked()
	cfg := ix.cfg
	ix.mu.RUnlock()

	embedder := ix.embedder
	links := normalizeLinks(q.Links)
	go func() {
		qEmb := embedder.Embed(embedText(q.Text, links))
		ix.prefetched <- prefetchResult{
			query:   q,
			results: rank(cfg, candidates, qEmb, links, dominant, k, now),
		}
	}()
	return true
}

// Pending reports whether a prefetch is in flight or waiting to be synced.
func (ix *Index) Pending() bool { return ix.inflight.Load() }

// Sync merges a finished prefetch without blocking. Results whose records
// were forgotten or removed since the prefetch started are dropped, the rest
// are reinforced.
func (ix *Index) Sync(ctx context.Context, now time.Time) ([]Scored, bool) {
	select {
	case r := <-ix.prefetched:
		return ix.merge(ctx, r, now), true
	default:
		return nil, false
	}
}

// Await blocks until the in-flight prefetch finishes or ctx is done.
func (ix *Index) Await(ctx context.Context, now time.Time) ([]Scored, bool) {
	if !ix.inflight.Load() {
		return nil, false
	}
	select {
	case r := <-ix.prefetched:
		return ix.merge(ctx, r, now), true
	case <-ctx.Done():
		return nil, false
	}
}

func (ix *Index) merge(ctx context.Context, r prefetchResult, now time.Time) []Scored {
	defer ix.inflight.Store(false)

	ix.mu.RLock()
	live := r.results[:0]
	for _, s := range r.results {
		if rec, ok := ix.byID[s.Record.ID]; ok && !rec.Forgotten {
			live = append(live, s)
		}
	}
	ix.mu.RUnlock()

	ix.reinforce(ctx, live, now)
	ix.log.Debug().Str("query", r.query.Text).Int("results", len(live)).Msg("prefetch merged")
	return live
}
