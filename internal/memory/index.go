package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/normanking/limbic/internal/bus"
	"github.com/normanking/limbic/internal/emotion"
	"github.com/normanking/limbic/internal/stimulus"
)

// Index is the MemoryIndex. Records are immutable once stored apart from
// their retention fields (retention, last access, access count, forgotten).
type Index struct {
	cfg      Config
	embedder Embedder
	backend  Backend
	dupes    bus.Strategy
	log      zerolog.Logger

	mu        sync.RWMutex
	records   []*Record
	byID      map[string]*Record
	lastDecay time.Time

	prefetched chan prefetchResult
	inflight   atomic.Bool
}

// Option configures an Index.
type Option func(*Index)

// WithBackend persists records to b.
func WithBackend(b Backend) Option { return func(ix *Index) { ix.backend = b } }

// WithEmbedder replaces the default hash embedder.
func WithEmbedder(e Embedder) Option { return func(ix *Index) { ix.embedder = e } }

// WithDuplicateStrategy sets how storing already-known content is resolved.
func WithDuplicateStrategy(s bus.Strategy) Option { return func(ix *Index) { ix.dupes = s } }

// NewIndex creates an empty index whose decay clock starts at now.
func NewIndex(cfg Config, now time.Time, log zerolog.Logger, opts ...Option) *Index {
	ix := &Index{
		cfg:        cfg,
		embedder:   NewHashEmbedder(cfg.EmbeddingDim),
		dupes:      bus.RecencyPriority{},
		log:        log.With().Str("component", "memory").Logger(),
		byID:       make(map[string]*Record),
		lastDecay:  now,
		prefetched: make(chan prefetchResult, 1),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// SetConfig swaps the tunables. The embedder and backend are kept.
func (ix *Index) SetConfig(cfg Config) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.cfg = cfg
}

// Persistent reports whether records live in a backend.
func (ix *Index) Persistent() bool { return ix.backend != nil }

// Load replaces the in-process records with the backend's contents.
func (ix *Index) Load(ctx context.Context) error {
	if ix.backend == nil {
		return nil
	}
	var loaded []Record
	err := ix.withRetry(ctx, "load", func(ctx context.Context) error {
		var err error
		loaded, err = ix.backend.LoadAll(ctx)
		return err
	})
	if err != nil {
		return err
	}
	ix.Import(loaded, ix.LastDecay())
	ix.log.Info().Int("records", len(loaded)).Msg("memory loaded")
	return nil
}

// Store indexes a new record. Importance is stimulus intensity times the
// record's strongest tag. Empty content is rejected.
func (ix *Index) Store(ctx context.Context, rec Record, intensity float64, now time.Time) (Record, error) {
	content := strings.TrimSpace(rec.Content)
	if content == "" {
		ix.log.Warn().Msg("rejecting memory with empty content")
		return Record{}, ErrEmptyContent
	}

	r := rec.clone()
	r.Content = content
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.Tags = cleanTags(r.Tags)
	r.Links = normalizeLinks(r.Links)
	r.Importance = stimulus.Clamp01(stimulus.Clamp01(intensity) * r.TagStrength())
	r.Retention = 1
	r.LastAccess = r.CreatedAt
	r.AccessCount = 0
	r.Forgotten = false
	r.Embedding = ix.embedder.Embed(embedText(r.Content, r.Links))

	ix.mu.Lock()
	defer ix.mu.Unlock()

	existing := ix.findContentLocked(content)
	if existing != nil {
		cur := bus.Value{Level: existing.Importance, At: existing.CreatedAt}
		in := bus.Value{Level: r.Importance, At: r.CreatedAt}
		res := ix.dupes.Resolve(cur, in)
		if sameValue(res, cur) && !sameValue(res, in) {
			ix.reinforceLocked(existing, now)
			ix.putLocked(ctx, "reinforce", *existing)
			return existing.clone(), nil
		}
		r.Importance = stimulus.Clamp01(res.Level)
	}

	if err := ix.putLocked(ctx, "store", r); err != nil {
		return Record{}, err
	}
	if existing != nil {
		ix.removeLocked(existing.ID)
		ix.deleteLocked(ctx, existing.ID)
		ix.log.Debug().Str("replaced", existing.ID).Str("id", r.ID).Msg("duplicate memory resolved")
	}

	stored := r
	ix.records = append(ix.records, &stored)
	ix.byID[stored.ID] = &stored
	return stored.clone(), nil
}

// Retrieve ranks active records against q without side effects.
func (ix *Index) Retrieve(q Query, state emotion.State, k int, now time.Time) []Scored {
	if k <= 0 {
		k = ix.cfg.DefaultK
	}
	dominant, _ := emotion.Dominant(state)

	ix.mu.RLock()
	candidates := ix.activeLocked()
	cfg := ix.cfg
	ix.mu.RUnlock()

	qEmb := ix.embedder.Embed(embedText(q.Text, q.Links))
	return rank(cfg, candidates, qEmb, normalizeLinks(q.Links), dominant, k, now)
}

// Recall retrieves and reinforces every returned record.
func (ix *Index) Recall(ctx context.Context, q Query, state emotion.State, k int, now time.Time) []Scored {
	results := ix.Retrieve(q, state, k, now)
	ix.reinforce(ctx, results, now)
	return results
}

// Associations returns, per emotion, the strongest tag*retention among active
// records sharing at least one link.
func (ix *Index) Associations(links []string) map[emotion.Emotion]float64 {
	links = normalizeLinks(links)
	out := make(map[emotion.Emotion]float64)
	if len(links) == 0 {
		return out
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()
	for _, r := range ix.records {
		if r.Forgotten || Jaccard(links, r.Links) == 0 {
			continue
		}
		for e, v := range r.Tags {
			if s := v * r.Retention; s > out[e] {
				out[e] = s
			}
		}
	}
	return out
}

// Novelty is the fraction of links no active record mentions.
func (ix *Index) Novelty(links []string) float64 {
	links = normalizeLinks(links)
	if len(links) == 0 {
		return 0
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()
	known := make(map[string]bool)
	for _, r := range ix.records {
		if r.Forgotten {
			continue
		}
		for _, l := range r.Links {
			known[l] = true
		}
	}
	unseen := 0
	for _, l := range links {
		if !known[l] {
			unseen++
		}
	}
	return float64(unseen) / float64(len(links))
}

// DecayPass multiplies retention by DailyDecay per elapsed day. Records that
// fall below the floor and were not accessed since the previous pass are
// soft-deleted.
func (ix *Index) DecayPass(ctx context.Context, now time.Time) (decayed, forgotten int) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	prev := ix.lastDecay
	if !now.After(prev) {
		return 0, 0
	}

	var changed []Record
	for _, r := range ix.records {
		if r.Forgotten {
			continue
		}
		from := prev
		if r.CreatedAt.After(from) {
			from = r.CreatedAt
		}
		days := now.Sub(from).Hours() / 24
		if days <= 0 {
			continue
		}
		r.Retention = DecayRetention(r.Retention, days, ix.cfg.DailyDecay)
		decayed++
		if r.Retention < ix.cfg.RetentionFloor && !r.LastAccess.After(prev) {
			r.Forgotten = true
			forgotten++
		}
		changed = append(changed, *r)
	}
	ix.lastDecay = now

	if len(changed) > 0 {
		ix.putLocked(ctx, "decay", changed...)
	}
	ix.log.Info().Int("decayed", decayed).Int("forgotten", forgotten).Msg("memory decay pass")
	return decayed, forgotten
}

// Forget deletes a record outright.
func (ix *Index) Forget(ctx context.Context, id string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, ok := ix.byID[id]; !ok {
		return fmt.Errorf("forget %s: %w", id, ErrNotFound)
	}
	ix.removeLocked(id)
	ix.deleteLocked(ctx, id)
	return nil
}

// Purge hard-deletes every soft-deleted record and returns how many went.
func (ix *Index) Purge(ctx context.Context) int {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	var ids []string
	for _, r := range ix.records {
		if r.Forgotten {
			ids = append(ids, r.ID)
		}
	}
	for _, id := range ids {
		ix.removeLocked(id)
	}
	if len(ids) > 0 {
		ix.deleteLocked(ctx, ids...)
	}
	return len(ids)
}

// Get returns a record by ID.
func (ix *Index) Get(id string) (Record, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	r, ok := ix.byID[id]
	if !ok {
		return Record{}, false
	}
	return r.clone(), true
}

// Len returns the number of active records.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	n := 0
	for _, r := range ix.records {
		if !r.Forgotten {
			n++
		}
	}
	return n
}

// Records returns copies of every record, soft-deleted ones included, in
// insertion order.
func (ix *Index) Records() []Record {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]Record, len(ix.records))
	for i, r := range ix.records {
		out[i] = r.clone()
	}
	return out
}

// LastDecay returns when the last decay pass ran.
func (ix *Index) LastDecay() time.Time {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.lastDecay
}

// SetLastDecay moves the decay clock, e.g. to the value saved in a snapshot.
func (ix *Index) SetLastDecay(t time.Time) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.lastDecay = t
}

// Import replaces the in-process records. Embeddings are rebuilt.
func (ix *Index) Import(records []Record, lastDecay time.Time) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	sorted := append([]Record(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CreatedAt.Before(sorted[j].CreatedAt) })

	ix.records = ix.records[:0]
	ix.byID = make(map[string]*Record, len(sorted))
	for _, rec := range sorted {
		r := rec.clone()
		r.Retention = stimulus.Clamp01(r.Retention)
		if len(r.Embedding) != ix.embedder.Dimension() {
			r.Embedding = ix.embedder.Embed(embedText(r.Content, r.Links))
		}
		ix.records = append(ix.records, &r)
		ix.byID[r.ID] = &r
	}
	if !lastDecay.IsZero() {
		ix.lastDecay = lastDecay
	}
}

// Close releases the backend.
func (ix *Index) Close() error {
	if ix.backend == nil {
		return nil
	}
	return ix.backend.Close()
}

func (ix *Index) reinforce(ctx context.Context, results []Scored, now time.Time) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	var touched []Record
	for _, s := range results {
		r, ok := ix.byID[s.Record.ID]
		if !ok || r.Forgotten {
			continue
		}
		ix.reinforceLocked(r, now)
		touched = append(touched, *r)
	}
	if len(touched) > 0 {
		ix.putLocked(ctx, "reinforce", touched...)
	}
}

func (ix *Index) reinforceLocked(r *Record, now time.Time) {
	r.Retention = math.Min(1, r.Retention+ix.cfg.ReinforceBoost)
	if now.After(r.LastAccess) {
		r.LastAccess = now
	}
	r.AccessCount++
}

func (ix *Index) findContentLocked(content string) *Record {
	for _, r := range ix.records {
		if !r.Forgotten && r.Content == content {
			return r
		}
	}
	return nil
}

func (ix *Index) activeLocked() []Record {
	out := make([]Record, 0, len(ix.records))
	for _, r := range ix.records {
		if !r.Forgotten {
			out = append(out, *r)
		}
	}
	return out
}

func (ix *Index) removeLocked(id string) {
	delete(ix.byID, id)
	for i, r := range ix.records {
		if r.ID == id {
			ix.records = append(ix.records[:i], ix.records[i+1:]...)
			return
		}
	}
}

func (ix *Index) putLocked(ctx context.Context, op string, records ...Record) error {
	if ix.backend == nil {
		return nil
	}
	return ix.withRetry(ctx, op, func(ctx context.Context) error {
		return ix.backend.Put(ctx, records...)
	})
}

func (ix *Index) deleteLocked(ctx context.Context, ids ...string) {
	if ix.backend == nil {
		return
	}
	_ = ix.withRetry(ctx, "delete", func(ctx context.Context) error {
		return ix.backend.Delete(ctx, ids...)
	})
}

// withRetry runs fn at most twice, each attempt bounded by IOTimeout. A
// second failure is logged and returned wrapped in ErrDropped.
func (ix *Index) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= 2; attempt++ {
		opCtx, cancel := context.WithTimeout(ctx, ix.cfg.IOTimeout)
		err = fn(opCtx)
		cancel()
		if err == nil {
			return nil
		}
		if attempt == 1 {
			ix.log.Warn().Err(err).Str("op", op).Msg("memory backend failed, retrying")
		}
	}
	ix.log.Error().Err(err).Str("op", op).Msg("memory backend failed twice, dropping")
	return fmt.Errorf("%w: %s: %w", ErrDropped, op, err)
}

// rank scores candidates: similarity * congruence * recency. It only reads
// its arguments so it can run off the loop goroutine.
func rank(cfg Config, candidates []Record, qEmb []float32, qLinks []string, dominant emotion.Emotion, k int, now time.Time) []Scored {
	items := make([]ScoredItem[Scored], 0, len(candidates))
	for _, r := range candidates {
		sim := math.Max(CosineSimilarity(qEmb, r.Embedding), Jaccard(qLinks, r.Links))
		if sim < cfg.MinSimilarity || sim <= 0 {
			continue
		}

		congruence := 1.0
		if dominant != emotion.Neutral {
			if tag, _ := r.DominantTag(); tag == dominant {
				congruence += cfg.CongruenceBoost
			}
		}

		age := now.Sub(r.CreatedAt)
		if age < 0 {
			age = 0
		}
		recency := math.Exp(-math.Ln2 * float64(age) / float64(cfg.RecencyHalfLife))

		s := Scored{
			Record:     r.clone(),
			Score:      sim * congruence * recency,
			Similarity: sim,
			Congruence: congruence,
			Recency:    recency,
		}
		s.Record.Embedding = nil
		items = append(items, ScoredItem[Scored]{Item: s, Score: s.Score})
	}

	top := TopKWithScores(items, k)
	out := make([]Scored, len(top))
	for i, it := range top {
		out[i] = it.Item
	}
	return out
}

func sameValue(a, b bus.Value) bool {
	return a.Level == b.Level && a.At.Equal(b.At)
}

func cleanTags(tags map[emotion.Emotion]float64) map[emotion.Emotion]float64 {
	out := make(map[emotion.Emotion]float64, len(tags))
	for e, v := range tags {
		if _, ok := emotion.Parse(string(e)); !ok {
			continue
		}
		if v = stimulus.Clamp01(v); v > 0 {
			out[e] = v
		}
	}
	return out
}

func normalizeLinks(links []string) []string {
	if len(links) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(links))
	out := make([]string, 0, len(links))
	for _, l := range links {
		l = strings.ToLower(strings.TrimSpace(l))
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

func embedText(text string, links []string) string {
	return text + " " + strings.Join(links, " ")
}
