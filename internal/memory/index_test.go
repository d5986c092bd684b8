package memory

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/limbic/internal/bus"
	"github.com/normanking/limbic/internal/emotion"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestIndex(opts ...Option) *Index {
	return NewIndex(DefaultConfig(), t0, zerolog.Nop(), opts...)
}

func stateWith(e emotion.Emotion, v float64) emotion.State {
	return emotion.State{Levels: map[emotion.Emotion]emotion.Level{e: {Value: v, UpdatedAt: t0}}}
}

func tagged(content string, e emotion.Emotion, v float64, links ...string) Record {
	return Record{Content: content, Tags: map[emotion.Emotion]float64{e: v}, Links: links}
}

type flakyBackend struct {
	mu       sync.Mutex
	failures int
	puts     int
	deletes  int
	stored   map[string]Record
}

func (f *flakyBackend) Put(_ context.Context, records ...Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	if f.failures != 0 {
		if f.failures > 0 {
			f.failures--
		}
		return errors.New("disk on fire")
	}
	if f.stored == nil {
		f.stored = make(map[string]Record)
	}
	for _, r := range records {
		f.stored[r.ID] = r
	}
	return nil
}

func (f *flakyBackend) Delete(_ context.Context, ids ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	for _, id := range ids {
		delete(f.stored, id)
	}
	return nil
}

func (f *flakyBackend) LoadAll(context.Context) ([]Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Record
	for _, r := range f.stored {
		out = append(out, r)
	}
	return out, nil
}

func (f *flakyBackend) Close() error { return nil }

func TestStore_RejectsEmptyContent(t *testing.T) {
	ix := newTestIndex()

	_, err := ix.Store(context.Background(), Record{Content: "   "}, 1, t0)

	assert.ErrorIs(t, err, ErrEmptyContent)
	assert.Equal(t, 0, ix.Len())
}

func TestStore_Importance(t *testing.T) {
	ix := newTestIndex()

	rec, err := ix.Store(context.Background(), tagged("finished the marathon", emotion.Joy, 0.5), 0.8, t0)
	require.NoError(t, err)

	assert.NotEmpty(t, rec.ID)
	assert.InDelta(t, 0.4, rec.Importance, 1e-12)
	assert.Equal(t, 1.0, rec.Retention)
	assert.Equal(t, t0, rec.CreatedAt)
	assert.Equal(t, 1, ix.Len())
}

func TestStore_DropsUnknownTags(t *testing.T) {
	ix := newTestIndex()

	rec, err := ix.Store(context.Background(), Record{
		Content: "odd day",
		Tags:    map[emotion.Emotion]float64{"ennui": 0.9, emotion.Sadness: 1.4},
	}, 1, t0)
	require.NoError(t, err)

	assert.Equal(t, map[emotion.Emotion]float64{emotion.Sadness: 1}, rec.Tags)
}

func TestStore_DuplicateKeepsNewest(t *testing.T) {
	ix := newTestIndex()
	ctx := context.Background()

	first, err := ix.Store(ctx, tagged("lunch with sam", emotion.Joy, 0.5), 1, t0)
	require.NoError(t, err)
	second, err := ix.Store(ctx, tagged("lunch with sam", emotion.Trust, 0.7), 1, t0.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 1, ix.Len())
	assert.NotEqual(t, first.ID, second.ID)
	_, ok := ix.Get(first.ID)
	assert.False(t, ok)
	got, ok := ix.Get(second.ID)
	require.True(t, ok)
	assert.InDelta(t, 0.7, got.Tags[emotion.Trust], 1e-12)
}

func TestStore_OlderDuplicateReinforcesExisting(t *testing.T) {
	ix := newTestIndex()
	ctx := context.Background()

	kept, err := ix.Store(ctx, tagged("lunch with sam", emotion.Joy, 0.5), 1, t0)
	require.NoError(t, err)

	old := tagged("lunch with sam", emotion.Joy, 0.9)
	old.CreatedAt = t0.Add(-24 * time.Hour)
	got, err := ix.Store(ctx, old, 1, t0.Add(time.Minute))
	require.NoError(t, err)

	assert.Equal(t, kept.ID, got.ID)
	assert.Equal(t, 1, got.AccessCount)
	assert.Equal(t, 1, ix.Len())
}

func TestStore_BlendedDuplicate(t *testing.T) {
	ix := newTestIndex(WithDuplicateStrategy(bus.WeightedBlend{Weight: 0.5}))
	ctx := context.Background()

	_, err := ix.Store(ctx, tagged("rain again", emotion.Sadness, 0.2), 1, t0)
	require.NoError(t, err)
	got, err := ix.Store(ctx, tagged("rain again", emotion.Sadness, 0.6), 1, t0.Add(time.Hour))
	require.NoError(t, err)

	assert.InDelta(t, 0.4, got.Importance, 1e-12)
	assert.Equal(t, 1, ix.Len())
}

func TestRetrieve_RanksBySimilarity(t *testing.T) {
	ix := newTestIndex()
	ctx := context.Background()

	_, err := ix.Store(ctx, tagged("the cat sat on the mat", emotion.Joy, 0.5), 1, t0)
	require.NoError(t, err)
	_, err = ix.Store(ctx, tagged("quarterly tax filing deadline", emotion.Fear, 0.5), 1, t0)
	require.NoError(t, err)

	results := ix.Retrieve(Query{Text: "cat on the mat"}, emotion.State{}, 5, t0)

	require.NotEmpty(t, results)
	assert.Equal(t, "the cat sat on the mat", results[0].Record.Content)
	assert.Nil(t, results[0].Record.Embedding)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestRetrieve_HasNoSideEffects(t *testing.T) {
	ix := newTestIndex()
	rec, err := ix.Store(context.Background(), tagged("blue whale song", emotion.Surprise, 0.6), 1, t0)
	require.NoError(t, err)

	ix.Retrieve(Query{Text: "blue whale song"}, emotion.State{}, 5, t0.Add(time.Hour))

	got, _ := ix.Get(rec.ID)
	assert.Equal(t, 0, got.AccessCount)
	assert.Equal(t, t0, got.LastAccess)
}

func TestRetrieve_MoodCongruence(t *testing.T) {
	ix := newTestIndex()
	ctx := context.Background()

	_, err := ix.Store(ctx, tagged("garden party with friends", emotion.Joy, 0.8), 1, t0)
	require.NoError(t, err)
	_, err = ix.Store(ctx, tagged("garden party got rained out", emotion.Sadness, 0.8), 1, t0)
	require.NoError(t, err)

	results := ix.Retrieve(Query{Text: "garden party"}, stateWith(emotion.Joy, 0.7), 5, t0)

	require.Len(t, results, 2)
	for _, r := range results {
		tag, _ := r.Record.DominantTag()
		if tag == emotion.Joy {
			assert.InDelta(t, 1.5, r.Congruence, 1e-12)
		} else {
			assert.InDelta(t, 1.0, r.Congruence, 1e-12)
		}
	}
}

func TestRetrieve_RecencyHalfLife(t *testing.T) {
	ix := newTestIndex()
	_, err := ix.Store(context.Background(), tagged("moved to a new flat", emotion.Anticipation, 0.5), 1, t0)
	require.NoError(t, err)

	results := ix.Retrieve(Query{Text: "new flat"}, emotion.State{}, 1, t0.Add(7*24*time.Hour))

	require.Len(t, results, 1)
	assert.InDelta(t, 0.5, results[0].Recency, 1e-9)
}

func TestRetrieve_LinkOverlap(t *testing.T) {
	ix := newTestIndex()
	_, err := ix.Store(context.Background(), tagged("x", emotion.Trust, 0.5, "alice", "project-q"), 1, t0)
	require.NoError(t, err)

	results := ix.Retrieve(Query{Links: []string{"Alice", "project-q"}}, emotion.State{}, 1, t0)

	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-6)
}

func TestRecall_Reinforces(t *testing.T) {
	ix := newTestIndex()
	ctx := context.Background()
	rec, err := ix.Store(ctx, tagged("first day at the new job", emotion.Anticipation, 0.6), 1, t0)
	require.NoError(t, err)

	ix.DecayPass(ctx, t0.Add(10*24*time.Hour))
	before, _ := ix.Get(rec.ID)

	results := ix.Recall(ctx, Query{Text: "new job"}, emotion.State{}, 3, t0.Add(11*24*time.Hour))

	require.Len(t, results, 1)
	after, _ := ix.Get(rec.ID)
	assert.InDelta(t, before.Retention+0.1, after.Retention, 1e-12)
	assert.Equal(t, 1, after.AccessCount)
	assert.Equal(t, t0.Add(11*24*time.Hour), after.LastAccess)
}

func TestDecayPass_DailyFactor(t *testing.T) {
	ix := newTestIndex()
	ctx := context.Background()
	rec, err := ix.Store(ctx, tagged("met an old friend", emotion.Joy, 0.5), 1, t0)
	require.NoError(t, err)

	decayed, forgotten := ix.DecayPass(ctx, t0.Add(24*time.Hour))

	assert.Equal(t, 1, decayed)
	assert.Equal(t, 0, forgotten)
	got, _ := ix.Get(rec.ID)
	assert.InDelta(t, 0.98, got.Retention, 1e-12)
	assert.Equal(t, t0.Add(24*time.Hour), ix.LastDecay())
}

func TestDecayPass_SoftDeletesBelowFloor(t *testing.T) {
	ix := newTestIndex()
	ctx := context.Background()
	_, err := ix.Store(ctx, tagged("parking ticket", emotion.Anger, 0.4), 1, t0)
	require.NoError(t, err)

	_, forgotten := ix.DecayPass(ctx, t0.Add(120*24*time.Hour))

	assert.Equal(t, 1, forgotten)
	assert.Equal(t, 0, ix.Len())
	assert.Empty(t, ix.Retrieve(Query{Text: "parking ticket"}, emotion.State{}, 5, t0.Add(121*24*time.Hour)))
	assert.Equal(t, 1, ix.Purge(ctx))
	assert.Empty(t, ix.Records())
}

func TestDecayPass_RecentAccessProtects(t *testing.T) {
	ix := newTestIndex()
	ctx := context.Background()
	_, err := ix.Store(ctx, tagged("parking ticket", emotion.Anger, 0.4), 1, t0)
	require.NoError(t, err)
	ix.Recall(ctx, Query{Text: "parking ticket"}, emotion.State{}, 1, t0.Add(time.Hour))

	_, forgotten := ix.DecayPass(ctx, t0.Add(120*24*time.Hour))

	assert.Equal(t, 0, forgotten)
	assert.Equal(t, 1, ix.Len())
}

func TestDecayPass_BackwardsClockIsNoop(t *testing.T) {
	ix := newTestIndex()
	ctx := context.Background()
	_, err := ix.Store(ctx, tagged("sunrise", emotion.Joy, 0.5), 1, t0)
	require.NoError(t, err)

	decayed, forgotten := ix.DecayPass(ctx, t0.Add(-time.Hour))

	assert.Zero(t, decayed)
	assert.Zero(t, forgotten)
	assert.Equal(t, t0, ix.LastDecay())
}

func TestAssociationsAndNovelty(t *testing.T) {
	ix := newTestIndex()
	ctx := context.Background()
	_, err := ix.Store(ctx, tagged("argued with bob", emotion.Anger, 0.8, "bob"), 1, t0)
	require.NoError(t, err)
	_, err = ix.Store(ctx, tagged("bob helped me move", emotion.Trust, 0.6, "bob", "move"), 1, t0)
	require.NoError(t, err)

	assoc := ix.Associations([]string{"bob"})
	assert.InDelta(t, 0.8, assoc[emotion.Anger], 1e-12)
	assert.InDelta(t, 0.6, assoc[emotion.Trust], 1e-12)
	assert.Empty(t, ix.Associations(nil))

	assert.InDelta(t, 0.5, ix.Novelty([]string{"bob", "carol"}), 1e-12)
	assert.InDelta(t, 0.0, ix.Novelty([]string{"move"}), 1e-12)
	assert.Zero(t, ix.Novelty(nil))
}

func TestForget(t *testing.T) {
	ix := newTestIndex()
	ctx := context.Background()
	rec, err := ix.Store(ctx, tagged("spilled coffee", emotion.Disgust, 0.3), 1, t0)
	require.NoError(t, err)

	require.NoError(t, ix.Forget(ctx, rec.ID))
	assert.ErrorIs(t, ix.Forget(ctx, rec.ID), ErrNotFound)
	assert.Equal(t, 0, ix.Len())
}

func TestBackend_RetriesOnce(t *testing.T) {
	be := &flakyBackend{failures: 1}
	ix := newTestIndex(WithBackend(be))

	_, err := ix.Store(context.Background(), tagged("flaky disk", emotion.Fear, 0.5), 1, t0)

	require.NoError(t, err)
	assert.Equal(t, 2, be.puts)
	assert.Equal(t, 1, ix.Len())
}

func TestBackend_DropsAfterSecondFailure(t *testing.T) {
	be := &flakyBackend{failures: -1}
	ix := newTestIndex(WithBackend(be))

	_, err := ix.Store(context.Background(), tagged("dead disk", emotion.Fear, 0.5), 1, t0)

	assert.ErrorIs(t, err, ErrDropped)
	assert.Equal(t, 2, be.puts)
	assert.Equal(t, 0, ix.Len())
}

func TestLoad_FromBackend(t *testing.T) {
	be := &flakyBackend{}
	ctx := context.Background()
	src := newTestIndex(WithBackend(be))
	_, err := src.Store(ctx, tagged("kept on disk", emotion.Trust, 0.5), 1, t0)
	require.NoError(t, err)

	dst := newTestIndex(WithBackend(be))
	require.NoError(t, dst.Load(ctx))

	assert.Equal(t, 1, dst.Len())
	results := dst.Retrieve(Query{Text: "kept on disk"}, emotion.State{}, 1, t0)
	require.Len(t, results, 1)
}

func TestImport_RebuildsEmbeddings(t *testing.T) {
	src := newTestIndex()
	_, err := src.Store(context.Background(), tagged("snow in april", emotion.Surprise, 0.7), 1, t0)
	require.NoError(t, err)

	records := src.Records()
	for i := range records {
		records[i].Embedding = nil
	}
	dst := newTestIndex()
	dst.Import(records, t0.Add(time.Hour))

	assert.Equal(t, t0.Add(time.Hour), dst.LastDecay())
	results := dst.Retrieve(Query{Text: "snow in april"}, emotion.State{}, 1, t0)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-6)
}

func TestPrefetch_SyncAtBoundary(t *testing.T) {
	ix := newTestIndex()
	ctx := context.Background()
	rec, err := ix.Store(ctx, tagged("learning the cello", emotion.Anticipation, 0.6), 1, t0)
	require.NoError(t, err)

	require.True(t, ix.Prefetch(Query{Text: "cello"}, emotion.State{}, 3, t0))
	assert.False(t, ix.Prefetch(Query{Text: "cello"}, emotion.State{}, 3, t0))
	assert.True(t, ix.Pending())

	results, ok := ix.Await(ctx, t0.Add(time.Minute))

	require.True(t, ok)
	require.Len(t, results, 1)
	assert.Equal(t, rec.ID, results[0].Record.ID)
	assert.False(t, ix.Pending())
	got, _ := ix.Get(rec.ID)
	assert.Equal(t, 1, got.AccessCount)

	_, ok = ix.Sync(ctx, t0)
	assert.False(t, ok)
}

func TestPrefetch_DropsForgottenResults(t *testing.T) {
	ix := newTestIndex()
	ctx := context.Background()
	rec, err := ix.Store(ctx, tagged("learning the cello", emotion.Anticipation, 0.6), 1, t0)
	require.NoError(t, err)

	require.True(t, ix.Prefetch(Query{Text: "cello"}, emotion.State{}, 3, t0))
	require.NoError(t, ix.Forget(ctx, rec.ID))

	results, ok := ix.Await(ctx, t0)

	require.True(t, ok)
	assert.Empty(t, results)
}

func TestDecayRetention(t *testing.T) {
	assert.InDelta(t, 0.98*0.98, DecayRetention(1, 2, 0.98), 1e-12)
	assert.InDelta(t, math.Pow(0.98, 0.5), DecayRetention(1, 0.5, 0.98), 1e-12)
	assert.Equal(t, 0.7, DecayRetention(0.7, 0, 0.98))
}
