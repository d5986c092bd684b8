package memory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/normanking/limbic/internal/emotion"
)

func openTestSQLite(t *testing.T) *SQLiteBackend {
	t.Helper()
	be, err := OpenSQLite(filepath.Join(t.TempDir(), "nested", "memory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { be.Close() })
	return be
}

func TestSQLite_PutLoadRoundTrip(t *testing.T) {
	be := openTestSQLite(t)
	ctx := context.Background()

	rec := Record{
		ID:          "m-1",
		Content:     "first snow of the year",
		Tags:        map[emotion.Emotion]float64{emotion.Joy: 0.6, emotion.Surprise: 0.3},
		Links:       []string{"winter"},
		Importance:  0.6,
		CreatedAt:   t0,
		Retention:   0.9,
		LastAccess:  t0.Add(time.Hour),
		AccessCount: 2,
		Embedding:   []float32{0.6, 0.8},
	}
	require.NoError(t, be.Put(ctx, rec))

	loaded, err := be.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)

	got := loaded[0]
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.Content, got.Content)
	assert.Equal(t, rec.Tags, got.Tags)
	assert.Equal(t, rec.Links, got.Links)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
	assert.True(t, rec.LastAccess.Equal(got.LastAccess))
	assert.Equal(t, 2, got.AccessCount)
	assert.False(t, got.Forgotten)
	assert.Equal(t, rec.Embedding, got.Embedding)
}

func TestSQLite_UpsertUpdatesRetention(t *testing.T) {
	be := openTestSQLite(t)
	ctx := context.Background()

	rec := Record{ID: "m-1", Content: "c", CreatedAt: t0, LastAccess: t0, Retention: 1}
	require.NoError(t, be.Put(ctx, rec))

	rec.Retention = 0.05
	rec.Forgotten = true
	require.NoError(t, be.Put(ctx, rec))

	loaded, err := be.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.InDelta(t, 0.05, loaded[0].Retention, 1e-12)
	assert.True(t, loaded[0].Forgotten)
}

func TestSQLite_Delete(t *testing.T) {
	be := openTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, be.Put(ctx,
		Record{ID: "a", Content: "a", CreatedAt: t0, LastAccess: t0},
		Record{ID: "b", Content: "b", CreatedAt: t0.Add(time.Second), LastAccess: t0},
		Record{ID: "c", Content: "c", CreatedAt: t0.Add(2 * time.Second), LastAccess: t0},
	))
	require.NoError(t, be.Delete(ctx, "a", "c"))
	require.NoError(t, be.Delete(ctx))

	loaded, err := be.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "b", loaded[0].ID)
}

func TestSQLite_IndexSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.db")
	ctx := context.Background()

	be, err := OpenSQLite(path)
	require.NoError(t, err)
	ix := NewIndex(DefaultConfig(), t0, zerolog.Nop(), WithBackend(be))
	_, err = ix.Store(ctx, tagged("the lake at dawn", emotion.Trust, 0.7, "lake"), 1, t0)
	require.NoError(t, err)
	ix.DecayPass(ctx, t0.Add(48*time.Hour))
	require.NoError(t, ix.Close())

	be, err = OpenSQLite(path)
	require.NoError(t, err)
	reopened := NewIndex(DefaultConfig(), t0, zerolog.Nop(), WithBackend(be))
	defer reopened.Close()
	require.NoError(t, reopened.Load(ctx))

	require.Equal(t, 1, reopened.Len())
	rec := reopened.Records()[0]
	assert.InDelta(t, 0.98*0.98, rec.Retention, 1e-9)
	results := reopened.Retrieve(Query{Links: []string{"lake"}}, emotion.State{}, 1, t0)
	require.Len(t, results, 1)
}
