package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVectorStore(t *testing.T) *HNSWStore {
	t.Helper()
	s, err := NewHNSWStore(DefaultVectorStoreConfig(4))
	require.NoError(t, err)
	return s
}

func TestHNSWAddAndSearch(t *testing.T) {
	s := newTestVectorStore(t)
	defer s.Close()

	ctx := context.Background()
	err := s.Add(ctx,
		[]string{"a", "b", "c"},
		[][]float32{
			{1, 0, 0, 0},
			{0, 1, 0, 0},
			{0.9, 0.1, 0, 0},
		}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Count())

	results, err := s.Search(ctx, []float32{1, 0, 0, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "a", results[0].ID)
	assert.InDelta(t, 1.0, float64(results[0].Score), 1e-5)
	assert.Equal(t, "c", results[1].ID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestHNSWDimensionMismatch(t *testing.T) {
	s := newTestVectorStore(t)
	defer s.Close()

	ctx := context.Background()
	err := s.Add(ctx, []string{"a"}, [][]float32{{1, 0}}, nil)
	var dimErr ErrDimensionMismatch
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 4, dimErr.Expected)
	assert.Equal(t, 2, dimErr.Got)

	_, err = s.Search(ctx, []float32{1, 0}, 1, nil)
	assert.ErrorAs(t, err, &dimErr)
}

func TestHNSWReplaceExistingID(t *testing.T) {
	s := newTestVectorStore(t)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Add(ctx, []string{"a"}, [][]float32{{1, 0, 0, 0}}, nil))
	require.NoError(t, s.Add(ctx, []string{"a"}, [][]float32{{0, 1, 0, 0}}, nil))
	assert.Equal(t, 1, s.Count())

	results, err := s.Search(ctx, []float32{0, 1, 0, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
	assert.InDelta(t, 1.0, float64(results[0].Score), 1e-5)
}

func TestHNSWDeleteHidesVector(t *testing.T) {
	s := newTestVectorStore(t)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Add(ctx,
		[]string{"a", "b"},
		[][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}}, nil))

	require.NoError(t, s.Delete(ctx, []string{"a"}))
	assert.False(t, s.Contains("a"))
	assert.Equal(t, 1, s.Count())

	// The node stays in the graph as an orphan but never surfaces.
	results, err := s.Search(ctx, []float32{1, 0, 0, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)
}

func TestHNSWMetadataFilter(t *testing.T) {
	s := newTestVectorStore(t)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Add(ctx,
		[]string{"a", "b", "c"},
		[][]float32{
			{1, 0, 0, 0},
			{0.9, 0.1, 0, 0},
			{0.8, 0.2, 0, 0},
		},
		[]map[string]string{
			{"source": "arxiv"},
			{"source": "web"},
			{"source": "arxiv"},
		}))

	results, err := s.Search(ctx, []float32{1, 0, 0, 0}, 2, MetadataFilter{"source": {"arxiv"}})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "c", results[1].ID)
}

func TestHNSWEmptyStore(t *testing.T) {
	s := newTestVectorStore(t)
	defer s.Close()

	results, err := s.Search(context.Background(), []float32{1, 0, 0, 0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestHNSWStatus(t *testing.T) {
	s := newTestVectorStore(t)

	ctx := context.Background()
	status := s.Status(ctx)
	assert.Equal(t, "empty", status.Status)
	assert.Equal(t, 0, status.DocumentCount)

	require.NoError(t, s.Add(ctx, []string{"a"}, [][]float32{{1, 0, 0, 0}}, nil))
	status = s.Status(ctx)
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, 1, status.DocumentCount)
	assert.True(t, status.SearchWorking)

	require.NoError(t, s.Close())
	status = s.Status(ctx)
	assert.Equal(t, "degraded", status.Status)
	assert.False(t, status.SearchWorking)
}

func TestHNSWSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.hnsw")

	s := newTestVectorStore(t)
	ctx := context.Background()
	require.NoError(t, s.Add(ctx,
		[]string{"a", "b"},
		[][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}},
		[]map[string]string{{"source": "web"}, {"source": "arxiv"}}))
	require.NoError(t, s.Save(path))
	require.NoError(t, s.Close())

	restored, err := NewHNSWStore(DefaultVectorStoreConfig(4))
	require.NoError(t, err)
	defer restored.Close()
	require.NoError(t, restored.Load(path))

	assert.Equal(t, 2, restored.Count())
	results, err := restored.Search(ctx, []float32{0, 1, 0, 0}, 1, MetadataFilter{"source": {"arxiv"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)
}

func TestHNSWReset(t *testing.T) {
	s := newTestVectorStore(t)
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, []string{"a"}, [][]float32{{1, 0, 0, 0}}, nil))

	require.NoError(t, s.Reset(ctx))
	assert.Zero(t, s.Count())
	assert.Equal(t, "empty", s.Status(ctx).Status)

	require.NoError(t, s.Add(ctx, []string{"b"}, [][]float32{{0, 1, 0, 0}}, nil))
	results, err := s.Search(ctx, []float32{0, 1, 0, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)
}
