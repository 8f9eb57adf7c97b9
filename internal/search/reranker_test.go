package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLexicalRerankerOrdersByOverlap(t *testing.T) {
	r := NewLexicalReranker()
	defer r.Close()

	docs := []string{
		"pancake recipes for breakfast",
		"reciprocal rank fusion combines rankings",
		"rank fusion",
	}
	results, err := r.Rerank(context.Background(), "reciprocal rank fusion", docs, 0)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Full coverage beats partial beats none.
	assert.Equal(t, 1, results[0].Index)
	assert.Equal(t, 2, results[1].Index)
	assert.Equal(t, 0, results[2].Index)
	assert.Greater(t, results[0].Score, results[1].Score)
	assert.Greater(t, results[1].Score, results[2].Score)
}

func TestLexicalRerankerScoresInUnitInterval(t *testing.T) {
	r := NewLexicalReranker()

	results, err := r.Rerank(context.Background(), "query terms", []string{
		"query terms query terms query terms",
		"",
	}, 0)
	require.NoError(t, err)
	for _, res := range results {
		assert.Greater(t, res.Score, 0.0)
		assert.Less(t, res.Score, 1.0)
	}
}

func TestLexicalRerankerTopK(t *testing.T) {
	r := NewLexicalReranker()

	results, err := r.Rerank(context.Background(), "alpha", []string{"alpha", "beta", "alpha beta"}, 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestLexicalRerankerTieKeepsInputOrder(t *testing.T) {
	r := NewLexicalReranker()

	results, err := r.Rerank(context.Background(), "alpha", []string{"alpha one", "alpha two"}, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 0, results[0].Index)
	assert.Equal(t, 1, results[1].Index)
}

func TestLexicalRerankerCancellation(t *testing.T) {
	r := NewLexicalReranker()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Rerank(ctx, "query", []string{"doc"}, 0)
	assert.Error(t, err)
}

func TestLexicalRerankerAvailable(t *testing.T) {
	r := NewLexicalReranker()
	assert.True(t, r.Available(context.Background()))
}
