package embed

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder wraps StaticEmbedder and counts how many texts actually
// reach the inner implementation.
type countingEmbedder struct {
	*StaticEmbedder
	calls atomic.Int64
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	return c.StaticEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(int64(len(texts)))
	return c.StaticEmbedder.EmbedBatch(ctx, texts)
}

func TestCachedEmbedderHitSkipsInner(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder(64)}
	cached := NewCachedEmbedder(inner, 100)
	defer cached.Close()

	ctx := context.Background()
	first, err := cached.Embed(ctx, "inverted index")
	require.NoError(t, err)
	second, err := cached.Embed(ctx, "inverted index")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), inner.calls.Load())
}

func TestCachedEmbedderBatchEmbedsOnlyMisses(t *testing.T) {
	inner := &countingEmbedder{StaticEmbedder: NewStaticEmbedder(64)}
	cached := NewCachedEmbedder(inner, 100)
	defer cached.Close()

	ctx := context.Background()
	_, err := cached.Embed(ctx, "alpha")
	require.NoError(t, err)
	require.Equal(t, int64(1), inner.calls.Load())

	vecs, err := cached.EmbedBatch(ctx, []string{"alpha", "beta", "gamma"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	// alpha was already cached, only beta and gamma hit the inner embedder.
	assert.Equal(t, int64(3), inner.calls.Load())

	direct, err := inner.StaticEmbedder.Embed(ctx, "beta")
	require.NoError(t, err)
	assert.Equal(t, direct, vecs[1])
}

func TestCachedEmbedderEmptyBatch(t *testing.T) {
	cached := NewCachedEmbedder(NewStaticEmbedder(64), 10)
	defer cached.Close()

	vecs, err := cached.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
}

func TestCachedEmbedderPassthrough(t *testing.T) {
	inner := NewStaticEmbedder(128)
	cached := NewCachedEmbedder(inner, 0)
	defer cached.Close()

	assert.Equal(t, 128, cached.Dimensions())
	assert.Equal(t, "static", cached.ModelName())
	assert.True(t, cached.Available(context.Background()))
	assert.Same(t, Embedder(inner), cached.Inner())
}
