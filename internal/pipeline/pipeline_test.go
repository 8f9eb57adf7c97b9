package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/answerforge/ragcore/internal/cache"
	"github.com/answerforge/ragcore/internal/chunk"
	"github.com/answerforge/ragcore/internal/config"
	"github.com/answerforge/ragcore/internal/embed"
	"github.com/answerforge/ragcore/internal/experiment"
	"github.com/answerforge/ragcore/internal/llm"
	"github.com/answerforge/ragcore/internal/model"
	"github.com/answerforge/ragcore/internal/search"
	"github.com/answerforge/ragcore/internal/store"
)

type fixture struct {
	p       *Pipeline
	cfg     *config.Config
	cache   *cache.MemoryCache
	bm25    *store.InvertedIndex
	vectors *store.HNSWStore
	meta    *store.SQLiteStore
	router  *experiment.Router
}

// newPipeline wires a full in-process stack: static embeddings, in-memory
// stores, the stub LLM, and the memory cache. Experiments and inline
// evaluation are off unless a test turns them on via mutate.
func newPipeline(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()

	cfg := config.Default()
	cfg.Eval.Enabled = false
	cfg.Experiment.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	embedder := embed.NewStaticEmbedder(64)
	bm25 := store.NewInvertedIndex(store.DefaultBM25Config())
	vectors, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(64))
	require.NoError(t, err)
	meta, err := store.NewSQLiteStore("")
	require.NoError(t, err)
	chunker, err := chunk.New(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap)
	require.NoError(t, err)

	engine, err := search.NewEngine(bm25, vectors, embedder, meta,
		search.WithReranker(search.NewLexicalReranker()),
		search.WithConfig(cfg.Search),
		search.WithLogger(logger))
	require.NoError(t, err)

	c := cache.NewMemoryCache(256, "ragcore-test")
	router, err := experiment.NewRouter(cfg.Experiment, c, logger)
	require.NoError(t, err)

	p, err := New(cfg, Deps{
		Chunker:  chunker,
		Embedder: embedder,
		BM25:     bm25,
		Vectors:  vectors,
		Meta:     meta,
		Engine:   engine,
		LLM:      llm.NewStubClient(),
		Cache:    c,
		Router:   router,
		Logger:   logger,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		bm25.Close()
		vectors.Close()
		meta.Close()
		embedder.Close()
		c.Close()
	})

	return &fixture{p: p, cfg: cfg, cache: c, bm25: bm25, vectors: vectors, meta: meta, router: router}
}

func seedCorpus(t *testing.T, f *fixture) IngestStats {
	t.Helper()

	docs := []model.Document{
		{
			ID:      "doc-bm25",
			Content: "BM25 is a keyword ranking function built on term frequency and inverse document frequency.",
			Source:  model.SourceCustom,
		},
		{
			ID:      "doc-sem",
			Content: "Semantic search embeds text into dense vectors and retrieves by cosine similarity.",
			Source:  model.SourceCustom,
		},
		{
			ID:      "doc-hyb",
			Content: "Hybrid search combines BM25 keyword scores with vector similarity using Reciprocal Rank Fusion.",
			Source:  model.SourceCustom,
		},
	}
	stats, err := f.p.Ingest(context.Background(), docs, false)
	require.NoError(t, err)
	return stats
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(nil, Deps{})
	assert.Error(t, err)

	_, err = New(config.Default(), Deps{})
	assert.Error(t, err)
}

func TestQueryEmptyCorpus(t *testing.T) {
	f := newPipeline(t, nil)

	answer := f.p.Query(context.Background(), model.NewQuery("what is hybrid search?"))
	require.NotNil(t, answer)
	assert.Equal(t, model.StatusCompleted, answer.Status)
	assert.Equal(t, noInfoAnswer, answer.Text)
	assert.Empty(t, answer.Passages)
	assert.Zero(t, answer.Confidence)
	assert.Zero(t, answer.CostUSD)
	assert.False(t, answer.CacheHit)
}

func TestQueryEndToEnd(t *testing.T) {
	f := newPipeline(t, nil)
	seedCorpus(t, f)

	q := model.NewQuery("what is hybrid search?")
	q.MaxResults = 2
	q.Variant = model.VariantHybrid

	answer := f.p.Query(context.Background(), q)
	require.NotNil(t, answer)
	require.Equal(t, model.StatusCompleted, answer.Status)
	assert.Equal(t, model.VariantHybrid, answer.Variant)
	assert.Equal(t, q.ID, answer.QueryID)

	require.NotEmpty(t, answer.Passages)
	require.LessOrEqual(t, len(answer.Passages), 2)
	texts := make([]string, 0, len(answer.Passages))
	for _, p := range answer.Passages {
		texts = append(texts, p.Chunk.Text)
	}
	assert.True(t, strings.Contains(strings.Join(texts, " "), "Reciprocal Rank Fusion"),
		"hybrid passage missing from top results: %v", texts)

	// The stub answers from the top passage.
	assert.Contains(t, answer.Text, "Based on the available information")
	assert.Contains(t, answer.Text, "Reciprocal Rank Fusion")

	assert.Greater(t, answer.Confidence, 0.0)
	assert.LessOrEqual(t, answer.Confidence, 1.0)
	assert.Greater(t, answer.TokensUsed, 0)
	assert.InDelta(t, f.p.cost(model.VariantHybrid, len(answer.Passages), answer.TokensUsed),
		answer.CostUSD, 1e-12)
}

func TestQueryCacheHit(t *testing.T) {
	f := newPipeline(t, nil)
	seedCorpus(t, f)
	ctx := context.Background()

	q := model.NewQuery("what is hybrid search?")
	q.Variant = model.VariantHybrid
	first := f.p.Query(ctx, q)
	require.Equal(t, model.StatusCompleted, first.Status)
	assert.False(t, first.CacheHit)

	again := model.NewQuery("what is hybrid search?")
	again.Variant = model.VariantHybrid
	second := f.p.Query(ctx, again)
	require.NotNil(t, second)
	assert.True(t, second.CacheHit)
	assert.Equal(t, first.Text, second.Text)
	assert.Equal(t, again.ID, second.QueryID)

	hits, _, err := f.cache.Get(ctx, f.cache.MakeKey(cache.CounterHits))
	require.NoError(t, err)
	assert.Equal(t, "1", string(hits))
	misses, _, err := f.cache.Get(ctx, f.cache.MakeKey(cache.CounterMisses))
	require.NoError(t, err)
	assert.Equal(t, "1", string(misses))
}

func TestQueryCacheKeyScoping(t *testing.T) {
	f := newPipeline(t, nil)
	seedCorpus(t, f)
	ctx := context.Background()

	hybrid := model.NewQuery("what is hybrid search?")
	hybrid.Variant = model.VariantHybrid
	f.p.Query(ctx, hybrid)

	// A different forced variant must not collide with the hybrid entry.
	baseline := model.NewQuery("what is hybrid search?")
	baseline.Variant = model.VariantBaseline
	answer := f.p.Query(ctx, baseline)
	require.NotNil(t, answer)
	assert.False(t, answer.CacheHit)
	assert.Equal(t, model.VariantBaseline, answer.Variant)
}

func TestQueryGenerationFailureCollapses(t *testing.T) {
	f := newPipeline(t, nil)
	seedCorpus(t, f)
	ctx := context.Background()

	f.p.deps.LLM = &failingLLM{}

	q := model.NewQuery("what is hybrid search?")
	q.Variant = model.VariantHybrid
	answer := f.p.Query(ctx, q)
	require.NotNil(t, answer)
	assert.Equal(t, model.StatusFailed, answer.Status)
	assert.Contains(t, answer.ErrorMessage, "generation")
	assert.Equal(t, model.VariantHybrid, answer.Variant)
	assert.Zero(t, answer.Confidence)
	assert.Zero(t, answer.CostUSD)

	// Failed answers are never cached: the retry goes through generation
	// again instead of replaying the failure.
	retry := f.p.Query(ctx, model.Query{ID: "retry", Text: q.Text, MaxResults: q.MaxResults, Variant: q.Variant})
	assert.False(t, retry.CacheHit)
	assert.Equal(t, model.StatusFailed, retry.Status)
}

func TestQueryFallbackCompletionDegrades(t *testing.T) {
	f := newPipeline(t, nil)
	seedCorpus(t, f)

	f.p.deps.LLM = &fallbackLLM{inner: llm.NewStubClient()}

	q := model.NewQuery("what is hybrid search?")
	q.Variant = model.VariantHybrid
	answer := f.p.Query(context.Background(), q)
	require.NotNil(t, answer)
	assert.Equal(t, model.StatusDegraded, answer.Status)
	assert.NotEmpty(t, answer.Text)
}

func TestQueryForwardsZeroTemperature(t *testing.T) {
	f := newPipeline(t, nil)
	seedCorpus(t, f)
	rec := &recordingLLM{inner: llm.NewStubClient()}
	f.p.deps.LLM = rec

	zero := 0.0
	q := model.NewQuery("what is hybrid search?")
	q.Variant = model.VariantHybrid
	q.Temperature = &zero

	answer := f.p.Query(context.Background(), q)
	require.NotNil(t, answer)
	require.Equal(t, model.StatusCompleted, answer.Status)

	// A forced temperature of 0 must reach the client as 0, not collapse
	// into the unset default.
	require.NotNil(t, rec.last.Temperature)
	assert.Zero(t, *rec.last.Temperature)
}

func TestQueryRecordsExperimentOutcomes(t *testing.T) {
	f := newPipeline(t, func(cfg *config.Config) {
		cfg.Experiment.Enabled = true
		cfg.Experiment.MinSamples = 1
	})
	seedCorpus(t, f)
	ctx := context.Background()

	q := model.NewQuery("what is hybrid search?")
	q.Variant = model.VariantHybrid
	answer := f.p.Query(ctx, q)
	require.Equal(t, model.StatusCompleted, answer.Status)

	stats := f.router.Stats(DefaultExperimentID)
	require.Len(t, stats.Variants, 1)
	assert.Equal(t, model.VariantHybrid, stats.Variants[0].Variant)
	assert.Equal(t, 1, stats.Variants[0].SampleSize)
	assert.InDelta(t, 1.0, stats.Variants[0].SuccessRate, 1e-9)

	// The raw outcome record is archived in the cache.
	records, err := f.cache.GetPattern(ctx, f.cache.MakeKey(cache.NamespaceExperiments)+":*")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestCostAccounting(t *testing.T) {
	f := newPipeline(t, nil)

	// baseline: embed + vector searches + tokens
	base := f.p.cost(model.VariantBaseline, 4, 100)
	assert.InDelta(t, 0.00034, base, 1e-12)

	// hybrid adds the per-passage rerank term
	hybrid := f.p.cost(model.VariantHybrid, 4, 100)
	assert.InDelta(t, 0.00054, hybrid, 1e-12)
	assert.Greater(t, hybrid, base)

	// non-decreasing in the retrieved count
	prev := 0.0
	for n := 0; n <= 20; n++ {
		cost := f.p.cost(model.VariantHybrid, n, 100)
		assert.GreaterOrEqual(t, cost, prev)
		prev = cost
	}
}

func TestConfidenceFromFusedScores(t *testing.T) {
	passages := func(scores ...float64) []model.Passage {
		out := make([]model.Passage, len(scores))
		for i, s := range scores {
			out[i].Fused = s
		}
		return out
	}

	assert.Zero(t, confidence(nil))
	assert.InDelta(t, 0.5, confidence(passages(0.5)), 1e-9)
	// only the top three participate
	assert.InDelta(t, 0.6, confidence(passages(0.9, 0.6, 0.3, 0.0)), 1e-9)
	// clamped into [0,1] before rounding
	assert.InDelta(t, 1.0, confidence(passages(1.8, 1.2, 0.9)), 1e-9)
}

type failingLLM struct{}

func (f *failingLLM) Complete(context.Context, llm.Request) (*llm.Completion, error) {
	return nil, fmt.Errorf("model unavailable")
}
func (f *failingLLM) EstimateCost(int, int) float64 { return 0 }
func (f *failingLLM) ModelName() string             { return "failing" }
func (f *failingLLM) Available(context.Context) bool {
	return false
}
func (f *failingLLM) Close() error { return nil }

// recordingLLM answers via the stub and keeps the last request seen.
type recordingLLM struct {
	inner llm.Client
	last  llm.Request
}

func (r *recordingLLM) Complete(ctx context.Context, req llm.Request) (*llm.Completion, error) {
	r.last = req
	return r.inner.Complete(ctx, req)
}
func (r *recordingLLM) EstimateCost(p, c int) float64 { return r.inner.EstimateCost(p, c) }
func (r *recordingLLM) ModelName() string             { return r.inner.ModelName() }
func (r *recordingLLM) Available(ctx context.Context) bool {
	return r.inner.Available(ctx)
}
func (r *recordingLLM) Close() error { return r.inner.Close() }

// fallbackLLM answers via the stub but flags the completion as a fallback.
type fallbackLLM struct {
	inner llm.Client
}

func (f *fallbackLLM) Complete(ctx context.Context, req llm.Request) (*llm.Completion, error) {
	c, err := f.inner.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	c.Fallback = true
	return c, nil
}
func (f *fallbackLLM) EstimateCost(p, c int) float64 { return f.inner.EstimateCost(p, c) }
func (f *fallbackLLM) ModelName() string             { return f.inner.ModelName() }
func (f *fallbackLLM) Available(ctx context.Context) bool {
	return f.inner.Available(ctx)
}
func (f *fallbackLLM) Close() error { return f.inner.Close() }
