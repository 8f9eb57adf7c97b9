package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/answerforge/ragcore/internal/config"
	"github.com/answerforge/ragcore/internal/embed"
	"github.com/answerforge/ragcore/internal/model"
	"github.com/answerforge/ragcore/internal/store"
)

// rerankPoolFactor widens the candidate set handed to the reranker: it sees
// 3x the final passage count and keeps the best.
const rerankPoolFactor = 3

// Engine runs hybrid retrieval over a BM25 index and a vector store and
// hydrates results from the metadata store.
type Engine struct {
	bm25     store.BM25Index
	vectors  store.VectorStore
	embedder embed.Embedder
	meta     store.MetadataStore

	reranker Reranker
	expander *Expander
	logger   *slog.Logger
	cfg      config.SearchConfig
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithReranker sets the re-ranker applied after fusion.
func WithReranker(r Reranker) Option {
	return func(e *Engine) { e.reranker = r }
}

// WithExpander enables query expansion on the BM25 branch.
func WithExpander(x *Expander) Option {
	return func(e *Engine) { e.expander = x }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithConfig overrides the retrieval defaults.
func WithConfig(cfg config.SearchConfig) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// NewEngine validates the required stores and applies options.
func NewEngine(bm25 store.BM25Index, vectors store.VectorStore, embedder embed.Embedder, meta store.MetadataStore, opts ...Option) (*Engine, error) {
	if bm25 == nil {
		return nil, fmt.Errorf("engine requires a BM25 index")
	}
	if vectors == nil {
		return nil, fmt.Errorf("engine requires a vector store")
	}
	if embedder == nil {
		return nil, fmt.Errorf("engine requires an embedder")
	}
	if meta == nil {
		return nil, fmt.Errorf("engine requires a metadata store")
	}

	e := &Engine{
		bm25:     bm25,
		vectors:  vectors,
		embedder: embedder,
		meta:     meta,
		logger:   slog.Default(),
		cfg: config.SearchConfig{
			HybridAlpha: 0.5,
			RRFConstant: DefaultRRFConstant,
			SearchTopK:  20,
			FinalTopK:   5,
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Retrieve dispatches on the request variant:
//
//	baseline   semantic branch only, no rerank
//	reranked   semantic branch widened to 3x final_k, then reranked
//	hybrid     both branches fused, rerank over the fused head
//	finetuned  hybrid with the alternate embedding profile (currently same)
func (e *Engine) Retrieve(ctx context.Context, req Request) (Result, error) {
	req = e.applyDefaults(req)

	switch req.Variant {
	case model.VariantBaseline:
		return e.retrieveSemantic(ctx, req, req.FinalK, false)
	case model.VariantReranked:
		return e.retrieveSemantic(ctx, req, req.FinalK*rerankPoolFactor, true)
	default:
		return e.retrieveHybrid(ctx, req)
	}
}

func (e *Engine) applyDefaults(req Request) Request {
	if req.FinalK <= 0 {
		req.FinalK = e.cfg.FinalTopK
	}
	if req.KBM25 <= 0 {
		req.KBM25 = e.cfg.SearchTopK
	}
	if req.KVec <= 0 {
		req.KVec = e.cfg.SearchTopK
	}
	if req.Method == "" {
		req.Method = FusionRRF
	}
	if req.Method == FusionWeighted && req.Weights.BM25 == 0 && req.Weights.Semantic == 0 {
		req.Weights = Weights{BM25: 1 - e.cfg.HybridAlpha, Semantic: e.cfg.HybridAlpha}
	}
	return req
}

// retrieveSemantic serves the baseline and reranked variants from the
// vector branch alone. The fused score is the cosine similarity.
func (e *Engine) retrieveSemantic(ctx context.Context, req Request, k int, rerank bool) (Result, error) {
	vec, err := e.searchVector(ctx, req.Query, k, req.Filter)
	if err != nil {
		return Result{}, err
	}

	hits := make([]fusedHit, 0, len(vec))
	for _, r := range vec {
		hits = append(hits, fusedHit{
			ChunkID:  r.ID,
			Fused:    float64(r.Score),
			Semantic: float64(r.Score),
		})
	}

	passages, err := e.hydrate(ctx, hits)
	if err != nil {
		return Result{}, err
	}

	if rerank {
		passages = e.rerank(ctx, req.Query, passages, req.FinalK)
	}
	if len(passages) > req.FinalK {
		passages = passages[:req.FinalK]
	}
	return Result{Passages: passages}, nil
}

// retrieveHybrid fans out both branches, fuses, and reranks the fused head.
// A single failed branch degrades to the survivor; both failing is an error.
func (e *Engine) retrieveHybrid(ctx context.Context, req Request) (Result, error) {
	var (
		bm25Hits []*store.BM25Result
		vecHits  []*store.VectorResult
		bm25Err  error
		vecErr   error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		bm25Hits, bm25Err = e.searchBM25(gctx, req.Query, req.KBM25, req.Filter)
		return nil
	})
	g.Go(func() error {
		vecHits, vecErr = e.searchVector(gctx, req.Query, req.KVec, req.Filter)
		return nil
	})
	_ = g.Wait()

	result := Result{}
	switch {
	case bm25Err != nil && vecErr != nil:
		return Result{}, fmt.Errorf("both retrieval branches failed: %w", errors.Join(bm25Err, vecErr))
	case bm25Err != nil:
		e.logger.Warn("bm25 branch failed, degrading to vector results", "error", bm25Err)
		result.Degraded = true
		result.FailedBranch = "bm25"
		bm25Hits = nil
	case vecErr != nil:
		e.logger.Warn("vector branch failed, degrading to bm25 results", "error", vecErr)
		result.Degraded = true
		result.FailedBranch = "vector"
		vecHits = nil
	}

	var hits []fusedHit
	if req.Method == FusionWeighted {
		fused, err := fuseWeighted(bm25Hits, vecHits, req.Weights)
		if err != nil {
			return Result{}, err
		}
		hits = fused
	} else {
		hits = fuseRRF(bm25Hits, vecHits, e.cfg.RRFConstant)
	}

	pool := req.FinalK * rerankPoolFactor
	if len(hits) > pool {
		hits = hits[:pool]
	}

	passages, err := e.hydrate(ctx, hits)
	if err != nil {
		return Result{}, err
	}

	passages = e.rerank(ctx, req.Query, passages, req.FinalK)
	if len(passages) > req.FinalK {
		passages = passages[:req.FinalK]
	}
	result.Passages = passages
	return result, nil
}

// searchBM25 runs the keyword branch, merging expanded query variants by
// max score when an expander is configured.
func (e *Engine) searchBM25(ctx context.Context, query string, k int, filter store.MetadataFilter) ([]*store.BM25Result, error) {
	queries := []string{query}
	if e.expander != nil {
		queries = e.expander.Expand(query)
	}

	best := make(map[string]*store.BM25Result)
	for _, q := range queries {
		hits, err := e.bm25.Search(ctx, q, k, filter)
		if err != nil {
			return nil, err
		}
		for _, h := range hits {
			if prev, ok := best[h.DocID]; !ok || h.Score > prev.Score {
				best[h.DocID] = h
			}
		}
	}

	merged := make([]*store.BM25Result, 0, len(best))
	for _, h := range best {
		merged = append(merged, h)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].DocID < merged[j].DocID
	})
	if len(merged) > k {
		merged = merged[:k]
	}
	return merged, nil
}

// searchVector embeds the query and runs the semantic branch.
func (e *Engine) searchVector(ctx context.Context, query string, k int, filter store.MetadataFilter) ([]*store.VectorResult, error) {
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := e.vectors.Search(ctx, vec, k, filter)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return hits, nil
}

// hydrate resolves fused hits into passages via the metadata store,
// preserving fusion order. Hits whose chunk vanished are dropped.
func (e *Engine) hydrate(ctx context.Context, hits []fusedHit) ([]model.Passage, error) {
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ChunkID
	}

	chunks, err := e.meta.GetChunks(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("hydrate chunks: %w", err)
	}
	byID := make(map[string]model.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}

	passages := make([]model.Passage, 0, len(hits))
	for _, h := range hits {
		chunk, ok := byID[h.ChunkID]
		if !ok {
			e.logger.Warn("fused hit missing from metadata store", "chunk_id", h.ChunkID)
			continue
		}
		passages = append(passages, model.Passage{
			Chunk:     chunk,
			Fused:     h.Fused,
			BM25Score: h.BM25Score,
			Semantic:  h.Semantic,
		})
	}
	return passages, nil
}

// rerank reorders passages by reranker score. On any failure the fused
// order is kept.
func (e *Engine) rerank(ctx context.Context, query string, passages []model.Passage, topK int) []model.Passage {
	if e.reranker == nil || len(passages) == 0 {
		return passages
	}

	docs := make([]string, len(passages))
	for i, p := range passages {
		docs[i] = p.Chunk.Text
	}

	ranked, err := e.reranker.Rerank(ctx, query, docs, topK)
	if err != nil {
		e.logger.Warn("rerank failed, keeping fused order", "error", err)
		return passages
	}

	out := make([]model.Passage, 0, len(ranked))
	for _, r := range ranked {
		p := passages[r.Index]
		score := r.Score
		p.RerankScore = &score
		out = append(out, p)
	}
	return out
}
