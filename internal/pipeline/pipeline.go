// Package pipeline drives a query end to end: cache lookup, variant
// selection, hybrid retrieval, prompt assembly, generation, cost and
// confidence accounting, caching, and outcome recording. It also owns
// corpus ingestion into the three stores.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/answerforge/ragcore/internal/cache"
	"github.com/answerforge/ragcore/internal/chunk"
	"github.com/answerforge/ragcore/internal/config"
	"github.com/answerforge/ragcore/internal/embed"
	"github.com/answerforge/ragcore/internal/eval"
	"github.com/answerforge/ragcore/internal/experiment"
	"github.com/answerforge/ragcore/internal/llm"
	"github.com/answerforge/ragcore/internal/model"
	"github.com/answerforge/ragcore/internal/prompt"
	"github.com/answerforge/ragcore/internal/search"
	"github.com/answerforge/ragcore/internal/store"
)

// DefaultExperimentID names the always-on retrieval variant experiment.
const DefaultExperimentID = "retrieval-variants"

// noInfoAnswer is returned when retrieval finds nothing.
const noInfoAnswer = "I couldn't find relevant information to answer your question."

// confidenceWindow is how many top passages feed the confidence mean.
const confidenceWindow = 3

// Deps are the pipeline's collaborators. Chunker, Embedder and the three
// stores are required for ingestion; Engine, LLM and Cache for queries.
// Router and Evaluator are optional.
type Deps struct {
	Chunker   *chunk.Chunker
	Embedder  embed.Embedder
	BM25      store.BM25Index
	Vectors   store.VectorStore
	Meta      store.MetadataStore
	Engine    *search.Engine
	Assembler *prompt.Assembler
	LLM       llm.Client
	Cache     cache.Cache
	Router    *experiment.Router
	Evaluator *eval.Evaluator
	Logger    *slog.Logger
}

// Pipeline is the synthesis orchestrator.
type Pipeline struct {
	cfg    *config.Config
	deps   Deps
	logger *slog.Logger
}

// New validates the required collaborators.
func New(cfg *config.Config, deps Deps) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("pipeline requires a config")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("pipeline requires a search engine")
	}
	if deps.LLM == nil {
		return nil, fmt.Errorf("pipeline requires an llm client")
	}
	if deps.Cache == nil {
		return nil, fmt.Errorf("pipeline requires a cache")
	}
	if deps.Assembler == nil {
		deps.Assembler = prompt.NewAssembler(cfg.Prompt)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Pipeline{cfg: cfg, deps: deps, logger: deps.Logger}, nil
}

// Query answers a question. It never returns an error: every failure
// collapses into an Answer with status failed and the variant attempted.
func (p *Pipeline) Query(ctx context.Context, q model.Query) *model.Answer {
	start := time.Now()
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.MaxResults <= 0 {
		q.MaxResults = p.cfg.Search.FinalTopK
	}

	key := p.answerKey(q)
	if cached := p.lookupAnswer(ctx, key); cached != nil {
		cached.QueryID = q.ID
		return cached
	}

	variant := q.Variant
	if variant == "" {
		variant = p.assignVariant(q)
	}

	result, err := p.deps.Engine.Retrieve(ctx, search.Request{
		Query:   q.Text,
		FinalK:  q.MaxResults,
		Filter:  store.NormalizeFilter(q.MetadataFilter),
		Variant: variant,
	})
	if err != nil {
		return p.fail(ctx, q, variant, start, fmt.Errorf("retrieval: %w", err))
	}

	answer := &model.Answer{
		ID:        uuid.NewString(),
		QueryID:   q.ID,
		QueryText: q.Text,
		Variant:   variant,
		Status:    model.StatusCompleted,
		CreatedAt: time.Now().UTC(),
	}
	if result.Degraded {
		answer.Status = model.StatusDegraded
	}

	if len(result.Passages) == 0 {
		answer.Text = noInfoAnswer
		answer.LatencyMS = elapsedMS(start)
		p.storeAnswer(ctx, key, answer)
		p.recordOutcome(ctx, variant, answer, false)
		return answer
	}

	req := llm.Request{
		Messages: p.deps.Assembler.Build(q.Text, result.Passages),
		Question: q.Text,
		Contexts: passageTexts(result.Passages),
		// Forwarded as a pointer so a forced temperature of 0 is honored.
		Temperature: q.Temperature,
	}
	if q.MaxTokens != nil {
		req.MaxTokens = *q.MaxTokens
	}

	completion, err := p.deps.LLM.Complete(ctx, req)
	if err != nil {
		return p.fail(ctx, q, variant, start, fmt.Errorf("generation: %w", err))
	}
	if completion.Fallback && answer.Status == model.StatusCompleted {
		answer.Status = model.StatusDegraded
	}

	answer.Text = completion.Text
	answer.Passages = result.Passages
	answer.TokensUsed = completion.TokensUsed
	answer.Confidence = confidence(result.Passages)
	answer.CostUSD = p.cost(variant, len(result.Passages), completion.TokensUsed)
	answer.LatencyMS = elapsedMS(start)

	if p.deps.Evaluator != nil && p.cfg.Eval.Enabled {
		ev := p.deps.Evaluator.Evaluate(ctx, q.Text, answer.Text, result.Passages, "")
		ev.AnswerID = answer.ID
		answer.Evaluation = ev
	}

	p.storeAnswer(ctx, key, answer)
	p.recordOutcome(ctx, variant, answer, answer.Status != model.StatusFailed)
	return answer
}

// assignVariant asks the router, falling back to baseline without one.
func (p *Pipeline) assignVariant(q model.Query) model.Variant {
	if p.deps.Router == nil {
		return model.VariantBaseline
	}
	return p.deps.Router.Assign(DefaultExperimentID, q.UserID, q.SessionID)
}

// answerKey derives the memoization key. The forced variant and filter
// participate so differently-scoped queries do not collide.
func (p *Pipeline) answerKey(q model.Query) string {
	params := map[string]any{"max_results": q.MaxResults}
	if q.Variant != "" {
		params["variant"] = string(q.Variant)
	}
	if len(q.MetadataFilter) > 0 {
		params["filter"] = q.MetadataFilter
	}
	return p.deps.Cache.MakeKey(cache.QueryKey(cache.NamespaceAnswers, q.Text, params))
}

func (p *Pipeline) lookupAnswer(ctx context.Context, key string) *model.Answer {
	data, ok, err := p.deps.Cache.Get(ctx, key)
	if err != nil || !ok {
		p.count(ctx, cache.CounterMisses)
		return nil
	}

	var answer model.Answer
	if err := json.Unmarshal(data, &answer); err != nil {
		p.logger.Warn("cached answer unreadable, ignoring", "key", key, "error", err)
		p.count(ctx, cache.CounterMisses)
		return nil
	}

	answer.CacheHit = true
	p.count(ctx, cache.CounterHits)
	return &answer
}

func (p *Pipeline) storeAnswer(ctx context.Context, key string, answer *model.Answer) {
	data, err := json.Marshal(answer)
	if err != nil {
		p.logger.Warn("marshal answer for cache failed", "error", err)
		return
	}
	ttl := time.Duration(p.cfg.Cache.TTLSeconds) * time.Second
	if err := p.deps.Cache.Set(ctx, key, data, ttl); err != nil {
		p.logger.Warn("cache answer failed", "key", key, "error", err)
	}
}

func (p *Pipeline) count(ctx context.Context, counter string) {
	if _, err := p.deps.Cache.Increment(ctx, p.deps.Cache.MakeKey(counter)); err != nil {
		p.logger.Warn("increment counter failed", "counter", counter, "error", err)
	}
}

// recordOutcome feeds the experiment's outcome stream.
func (p *Pipeline) recordOutcome(ctx context.Context, variant model.Variant, answer *model.Answer, success bool) {
	if p.deps.Router == nil {
		return
	}
	out := experiment.Outcome{
		Success:   success,
		LatencyMS: answer.LatencyMS,
		CostUSD:   answer.CostUSD,
	}
	if answer.Evaluation != nil {
		out.OverallScore = answer.Evaluation.Overall
	}
	p.deps.Router.RecordOutcome(ctx, DefaultExperimentID, variant, out)
}

// fail collapses an error into a failed answer; it is never cached.
func (p *Pipeline) fail(ctx context.Context, q model.Query, variant model.Variant, start time.Time, err error) *model.Answer {
	p.logger.Error("query failed", "query_id", q.ID, "variant", variant, "error", err)

	answer := &model.Answer{
		ID:           uuid.NewString(),
		QueryID:      q.ID,
		QueryText:    q.Text,
		Variant:      variant,
		Status:       model.StatusFailed,
		ErrorMessage: err.Error(),
		LatencyMS:    elapsedMS(start),
		CreatedAt:    time.Now().UTC(),
	}
	p.recordOutcome(ctx, variant, answer, false)
	return answer
}

// confidence is the clamped mean of the top fused scores, three decimals.
func confidence(passages []model.Passage) float64 {
	n := len(passages)
	if n == 0 {
		return 0
	}
	if n > confidenceWindow {
		n = confidenceWindow
	}
	sum := 0.0
	for _, p := range passages[:n] {
		sum += p.Fused
	}
	return model.Round3(model.Clamp01(sum / float64(n)))
}

// cost prices a query from the per-unit cost table. The rerank term
// applies to every variant that runs the re-ranker.
func (p *Pipeline) cost(variant model.Variant, retrieved, tokens int) float64 {
	c := p.cfg.Cost
	total := c.PerEmbeddingRequest + c.PerVectorSearch*float64(retrieved)
	if variant != model.VariantBaseline {
		total += c.PerRerankRequest * float64(retrieved)
	}
	total += c.PerLLMToken * float64(tokens)
	return model.Round6(total)
}

func passageTexts(passages []model.Passage) []string {
	texts := make([]string, 0, len(passages))
	for _, p := range passages {
		texts = append(texts, p.Chunk.Text)
	}
	return texts
}

func elapsedMS(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
