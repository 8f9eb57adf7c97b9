// Package rag is the public entry point for the retrieval and synthesis
// core. A Service wires the whole stack from configuration and exposes the
// five transport-neutral operations: Query, Ingest, VectorStoreStatus,
// Feedback, and ExperimentStats.
package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/answerforge/ragcore/internal/cache"
	"github.com/answerforge/ragcore/internal/chunk"
	"github.com/answerforge/ragcore/internal/config"
	"github.com/answerforge/ragcore/internal/embed"
	"github.com/answerforge/ragcore/internal/errors"
	"github.com/answerforge/ragcore/internal/eval"
	"github.com/answerforge/ragcore/internal/experiment"
	"github.com/answerforge/ragcore/internal/llm"
	"github.com/answerforge/ragcore/internal/logging"
	"github.com/answerforge/ragcore/internal/model"
	"github.com/answerforge/ragcore/internal/pipeline"
	"github.com/answerforge/ragcore/internal/search"
	"github.com/answerforge/ragcore/internal/store"
)

// MaxResultsLimit caps how many passages a single query may request.
const MaxResultsLimit = 20

// Service is the assembled pipeline behind the public operations.
type Service struct {
	cfg     *config.Config
	pipe    *pipeline.Pipeline
	cache   cache.Cache
	router  *experiment.Router
	bm25    *store.InvertedIndex
	vectors *store.HNSWStore
	logger  *slog.Logger

	closers  []func() error
	logClose func()
}

// New builds a Service from configuration. A nil config uses the defaults.
// Providers without credentials degrade to their local backends (static
// embeddings, stub LLM, in-memory cache), so New succeeds offline.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.ConfigError("invalid configuration", err)
	}

	logger, logClose, err := logging.Setup(logging.Config{
		Level:         cfg.Logging.Level,
		FilePath:      cfg.Logging.Path,
		WriteToStderr: true,
	})
	if err != nil {
		return nil, errors.ConfigError("logging setup failed", err)
	}

	s := &Service{cfg: cfg, logger: logger, logClose: logClose}

	embedder, err := embed.New(cfg.Embeddings, logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.closers = append(s.closers, embedder.Close)

	bm25 := store.NewInvertedIndex(store.BM25Config{
		K1: cfg.Search.BM25K1,
		B:  cfg.Search.BM25B,
	})
	s.bm25 = bm25
	s.closers = append(s.closers, bm25.Close)

	vectors, err := store.NewHNSWStore(store.VectorStoreConfig{
		Dimensions: embedder.Dimensions(),
		M:          cfg.Store.HNSWM,
		EfSearch:   cfg.Store.HNSWEfConstruction,
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	s.vectors = vectors
	s.closers = append(s.closers, vectors.Close)

	meta, err := store.NewSQLiteStore(cfg.Store.SQLitePath)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.closers = append(s.closers, meta.Close)

	reranker := search.NewLexicalReranker()
	opts := []search.Option{
		search.WithConfig(cfg.Search),
		search.WithReranker(reranker),
		search.WithLogger(logger),
	}
	if cfg.Features.QueryExpansion {
		opts = append(opts, search.WithExpander(search.NewExpander()))
	}
	engine, err := search.NewEngine(bm25, vectors, embedder, meta, opts...)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.cache = cache.New(ctx, cfg.Cache, cfg.AppName, logger)
	s.closers = append(s.closers, s.cache.Close)

	s.router, err = experiment.NewRouter(cfg.Experiment, s.cache, logger)
	if err != nil {
		s.Close()
		return nil, err
	}

	llmClient, err := llm.New(cfg.LLM, logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.closers = append(s.closers, llmClient.Close)

	var evaluator *eval.Evaluator
	if cfg.Eval.Enabled {
		evaluator = eval.NewEvaluator(llmClient, reranker, cfg.Eval, logger)
	}

	chunker, err := chunk.New(cfg.Chunking.ChunkSize, cfg.Chunking.ChunkOverlap)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.pipe, err = pipeline.New(cfg, pipeline.Deps{
		Chunker:   chunker,
		Embedder:  embedder,
		BM25:      bm25,
		Vectors:   vectors,
		Meta:      meta,
		Engine:    engine,
		LLM:       llmClient,
		Cache:     s.cache,
		Router:    s.router,
		Evaluator: evaluator,
		Logger:    logger,
	})
	if err != nil {
		s.Close()
		return nil, err
	}

	logger.Info("service ready",
		"embedder", embedder.ModelName(),
		"llm", llmClient.ModelName(),
		"experiments", cfg.Experiment.Enabled)
	return s, nil
}

// QueryOptions refine a Query call; the zero value means defaults.
type QueryOptions struct {
	// MaxResults bounds returned passages; 0 uses the default of 4.
	MaxResults int
	// MetadataFilter restricts retrieval to matching chunks.
	MetadataFilter map[string]any
	// Variant forces a retrieval variant instead of router assignment.
	Variant string
	// UserID/SessionID key the experiment bucketing.
	UserID    string
	SessionID string
	// Temperature/MaxTokens override the generation defaults when non-nil.
	Temperature *float64
	MaxTokens   *int
}

// Query answers a question. Validation failures return a structured error
// with no side effects; everything past validation collapses into the
// Answer's status instead of an error.
func (s *Service) Query(ctx context.Context, question string, opts *QueryOptions) (*model.Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, errors.ValidationError(errors.ErrCodeQueryEmpty, "question must not be empty")
	}
	if opts == nil {
		opts = &QueryOptions{}
	}

	q := model.NewQuery(question)
	if opts.MaxResults != 0 {
		if opts.MaxResults < 1 || opts.MaxResults > MaxResultsLimit {
			return nil, errors.ValidationError(errors.ErrCodeMaxResultsRange,
				fmt.Sprintf("max_results must be in [1,%d], got %d", MaxResultsLimit, opts.MaxResults))
		}
		q.MaxResults = opts.MaxResults
	}
	if opts.Variant != "" {
		variant, err := model.ParseVariant(opts.Variant)
		if err != nil {
			return nil, errors.ValidationError(errors.ErrCodeUnknownVariant, err.Error())
		}
		q.Variant = variant
	}
	q.MetadataFilter = opts.MetadataFilter
	q.UserID = opts.UserID
	q.SessionID = opts.SessionID
	q.Temperature = opts.Temperature
	q.MaxTokens = opts.MaxTokens

	answer := s.pipe.Query(ctx, q)
	s.rememberVariant(ctx, answer)
	return answer, nil
}

// Ingest adds documents to the corpus. With reset the existing corpus is
// dropped first.
func (s *Service) Ingest(ctx context.Context, docs []model.Document, reset bool) (pipeline.IngestStats, error) {
	for i := range docs {
		if strings.TrimSpace(docs[i].Content) == "" {
			return pipeline.IngestStats{}, errors.ValidationError(errors.ErrCodeInvalidInput,
				fmt.Sprintf("document %d has empty content", i))
		}
	}
	return s.pipe.Ingest(ctx, docs, reset)
}

// VectorStoreStatus reports vector store health and corpus size.
func (s *Service) VectorStoreStatus(ctx context.Context) model.StoreStatus {
	return s.pipe.VectorStoreStatus(ctx)
}

// Feedback validates and archives a user judgement on a prior answer.
// Thumbs and rating feedback also feed the experiment outcome stream when
// the answer's variant is still known.
func (s *Service) Feedback(ctx context.Context, fb model.Feedback) error {
	if fb.ID == "" {
		fb.ID = uuid.NewString()
	}
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = time.Now().UTC()
	}
	if err := fb.Validate(); err != nil {
		return errors.ValidationError(errors.ErrCodeInvalidFeedback, err.Error())
	}

	payload, err := json.Marshal(fb)
	if err != nil {
		return errors.InternalError("marshal feedback", err)
	}
	key := s.cache.MakeKey(cache.NamespaceFeedback, fb.AnswerID, fb.ID)
	if err := s.cache.Set(ctx, key, payload, cache.FeedbackTTL); err != nil {
		return errors.DependencyError(errors.ErrCodeCacheUnavailable, "store feedback", err)
	}

	if fb.Kind == model.FeedbackThumbs || fb.Kind == model.FeedbackRating {
		if variant, ok := s.lookupVariant(ctx, fb.AnswerID); ok {
			s.router.RecordOutcome(ctx, pipeline.DefaultExperimentID, variant,
				experiment.Outcome{Success: fb.Positive()})
		}
	}
	return nil
}

// ExperimentStats summarizes an experiment; an empty id means the default
// retrieval-variant experiment.
func (s *Service) ExperimentStats(experimentID string) model.ExperimentStats {
	if experimentID == "" {
		experimentID = pipeline.DefaultExperimentID
	}
	return s.router.Stats(experimentID)
}

// Index file names under the persistence directory.
const (
	bm25IndexFile   = "bm25.idx"
	vectorIndexFile = "vectors.hnsw"
)

// SaveIndexes persists the BM25 and vector indexes under dir. Document
// metadata already lives in sqlite when a path is configured.
func (s *Service) SaveIndexes(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}
	if err := s.bm25.Save(filepath.Join(dir, bm25IndexFile)); err != nil {
		return err
	}
	return s.vectors.Save(filepath.Join(dir, vectorIndexFile))
}

// LoadIndexes restores previously saved indexes from dir. A missing
// directory or missing files leave the service empty, not failed.
func (s *Service) LoadIndexes(dir string) error {
	bm25Path := filepath.Join(dir, bm25IndexFile)
	if _, err := os.Stat(bm25Path); err == nil {
		if err := s.bm25.Load(bm25Path); err != nil {
			return err
		}
	}
	vecPath := filepath.Join(dir, vectorIndexFile)
	if _, err := os.Stat(vecPath); err == nil {
		if err := s.vectors.Load(vecPath); err != nil {
			return err
		}
	}
	return nil
}

// Close releases every collaborator in reverse construction order.
func (s *Service) Close() error {
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	if s.logClose != nil {
		s.logClose()
		s.logClose = nil
	}
	return firstErr
}

// rememberVariant indexes the answer's variant by answer id so later
// feedback can be attributed to the right experiment arm.
func (s *Service) rememberVariant(ctx context.Context, answer *model.Answer) {
	if answer == nil || answer.ID == "" || answer.Variant == "" {
		return
	}
	key := s.cache.MakeKey(cache.NamespaceAnswers, "variant", answer.ID)
	if err := s.cache.Set(ctx, key, []byte(answer.Variant), cache.FeedbackTTL); err != nil {
		s.logger.Warn("index answer variant failed", "answer_id", answer.ID, "error", err)
	}
}

func (s *Service) lookupVariant(ctx context.Context, answerID string) (model.Variant, bool) {
	key := s.cache.MakeKey(cache.NamespaceAnswers, "variant", answerID)
	data, ok, err := s.cache.Get(ctx, key)
	if err != nil || !ok {
		return "", false
	}
	variant, err := model.ParseVariant(string(data))
	if err != nil {
		return "", false
	}
	return variant, true
}
