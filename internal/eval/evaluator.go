// Package eval scores answers with the four RAGAS metrics: context
// relevancy, answer faithfulness, answer relevancy, and context recall.
//
// Each metric prefers an LLM judgement and falls back to lexical
// heuristics when the provider's response cannot be parsed, so evaluation
// stays deterministic under the stub provider.
package eval

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/answerforge/ragcore/internal/config"
	"github.com/answerforge/ragcore/internal/llm"
	"github.com/answerforge/ragcore/internal/model"
	"github.com/answerforge/ragcore/internal/search"
)

const (
	// defaultMetricScore is substituted when a metric fails outright.
	defaultMetricScore = 0.7
	// noClaimsScore is the faithfulness score for answers with no
	// verifiable claims.
	noClaimsScore = 0.75
	// verificationContextLimit caps the context used for claim checks.
	verificationContextLimit = 2000
	// verificationPassages is how many top passages feed claim checks.
	verificationPassages = 3
	// maxAspects caps extracted query aspects for recall.
	maxAspects = 5
)

// Default threshold gates applied when the config leaves them zero.
const (
	defaultThresholdCR  = 0.8
	defaultThresholdAF  = 0.8
	defaultThresholdAR  = 0.8
	defaultThresholdREC = 0.7
)

// Evaluator computes RAGAS metrics for an answer.
type Evaluator struct {
	llm      llm.Client
	reranker search.Reranker
	cfg      config.EvalConfig
	logger   *slog.Logger
}

// NewEvaluator builds an evaluator. The reranker may be nil; affected
// metrics then use their LLM or lexical paths.
func NewEvaluator(client llm.Client, reranker search.Reranker, cfg config.EvalConfig, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{llm: client, reranker: reranker, cfg: cfg, logger: logger}
}

// Evaluate scores the answer on all four metrics concurrently. A failed
// metric contributes its default score; the others are unaffected.
func (e *Evaluator) Evaluate(ctx context.Context, query, answer string, passages []model.Passage, groundTruth string) *model.Evaluation {
	start := time.Now()
	texts := passageTexts(passages)

	var cr, af, ar, rec float64
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		cr = e.runMetric(gctx, "context_relevancy", func(c context.Context) (float64, error) {
			return e.contextRelevancy(c, query, texts)
		})
		return nil
	})
	g.Go(func() error {
		af = e.runMetric(gctx, "answer_faithfulness", func(c context.Context) (float64, error) {
			return e.answerFaithfulness(c, answer, texts)
		})
		return nil
	})
	g.Go(func() error {
		ar = e.runMetric(gctx, "answer_relevancy", func(c context.Context) (float64, error) {
			return e.answerRelevancy(c, query, answer)
		})
		return nil
	})
	g.Go(func() error {
		rec = e.runMetric(gctx, "context_recall", func(c context.Context) (float64, error) {
			return e.contextRecall(c, query, texts, groundTruth)
		})
		return nil
	})
	_ = g.Wait()

	ev := &model.Evaluation{
		ContextRelevancy:   model.Round3(cr),
		AnswerFaithfulness: model.Round3(af),
		AnswerRelevancy:    model.Round3(ar),
		ContextRecall:      model.Round3(rec),
		EvalMS:             float64(time.Since(start).Microseconds()) / 1000.0,
		CreatedAt:          time.Now().UTC(),
	}
	ev.Overall = ev.ComputeOverall()
	return ev
}

// runMetric executes one metric, substituting the default on failure.
func (e *Evaluator) runMetric(ctx context.Context, name string, fn func(context.Context) (float64, error)) float64 {
	score, err := fn(ctx)
	if err != nil {
		e.logger.Warn("metric evaluation failed, using default",
			"metric", name, "default", defaultMetricScore, "error", err)
		return defaultMetricScore
	}
	return clamp01(score)
}

// PassesThresholds gates the evaluation against the configured minimums.
func (e *Evaluator) PassesThresholds(ev *model.Evaluation) bool {
	return ev.ContextRelevancy >= threshold(e.cfg.ThresholdContextRelevancy, defaultThresholdCR) &&
		ev.AnswerFaithfulness >= threshold(e.cfg.ThresholdAnswerFaithfulness, defaultThresholdAF) &&
		ev.AnswerRelevancy >= threshold(e.cfg.ThresholdAnswerRelevancy, defaultThresholdAR) &&
		ev.ContextRecall >= threshold(e.cfg.ThresholdContextRecall, defaultThresholdREC)
}

// Summary aggregates a batch of evaluations.
type Summary struct {
	Count                  int     `json:"count"`
	MeanContextRelevancy   float64 `json:"mean_context_relevancy"`
	MeanAnswerFaithfulness float64 `json:"mean_answer_faithfulness"`
	MeanAnswerRelevancy    float64 `json:"mean_answer_relevancy"`
	MeanContextRecall      float64 `json:"mean_context_recall"`
	MeanOverall            float64 `json:"mean_overall"`
	PassRate               float64 `json:"pass_rate"`
}

// Aggregate averages metric values and computes the threshold pass rate.
func (e *Evaluator) Aggregate(evals []model.Evaluation) Summary {
	s := Summary{Count: len(evals)}
	if len(evals) == 0 {
		return s
	}

	passed := 0
	for i := range evals {
		ev := &evals[i]
		s.MeanContextRelevancy += ev.ContextRelevancy
		s.MeanAnswerFaithfulness += ev.AnswerFaithfulness
		s.MeanAnswerRelevancy += ev.AnswerRelevancy
		s.MeanContextRecall += ev.ContextRecall
		s.MeanOverall += ev.Overall
		if e.PassesThresholds(ev) {
			passed++
		}
	}

	n := float64(len(evals))
	s.MeanContextRelevancy = model.Round3(s.MeanContextRelevancy / n)
	s.MeanAnswerFaithfulness = model.Round3(s.MeanAnswerFaithfulness / n)
	s.MeanAnswerRelevancy = model.Round3(s.MeanAnswerRelevancy / n)
	s.MeanContextRecall = model.Round3(s.MeanContextRecall / n)
	s.MeanOverall = model.Round3(s.MeanOverall / n)
	s.PassRate = model.Round3(float64(passed) / n)
	return s
}

func threshold(configured, fallback float64) float64 {
	if configured > 0 {
		return configured
	}
	return fallback
}

func passageTexts(passages []model.Passage) []string {
	texts := make([]string, 0, len(passages))
	for _, p := range passages {
		texts = append(texts, p.Chunk.Text)
	}
	return texts
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func meanScores(results []search.RerankResult) float64 {
	if len(results) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range results {
		sum += r.Score
	}
	return sum / float64(len(results))
}

// concatPassages joins the top passages and trims to the context limit.
func concatPassages(texts []string) string {
	n := len(texts)
	if n > verificationPassages {
		n = verificationPassages
	}
	joined := strings.Join(texts[:n], "\n")
	if len(joined) > verificationContextLimit {
		joined = joined[:verificationContextLimit]
	}
	return joined
}
