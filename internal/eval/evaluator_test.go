package eval

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/answerforge/ragcore/internal/config"
	"github.com/answerforge/ragcore/internal/llm"
	"github.com/answerforge/ragcore/internal/model"
	"github.com/answerforge/ragcore/internal/search"
)

// scriptedJudge answers prompts by marker substring, simulating a
// format-following judge model.
type scriptedJudge struct {
	responses map[string]string
}

func (s *scriptedJudge) Complete(_ context.Context, req llm.Request) (*llm.Completion, error) {
	content := req.Messages[len(req.Messages)-1].Content
	for marker, resp := range s.responses {
		if strings.Contains(content, marker) {
			return &llm.Completion{Text: resp}, nil
		}
	}
	return &llm.Completion{Text: "unscripted"}, nil
}

func (s *scriptedJudge) EstimateCost(int, int) float64 { return 0 }

func (s *scriptedJudge) ModelName() string { return "scripted" }

func (s *scriptedJudge) Available(context.Context) bool { return true }

func (s *scriptedJudge) Close() error { return nil }

// failingJudge simulates a provider outage.
type failingJudge struct{}

func (f *failingJudge) Complete(context.Context, llm.Request) (*llm.Completion, error) {
	return nil, fmt.Errorf("provider down")
}
func (f *failingJudge) EstimateCost(int, int) float64 { return 0 }

func (f *failingJudge) ModelName() string { return "failing" }

func (f *failingJudge) Available(context.Context) bool { return false }

func (f *failingJudge) Close() error { return nil }

func stubEvaluator() *Evaluator {
	return NewEvaluator(llm.NewStubClient(), search.NewLexicalReranker(), config.EvalConfig{}, nil)
}

func passages(texts ...string) []model.Passage {
	out := make([]model.Passage, len(texts))
	for i, t := range texts {
		out[i] = model.Passage{Chunk: model.Chunk{ID: fmt.Sprintf("c%d", i), Text: t}}
	}
	return out
}

func TestEvaluateEmptyPassages(t *testing.T) {
	e := stubEvaluator()

	ev := e.Evaluate(context.Background(), "what is hybrid search", "some answer text here", nil, "")
	assert.Zero(t, ev.ContextRelevancy)
	assert.Zero(t, ev.ContextRecall)
}

func TestEvaluateEmptyAnswer(t *testing.T) {
	e := stubEvaluator()

	ev := e.Evaluate(context.Background(), "q", "", passages("some passage"), "")
	assert.Zero(t, ev.AnswerFaithfulness)
	assert.Zero(t, ev.AnswerRelevancy)
}

func TestEvaluateGroundedAnswerScoresHigh(t *testing.T) {
	e := stubEvaluator()

	query := "hybrid search fusion"
	answer := "Hybrid search combines BM25 keyword matching with vector similarity and merges the rankings with fusion."
	docs := passages(
		"Hybrid search runs BM25 keyword matching and vector similarity in parallel, then applies rank fusion to merge results.",
		"Reciprocal rank fusion combines the BM25 and vector rankings of hybrid search into one list.",
	)

	ev := e.Evaluate(context.Background(), query, answer, docs, "")

	assert.Greater(t, ev.ContextRelevancy, 0.5)
	assert.Greater(t, ev.AnswerFaithfulness, 0.5)
	assert.Greater(t, ev.AnswerRelevancy, 0.5)
	assert.Equal(t, 1.0, ev.ContextRecall)
	assert.Equal(t, ev.ComputeOverall(), ev.Overall)
	assert.GreaterOrEqual(t, ev.EvalMS, 0.0)
}

func TestEvaluateIrrelevantContextScoresLow(t *testing.T) {
	e := stubEvaluator()

	ev := e.Evaluate(context.Background(),
		"hybrid search fusion",
		"Photosynthesis converts sunlight into chemical energy inside chloroplasts.",
		passages("Gardening tips for tomato plants in cold climates and greenhouse care."),
		"")

	assert.Less(t, ev.ContextRelevancy, 0.3)
	assert.Less(t, ev.AnswerFaithfulness, 0.3)
	assert.Less(t, ev.AnswerRelevancy, 0.3)
}

func TestEvaluateWithScriptedJudge(t *testing.T) {
	judge := &scriptedJudge{responses: map[string]string{
		"List the factual claims":  "- hybrid search combines bm25 and vectors\n- rankings are fused",
		"Is the claim supported":   "Yes, it is.",
		"Expected answer:":         "yes",
		"relevant to the question": "yes",
	}}
	// No reranker: relevancy metrics take the judge paths.
	e := NewEvaluator(judge, nil, config.EvalConfig{}, nil)

	ev := e.Evaluate(context.Background(),
		"what is hybrid search",
		"Hybrid search combines BM25 and vectors.",
		passages("doc one", "doc two"),
		"hybrid search fuses BM25 and vector rankings")

	assert.Equal(t, 1.0, ev.ContextRelevancy)
	assert.Equal(t, 1.0, ev.AnswerFaithfulness)
	assert.Equal(t, 1.0, ev.ContextRecall)
}

func TestEvaluateGroundTruthNotCovered(t *testing.T) {
	judge := &scriptedJudge{responses: map[string]string{
		"Expected answer:": "no",
	}}
	e := NewEvaluator(judge, search.NewLexicalReranker(), config.EvalConfig{}, nil)

	ev := e.Evaluate(context.Background(), "q", "answer text here", passages("doc"), "the truth")
	assert.Zero(t, ev.ContextRecall)
}

func TestEvaluateProviderFailureUsesDefaults(t *testing.T) {
	e := NewEvaluator(&failingJudge{}, nil, config.EvalConfig{}, nil)

	ev := e.Evaluate(context.Background(),
		"what is hybrid search",
		"Hybrid search combines BM25 and vectors.",
		passages("some passage text"),
		"")

	assert.Equal(t, defaultMetricScore, ev.ContextRelevancy)
	assert.Equal(t, defaultMetricScore, ev.AnswerFaithfulness)
	assert.Equal(t, defaultMetricScore, ev.AnswerRelevancy)
	assert.Equal(t, defaultMetricScore, ev.ContextRecall)
	assert.Equal(t, defaultMetricScore, ev.Overall)
}

func TestPassesThresholds(t *testing.T) {
	e := stubEvaluator()

	assert.True(t, e.PassesThresholds(&model.Evaluation{
		ContextRelevancy: 0.9, AnswerFaithfulness: 0.85, AnswerRelevancy: 0.8, ContextRecall: 0.7,
	}))
	assert.False(t, e.PassesThresholds(&model.Evaluation{
		ContextRelevancy: 0.9, AnswerFaithfulness: 0.79, AnswerRelevancy: 0.9, ContextRecall: 0.9,
	}))

	strict := NewEvaluator(llm.NewStubClient(), nil, config.EvalConfig{
		ThresholdContextRecall: 0.95,
	}, nil)
	assert.False(t, strict.PassesThresholds(&model.Evaluation{
		ContextRelevancy: 0.9, AnswerFaithfulness: 0.9, AnswerRelevancy: 0.9, ContextRecall: 0.9,
	}))
}

func TestAggregate(t *testing.T) {
	e := stubEvaluator()

	evals := []model.Evaluation{
		{ContextRelevancy: 0.9, AnswerFaithfulness: 0.9, AnswerRelevancy: 0.9, ContextRecall: 0.8, Overall: 0.88},
		{ContextRelevancy: 0.5, AnswerFaithfulness: 0.5, AnswerRelevancy: 0.5, ContextRecall: 0.4, Overall: 0.48},
	}

	s := e.Aggregate(evals)
	assert.Equal(t, 2, s.Count)
	assert.InDelta(t, 0.7, s.MeanContextRelevancy, 1e-9)
	assert.InDelta(t, 0.6, s.MeanContextRecall, 1e-9)
	assert.InDelta(t, 0.68, s.MeanOverall, 1e-9)
	// Only the first evaluation clears the default thresholds.
	assert.InDelta(t, 0.5, s.PassRate, 1e-9)

	require.Zero(t, e.Aggregate(nil).Count)
}

func TestParseDashList(t *testing.T) {
	items := parseDashList("intro\n- first claim\n-not this\n- second claim\n\n- third", 2)
	assert.Equal(t, []string{"first claim", "second claim"}, items)
	assert.Empty(t, parseDashList("no list here", 0))
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("Hybrid search works well. Yes! Short one? It fuses two ranked lists.")
	assert.Equal(t, []string{"Hybrid search works well", "It fuses two ranked lists"}, got)
}

func TestTokenOverlap(t *testing.T) {
	assert.InDelta(t, 1.0, tokenOverlap("bm25 vector", "the bm25 and vector branches"), 1e-9)
	assert.InDelta(t, 0.5, tokenOverlap("bm25 missing", "bm25 only"), 1e-9)
	assert.Zero(t, tokenOverlap("", "anything"))
}
