// Package model defines the domain entities shared across the retrieval and
// synthesis pipeline: documents and their derived chunks, queries, retrieved
// passages, answers, evaluations, feedback, and experiment records.
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DocumentSource identifies where a document was ingested from.
type DocumentSource string

const (
	SourceArxiv     DocumentSource = "arxiv"
	SourceWikipedia DocumentSource = "wikipedia"
	SourceWeb       DocumentSource = "web"
	SourceCustom    DocumentSource = "custom"
)

// Variant names a retrieval/synthesis configuration selectable per request.
type Variant string

const (
	VariantBaseline  Variant = "baseline"
	VariantReranked  Variant = "reranked"
	VariantHybrid    Variant = "hybrid"
	VariantFinetuned Variant = "finetuned"
)

// ParseVariant validates a variant name against the known set.
func ParseVariant(s string) (Variant, error) {
	switch Variant(s) {
	case VariantBaseline, VariantReranked, VariantHybrid, VariantFinetuned:
		return Variant(s), nil
	}
	return "", fmt.Errorf("unknown variant %q", s)
}

// FeedbackKind distinguishes the accepted feedback payloads.
type FeedbackKind string

const (
	FeedbackThumbs     FeedbackKind = "thumbs"
	FeedbackRating     FeedbackKind = "rating"
	FeedbackCorrection FeedbackKind = "correction"
	FeedbackImplicit   FeedbackKind = "implicit"
)

// AnswerStatus reports how query processing ended.
type AnswerStatus string

const (
	StatusCompleted AnswerStatus = "completed"
	StatusDegraded  AnswerStatus = "degraded"
	StatusFailed    AnswerStatus = "failed"
)

// Document is the unit of ingestion. Documents are immutable once stored;
// chunks are derived from them and deleted with them.
type Document struct {
	ID          string            `json:"id"`
	Content     string            `json:"content"`
	Source      DocumentSource    `json:"source"`
	Title       string            `json:"title,omitempty"`
	URL         string            `json:"url,omitempty"`
	License     string            `json:"license,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	PublishedAt time.Time         `json:"published_at,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// NewDocument assigns an id and creation time to raw ingest content.
func NewDocument(content string, source DocumentSource, metadata map[string]string) Document {
	return Document{
		ID:        uuid.NewString(),
		Content:   content,
		Source:    source,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
}

// Chunk is a bounded passage extracted from a document. Its id is derived
// from the parent id and the dense ordinal so re-chunking is reproducible.
type Chunk struct {
	ID       string            `json:"id"`
	ParentID string            `json:"parent_id"`
	Ordinal  int               `json:"ordinal"`
	Text     string            `json:"text"`
	Title    string            `json:"title,omitempty"`
	Source   DocumentSource    `json:"source"`
	URL      string            `json:"url,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ChunkID derives the chunk identifier used across both indices.
func ChunkID(parentID string, ordinal int) string {
	return fmt.Sprintf("%s#%d", parentID, ordinal)
}

// Query is a request-scoped retrieval question.
type Query struct {
	ID             string            `json:"id"`
	Text           string            `json:"text"`
	UserID         string            `json:"user_id,omitempty"`
	SessionID      string            `json:"session_id,omitempty"`
	MaxResults     int               `json:"max_results"`
	MetadataFilter map[string]any    `json:"metadata_filter,omitempty"`
	Variant        Variant           `json:"variant,omitempty"` // empty means router-assigned
	Temperature    *float64          `json:"temperature,omitempty"`
	MaxTokens      *int              `json:"max_tokens,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// NewQuery builds a query with defaults applied.
func NewQuery(text string) Query {
	return Query{
		ID:         uuid.NewString(),
		Text:       text,
		MaxResults: 4,
		CreatedAt:  time.Now().UTC(),
	}
}

// Passage is a chunk annotated with per-request scores. Fused is the fusion
// output; the branch scores are preserved as-is, zero when the chunk was
// absent from that branch.
type Passage struct {
	Chunk       Chunk    `json:"chunk"`
	Fused       float64  `json:"score"`
	BM25Score   float64  `json:"bm25_score,omitempty"`
	Semantic    float64  `json:"semantic_score,omitempty"`
	RerankScore *float64 `json:"rerank_score,omitempty"`
}

// Answer is the structured result of a query.
type Answer struct {
	ID           string       `json:"id"`
	QueryID      string       `json:"query_id"`
	QueryText    string       `json:"query_text"`
	Text         string       `json:"answer"`
	Passages     []Passage    `json:"passages"`
	Variant      Variant      `json:"variant"`
	Confidence   float64      `json:"confidence"`
	LatencyMS    float64      `json:"latency_ms"`
	TokensUsed   int          `json:"tokens_used"`
	CostUSD      float64      `json:"cost_usd"`
	Status       AnswerStatus `json:"status"`
	CacheHit     bool         `json:"cache_hit"`
	ErrorMessage string       `json:"error_message,omitempty"`
	Evaluation   *Evaluation  `json:"evaluation,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Evaluation holds the four RAGAS metric scores plus the weighted overall.
type Evaluation struct {
	AnswerID           string    `json:"answer_id"`
	ContextRelevancy   float64   `json:"context_relevancy"`
	AnswerFaithfulness float64   `json:"answer_faithfulness"`
	AnswerRelevancy    float64   `json:"answer_relevancy"`
	ContextRecall      float64   `json:"context_recall"`
	Overall            float64   `json:"overall"`
	EvalMS             float64   `json:"eval_ms"`
	CreatedAt          time.Time `json:"created_at"`
}

// Overall metric weights.
const (
	weightContextRelevancy   = 0.25
	weightAnswerFaithfulness = 0.30
	weightAnswerRelevancy    = 0.30
	weightContextRecall      = 0.15
)

// ComputeOverall recomputes the weighted overall score to three decimals.
func (e *Evaluation) ComputeOverall() float64 {
	score := e.ContextRelevancy*weightContextRelevancy +
		e.AnswerFaithfulness*weightAnswerFaithfulness +
		e.AnswerRelevancy*weightAnswerRelevancy +
		e.ContextRecall*weightContextRecall
	return Round3(score)
}

// Feedback is a user judgement on a prior answer.
type Feedback struct {
	ID        string            `json:"id"`
	AnswerID  string            `json:"result_id"`
	UserID    string            `json:"user_id,omitempty"`
	Kind      FeedbackKind      `json:"kind"`
	Value     any               `json:"value"`
	Comment   string            `json:"comment,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Validate checks the value payload against the feedback kind.
func (f *Feedback) Validate() error {
	if f.AnswerID == "" {
		return fmt.Errorf("feedback: result_id is required")
	}
	switch f.Kind {
	case FeedbackThumbs:
		if _, ok := f.Value.(bool); !ok {
			return fmt.Errorf("feedback: thumbs value must be a boolean")
		}
	case FeedbackRating:
		r, ok := toFloat(f.Value)
		if !ok || r < 1 || r > 5 {
			return fmt.Errorf("feedback: rating must be a number between 1 and 5")
		}
	case FeedbackCorrection:
		if _, ok := f.Value.(string); !ok {
			return fmt.Errorf("feedback: correction value must be a string")
		}
	case FeedbackImplicit:
		// any payload accepted
	default:
		return fmt.Errorf("feedback: unknown kind %q", f.Kind)
	}
	return nil
}

// Positive reports whether the feedback counts as a success signal for
// experiment outcome accounting (thumbs-up or rating >= 4).
func (f *Feedback) Positive() bool {
	switch f.Kind {
	case FeedbackThumbs:
		v, _ := f.Value.(bool)
		return v
	case FeedbackRating:
		r, ok := toFloat(f.Value)
		return ok && r >= 4
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// VariantStats summarizes one variant of an experiment.
type VariantStats struct {
	Variant      Variant `json:"variant"`
	SampleSize   int     `json:"sample_size"`
	SuccessRate  float64 `json:"success_rate"`
	AvgLatencyMS float64 `json:"avg_latency_ms"`
	AvgCostUSD   float64 `json:"avg_cost_usd"`
	AvgOverall   float64 `json:"avg_overall_score"`
	CILower      float64 `json:"ci95_lower"`
	CIUpper      float64 `json:"ci95_upper"`
	PValue       float64 `json:"p_value"`
	Significant  bool    `json:"significant"`
}

// ExperimentStats is the aggregate view returned by the stats operation.
type ExperimentStats struct {
	ExperimentID   string         `json:"experiment_id"`
	Variants       []VariantStats `json:"variants"`
	WinningVariant Variant        `json:"winning_variant,omitempty"`
}

// StoreStatus reports vector store health.
type StoreStatus struct {
	Status        string `json:"status"` // healthy, empty, degraded, error
	DocumentCount int    `json:"document_count"`
	SearchWorking bool   `json:"search_working"`
}
