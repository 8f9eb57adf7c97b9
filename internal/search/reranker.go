package search

import (
	"context"
	"math"
	"sort"

	"github.com/answerforge/ragcore/internal/textproc"
)

// RerankResult is a single re-ranked document.
type RerankResult struct {
	// Index is the original position in the input slice.
	Index int
	// Score is the relevance score in (0,1).
	Score float64
	// Document is the original document content.
	Document string
}

// Reranker reorders retrieved passages by relevance to the query. Compared
// to the bi-encoder retrieval scores this is a second, more precise pass
// over a small candidate set.
type Reranker interface {
	// Rerank scores and reorders documents by relevance to the query.
	// topK limits the output (0 = return all). Results are sorted by
	// score descending; ties keep the input order.
	Rerank(ctx context.Context, query string, documents []string, topK int) ([]RerankResult, error)

	// Available checks if the reranker is ready.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// LexicalReranker is an in-process cross-encoder stand-in. It scores each
// (query, document) pair by weighted token overlap and maps the raw score
// through a sigmoid so values land in (0,1).
type LexicalReranker struct{}

// NewLexicalReranker creates the default reranker.
func NewLexicalReranker() *LexicalReranker {
	return &LexicalReranker{}
}

// Raw score weights. Coverage (fraction of query tokens present) dominates;
// density (how much of the document is query terms) refines; the offset
// centers the sigmoid so a half-covered document scores near 0.5.
const (
	coverageWeight = 8.0
	densityWeight  = 4.0
	rawOffset      = -4.0
)

// Rerank scores documents and returns them sorted by score descending.
func (r *LexicalReranker) Rerank(ctx context.Context, query string, documents []string, topK int) ([]RerankResult, error) {
	queryTokens := uniqueTokens(textproc.Tokenize(query))

	results := make([]RerankResult, len(documents))
	for i, doc := range documents {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		results[i] = RerankResult{
			Index:    i,
			Score:    r.score(queryTokens, doc),
			Document: doc,
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if topK > 0 && topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

// score computes sigmoid(coverage*8 + density*4 - 4).
func (r *LexicalReranker) score(queryTokens map[string]struct{}, doc string) float64 {
	docTokens := textproc.Tokenize(doc)
	if len(queryTokens) == 0 || len(docTokens) == 0 {
		return sigmoid(rawOffset)
	}

	matchedUnique := make(map[string]struct{})
	matchedOccurrences := 0
	for _, tok := range docTokens {
		if _, ok := queryTokens[tok]; ok {
			matchedUnique[tok] = struct{}{}
			matchedOccurrences++
		}
	}

	coverage := float64(len(matchedUnique)) / float64(len(queryTokens))
	density := float64(matchedOccurrences) / float64(len(docTokens))

	raw := coverageWeight*coverage + densityWeight*density + rawOffset
	return sigmoid(raw)
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func uniqueTokens(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// Available always reports true; there is no external dependency.
func (r *LexicalReranker) Available(_ context.Context) bool {
	return true
}

// Close is a no-op.
func (r *LexicalReranker) Close() error {
	return nil
}

var _ Reranker = (*LexicalReranker)(nil)
