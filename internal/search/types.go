// Package search implements hybrid retrieval: BM25 and vector branches run
// in parallel, their rankings are fused, and an optional re-ranker reorders
// the head of the fused list.
package search

import (
	"github.com/answerforge/ragcore/internal/model"
	"github.com/answerforge/ragcore/internal/store"
)

// FusionMethod selects how the two branch rankings are combined.
type FusionMethod string

const (
	// FusionRRF is reciprocal rank fusion, the default.
	FusionRRF FusionMethod = "rrf"
	// FusionWeighted is max-normalized weighted score fusion.
	FusionWeighted FusionMethod = "weighted"
)

// Weights are the branch weights for weighted fusion.
type Weights struct {
	BM25     float64
	Semantic float64
}

// Request describes one retrieval call. Zero values fall back to the
// engine's configured defaults.
type Request struct {
	Query   string
	FinalK  int
	KBM25   int
	KVec    int
	Method  FusionMethod
	Weights Weights
	Filter  store.MetadataFilter
	Variant model.Variant
}

// Result is the ordered passage list plus degradation info when one branch
// failed.
type Result struct {
	Passages     []model.Passage
	Degraded     bool
	FailedBranch string // "bm25" or "vector" when Degraded
}
