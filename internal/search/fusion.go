package search

import (
	"fmt"
	"sort"

	"github.com/answerforge/ragcore/internal/store"
)

// DefaultRRFConstant is the standard RRF smoothing parameter, empirically
// validated across domains (used by Azure AI Search, OpenSearch, etc.).
const DefaultRRFConstant = 60

// fusedHit is one chunk after fusion, branch scores preserved. A score is
// zero when the chunk was absent from that branch.
type fusedHit struct {
	ChunkID      string
	Fused        float64
	BM25Score    float64
	Semantic     float64
	MatchedTerms []string
}

// fuseRRF combines the two rankings with reciprocal rank fusion:
//
//	fused(d) = Σ 1 / (k + rank + 1)   (ranks 0-based)
//
// A chunk absent from a branch simply receives no contribution from it.
// Ordering is fused-desc, ties broken on ascending chunk id.
func fuseRRF(bm25 []*store.BM25Result, vec []*store.VectorResult, k int) []fusedHit {
	if k <= 0 {
		k = DefaultRRFConstant
	}

	hits := make(map[string]*fusedHit, len(bm25)+len(vec))

	for rank, r := range bm25 {
		h := getOrCreate(hits, r.DocID)
		h.BM25Score = r.Score
		h.MatchedTerms = r.MatchedTerms
		h.Fused += 1.0 / float64(k+rank+1)
	}

	for rank, r := range vec {
		h := getOrCreate(hits, r.ID)
		h.Semantic = float64(r.Score)
		h.Fused += 1.0 / float64(k+rank+1)
	}

	return sortHits(hits)
}

// fuseWeighted normalizes each branch by its own maximum score and combines
// them as w_bm25*n_bm25 + w_vec*n_vec. The weights must not both be zero.
func fuseWeighted(bm25 []*store.BM25Result, vec []*store.VectorResult, w Weights) ([]fusedHit, error) {
	if w.BM25+w.Semantic <= 0 {
		return nil, fmt.Errorf("fusion weights must sum to a positive value, got %v + %v", w.BM25, w.Semantic)
	}

	var maxBM25 float64
	for _, r := range bm25 {
		if r.Score > maxBM25 {
			maxBM25 = r.Score
		}
	}
	var maxVec float64
	for _, r := range vec {
		if float64(r.Score) > maxVec {
			maxVec = float64(r.Score)
		}
	}

	hits := make(map[string]*fusedHit, len(bm25)+len(vec))

	for _, r := range bm25 {
		h := getOrCreate(hits, r.DocID)
		h.BM25Score = r.Score
		h.MatchedTerms = r.MatchedTerms
		if maxBM25 > 0 {
			h.Fused += w.BM25 * (r.Score / maxBM25)
		}
	}

	for _, r := range vec {
		h := getOrCreate(hits, r.ID)
		h.Semantic = float64(r.Score)
		if maxVec > 0 {
			h.Fused += w.Semantic * (float64(r.Score) / maxVec)
		}
	}

	return sortHits(hits), nil
}

func getOrCreate(m map[string]*fusedHit, id string) *fusedHit {
	if h, ok := m[id]; ok {
		return h
	}
	h := &fusedHit{ChunkID: id}
	m[id] = h
	return h
}

func sortHits(m map[string]*fusedHit) []fusedHit {
	out := make([]fusedHit, 0, len(m))
	for _, h := range m {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Fused != out[j].Fused {
			return out[i].Fused > out[j].Fused
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	return out
}
