// Package store provides the persistence layer for indexed content: the
// BM25 keyword index, the HNSW vector store, and SQLite-backed document
// metadata.
package store

import (
	"context"
	"fmt"

	"github.com/answerforge/ragcore/internal/model"
)

// Document is the unit indexed for keyword search.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]string
}

// BM25Result is a single keyword search hit.
type BM25Result struct {
	DocID        string
	Score        float64
	MatchedTerms []string
}

// IndexStats provides statistics about the BM25 index.
type IndexStats struct {
	DocumentCount int
	TermCount     int
	AvgDocLength  float64
}

// BM25Index provides keyword search scored with Okapi BM25.
type BM25Index interface {
	// Index adds documents, replacing any existing document with the same id.
	Index(ctx context.Context, docs []*Document) error

	// Search returns up to limit documents matching query, scored by BM25.
	// Documents with no overlapping terms are omitted. The filter, when
	// non-empty, is applied after scoring and before the limit.
	Search(ctx context.Context, query string, limit int, filter MetadataFilter) ([]*BM25Result, error)

	// Delete removes documents from the index.
	Delete(ctx context.Context, docIDs []string) error

	// Reset drops all indexed documents.
	Reset(ctx context.Context) error

	// Contains checks if a document id is indexed.
	Contains(id string) bool

	// Stats returns index statistics.
	Stats() *IndexStats

	// Persistence
	Save(path string) error
	Load(path string) error
	Close() error
}

// BM25Config configures the BM25 index.
type BM25Config struct {
	// K1 is the term frequency saturation parameter (default 1.2).
	K1 float64

	// B is the length normalization parameter (default 0.75).
	B float64
}

// DefaultBM25Config returns the standard Okapi parameters.
func DefaultBM25Config() BM25Config {
	return BM25Config{K1: 1.2, B: 0.75}
}

// VectorResult is a single vector search hit.
type VectorResult struct {
	ID       string
	Distance float32 // cosine distance, 0-2
	Score    float32 // similarity 0-1, 1 - distance/2
}

// VectorStoreConfig configures the vector store.
type VectorStoreConfig struct {
	// Dimensions is the embedding dimension.
	Dimensions int

	// M is HNSW max connections per layer (default 16).
	M int

	// EfSearch is HNSW query-time search width (default 200).
	EfSearch int
}

// DefaultVectorStoreConfig returns defaults for the given dimension.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions: dimensions,
		M:          16,
		EfSearch:   200,
	}
}

// VectorStore provides semantic nearest-neighbor search.
type VectorStore interface {
	// Add inserts vectors with ids and per-id metadata. An existing id is
	// replaced. metas may be nil when no metadata filtering is needed.
	Add(ctx context.Context, ids []string, vectors [][]float32, metas []map[string]string) error

	// Search finds the k nearest neighbors. A non-empty filter restricts
	// results to matching ids (implemented by over-fetching).
	Search(ctx context.Context, query []float32, k int, filter MetadataFilter) ([]*VectorResult, error)

	// Delete removes vectors by id.
	Delete(ctx context.Context, ids []string) error

	// Reset drops all vectors.
	Reset(ctx context.Context) error

	// Contains checks if an id exists.
	Contains(id string) bool

	// Count returns the number of live vectors.
	Count() int

	// Status probes the store and reports its health.
	Status(ctx context.Context) model.StoreStatus

	// Persistence
	Save(path string) error
	Load(path string) error
	Close() error
}

// MetadataStore persists documents and chunks in SQLite.
type MetadataStore interface {
	SaveDocument(ctx context.Context, doc *model.Document) error
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	DeleteDocument(ctx context.Context, id string) error // cascades to chunks
	DocumentCount(ctx context.Context) (int, error)

	SaveChunks(ctx context.Context, chunks []model.Chunk) error
	GetChunk(ctx context.Context, id string) (*model.Chunk, error)
	GetChunks(ctx context.Context, ids []string) ([]model.Chunk, error)
	GetChunksByDocument(ctx context.Context, parentID string) ([]model.Chunk, error)
	ChunkCount(ctx context.Context) (int, error)

	// Reset drops all documents and chunks.
	Reset(ctx context.Context) error

	Close() error
}

// MetadataFilter restricts results to chunks whose metadata carries, for
// every key, one of the listed values. All keys must match (conjunction).
// An empty filter matches everything.
type MetadataFilter map[string][]string

// NormalizeFilter converts a request-level filter (scalar or list values)
// into the internal form.
func NormalizeFilter(raw map[string]any) MetadataFilter {
	if len(raw) == 0 {
		return nil
	}
	f := make(MetadataFilter, len(raw))
	for key, val := range raw {
		switch v := val.(type) {
		case []string:
			f[key] = v
		case []any:
			vals := make([]string, 0, len(v))
			for _, item := range v {
				vals = append(vals, fmt.Sprintf("%v", item))
			}
			f[key] = vals
		default:
			f[key] = []string{fmt.Sprintf("%v", v)}
		}
	}
	return f
}

// Matches reports whether the given metadata satisfies every filter key.
func (f MetadataFilter) Matches(meta map[string]string) bool {
	for key, allowed := range f {
		got, ok := meta[key]
		if !ok {
			return false
		}
		found := false
		for _, v := range allowed {
			if got == v {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// ErrDimensionMismatch indicates a vector of the wrong dimension.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
