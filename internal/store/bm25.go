package store

import (
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/answerforge/ragcore/internal/textproc"
)

// InvertedIndex is an in-memory Okapi BM25 index over chunk text. Updates
// are applied incrementally under a write lock, so concurrent ingest and
// query need no rebuild barrier.
type InvertedIndex struct {
	mu     sync.RWMutex
	config BM25Config

	// postings maps term -> docID -> term frequency.
	postings map[string]map[string]int
	// docTerms maps docID -> term -> frequency (reverse view for deletes).
	docTerms map[string]map[string]int
	docLen   map[string]int
	docMeta  map[string]map[string]string
	totalLen int

	closed bool
}

// indexSnapshot is the gob form used for persistence.
type indexSnapshot struct {
	Config   BM25Config
	DocTerms map[string]map[string]int
	DocLen   map[string]int
	DocMeta  map[string]map[string]string
	TotalLen int
}

// NewInvertedIndex creates an empty BM25 index.
func NewInvertedIndex(config BM25Config) *InvertedIndex {
	if config.K1 <= 0 {
		config.K1 = 1.2
	}
	if config.B < 0 || config.B > 1 {
		config.B = 0.75
	}
	return &InvertedIndex{
		config:   config,
		postings: make(map[string]map[string]int),
		docTerms: make(map[string]map[string]int),
		docLen:   make(map[string]int),
		docMeta:  make(map[string]map[string]string),
	}
}

// Index adds documents, replacing any existing document with the same id.
func (idx *InvertedIndex) Index(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return fmt.Errorf("index is closed")
	}

	for _, doc := range docs {
		if doc.ID == "" {
			return fmt.Errorf("document without id")
		}
		idx.removeLocked(doc.ID)

		tokens := textproc.Tokenize(doc.Content)
		tf := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			tf[tok]++
		}

		for term, freq := range tf {
			posting, ok := idx.postings[term]
			if !ok {
				posting = make(map[string]int)
				idx.postings[term] = posting
			}
			posting[doc.ID] = freq
		}

		idx.docTerms[doc.ID] = tf
		idx.docLen[doc.ID] = len(tokens)
		idx.docMeta[doc.ID] = doc.Metadata
		idx.totalLen += len(tokens)
	}

	return nil
}

// removeLocked drops a document from all structures. Caller holds the lock.
func (idx *InvertedIndex) removeLocked(docID string) {
	tf, ok := idx.docTerms[docID]
	if !ok {
		return
	}
	for term := range tf {
		posting := idx.postings[term]
		delete(posting, docID)
		if len(posting) == 0 {
			delete(idx.postings, term)
		}
	}
	idx.totalLen -= idx.docLen[docID]
	delete(idx.docTerms, docID)
	delete(idx.docLen, docID)
	delete(idx.docMeta, docID)
}

// Search scores documents against the query with Okapi BM25:
//
//	idf  = ln((N - df + 0.5) / (df + 0.5) + 1)
//	term = idf * tf*(k1+1) / (tf + k1*(1 - b + b*|d|/avgdl))
//
// Documents sharing no terms with the query are omitted. Ties break on
// ascending document id for deterministic ordering.
func (idx *InvertedIndex) Search(ctx context.Context, query string, limit int, filter MetadataFilter) ([]*BM25Result, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return nil, fmt.Errorf("index is closed")
	}

	terms := textproc.Tokenize(query)
	if len(terms) == 0 || len(idx.docTerms) == 0 || limit <= 0 {
		return []*BM25Result{}, nil
	}

	n := float64(len(idx.docTerms))
	avgdl := float64(idx.totalLen) / n

	scores := make(map[string]float64)
	matched := make(map[string][]string)

	seen := make(map[string]struct{}, len(terms))
	for _, term := range terms {
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}

		posting, ok := idx.postings[term]
		if !ok {
			continue
		}

		df := float64(len(posting))
		idf := math.Log((n-df+0.5)/(df+0.5) + 1)

		for docID, tf := range posting {
			dl := float64(idx.docLen[docID])
			tfNorm := float64(tf) * (idx.config.K1 + 1) /
				(float64(tf) + idx.config.K1*(1-idx.config.B+idx.config.B*dl/avgdl))
			scores[docID] += idf * tfNorm
			matched[docID] = append(matched[docID], term)
		}
	}

	results := make([]*BM25Result, 0, len(scores))
	for docID, score := range scores {
		if score <= 0 {
			continue
		}
		if len(filter) > 0 && !filter.Matches(idx.docMeta[docID]) {
			continue
		}
		results = append(results, &BM25Result{
			DocID:        docID,
			Score:        score,
			MatchedTerms: matched[docID],
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].DocID < results[j].DocID
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Delete removes documents from the index.
func (idx *InvertedIndex) Delete(ctx context.Context, docIDs []string) error {
	if len(docIDs) == 0 {
		return nil
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return fmt.Errorf("index is closed")
	}

	for _, id := range docIDs {
		idx.removeLocked(id)
	}
	return nil
}

// Reset drops all indexed documents.
func (idx *InvertedIndex) Reset(ctx context.Context) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return fmt.Errorf("index is closed")
	}

	idx.postings = make(map[string]map[string]int)
	idx.docTerms = make(map[string]map[string]int)
	idx.docLen = make(map[string]int)
	idx.docMeta = make(map[string]map[string]string)
	idx.totalLen = 0
	return nil
}

// Contains checks if a document id is indexed.
func (idx *InvertedIndex) Contains(id string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	_, ok := idx.docTerms[id]
	return ok
}

// Stats returns index statistics.
func (idx *InvertedIndex) Stats() *IndexStats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	stats := &IndexStats{
		DocumentCount: len(idx.docTerms),
		TermCount:     len(idx.postings),
	}
	if stats.DocumentCount > 0 {
		stats.AvgDocLength = float64(idx.totalLen) / float64(stats.DocumentCount)
	}
	return stats
}

// Save persists the index to disk atomically (temp file + rename).
func (idx *InvertedIndex) Save(path string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return fmt.Errorf("index is closed")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}

	snap := indexSnapshot{
		Config:   idx.config,
		DocTerms: idx.docTerms,
		DocLen:   idx.docLen,
		DocMeta:  idx.docMeta,
		TotalLen: idx.totalLen,
	}
	if err := gob.NewEncoder(file).Encode(snap); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("encode index: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close index file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// Load restores the index from disk, rebuilding the postings from the
// per-document term maps.
func (idx *InvertedIndex) Load(path string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return fmt.Errorf("index is closed")
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer file.Close()

	var snap indexSnapshot
	if err := gob.NewDecoder(file).Decode(&snap); err != nil {
		return fmt.Errorf("decode index: %w", err)
	}

	idx.config = snap.Config
	idx.docTerms = snap.DocTerms
	idx.docLen = snap.DocLen
	idx.docMeta = snap.DocMeta
	idx.totalLen = snap.TotalLen

	idx.postings = make(map[string]map[string]int)
	for docID, tf := range idx.docTerms {
		for term, freq := range tf {
			posting, ok := idx.postings[term]
			if !ok {
				posting = make(map[string]int)
				idx.postings[term] = posting
			}
			posting[docID] = freq
		}
	}
	return nil
}

// Close marks the index closed.
func (idx *InvertedIndex) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.closed = true
	return nil
}

var _ BM25Index = (*InvertedIndex)(nil)
