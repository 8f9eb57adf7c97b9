package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	"github.com/answerforge/ragcore/internal/model"
)

// HNSWStore implements VectorStore with the pure-Go coder/hnsw graph.
// Vectors are L2-normalized on insert so cosine distance is exact.
type HNSWStore struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorStoreConfig

	// ID mapping (string <-> uint64)
	idMap   map[string]uint64
	keyMap  map[uint64]string
	meta    map[string]map[string]string
	nextKey uint64

	closed bool
}

// hnswSnapshot stores ID mappings and metadata for persistence.
type hnswSnapshot struct {
	IDMap   map[string]uint64
	Meta    map[string]map[string]string
	NextKey uint64
	Config  VectorStoreConfig
}

// filterOverFetch is the multiplier applied to k when a metadata filter is
// active, since filtering happens after the graph search.
const filterOverFetch = 4

// NewHNSWStore creates an empty vector store.
func NewHNSWStore(cfg VectorStoreConfig) (*HNSWStore, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("vector store requires positive dimensions, got %d", cfg.Dimensions)
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 200
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &HNSWStore{
		graph:  graph,
		config: cfg,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
		meta:   make(map[string]map[string]string),
	}, nil
}

// Add inserts vectors with their ids. An existing id is replaced via lazy
// deletion: the old graph node is orphaned rather than removed, which
// avoids coder/hnsw instability when deleting the last node.
func (s *HNSWStore) Add(ctx context.Context, ids []string, vectors [][]float32, metas []map[string]string) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}
	if metas != nil && len(metas) != len(ids) {
		return fmt.Errorf("ids and metas length mismatch: %d vs %d", len(ids), len(metas))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(v)}
		}
	}

	for i, id := range ids {
		if existingKey, exists := s.idMap[id]; exists {
			delete(s.keyMap, existingKey)
			delete(s.idMap, id)
			delete(s.meta, id)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		normalizeVectorInPlace(vec)

		s.graph.Add(hnsw.MakeNode(key, vec))

		s.idMap[id] = key
		s.keyMap[key] = id
		if metas != nil {
			s.meta[id] = metas[i]
		}
	}

	return nil
}

// Search finds the k nearest neighbors. With a non-empty filter it
// over-fetches from the graph, drops non-matching and orphaned entries,
// and truncates to k.
func (s *HNSWStore) Search(ctx context.Context, query []float32, k int, filter MetadataFilter) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	if len(query) != s.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(query)}
	}
	if s.graph.Len() == 0 || k <= 0 {
		return []*VectorResult{}, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeVectorInPlace(normalized)

	fetch := k
	if len(filter) > 0 {
		fetch = k * filterOverFetch
	}
	if graphLen := s.graph.Len(); fetch > graphLen {
		fetch = graphLen
	}

	nodes := s.graph.Search(normalized, fetch)

	results := make([]*VectorResult, 0, k)
	for _, node := range nodes {
		id, exists := s.keyMap[node.Key]
		if !exists {
			// Orphaned by lazy deletion.
			continue
		}
		if len(filter) > 0 && !filter.Matches(s.meta[id]) {
			continue
		}

		distance := s.graph.Distance(normalized, node.Value)
		results = append(results, &VectorResult{
			ID:       id,
			Distance: distance,
			Score:    distanceToScore(distance),
		})
		if len(results) == k {
			break
		}
	}

	return results, nil
}

// Delete removes vectors by id. The graph nodes stay behind as orphans and
// are skipped at search time.
func (s *HNSWStore) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	for _, id := range ids {
		if key, exists := s.idMap[id]; exists {
			delete(s.keyMap, key)
			delete(s.idMap, id)
			delete(s.meta, id)
		}
	}
	return nil
}

// Reset drops all vectors and starts a fresh graph.
func (s *HNSWStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = s.config.M
	graph.EfSearch = s.config.EfSearch
	graph.Ml = 0.25

	s.graph = graph
	s.idMap = make(map[string]uint64)
	s.keyMap = make(map[uint64]string)
	s.meta = make(map[string]map[string]string)
	s.nextKey = 0
	return nil
}

// Contains checks if an id exists.
func (s *HNSWStore) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}
	_, exists := s.idMap[id]
	return exists
}

// Count returns the number of live vectors.
func (s *HNSWStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0
	}
	return len(s.idMap)
}

// Status probes the store with a basis-vector search and reports health:
// "empty" when nothing is indexed, "degraded" when the probe fails or the
// store is closed, "healthy" otherwise.
func (s *HNSWStore) Status(ctx context.Context) model.StoreStatus {
	s.mu.RLock()
	closed := s.closed
	count := len(s.idMap)
	s.mu.RUnlock()

	if closed {
		return model.StoreStatus{Status: "degraded", DocumentCount: 0, SearchWorking: false}
	}
	if count == 0 {
		return model.StoreStatus{Status: "empty", DocumentCount: 0, SearchWorking: true}
	}

	probe := make([]float32, s.config.Dimensions)
	probe[0] = 1
	_, err := s.Search(ctx, probe, 1, nil)
	if err != nil {
		return model.StoreStatus{Status: "degraded", DocumentCount: count, SearchWorking: false}
	}
	return model.StoreStatus{Status: "healthy", DocumentCount: count, SearchWorking: true}
}

// Save persists the graph and mappings to disk atomically.
func (s *HNSWStore) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	if err := s.graph.Export(file); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("export graph: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close index file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename index file: %w", err)
	}

	return s.saveSnapshot(path + ".meta")
}

func (s *HNSWStore) saveSnapshot(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}

	snap := hnswSnapshot{
		IDMap:   s.idMap,
		Meta:    s.meta,
		NextKey: s.nextKey,
		Config:  s.config,
	}
	if err := gob.NewEncoder(file).Encode(snap); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close snapshot file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// Load restores the graph and mappings from disk.
func (s *HNSWStore) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	if err := s.loadSnapshot(path + ".meta"); err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open index file: %w", err)
	}
	defer file.Close()

	// coder/hnsw Import requires an io.ByteReader.
	if err := s.graph.Import(bufio.NewReader(file)); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}
	return nil
}

func (s *HNSWStore) loadSnapshot(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open snapshot file: %w", err)
	}
	defer file.Close()

	var snap hnswSnapshot
	if err := gob.NewDecoder(file).Decode(&snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	s.idMap = snap.IDMap
	s.meta = snap.Meta
	if s.meta == nil {
		s.meta = make(map[string]map[string]string)
	}
	s.nextKey = snap.NextKey
	s.config = snap.Config

	s.keyMap = make(map[uint64]string, len(s.idMap))
	for id, key := range s.idMap {
		s.keyMap[key] = id
	}
	return nil
}

// Close releases resources.
func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.graph = nil
	return nil
}

var _ VectorStore = (*HNSWStore)(nil)

// normalizeVectorInPlace normalizes a vector to unit length in place.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}

// distanceToScore converts cosine distance (0-2) to similarity (0-1).
func distanceToScore(distance float32) float32 {
	score := 1.0 - distance/2.0
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
