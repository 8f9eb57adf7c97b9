package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/answerforge/ragcore/internal/model"
	"github.com/answerforge/ragcore/internal/store"
)

// ingestConcurrency bounds how many documents are processed in parallel.
const ingestConcurrency = 4

// IngestStats summarizes an ingestion run.
type IngestStats struct {
	Documents int `json:"inserted_count"`
	Chunks    int `json:"chunk_count"`
}

// Ingest chunks, embeds, and indexes documents into the BM25 index, the
// vector store, and the metadata store. With reset, all three are cleared
// first. Documents are processed concurrently; the first error aborts the
// remaining work.
func (p *Pipeline) Ingest(ctx context.Context, docs []model.Document, reset bool) (IngestStats, error) {
	if p.deps.Chunker == nil || p.deps.Embedder == nil ||
		p.deps.BM25 == nil || p.deps.Vectors == nil || p.deps.Meta == nil {
		return IngestStats{}, fmt.Errorf("pipeline is not configured for ingestion")
	}

	if reset {
		if err := p.resetStores(ctx); err != nil {
			return IngestStats{}, err
		}
	}

	var (
		mu    sync.Mutex
		stats IngestStats
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ingestConcurrency)
	for i := range docs {
		doc := docs[i]
		g.Go(func() error {
			n, err := p.ingestOne(gctx, doc)
			if err != nil {
				return err
			}
			mu.Lock()
			stats.Documents++
			stats.Chunks += n
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	p.logger.Info("ingest complete",
		"documents", stats.Documents, "chunks", stats.Chunks, "reset", reset)
	return stats, nil
}

// ingestOne processes a single document and returns its chunk count.
func (p *Pipeline) ingestOne(ctx context.Context, doc model.Document) (int, error) {
	if doc.Content == "" {
		return 0, fmt.Errorf("document %q has no content", doc.ID)
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.Source == "" {
		doc.Source = model.SourceCustom
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}

	chunks := p.deps.Chunker.Chunk(doc)
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := p.deps.Embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed document %s: %w", doc.ID, err)
	}
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("embed document %s: got %d vectors for %d chunks",
			doc.ID, len(vectors), len(chunks))
	}

	ids := make([]string, len(chunks))
	metas := make([]map[string]string, len(chunks))
	bmDocs := make([]*store.Document, len(chunks))
	for i, c := range chunks {
		meta := chunkIndexMeta(c)
		ids[i] = c.ID
		metas[i] = meta
		bmDocs[i] = &store.Document{ID: c.ID, Content: c.Text, Metadata: meta}
	}

	if err := p.deps.Meta.SaveDocument(ctx, &doc); err != nil {
		return 0, err
	}
	if err := p.deps.Meta.SaveChunks(ctx, chunks); err != nil {
		return 0, err
	}
	if err := p.deps.BM25.Index(ctx, bmDocs); err != nil {
		return 0, fmt.Errorf("index document %s: %w", doc.ID, err)
	}
	if err := p.deps.Vectors.Add(ctx, ids, vectors, metas); err != nil {
		return 0, fmt.Errorf("store vectors for %s: %w", doc.ID, err)
	}
	return len(chunks), nil
}

// Delete removes documents and their chunks from all three stores.
func (p *Pipeline) Delete(ctx context.Context, docIDs []string) error {
	if p.deps.BM25 == nil || p.deps.Vectors == nil || p.deps.Meta == nil {
		return fmt.Errorf("pipeline is not configured for ingestion")
	}

	for _, id := range docIDs {
		chunks, err := p.deps.Meta.GetChunksByDocument(ctx, id)
		if err != nil {
			return fmt.Errorf("list chunks for %s: %w", id, err)
		}
		chunkIDs := make([]string, len(chunks))
		for i, c := range chunks {
			chunkIDs[i] = c.ID
		}

		if err := p.deps.BM25.Delete(ctx, chunkIDs); err != nil {
			return fmt.Errorf("delete from bm25: %w", err)
		}
		if err := p.deps.Vectors.Delete(ctx, chunkIDs); err != nil {
			return fmt.Errorf("delete from vector store: %w", err)
		}
		if err := p.deps.Meta.DeleteDocument(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// VectorStoreStatus reports vector store health with the document count
// taken from the metadata store when available.
func (p *Pipeline) VectorStoreStatus(ctx context.Context) model.StoreStatus {
	if p.deps.Vectors == nil {
		return model.StoreStatus{Status: "error"}
	}

	status := p.deps.Vectors.Status(ctx)
	if p.deps.Meta != nil {
		if n, err := p.deps.Meta.DocumentCount(ctx); err == nil {
			status.DocumentCount = n
		}
	}
	return status
}

func (p *Pipeline) resetStores(ctx context.Context) error {
	if err := p.deps.BM25.Reset(ctx); err != nil {
		return fmt.Errorf("reset bm25 index: %w", err)
	}
	if err := p.deps.Vectors.Reset(ctx); err != nil {
		return fmt.Errorf("reset vector store: %w", err)
	}
	if err := p.deps.Meta.Reset(ctx); err != nil {
		return fmt.Errorf("reset metadata store: %w", err)
	}
	return nil
}

// chunkIndexMeta is the metadata attached to a chunk in both indices; the
// source tag rides along for filtering.
func chunkIndexMeta(c model.Chunk) map[string]string {
	meta := make(map[string]string, len(c.Metadata)+1)
	for k, v := range c.Metadata {
		meta[k] = v
	}
	if c.Source != "" {
		meta["source"] = string(c.Source)
	}
	return meta
}
