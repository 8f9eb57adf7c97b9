package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/answerforge/ragcore/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore("")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteDocumentRoundTrip(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	doc := model.Document{
		ID:          "doc-1",
		Content:     "attention is all you need",
		Source:      model.SourceArxiv,
		Title:       "Attention Is All You Need",
		URL:         "https://arxiv.org/abs/1706.03762",
		License:     "cc-by",
		Metadata:    map[string]string{"lang": "en"},
		PublishedAt: time.Date(2017, 6, 12, 0, 0, 0, 0, time.UTC),
		CreatedAt:   time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, s.SaveDocument(ctx, &doc))

	got, err := s.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, doc.Content, got.Content)
	assert.Equal(t, model.SourceArxiv, got.Source)
	assert.Equal(t, doc.Metadata, got.Metadata)
	assert.True(t, doc.PublishedAt.Equal(got.PublishedAt))
	assert.True(t, doc.CreatedAt.Equal(got.CreatedAt))

	count, err := s.DocumentCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSQLiteDocumentNotFound(t *testing.T) {
	s := newTestSQLite(t)

	_, err := s.GetDocument(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestSQLiteChunksByDocumentOrdered(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	doc := model.NewDocument("body", model.SourceWeb, nil)
	require.NoError(t, s.SaveDocument(ctx, &doc))

	chunks := []model.Chunk{
		{ID: model.ChunkID(doc.ID, 1), ParentID: doc.ID, Ordinal: 1, Text: "second", Source: model.SourceWeb},
		{ID: model.ChunkID(doc.ID, 0), ParentID: doc.ID, Ordinal: 0, Text: "first", Source: model.SourceWeb,
			Metadata: map[string]string{"section": "intro"}},
	}
	require.NoError(t, s.SaveChunks(ctx, chunks))

	got, err := s.GetChunksByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Text)
	assert.Equal(t, "second", got[1].Text)
	assert.Equal(t, map[string]string{"section": "intro"}, got[0].Metadata)
}

func TestSQLiteGetChunksPreservesOrderSkipsMissing(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	doc := model.NewDocument("body", model.SourceWeb, nil)
	require.NoError(t, s.SaveDocument(ctx, &doc))
	require.NoError(t, s.SaveChunks(ctx, []model.Chunk{
		{ID: "c-0", ParentID: doc.ID, Ordinal: 0, Text: "zero", Source: model.SourceWeb},
		{ID: "c-1", ParentID: doc.ID, Ordinal: 1, Text: "one", Source: model.SourceWeb},
	}))

	got, err := s.GetChunks(ctx, []string{"c-1", "ghost", "c-0"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c-1", got[0].ID)
	assert.Equal(t, "c-0", got[1].ID)
}

func TestSQLiteDeleteDocumentCascades(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	doc := model.NewDocument("body", model.SourceCustom, nil)
	require.NoError(t, s.SaveDocument(ctx, &doc))
	require.NoError(t, s.SaveChunks(ctx, []model.Chunk{
		{ID: "c-0", ParentID: doc.ID, Ordinal: 0, Text: "zero", Source: model.SourceCustom},
	}))

	require.NoError(t, s.DeleteDocument(ctx, doc.ID))

	_, err := s.GetDocument(ctx, doc.ID)
	assert.ErrorIs(t, err, sql.ErrNoRows)

	_, err = s.GetChunk(ctx, "c-0")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	n, err := s.ChunkCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLiteChunkForeignKeyEnforced(t *testing.T) {
	s := newTestSQLite(t)

	err := s.SaveChunks(context.Background(), []model.Chunk{
		{ID: "c-0", ParentID: "no-such-doc", Ordinal: 0, Text: "orphan", Source: model.SourceWeb},
	})
	assert.Error(t, err)
}

func TestSQLiteReset(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	doc := model.Document{ID: "d-1", Content: "body", Source: model.SourceWeb, CreatedAt: time.Now()}
	require.NoError(t, s.SaveDocument(ctx, &doc))
	require.NoError(t, s.SaveChunks(ctx, []model.Chunk{
		{ID: "d-1#0", ParentID: "d-1", Ordinal: 0, Text: "body", Source: model.SourceWeb},
	}))

	require.NoError(t, s.Reset(ctx))

	n, err := s.DocumentCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = s.ChunkCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
