package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/answerforge/ragcore/internal/model"
)

// SQLiteStore persists documents and their chunks. Deleting a document
// cascades to its chunks via the foreign key.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	id           TEXT PRIMARY KEY,
	content      TEXT NOT NULL,
	source       TEXT NOT NULL,
	title        TEXT NOT NULL DEFAULT '',
	url          TEXT NOT NULL DEFAULT '',
	license      TEXT NOT NULL DEFAULT '',
	metadata     TEXT NOT NULL DEFAULT '{}',
	published_at TEXT NOT NULL DEFAULT '',
	created_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
	id        TEXT PRIMARY KEY,
	parent_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	ordinal   INTEGER NOT NULL,
	text      TEXT NOT NULL,
	title     TEXT NOT NULL DEFAULT '',
	source    TEXT NOT NULL,
	url       TEXT NOT NULL DEFAULT '',
	metadata  TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_chunks_parent ON chunks(parent_id);
`

// NewSQLiteStore opens (or creates) the database at path. An empty path
// uses an in-memory database, handy for tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := "file::memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create directory: %w", err)
		}
		dsn = "file:" + path
	}

	db, err := sql.Open("sqlite", dsn+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// modernc sqlite is single-writer; serialize access through one conn.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// SaveDocument inserts or replaces a document.
func (s *SQLiteStore) SaveDocument(ctx context.Context, doc *model.Document) error {
	if doc.ID == "" {
		return fmt.Errorf("document without id")
	}

	meta, err := marshalMeta(doc.Metadata)
	if err != nil {
		return err
	}

	published := ""
	if !doc.PublishedAt.IsZero() {
		published = doc.PublishedAt.UTC().Format(time.RFC3339Nano)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO documents
			(id, content, source, title, url, license, metadata, published_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Content, string(doc.Source), doc.Title, doc.URL, doc.License,
		meta, published, doc.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save document %s: %w", doc.ID, err)
	}
	return nil
}

// GetDocument fetches a document by id. Returns sql.ErrNoRows when absent.
func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, content, source, title, url, license, metadata, published_at, created_at
		FROM documents WHERE id = ?`, id)

	var doc model.Document
	var source, meta, published, created string
	if err := row.Scan(&doc.ID, &doc.Content, &source, &doc.Title, &doc.URL,
		&doc.License, &meta, &published, &created); err != nil {
		return nil, err
	}

	doc.Source = model.DocumentSource(source)
	if err := unmarshalMeta(meta, &doc.Metadata); err != nil {
		return nil, fmt.Errorf("document %s metadata: %w", id, err)
	}
	if published != "" {
		doc.PublishedAt, _ = time.Parse(time.RFC3339Nano, published)
	}
	doc.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)

	return &doc, nil
}

// DeleteDocument removes a document; its chunks go with it.
func (s *SQLiteStore) DeleteDocument(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	return nil
}

// DocumentCount returns the number of stored documents.
func (s *SQLiteStore) DocumentCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n)
	return n, err
}

// SaveChunks inserts or replaces chunks in a single transaction.
func (s *SQLiteStore) SaveChunks(ctx context.Context, chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO chunks
			(id, parent_id, ordinal, text, title, source, url, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, c := range chunks {
		meta, err := marshalMeta(c.Metadata)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, c.ID, c.ParentID, c.Ordinal,
			c.Text, c.Title, string(c.Source), c.URL, meta); err != nil {
			return fmt.Errorf("save chunk %s: %w", c.ID, err)
		}
	}

	return tx.Commit()
}

// GetChunk fetches one chunk by id. Returns sql.ErrNoRows when absent.
func (s *SQLiteStore) GetChunk(ctx context.Context, id string) (*model.Chunk, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, parent_id, ordinal, text, title, source, url, metadata
		FROM chunks WHERE id = ?`, id)

	chunk, err := scanChunk(row)
	if err != nil {
		return nil, err
	}
	return chunk, nil
}

// GetChunks fetches chunks by id, preserving the requested order. Missing
// ids are silently skipped.
func (s *SQLiteStore) GetChunks(ctx context.Context, ids []string) ([]model.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, parent_id, ordinal, text, title, source, url, metadata
		FROM chunks WHERE id IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]model.Chunk, len(ids))
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		byID[chunk.ID] = *chunk
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]model.Chunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// GetChunksByDocument fetches a document's chunks ordered by ordinal.
func (s *SQLiteStore) GetChunksByDocument(ctx context.Context, parentID string) ([]model.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, parent_id, ordinal, text, title, source, url, metadata
		FROM chunks WHERE parent_id = ? ORDER BY ordinal`, parentID)
	if err != nil {
		return nil, fmt.Errorf("query chunks for %s: %w", parentID, err)
	}
	defer rows.Close()

	var out []model.Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *chunk)
	}
	return out, rows.Err()
}

// ChunkCount returns the number of stored chunks.
func (s *SQLiteStore) ChunkCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n)
	return n, err
}

// Reset drops all documents; chunks cascade.
func (s *SQLiteStore) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents`); err != nil {
		return fmt.Errorf("reset documents: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ MetadataStore = (*SQLiteStore)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChunk(row rowScanner) (*model.Chunk, error) {
	var c model.Chunk
	var source, meta string
	if err := row.Scan(&c.ID, &c.ParentID, &c.Ordinal, &c.Text,
		&c.Title, &source, &c.URL, &meta); err != nil {
		return nil, err
	}
	c.Source = model.DocumentSource(source)
	if err := unmarshalMeta(meta, &c.Metadata); err != nil {
		return nil, fmt.Errorf("chunk %s metadata: %w", c.ID, err)
	}
	return &c, nil
}

func marshalMeta(meta map[string]string) (string, error) {
	if len(meta) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	return string(data), nil
}

func unmarshalMeta(data string, out *map[string]string) error {
	if data == "" || data == "{}" {
		return nil
	}
	return json.Unmarshal([]byte(data), out)
}
