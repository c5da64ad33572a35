// Package sqlitestore is the default production Store backend: SQLite for
// documents/chunks/checkpoints, the sqlite-vec vec0 virtual table for the
// vector channel, and FTS5 for the lexical channel's BM25 ranking and
// snippet() extraction.
//
// Build note: mattn/go-sqlite3 must be compiled with the fts5 build tag
// (CGO_ENABLED=1, `-tags "sqlite_fts5"`) for the lexical index to work.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sqlitevec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/context-harness/harness/internal/vectorcodec"
	"github.com/context-harness/harness/models"
)

// maxOpenConns bounds the store's connection pool.
const maxOpenConns = 5

// Store is the SQLite-backed Store implementation.
type Store struct {
	db   *sql.DB
	dims int
}

// Open creates (or reuses) the SQLite database at path, loads the
// sqlite-vec extension, and ensures the schema exists. dims fixes the
// vec0 table's vector width; it must match the configured embedding
// provider's Dims() whenever embedding is enabled.
func Open(path string, dims int) (*Store, error) {
	sqlitevec.Auto()

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &Store{db: db, dims: dims}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			source_id TEXT NOT NULL,
			source_url TEXT,
			title TEXT,
			author TEXT,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			content_type TEXT,
			body TEXT NOT NULL,
			metadata TEXT,
			raw TEXT,
			dedup_hash TEXT,
			UNIQUE(source, source_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_source ON documents(source)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_updated_at ON documents(updated_at DESC)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			chunk_index INTEGER NOT NULL,
			text TEXT NOT NULL,
			hash TEXT NOT NULL,
			UNIQUE(document_id, chunk_index)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id)`,
		`CREATE TABLE IF NOT EXISTS embeddings (
			chunk_id TEXT PRIMARY KEY REFERENCES chunks(id) ON DELETE CASCADE,
			document_id TEXT NOT NULL,
			model TEXT NOT NULL,
			dims INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			hash TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chunk_vectors (
			chunk_id TEXT PRIMARY KEY REFERENCES chunks(id) ON DELETE CASCADE,
			document_id TEXT NOT NULL,
			embedding BLOB NOT NULL
		)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
			chunk_id UNINDEXED,
			document_id UNINDEXED,
			text,
			tokenize='unicode61'
		)`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			source TEXT PRIMARY KEY,
			cursor TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate schema: %w", err)
		}
	}
	return s.ensureVecTable()
}

// ensureVecTable creates the vec0 KNN table sized to s.dims. It is
// recreated only if missing; a dimension change requires a fresh store
// path (the pipeline's "embed rebuild" does not attempt in-place resize).
func (s *Store) ensureVecTable() error {
	if s.dims <= 0 {
		return nil
	}
	stmt := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS chunk_vectors_vec USING vec0(
			chunk_id TEXT PRIMARY KEY,
			embedding FLOAT[%d] distance_metric=cosine
		)`, s.dims)
	_, err := s.db.Exec(stmt)
	return err
}

func (s *Store) UpsertDocument(ctx context.Context, doc *models.Document) (string, error) {
	var existing string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM documents WHERE source = ? AND source_id = ?`, doc.Source, doc.SourceID).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
		// new document, keep doc.ID as given
	case err != nil:
		return "", err
	default:
		doc.ID = existing
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (id, source, source_id, source_url, title, author, created_at, updated_at, content_type, body, metadata, raw, dedup_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source, source_id) DO UPDATE SET
			source_url = excluded.source_url,
			title = excluded.title,
			author = excluded.author,
			updated_at = excluded.updated_at,
			content_type = excluded.content_type,
			body = excluded.body,
			metadata = excluded.metadata,
			raw = excluded.raw,
			dedup_hash = excluded.dedup_hash
	`, doc.ID, doc.Source, doc.SourceID, doc.SourceURL, doc.Title, doc.Author, doc.CreatedAt, doc.UpdatedAt, doc.ContentType, doc.Body, doc.Metadata, doc.Raw, doc.DedupHash)
	if err != nil {
		return "", err
	}
	return doc.ID, nil
}

// ReplaceChunks atomically swaps the chunk set: delete dependents
// (embeddings, vectors, fts) then chunks, then insert the new set, all
// within one transaction.
func (s *Store) ReplaceChunks(ctx context.Context, docID string, chunks []models.Chunk, vectors [][]float32) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM embeddings WHERE document_id = ?`, docID); err != nil {
		return fmt.Errorf("delete embeddings: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunk_vectors WHERE document_id = ?`, docID); err != nil {
		return fmt.Errorf("delete chunk vectors: %w", err)
	}
	if s.dims > 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunk_vectors_vec WHERE chunk_id IN (SELECT id FROM chunks WHERE document_id = ?)`, docID); err != nil {
			return fmt.Errorf("delete vec rows: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks_fts WHERE document_id = ?`, docID); err != nil {
		return fmt.Errorf("delete fts entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, docID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}

	insertChunk, err := tx.PrepareContext(ctx, `INSERT INTO chunks (id, document_id, chunk_index, text, hash) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer insertChunk.Close()

	insertFTS, err := tx.PrepareContext(ctx, `INSERT INTO chunks_fts (chunk_id, document_id, text) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer insertFTS.Close()

	for i, c := range chunks {
		if _, err := insertChunk.ExecContext(ctx, c.ID, docID, c.ChunkIndex, c.Text, c.Hash); err != nil {
			return fmt.Errorf("insert chunk: %w", err)
		}
		if _, err := insertFTS.ExecContext(ctx, c.ID, docID, c.Text); err != nil {
			return fmt.Errorf("insert fts entry: %w", err)
		}
		if vectors != nil && i < len(vectors) && vectors[i] != nil {
			if err := s.insertVector(ctx, tx, c.ID, docID, vectors[i]); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

func (s *Store) insertVector(ctx context.Context, tx *sql.Tx, chunkID, docID string, vector []float32) error {
	blob := vectorcodec.Encode(vector)
	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO chunk_vectors (chunk_id, document_id, embedding) VALUES (?, ?, ?)`, chunkID, docID, blob); err != nil {
		return fmt.Errorf("insert chunk vector: %w", err)
	}
	if s.dims > 0 {
		vecStr := floatsToVecLiteral(vector)
		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO chunk_vectors_vec (chunk_id, embedding) VALUES (?, ?)`, chunkID, vecStr); err != nil {
			return fmt.Errorf("insert vec0 row: %w", err)
		}
	}
	return nil
}

func (s *Store) UpsertEmbedding(ctx context.Context, chunkID, docID string, vector []float32, model string, dims int, contentHash string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO embeddings (chunk_id, document_id, model, dims, created_at, hash)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			model = excluded.model, dims = excluded.dims,
			created_at = excluded.created_at, hash = excluded.hash
	`, chunkID, docID, model, dims, time.Now().Unix(), contentHash); err != nil {
		return fmt.Errorf("upsert embedding row: %w", err)
	}

	if err := s.insertVector(ctx, tx, chunkID, docID, vector); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) GetDocument(ctx context.Context, id string) (*models.DocumentResponse, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source, source_id, source_url, title, author, created_at, updated_at, content_type, body, metadata
		FROM documents WHERE id = ?`, id)

	var resp models.DocumentResponse
	var sourceURL, title, author, metadata sql.NullString
	var createdAt, updatedAt int64
	if err := row.Scan(&resp.ID, &resp.Source, &resp.SourceID, &sourceURL, &title, &author, &createdAt, &updatedAt, &resp.ContentType, &resp.Body, &metadata); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	resp.SourceURL = sourceURL.String
	resp.Title = title.String
	resp.Author = author.String
	resp.Metadata = models.ParseMetadata(metadata.String)
	resp.CreatedAt = time.Unix(createdAt, 0).UTC().Format(time.RFC3339)
	resp.UpdatedAt = time.Unix(updatedAt, 0).UTC().Format(time.RFC3339)

	rows, err := s.db.QueryContext(ctx, `SELECT chunk_index, text FROM chunks WHERE document_id = ? ORDER BY chunk_index`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var cr models.ChunkResponse
		if err := rows.Scan(&cr.Index, &cr.Text); err != nil {
			return nil, err
		}
		resp.Chunks = append(resp.Chunks, cr)
	}
	return &resp, rows.Err()
}

func (s *Store) GetDocumentMetadata(ctx context.Context, id string) (*models.DocumentMetadata, error) {
	var meta models.DocumentMetadata
	var title, sourceURL sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT id, title, source, source_id, source_url, updated_at FROM documents WHERE id = ?`, id).
		Scan(&meta.ID, &title, &meta.Source, &meta.SourceID, &sourceURL, &meta.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	meta.Title = title.String
	meta.SourceURL = sourceURL.String
	return &meta, nil
}

func (s *Store) FindDocumentIDBySource(ctx context.Context, source, sourceID string) (string, bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM documents WHERE source = ? AND source_id = ?`, source, sourceID).Scan(&id)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (s *Store) EmbeddingHash(ctx context.Context, chunkID, model string) (string, bool, error) {
	var hash string
	var gotModel string
	err := s.db.QueryRowContext(ctx, `SELECT model, hash FROM embeddings WHERE chunk_id = ?`, chunkID).Scan(&gotModel, &hash)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if gotModel != model {
		return "", false, nil
	}
	return hash, true, nil
}

// KeywordSearch runs the FTS5 MATCH query and converts bm25()'s
// lower-is-better score into a higher-is-better raw score (negation),
// consistent with vector cosine similarity.
func (s *Store) KeywordSearch(ctx context.Context, query string, limit int64, source, since string) ([]models.ChunkCandidate, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	q := `
		SELECT f.chunk_id, f.document_id, bm25(chunks_fts) AS score, snippet(chunks_fts, 2, '[', ']', '...', 12)
		FROM chunks_fts f
		JOIN documents d ON d.id = f.document_id
		WHERE chunks_fts MATCH ?`
	args := []interface{}{query}
	q, args = applyFilters(q, args, "d", source, since)
	q += ` ORDER BY score LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		if strings.Contains(err.Error(), "fts5") || strings.Contains(err.Error(), "syntax error") {
			return nil, nil
		}
		return nil, err
	}
	defer rows.Close()

	var out []models.ChunkCandidate
	for rows.Next() {
		var c models.ChunkCandidate
		var bm25Score float64
		if err := rows.Scan(&c.ChunkID, &c.DocumentID, &bm25Score, &c.Snippet); err != nil {
			return nil, err
		}
		c.RawScore = -bm25Score
		out = append(out, c)
	}
	return out, rows.Err()
}

// VectorSearch runs a vec0 KNN query against the query vector, joining
// back to documents for source/since filtering.
func (s *Store) VectorSearch(ctx context.Context, queryVec []float32, limit int64, source, since string) ([]models.ChunkCandidate, error) {
	if len(queryVec) == 0 || s.dims <= 0 {
		return nil, nil
	}

	q := `
		SELECT v.chunk_id, c.document_id, v.distance, c.text
		FROM chunk_vectors_vec v
		JOIN chunks c ON c.id = v.chunk_id
		JOIN documents d ON d.id = c.document_id
		WHERE v.embedding MATCH ? AND k = ?`
	args := []interface{}{floatsToVecLiteral(queryVec), limit}
	q, args = applyFilters(q, args, "d", source, since)
	q += ` ORDER BY v.distance`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ChunkCandidate
	for rows.Next() {
		var c models.ChunkCandidate
		var distance float64
		if err := rows.Scan(&c.ChunkID, &c.DocumentID, &distance, &c.Snippet); err != nil {
			return nil, err
		}
		c.RawScore = 1 - distance // vec0 cosine distance -> similarity
		out = append(out, c)
	}
	return out, rows.Err()
}

func applyFilters(q string, args []interface{}, alias, source, since string) (string, []interface{}) {
	if source != "" {
		q += fmt.Sprintf(" AND %s.source = ?", alias)
		args = append(args, source)
	}
	if since != "" {
		if t, err := time.Parse("2006-01-02", since); err == nil {
			q += fmt.Sprintf(" AND %s.updated_at >= ?", alias)
			args = append(args, t.UTC().Unix())
		}
	}
	return q, args
}

func (s *Store) GetCheckpoint(ctx context.Context, source string) (string, error) {
	var cursor string
	err := s.db.QueryRowContext(ctx, `SELECT cursor FROM checkpoints WHERE source = ?`, source).Scan(&cursor)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return cursor, err
}

func (s *Store) SetCheckpoint(ctx context.Context, source, cursor string, updatedAt int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (source, cursor, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(source) DO UPDATE SET cursor = excluded.cursor, updated_at = excluded.updated_at
	`, source, cursor, updatedAt)
	return err
}

func (s *Store) ListChunks(ctx context.Context) ([]models.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, document_id, chunk_index, text, hash FROM chunks ORDER BY document_id, chunk_index`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Chunk
	for rows.Next() {
		var c models.Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.ChunkIndex, &c.Text, &c.Hash); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) DeleteAllEmbeddings(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM embeddings`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunk_vectors`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunk_vectors_vec`); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Close() error { return s.db.Close() }

// floatsToVecLiteral renders a vector as sqlite-vec's JSON-array text
// literal, the format its MATCH/bind parameters accept.
func floatsToVecLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%g", f)
	}
	b.WriteByte(']')
	return b.String()
}
