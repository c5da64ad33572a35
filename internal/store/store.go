// Package store defines the abstract persistence contract the hybrid
// retrieval engine and ingestion pipeline depend on. Concrete backends
// (sqlitestore, memstore) must honor it identically, in particular the
// atomicity of ReplaceChunks.
package store

import (
	"context"

	"github.com/context-harness/harness/models"
)

// Store is the persistence contract. Every method may perform I/O and may
// be cancelled via ctx.
type Store interface {
	// UpsertDocument inserts a new document or overwrites an existing one
	// keyed by (Source, SourceID), returning the (possibly pre-existing) id.
	UpsertDocument(ctx context.Context, doc *models.Document) (string, error)

	// ReplaceChunks atomically swaps the chunk set (and, if embedding is
	// enabled, the associated vectors) owned by docID. Must delete
	// dependents (embeddings, full-text entries) before chunks, then insert
	// the new set, all within a single transaction.
	ReplaceChunks(ctx context.Context, docID string, chunks []models.Chunk, vectors [][]float32) error

	// UpsertEmbedding creates or replaces the single embedding row for
	// (chunkID, model).
	UpsertEmbedding(ctx context.Context, chunkID, docID string, vector []float32, model string, dims int, contentHash string) error

	// GetDocument returns the full document with its ordered chunks, or nil
	// if absent.
	GetDocument(ctx context.Context, id string) (*models.DocumentResponse, error)

	// GetDocumentMetadata returns the lightweight record used during search
	// aggregation, or nil if absent.
	GetDocumentMetadata(ctx context.Context, id string) (*models.DocumentMetadata, error)

	// FindDocumentIDBySource looks up an existing document id by its
	// (source, source_id) unique key; ok is false if none exists.
	FindDocumentIDBySource(ctx context.Context, source, sourceID string) (id string, ok bool, err error)

	// EmbeddingHash returns the stored content hash for (chunkID, model), or
	// ok=false if no embedding row exists yet. Used by the inline embed
	// step to detect staleness without fetching the vector itself.
	EmbeddingHash(ctx context.Context, chunkID, model string) (hash string, ok bool, err error)

	// KeywordSearch returns up to limit candidates ordered by descending
	// lexical score.
	KeywordSearch(ctx context.Context, query string, limit int64, source, since string) ([]models.ChunkCandidate, error)

	// VectorSearch returns up to limit candidates ordered by descending
	// cosine similarity.
	VectorSearch(ctx context.Context, queryVec []float32, limit int64, source, since string) ([]models.ChunkCandidate, error)

	// GetCheckpoint returns the cursor for source, or "" if none was ever
	// advanced.
	GetCheckpoint(ctx context.Context, source string) (cursor string, err error)

	// SetCheckpoint upserts the cursor for source.
	SetCheckpoint(ctx context.Context, source, cursor string, updatedAt int64) error

	// ListChunks returns every chunk currently stored, across all
	// documents. Used only by the embedding maintenance operations
	// (embed pending / embed rebuild), never by the request-serving path.
	ListChunks(ctx context.Context) ([]models.Chunk, error)

	// DeleteAllEmbeddings drops every embedding row unconditionally; used
	// by the embed-rebuild maintenance operation before regenerating every
	// chunk's vector.
	DeleteAllEmbeddings(ctx context.Context) error

	// Close releases backend resources (connection pools, file handles).
	Close() error
}
