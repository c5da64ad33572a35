// Package models holds the persisted and transient record types shared by
// the store, the ingestion pipeline, and the hybrid retrieval engine.
package models

import "encoding/json"

// SourceItem is produced by a connector and never persisted as-is; the
// ingestion pipeline normalizes it into a Document.
type SourceItem struct {
	Source      string            `json:"source"`
	SourceID    string            `json:"source_id"`
	SourceURL   string            `json:"source_url,omitempty"`
	Title       string            `json:"title,omitempty"`
	Author      string            `json:"author,omitempty"`
	CreatedAt   int64             `json:"created_at"`
	UpdatedAt   int64             `json:"updated_at"`
	ContentType string            `json:"content_type"`
	Body        string            `json:"body,omitempty"`
	RawBytes    []byte            `json:"-"`
	Metadata    string            `json:"metadata,omitempty"`
	Raw         string            `json:"raw,omitempty"`
}

// Document is the persisted, normalized record for a single source item.
// Primary key: ID. Secondary unique key: (Source, SourceID).
type Document struct {
	ID          string `json:"id"`
	Source      string `json:"source"`
	SourceID    string `json:"source_id"`
	SourceURL   string `json:"source_url,omitempty"`
	Title       string `json:"title,omitempty"`
	Author      string `json:"author,omitempty"`
	CreatedAt   int64  `json:"created_at"`
	UpdatedAt   int64  `json:"updated_at"`
	ContentType string `json:"content_type"`
	Body        string `json:"body"`
	Metadata    string `json:"metadata,omitempty"`
	Raw         string `json:"raw,omitempty"`
	DedupHash   string `json:"dedup_hash"`
}

// Chunk is a bounded-size slice of a Document's body, owned by exactly one
// document. ChunkIndex is contiguous from 0 within a document.
type Chunk struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
	Hash       string `json:"hash"`
}

// Embedding is the persisted vector for exactly one chunk under a given
// model. At most one row exists per (ChunkID, Model).
type Embedding struct {
	ChunkID    string    `json:"chunk_id"`
	DocumentID string    `json:"document_id"`
	Model      string    `json:"model"`
	Dims       int       `json:"dims"`
	Vector     []float32 `json:"-"`
	Hash       string    `json:"hash"`
	CreatedAt  int64     `json:"created_at"`
}

// Checkpoint is the persisted high-water mark of UpdatedAt for one source
// label.
type Checkpoint struct {
	Source    string `json:"source"`
	Cursor    string `json:"cursor"`
	UpdatedAt int64  `json:"updated_at"`
}

// ChunkCandidate is returned by a store search operation. RawScore is
// meaningful only within its originating channel.
type ChunkCandidate struct {
	ChunkID    string
	DocumentID string
	RawScore   float64
	Snippet    string
}

// DocumentMetadata is the lightweight record returned by
// Store.GetDocumentMetadata, used by the search engine to filter and
// label aggregated results without fetching the full document body.
type DocumentMetadata struct {
	ID        string
	Title     string
	Source    string
	SourceID  string
	SourceURL string
	UpdatedAt int64
}

// ChunkResponse is the wire shape of a single chunk within a DocumentResponse.
type ChunkResponse struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// DocumentResponse is the boundary-facing "get document" shape.
type DocumentResponse struct {
	ID          string          `json:"id"`
	Source      string          `json:"source"`
	SourceID    string          `json:"source_id"`
	SourceURL   string          `json:"source_url,omitempty"`
	Title       string          `json:"title,omitempty"`
	Author      string          `json:"author,omitempty"`
	CreatedAt   string          `json:"created_at"`
	UpdatedAt   string          `json:"updated_at"`
	ContentType string          `json:"content_type"`
	Body        string          `json:"body"`
	Metadata    interface{}     `json:"metadata,omitempty"`
	Chunks      []ChunkResponse `json:"chunks"`
}

// ParseMetadata turns the opaque metadata string a document carries in the
// store into the structured value boundary responses expose. Metadata is
// stored as a JSON string and parsed exactly once, at read; anything that
// fails to parse degrades to an empty object rather than an error.
func ParseMetadata(raw string) interface{} {
	if raw == "" {
		return map[string]interface{}{}
	}
	var v interface{}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return map[string]interface{}{}
	}
	return v
}

// ScoreExplanation is the optional per-result scoring breakdown, attached
// when a search request sets Explain.
type ScoreExplanation struct {
	KeywordScore      float64 `json:"keyword_score"`
	SemanticScore     float64 `json:"semantic_score"`
	Alpha             float64 `json:"alpha"`
	KeywordCandidates int     `json:"keyword_candidates"`
	VectorCandidates  int     `json:"vector_candidates"`
}

// Result is a single document-level entry returned by the hybrid retrieval
// engine, already sorted and truncated per the engine's ordering rule.
type Result struct {
	ID        string            `json:"id"`
	Score     float64           `json:"score"`
	Title     string            `json:"title,omitempty"`
	Source    string            `json:"source"`
	SourceID  string            `json:"source_id"`
	UpdatedAt string            `json:"updated_at"`
	Snippet   string            `json:"snippet"`
	SourceURL string            `json:"source_url,omitempty"`
	Explain   *ScoreExplanation `json:"explain,omitempty"`
}
