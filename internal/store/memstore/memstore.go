// Package memstore is an in-memory Store implementation used by tests and
// as a reference backend: brute-force cosine similarity for vector search,
// substring term-count scoring for keyword search. It holds no lexical
// index and is not intended for production-scale corpora.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/context-harness/harness/internal/vectorcodec"
	"github.com/context-harness/harness/models"
)

type storedChunk struct {
	chunk      models.Chunk
	documentID string
}

type storedVector struct {
	chunkID    string
	documentID string
	vector     []float32
}

// Store is an RWMutex-guarded, map/slice-backed Store.
type Store struct {
	mu sync.RWMutex

	docs        map[string]*models.Document
	chunks      []storedChunk
	vectors     []storedVector
	embeddings  map[string]map[string]string // chunkID -> model -> content hash
	checkpoints map[string]models.Checkpoint
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		docs:        make(map[string]*models.Document),
		embeddings:  make(map[string]map[string]string),
		checkpoints: make(map[string]models.Checkpoint),
	}
}

func (s *Store) UpsertDocument(_ context.Context, doc *models.Document) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := doc.ID
	for _, d := range s.docs {
		if d.Source == doc.Source && d.SourceID == doc.SourceID {
			id = d.ID
			break
		}
	}
	cp := *doc
	cp.ID = id
	s.docs[id] = &cp
	return id, nil
}

func (s *Store) ReplaceChunks(_ context.Context, docID string, chunks []models.Chunk, vectors [][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	filtered := s.chunks[:0:0]
	for _, sc := range s.chunks {
		if sc.documentID != docID {
			filtered = append(filtered, sc)
		} else {
			delete(s.embeddings, sc.chunk.ID)
		}
	}
	for _, c := range chunks {
		filtered = append(filtered, storedChunk{chunk: c, documentID: docID})
	}
	s.chunks = filtered

	filteredVecs := s.vectors[:0:0]
	for _, sv := range s.vectors {
		if sv.documentID != docID {
			filteredVecs = append(filteredVecs, sv)
		}
	}
	if vectors != nil {
		for i, c := range chunks {
			if i >= len(vectors) {
				break
			}
			filteredVecs = append(filteredVecs, storedVector{chunkID: c.ID, documentID: docID, vector: vectors[i]})
		}
	}
	s.vectors = filteredVecs

	for _, c := range chunks {
		delete(s.embeddings, c.ID)
	}
	return nil
}

func (s *Store) UpsertEmbedding(_ context.Context, chunkID, docID string, vector []float32, model string, dims int, contentHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	replaced := false
	for i, sv := range s.vectors {
		if sv.chunkID == chunkID {
			s.vectors[i] = storedVector{chunkID: chunkID, documentID: docID, vector: vector}
			replaced = true
			break
		}
	}
	if !replaced {
		s.vectors = append(s.vectors, storedVector{chunkID: chunkID, documentID: docID, vector: vector})
	}
	if s.embeddings[chunkID] == nil {
		s.embeddings[chunkID] = make(map[string]string)
	}
	s.embeddings[chunkID][model] = contentHash
	_ = dims
	return nil
}

func (s *Store) GetDocument(_ context.Context, id string) (*models.DocumentResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[id]
	if !ok {
		return nil, nil
	}

	var resp models.DocumentResponse
	resp.ID = doc.ID
	resp.Source = doc.Source
	resp.SourceID = doc.SourceID
	resp.SourceURL = doc.SourceURL
	resp.Title = doc.Title
	resp.Author = doc.Author
	resp.CreatedAt = formatTS(doc.CreatedAt)
	resp.UpdatedAt = formatTS(doc.UpdatedAt)
	resp.ContentType = doc.ContentType
	resp.Body = doc.Body
	resp.Metadata = models.ParseMetadata(doc.Metadata)

	for _, sc := range s.chunks {
		if sc.documentID == id {
			resp.Chunks = append(resp.Chunks, models.ChunkResponse{Index: sc.chunk.ChunkIndex, Text: sc.chunk.Text})
		}
	}
	sort.Slice(resp.Chunks, func(i, j int) bool { return resp.Chunks[i].Index < resp.Chunks[j].Index })

	return &resp, nil
}

func (s *Store) GetDocumentMetadata(_ context.Context, id string) (*models.DocumentMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, nil
	}
	return &models.DocumentMetadata{
		ID: doc.ID, Title: doc.Title, Source: doc.Source,
		SourceID: doc.SourceID, SourceURL: doc.SourceURL, UpdatedAt: doc.UpdatedAt,
	}, nil
}

func (s *Store) FindDocumentIDBySource(_ context.Context, source, sourceID string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.docs {
		if d.Source == source && d.SourceID == sourceID {
			return d.ID, true, nil
		}
	}
	return "", false, nil
}

func (s *Store) EmbeddingHash(_ context.Context, chunkID, model string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.embeddings[chunkID]
	if !ok {
		return "", false, nil
	}
	h, ok := m[model]
	return h, ok, nil
}

func (s *Store) KeywordSearch(_ context.Context, query string, limit int64, _ string, _ string) ([]models.ChunkCandidate, error) {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []models.ChunkCandidate
	for _, sc := range s.chunks {
		lower := strings.ToLower(sc.chunk.Text)
		matches := 0
		for _, t := range terms {
			matches += strings.Count(lower, t)
		}
		if matches == 0 {
			continue
		}
		candidates = append(candidates, models.ChunkCandidate{
			ChunkID: sc.chunk.ID, DocumentID: sc.documentID,
			RawScore: float64(matches), Snippet: snippet(sc.chunk.Text),
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].RawScore > candidates[j].RawScore })
	if int64(len(candidates)) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

func (s *Store) VectorSearch(_ context.Context, queryVec []float32, limit int64, _ string, _ string) ([]models.ChunkCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	textByChunk := make(map[string]string, len(s.chunks))
	for _, sc := range s.chunks {
		textByChunk[sc.chunk.ID] = sc.chunk.Text
	}

	var candidates []models.ChunkCandidate
	for _, sv := range s.vectors {
		sim := float64(vectorcodec.Cosine(queryVec, sv.vector))
		candidates = append(candidates, models.ChunkCandidate{
			ChunkID: sv.chunkID, DocumentID: sv.documentID,
			RawScore: sim, Snippet: snippet(textByChunk[sv.chunkID]),
		})
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].RawScore > candidates[j].RawScore })
	if int64(len(candidates)) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

func (s *Store) GetCheckpoint(_ context.Context, source string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.checkpoints[source]
	if !ok {
		return "", nil
	}
	return cp.Cursor, nil
}

func (s *Store) SetCheckpoint(_ context.Context, source, cursor string, updatedAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[source] = models.Checkpoint{Source: source, Cursor: cursor, UpdatedAt: updatedAt}
	return nil
}

func (s *Store) ListChunks(_ context.Context) ([]models.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Chunk, len(s.chunks))
	for i, sc := range s.chunks {
		out[i] = sc.chunk
	}
	return out, nil
}

func (s *Store) DeleteAllEmbeddings(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors = nil
	s.embeddings = make(map[string]map[string]string)
	return nil
}

func (s *Store) Close() error { return nil }

func snippet(text string) string {
	r := []rune(text)
	if len(r) > 240 {
		return string(r[:240])
	}
	return text
}

func formatTS(ts int64) string {
	return time.Unix(ts, 0).UTC().Format("2006-01-02T15:04:05Z")
}
