// Package search implements the hybrid retrieval engine: candidate
// gathering from a lexical and a vector channel, per-channel min-max
// normalization, weighted merge, per-document MAX aggregation, and
// tie-broken ordering.
package search

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/context-harness/harness/internal/apperr"
	"github.com/context-harness/harness/internal/store"
	"github.com/context-harness/harness/models"
)

// Mode selects which channels a Request draws candidates from.
type Mode string

const (
	ModeKeyword  Mode = "keyword"
	ModeSemantic Mode = "semantic"
	ModeHybrid   Mode = "hybrid"
)

// Request carries one search call's query, mode, filters, and tuning.
type Request struct {
	Query       string
	QueryVector []float32
	Mode        Mode
	Source      string
	Since       string // YYYY-MM-DD
	Alpha       float64
	KKeyword    int64
	KVector     int64
	FinalLimit  int64
	Explain     bool
}

// Engine runs hybrid search against a Store.
type Engine struct {
	store store.Store
	log   zerolog.Logger
}

func New(s store.Store, log zerolog.Logger) *Engine {
	return &Engine{store: s, log: log}
}

type scoredChunk struct {
	chunkID       string
	documentID    string
	keywordNorm   float64
	semanticNorm  float64
	hybridScore   float64
	snippet       string
}

// Search gathers candidates from the requested channels, normalizes and
// merges them, aggregates by document, then filters, sorts, and truncates.
func (e *Engine) Search(ctx context.Context, req Request) ([]models.Result, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, nil
	}

	switch req.Mode {
	case ModeKeyword, ModeSemantic, ModeHybrid:
	default:
		return nil, apperr.UserInput("unknown search mode %q", req.Mode)
	}

	var keywordCandidates, vectorCandidates []models.ChunkCandidate
	var err error

	if req.Mode == ModeKeyword || req.Mode == ModeHybrid {
		keywordCandidates, err = e.store.KeywordSearch(ctx, req.Query, req.KKeyword, req.Source, req.Since)
		if err != nil {
			return nil, apperr.Internal("keyword search failed", err)
		}
	}

	if req.Mode == ModeSemantic || req.Mode == ModeHybrid {
		if len(req.QueryVector) == 0 {
			return nil, apperr.UserInput("semantic/hybrid search requires a query vector")
		}
		vectorCandidates, err = e.store.VectorSearch(ctx, req.QueryVector, req.KVector, req.Source, req.Since)
		if err != nil {
			return nil, apperr.Internal("vector search failed", err)
		}
	}

	if len(keywordCandidates) == 0 && len(vectorCandidates) == 0 {
		return nil, nil
	}

	keywordNorm := normalize(keywordCandidates)
	vectorNorm := normalize(vectorCandidates)

	alphaEff := effectiveAlpha(req.Mode, req.Alpha)

	type chunkMeta struct {
		documentID string
		snippet    string
	}
	meta := make(map[string]chunkMeta)
	order := make([]string, 0, len(keywordCandidates)+len(vectorCandidates))
	for _, c := range keywordCandidates {
		if _, ok := meta[c.ChunkID]; !ok {
			meta[c.ChunkID] = chunkMeta{documentID: c.DocumentID, snippet: c.Snippet}
			order = append(order, c.ChunkID)
		}
	}
	for _, c := range vectorCandidates {
		if _, ok := meta[c.ChunkID]; !ok {
			meta[c.ChunkID] = chunkMeta{documentID: c.DocumentID, snippet: c.Snippet}
			order = append(order, c.ChunkID)
		}
	}

	scored := make([]scoredChunk, 0, len(order))
	for _, chunkID := range order {
		m := meta[chunkID]
		k := keywordNorm[chunkID]
		v := vectorNorm[chunkID]
		scored = append(scored, scoredChunk{
			chunkID:      chunkID,
			documentID:   m.documentID,
			keywordNorm:  k,
			semanticNorm: v,
			hybridScore:  (1-alphaEff)*k + alphaEff*v,
			snippet:      m.snippet,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].hybridScore > scored[j].hybridScore })

	type docAgg struct {
		chunk             scoredChunk
		keywordCandidates int
		vectorCandidates  int
	}
	byDoc := make(map[string]*docAgg)
	docOrder := make([]string, 0)
	for _, sc := range scored {
		existing, ok := byDoc[sc.documentID]
		if !ok {
			byDoc[sc.documentID] = &docAgg{chunk: sc}
			docOrder = append(docOrder, sc.documentID)
			continue
		}
		if sc.hybridScore > existing.chunk.hybridScore {
			existing.chunk = sc
		}
	}
	for _, docID := range docOrder {
		byDoc[docID].keywordCandidates = len(keywordCandidates)
		byDoc[docID].vectorCandidates = len(vectorCandidates)
	}

	var sinceTS int64 = math.MinInt64
	if req.Since != "" {
		t, err := time.Parse("2006-01-02", req.Since)
		if err != nil {
			return nil, apperr.UserInput("malformed since date %q: %v", req.Since, err)
		}
		sinceTS = t.UTC().Unix()
	}

	results := make([]models.Result, 0, len(docOrder))
	for _, docID := range docOrder {
		agg := byDoc[docID]
		metaRec, err := e.store.GetDocumentMetadata(ctx, docID)
		if err != nil {
			return nil, apperr.Internal("get document metadata failed", err)
		}
		if metaRec == nil {
			e.log.Warn().Str("document_id", docID).Msg("dropping scored document with no metadata")
			continue
		}
		if req.Source != "" && metaRec.Source != req.Source {
			continue
		}
		if req.Since != "" && metaRec.UpdatedAt < sinceTS {
			continue
		}

		res := models.Result{
			ID:        metaRec.ID,
			Score:     agg.chunk.hybridScore,
			Title:     metaRec.Title,
			Source:    metaRec.Source,
			SourceID:  metaRec.SourceID,
			UpdatedAt: time.Unix(metaRec.UpdatedAt, 0).UTC().Format(time.RFC3339),
			Snippet:   agg.chunk.snippet,
			SourceURL: metaRec.SourceURL,
		}
		if req.Explain {
			res.Explain = &models.ScoreExplanation{
				KeywordScore:      agg.chunk.keywordNorm,
				SemanticScore:     agg.chunk.semanticNorm,
				Alpha:             alphaEff,
				KeywordCandidates: agg.keywordCandidates,
				VectorCandidates:  agg.vectorCandidates,
			}
		}
		results = append(results, res)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].UpdatedAt != results[j].UpdatedAt {
			return results[i].UpdatedAt > results[j].UpdatedAt
		}
		return results[i].ID < results[j].ID
	})

	if req.FinalLimit > 0 && int64(len(results)) > req.FinalLimit {
		results = results[:req.FinalLimit]
	}
	return results, nil
}

func effectiveAlpha(mode Mode, configured float64) float64 {
	switch mode {
	case ModeKeyword:
		return 0
	case ModeSemantic:
		return 1
	default:
		return configured
	}
}

const normEpsilon = 1e-9

// normalize applies independent per-channel min-max normalization. An
// empty channel yields an empty map; a channel whose scores are all equal
// (within normEpsilon) maps every candidate to 1.0.
func normalize(candidates []models.ChunkCandidate) map[string]float64 {
	out := make(map[string]float64, len(candidates))
	if len(candidates) == 0 {
		return out
	}
	min, max := candidates[0].RawScore, candidates[0].RawScore
	for _, c := range candidates {
		if c.RawScore < min {
			min = c.RawScore
		}
		if c.RawScore > max {
			max = c.RawScore
		}
	}
	spread := max - min
	for _, c := range candidates {
		if math.Abs(spread) < normEpsilon {
			out[c.ChunkID] = 1.0
		} else {
			out[c.ChunkID] = (c.RawScore - min) / spread
		}
	}
	return out
}
