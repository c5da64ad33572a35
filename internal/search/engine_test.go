package search

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/context-harness/harness/internal/store/memstore"
	"github.com/context-harness/harness/models"
)

func seedTwoDocs(t *testing.T, s *memstore.Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.UpsertDocument(ctx, &models.Document{
		ID: "doc-a", Source: "wiki", SourceID: "a", Title: "Fox facts", UpdatedAt: 1000,
	})
	require.NoError(t, err)
	require.NoError(t, s.ReplaceChunks(ctx, "doc-a", []models.Chunk{
		{ID: "chunk-a1", DocumentID: "doc-a", ChunkIndex: 0, Text: "the quick brown fox jumps"},
	}, [][]float32{{1, 0, 0}}))

	_, err = s.UpsertDocument(ctx, &models.Document{
		ID: "doc-b", Source: "wiki", SourceID: "b", Title: "Dog facts", UpdatedAt: 2000,
	})
	require.NoError(t, err)
	require.NoError(t, s.ReplaceChunks(ctx, "doc-b", []models.Chunk{
		{ID: "chunk-b1", DocumentID: "doc-b", ChunkIndex: 0, Text: "the lazy dog sleeps"},
	}, [][]float32{{0, 1, 0}}))
}

func TestSearch_KeywordMode(t *testing.T) {
	s := memstore.New()
	seedTwoDocs(t, s)
	e := New(s, zerolog.Nop())

	results, err := e.Search(context.Background(), Request{
		Query: "fox", Mode: ModeKeyword, KKeyword: 10, KVector: 10, FinalLimit: 10,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc-a", results[0].ID)
}

func TestSearch_SemanticModeRequiresQueryVector(t *testing.T) {
	s := memstore.New()
	seedTwoDocs(t, s)
	e := New(s, zerolog.Nop())

	_, err := e.Search(context.Background(), Request{
		Query: "fox", Mode: ModeSemantic, KKeyword: 10, KVector: 10, FinalLimit: 10,
	})
	require.Error(t, err)
}

func TestSearch_SemanticModeRanksByCosineSimilarity(t *testing.T) {
	s := memstore.New()
	seedTwoDocs(t, s)
	e := New(s, zerolog.Nop())

	results, err := e.Search(context.Background(), Request{
		Query: "anything", Mode: ModeSemantic, QueryVector: []float32{1, 0, 0},
		KKeyword: 10, KVector: 10, FinalLimit: 10,
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "doc-a", results[0].ID)
}

func TestSearch_UnknownModeIsUserInputError(t *testing.T) {
	s := memstore.New()
	e := New(s, zerolog.Nop())

	_, err := e.Search(context.Background(), Request{Query: "x", Mode: "bogus"})
	require.Error(t, err)
}

func TestSearch_EmptyQueryReturnsNoResultsNoError(t *testing.T) {
	s := memstore.New()
	e := New(s, zerolog.Nop())

	results, err := e.Search(context.Background(), Request{Query: "   ", Mode: ModeKeyword})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_SourceFilterDropsNonMatchingDocuments(t *testing.T) {
	s := memstore.New()
	seedTwoDocs(t, s)
	ctx := context.Background()

	_, err := s.UpsertDocument(ctx, &models.Document{ID: "doc-c", Source: "blog", SourceID: "c", UpdatedAt: 3000})
	require.NoError(t, err)
	require.NoError(t, s.ReplaceChunks(ctx, "doc-c", []models.Chunk{
		{ID: "chunk-c1", DocumentID: "doc-c", ChunkIndex: 0, Text: "the quick fox also appears here"},
	}, nil))

	e := New(s, zerolog.Nop())
	results, err := e.Search(ctx, Request{
		Query: "fox", Mode: ModeKeyword, Source: "wiki", KKeyword: 10, KVector: 10, FinalLimit: 10,
	})
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, "wiki", r.Source)
	}
}

func TestSearch_ExplainAttachesBreakdown(t *testing.T) {
	s := memstore.New()
	seedTwoDocs(t, s)
	e := New(s, zerolog.Nop())

	results, err := e.Search(context.Background(), Request{
		Query: "fox", Mode: ModeKeyword, KKeyword: 10, KVector: 10, FinalLimit: 10, Explain: true,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NotNil(t, results[0].Explain)
	assert.Equal(t, 0.0, results[0].Explain.Alpha)
}

func TestSearch_FinalLimitTruncates(t *testing.T) {
	s := memstore.New()
	seedTwoDocs(t, s)
	e := New(s, zerolog.Nop())

	results, err := e.Search(context.Background(), Request{
		Query: "the", Mode: ModeKeyword, KKeyword: 10, KVector: 10, FinalLimit: 1,
	})
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSearch_RepeatedCallsAreDeterministic(t *testing.T) {
	s := memstore.New()
	seedTwoDocs(t, s)
	e := New(s, zerolog.Nop())

	req := Request{
		Query: "the", Mode: ModeHybrid, QueryVector: []float32{1, 0, 0},
		Alpha: 0.5, KKeyword: 10, KVector: 10, FinalLimit: 10,
	}
	first, err := e.Search(context.Background(), req)
	require.NoError(t, err)
	second, err := e.Search(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSearch_HybridAlphaZeroMatchesKeywordRanking(t *testing.T) {
	s := memstore.New()
	seedTwoDocs(t, s)
	e := New(s, zerolog.Nop())

	keyword, err := e.Search(context.Background(), Request{
		Query: "the", Mode: ModeKeyword, KKeyword: 10, KVector: 10, FinalLimit: 10,
	})
	require.NoError(t, err)

	hybrid, err := e.Search(context.Background(), Request{
		Query: "the", Mode: ModeHybrid, QueryVector: []float32{0, 0, 1},
		Alpha: 0, KKeyword: 10, KVector: 10, FinalLimit: 10,
	})
	require.NoError(t, err)

	require.Equal(t, len(keyword), len(hybrid))
	for i := range keyword {
		assert.Equal(t, keyword[i].ID, hybrid[i].ID)
	}
}

func TestSearch_HybridAlphaOneMatchesSemanticRanking(t *testing.T) {
	s := memstore.New()
	seedTwoDocs(t, s)
	e := New(s, zerolog.Nop())

	semantic, err := e.Search(context.Background(), Request{
		Query: "the", Mode: ModeSemantic, QueryVector: []float32{1, 0, 0},
		KKeyword: 10, KVector: 10, FinalLimit: 10,
	})
	require.NoError(t, err)

	hybrid, err := e.Search(context.Background(), Request{
		Query: "the", Mode: ModeHybrid, QueryVector: []float32{1, 0, 0},
		Alpha: 1, KKeyword: 10, KVector: 10, FinalLimit: 10,
	})
	require.NoError(t, err)

	require.Equal(t, len(semantic), len(hybrid))
	for i := range semantic {
		assert.Equal(t, semantic[i].ID, hybrid[i].ID)
	}
}

func TestSearch_MalformedSinceDateIsUserInputError(t *testing.T) {
	s := memstore.New()
	seedTwoDocs(t, s)
	e := New(s, zerolog.Nop())

	_, err := e.Search(context.Background(), Request{
		Query: "fox", Mode: ModeKeyword, Since: "not-a-date",
		KKeyword: 10, KVector: 10, FinalLimit: 10,
	})
	require.Error(t, err)
}

func TestNormalize_SpreadScoresHitBothEndpoints(t *testing.T) {
	candidates := []models.ChunkCandidate{
		{ChunkID: "a", RawScore: 10},
		{ChunkID: "b", RawScore: 5},
		{ChunkID: "c", RawScore: 0},
	}
	norm := normalize(candidates)
	assert.InDelta(t, 1.0, norm["a"], 1e-9)
	assert.InDelta(t, 0.5, norm["b"], 1e-9)
	assert.InDelta(t, 0.0, norm["c"], 1e-9)
}

func TestNormalize_ConstantScoresMapToOne(t *testing.T) {
	candidates := []models.ChunkCandidate{
		{ChunkID: "a", RawScore: 5}, {ChunkID: "b", RawScore: 5},
	}
	norm := normalize(candidates)
	assert.Equal(t, 1.0, norm["a"])
	assert.Equal(t, 1.0, norm["b"])
}

func TestNormalize_EmptyInputYieldsEmptyMap(t *testing.T) {
	assert.Empty(t, normalize(nil))
}
