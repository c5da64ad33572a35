package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/context-harness/harness/internal/connector"
	"github.com/context-harness/harness/internal/embedding"
	"github.com/context-harness/harness/internal/search"
	"github.com/context-harness/harness/internal/store/memstore"
	"github.com/context-harness/harness/models"
)

func newTestRouter(t *testing.T) (*gin.Engine, *memstore.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := memstore.New()
	embedder, err := embedding.New(embedding.Config{Provider: "disabled"})
	require.NoError(t, err)

	router := NewRouter(Deps{
		Store:      s,
		Engine:     search.New(s, zerolog.Nop()),
		Embedder:   embedder,
		Connectors: connector.NewRegistry(),
		Retrieval:  RetrievalDefaults{Alpha: 0.5, KKeyword: 50, KVector: 50, FinalLimit: 10},
		Log:        zerolog.Nop(),
	})
	return router, s
}

func seedDoc(t *testing.T, s *memstore.Store) {
	t.Helper()
	ctx := context.Background()
	_, err := s.UpsertDocument(ctx, &models.Document{
		ID: "doc-1", Source: "wiki", SourceID: "1", Title: "Fox facts",
		Body: "the quick brown fox", UpdatedAt: 1000, Metadata: `{"lang":"en"}`,
	})
	require.NoError(t, err)
	require.NoError(t, s.ReplaceChunks(ctx, "doc-1", []models.Chunk{
		{ID: "c1", DocumentID: "doc-1", ChunkIndex: 0, Text: "the quick brown fox"},
	}, nil))
}

func doJSON(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSearchEndpoint_ReturnsResults(t *testing.T) {
	router, s := newTestRouter(t)
	seedDoc(t, s)

	w := doJSON(router, http.MethodPost, "/api/v1/search", `{"query":"fox","mode":"keyword","limit":5}`)
	require.Equal(t, http.StatusOK, w.Code)

	var results []models.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "doc-1", results[0].ID)
	assert.GreaterOrEqual(t, results[0].Score, 0.0)
	assert.LessOrEqual(t, results[0].Score, 1.0)
}

func TestSearchEndpoint_UnknownModeIsBadRequest(t *testing.T) {
	router, s := newTestRouter(t)
	seedDoc(t, s)

	w := doJSON(router, http.MethodPost, "/api/v1/search", `{"query":"fox","mode":"bogus"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	var env errorEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, "bad_request", env.Error.Code)
}

func TestSearchEndpoint_SemanticWithDisabledEmbeddingsIsRejected(t *testing.T) {
	router, s := newTestRouter(t)
	seedDoc(t, s)

	w := doJSON(router, http.MethodPost, "/api/v1/search", `{"query":"fox","mode":"semantic"}`)
	require.Equal(t, http.StatusConflict, w.Code)

	var env errorEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, "embeddings_disabled", env.Error.Code)
}

func TestSearchEndpoint_MissingQueryIsBadRequest(t *testing.T) {
	router, _ := newTestRouter(t)
	w := doJSON(router, http.MethodPost, "/api/v1/search", `{"mode":"keyword"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetDocumentEndpoint_ReturnsParsedMetadataAndChunks(t *testing.T) {
	router, s := newTestRouter(t)
	seedDoc(t, s)

	w := doJSON(router, http.MethodGet, "/api/v1/documents/doc-1", "")
	require.Equal(t, http.StatusOK, w.Code)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Equal(t, "wiki", doc["source"])
	meta, ok := doc["metadata"].(map[string]interface{})
	require.True(t, ok, "metadata must be returned parsed, not as a string")
	assert.Equal(t, "en", meta["lang"])
	chunks, ok := doc["chunks"].([]interface{})
	require.True(t, ok)
	assert.Len(t, chunks, 1)
}

func TestGetDocumentEndpoint_MissingIsNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodGet, "/api/v1/documents/nope", "")
	require.Equal(t, http.StatusNotFound, w.Code)

	var env errorEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, "not_found", env.Error.Code)
}

func TestSourcesEndpoint_ListsConfiguredConnectors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := memstore.New()
	embedder, err := embedding.New(embedding.Config{Provider: "disabled"})
	require.NoError(t, err)

	registry := connector.NewRegistry(connector.NewStatic("filesystem:docs", nil))
	router := NewRouter(Deps{
		Store:      s,
		Engine:     search.New(s, zerolog.Nop()),
		Embedder:   embedder,
		Connectors: registry,
		Retrieval:  RetrievalDefaults{Alpha: 0.5, KKeyword: 50, KVector: 50, FinalLimit: 10},
		Log:        zerolog.Nop(),
	})

	w := doJSON(router, http.MethodGet, "/api/v1/sources", "")
	require.Equal(t, http.StatusOK, w.Code)

	var statuses []sourceStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &statuses))
	require.Len(t, statuses, 1)
	assert.Equal(t, "filesystem:docs", statuses[0].Name)
	assert.True(t, statuses[0].Configured)
}
