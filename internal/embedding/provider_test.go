package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DispatchesByProviderName(t *testing.T) {
	p, err := New(Config{Provider: "disabled"})
	require.NoError(t, err)
	assert.Equal(t, "disabled", p.ModelName())

	p, err = New(Config{Provider: "inprocess", Model: "m", Dims: 16})
	require.NoError(t, err)
	assert.Equal(t, "m", p.ModelName())
	assert.Equal(t, 16, p.Dims())

	_, err = New(Config{Provider: "mystery"})
	require.Error(t, err)
}

func TestDisabledProvider_AlwaysErrors(t *testing.T) {
	p, err := New(Config{Provider: "disabled"})
	require.NoError(t, err)
	_, err = p.Embed(context.Background(), []string{"text"})
	require.Error(t, err)
}

func TestHostedProvider_DecodesOpenAIResponseInInputOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openAIEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Input, 2)

		// respond out of order; the decoder must realign by index
		resp := openAIEmbedResponse{}
		resp.Data = append(resp.Data, struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}{Embedding: []float32{0, 1}, Index: 1})
		resp.Data = append(resp.Data, struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}{Embedding: []float32{1, 0}, Index: 0})
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	p, err := New(Config{Provider: "hosted", Model: "m", Dims: 2, BaseURL: srv.URL, MaxRetries: 1})
	require.NoError(t, err)

	vectors, err := p.Embed(context.Background(), []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{1, 0}, vectors[0])
	assert.Equal(t, []float32{0, 1}, vectors[1])
}

func TestHostedProvider_RetriesOn429ThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{{"embedding": []float32{1}, "index": 0}},
		})
	}))
	defer srv.Close()

	p, err := New(Config{Provider: "hosted", Model: "m", Dims: 1, BaseURL: srv.URL, MaxRetries: 2})
	require.NoError(t, err)

	vectors, err := p.Embed(context.Background(), []string{"text"})
	require.NoError(t, err)
	require.Len(t, vectors, 1)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestHostedProvider_FailsFastOnNonRetryable4xx(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p, err := New(Config{Provider: "hosted", Model: "m", Dims: 1, BaseURL: srv.URL, MaxRetries: 5})
	require.NoError(t, err)

	_, err = p.Embed(context.Background(), []string{"text"})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "401 must not be retried")
}

func TestDaemonProvider_DecodesOllamaResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: [][]float32{{1, 2}, {3, 4}}})
	}))
	defer srv.Close()

	p, err := New(Config{Provider: "daemon", Model: "m", Dims: 2, BaseURL: srv.URL, MaxRetries: 1})
	require.NoError(t, err)

	vectors, err := p.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 2}, {3, 4}}, vectors)
}

func TestInProcessProvider_IsDeterministicAndUnitNorm(t *testing.T) {
	p, err := New(Config{Provider: "inprocess", Model: "m", Dims: 32})
	require.NoError(t, err)

	a, err := p.Embed(context.Background(), []string{"hello"})
	require.NoError(t, err)
	b, err := p.Embed(context.Background(), []string{"hello"})
	require.NoError(t, err)
	assert.Equal(t, a, b)

	var norm float64
	for _, f := range a[0] {
		norm += float64(f) * float64(f)
	}
	assert.InDelta(t, 1.0, norm, 1e-5)
}
