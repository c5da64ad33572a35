// Package embedding implements the embedding dispatch contract: a uniform
// capability interface over provider backends, config-driven selection,
// batched requests, and bounded exponential-backoff retry for
// HTTP-backed variants.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/context-harness/harness/internal/apperr"
)

// Config mirrors the [embedding] section of the application config.
type Config struct {
	Provider   string // disabled | hosted | daemon | inprocess
	Model      string
	Dims       int
	BaseURL    string
	APIKey     string
	BatchSize  int
	MaxRetries int
	TimeoutSecs int
}

func (c Config) Enabled() bool { return c.Provider != "" && c.Provider != "disabled" }

// Provider is the capability surface every embedding backend exposes.
type Provider interface {
	ModelName() string
	Dims() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// New dispatches to the backend named by cfg.Provider. The pipeline never
// names a specific variant directly.
func New(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "", "disabled":
		return disabledProvider{}, nil
	case "hosted":
		return newHTTPProvider(cfg, "/v1/embeddings", encodeOpenAIRequest, decodeOpenAIResponse), nil
	case "daemon":
		return newHTTPProvider(cfg, "/api/embed", encodeOllamaRequest, decodeOllamaResponse), nil
	case "inprocess":
		return newInProcessProvider(cfg), nil
	default:
		return nil, apperr.UserInput("unknown embedding provider %q", cfg.Provider)
	}
}

type disabledProvider struct{}

func (disabledProvider) ModelName() string { return "disabled" }
func (disabledProvider) Dims() int         { return 0 }
func (disabledProvider) Embed(context.Context, []string) ([][]float32, error) {
	return nil, apperr.EmbeddingsDisabled()
}

// httpProvider calls a hosted or local-daemon HTTP embeddings endpoint with
// bounded exponential backoff: 1, 2, 4, 8, 16, 32 seconds, capped at
// MaxRetries attempts. Retries on transport errors and on 429/5xx; fails
// fast on other 4xx.
type httpProvider struct {
	cfg      Config
	path     string
	client   *http.Client
	encode   func(cfg Config, texts []string) ([]byte, error)
	decode   func(body []byte) ([][]float32, error)
}

func newHTTPProvider(cfg Config, path string, encode func(Config, []string) ([]byte, error), decode func([]byte) ([][]float32, error)) *httpProvider {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &httpProvider{
		cfg:    cfg,
		path:   path,
		client: &http.Client{Timeout: timeout},
		encode: encode,
		decode: decode,
	}
}

func (p *httpProvider) ModelName() string { return p.cfg.Model }
func (p *httpProvider) Dims() int         { return p.cfg.Dims }

func (p *httpProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := p.encode(p.cfg, texts)
	if err != nil {
		return nil, apperr.Internal("encode embedding request", err)
	}

	maxRetries := p.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Min(float64(int64(1)<<uint(attempt-1)), 32)) * time.Second
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err := p.doRequest(ctx, body)
		if err != nil {
			lastErr = err
			continue
		}

		vectors, retry, err := p.handleResponse(resp)
		if err != nil {
			lastErr = err
			if !retry {
				return nil, lastErr
			}
			continue
		}
		return vectors, nil
	}
	return nil, apperr.Internal("embedding request exhausted retries", lastErr)
}

func (p *httpProvider) doRequest(ctx context.Context, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+p.path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}
	return p.client.Do(req)
}

// handleResponse classifies the HTTP status per the retry discipline: 2xx
// decodes and returns, 429/5xx is retryable, any other non-2xx fails fast.
func (p *httpProvider) handleResponse(resp *http.Response) (vectors [][]float32, retry bool, err error) {
	defer resp.Body.Close()
	raw, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, true, readErr
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, true, fmt.Errorf("embedding backend returned status %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, false, fmt.Errorf("embedding backend returned status %d: %s", resp.StatusCode, string(raw))
	}

	vectors, err = p.decode(raw)
	if err != nil {
		return nil, false, err
	}
	return vectors, false, nil
}

// --- OpenAI-compatible ("hosted") wire shapes ---

type openAIEmbedRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func encodeOpenAIRequest(cfg Config, texts []string) ([]byte, error) {
	return json.Marshal(openAIEmbedRequest{Input: texts, Model: cfg.Model})
}

func decodeOpenAIResponse(body []byte) ([][]float32, error) {
	var resp openAIEmbedResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	out := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			continue
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// --- Ollama ("daemon") wire shapes ---

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func encodeOllamaRequest(cfg Config, texts []string) ([]byte, error) {
	return json.Marshal(ollamaEmbedRequest{Model: cfg.Model, Input: texts})
}

func decodeOllamaResponse(body []byte) ([][]float32, error) {
	var resp ollamaEmbedResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	return resp.Embeddings, nil
}
