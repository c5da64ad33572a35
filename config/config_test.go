package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	cfg, err = Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_ReadsAndValidatesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "harness.yaml")
	raw := `
db:
  path: /tmp/test-harness.db
chunking:
  max_tokens: 300
retrieval:
  hybrid_alpha: 0.7
  candidate_k_keyword: 20
  candidate_k_vector: 30
  final_limit: 5
embedding:
  provider: inprocess
  model: test-model
  dims: 64
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/test-harness.db", cfg.DB.Path)
	assert.Equal(t, 300, cfg.Chunking.MaxTokens)
	assert.Equal(t, 0.7, cfg.Retrieval.HybridAlpha)
	assert.Equal(t, int64(5), cfg.Retrieval.FinalLimit)
	assert.Equal(t, "inprocess", cfg.Embedding.Provider)
}

func TestValidate_RejectsOutOfRangeValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero max_tokens", func(c *Config) { c.Chunking.MaxTokens = 0 }},
		{"negative alpha", func(c *Config) { c.Retrieval.HybridAlpha = -0.1 }},
		{"alpha above one", func(c *Config) { c.Retrieval.HybridAlpha = 1.5 }},
		{"zero candidate_k_keyword", func(c *Config) { c.Retrieval.CandidateKKeyword = 0 }},
		{"zero candidate_k_vector", func(c *Config) { c.Retrieval.CandidateKVector = 0 }},
		{"zero final_limit", func(c *Config) { c.Retrieval.FinalLimit = 0 }},
		{"unknown provider", func(c *Config) { c.Embedding.Provider = "mystery" }},
		{"enabled provider without model", func(c *Config) {
			c.Embedding.Provider = "hosted"
			c.Embedding.Dims = 128
		}},
		{"enabled provider without dims", func(c *Config) {
			c.Embedding.Provider = "hosted"
			c.Embedding.Model = "m"
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_AcceptsDefaults(t *testing.T) {
	assert.NoError(t, Default().Validate())
}
