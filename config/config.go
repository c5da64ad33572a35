// Package config loads and validates the application's YAML configuration
// file: the store path, chunker/retrieval tuning, the embedding provider
// section, and the server/logging settings.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/context-harness/harness/internal/apperr"
)

// Config is the root configuration record, validated once at startup.
type Config struct {
	DB        DBConfig        `yaml:"db"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type DBConfig struct {
	Path string `yaml:"path"`
}

type ChunkingConfig struct {
	MaxTokens int `yaml:"max_tokens"`
}

type RetrievalConfig struct {
	HybridAlpha      float64 `yaml:"hybrid_alpha"`
	CandidateKKeyword int64  `yaml:"candidate_k_keyword"`
	CandidateKVector  int64  `yaml:"candidate_k_vector"`
	FinalLimit        int64  `yaml:"final_limit"`
}

type EmbeddingConfig struct {
	Provider    string `yaml:"provider"` // disabled | hosted | daemon | inprocess
	Model       string `yaml:"model"`
	Dims        int    `yaml:"dims"`
	BaseURL     string `yaml:"base_url"`
	APIKey      string `yaml:"api_key"`
	BatchSize   int    `yaml:"batch_size"`
	MaxRetries  int    `yaml:"max_retries"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns the configuration used when no file is given: a SQLite
// store at ./harness.db, a 700-token chunk cap, equal-weight
// hybrid retrieval, and embeddings disabled.
func Default() Config {
	return Config{
		DB:       DBConfig{Path: "./harness.db"},
		Chunking: ChunkingConfig{MaxTokens: 700},
		Retrieval: RetrievalConfig{
			HybridAlpha:       0.5,
			CandidateKKeyword: 50,
			CandidateKVector:  50,
			FinalLimit:        10,
		},
		Embedding: EmbeddingConfig{Provider: "disabled"},
		Server:    ServerConfig{Port: 8080},
		Logging:   LoggingConfig{Level: "info"},
	}
}

// Load reads and validates the YAML config at path. A missing path returns
// Default() unmodified: the CLI and HTTP boundary can both run with no
// config file present.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, apperr.Wrap(apperr.CodeInternal, "read config file", err)
	}

	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, apperr.Wrap(apperr.CodeBadRequest, "parse config file", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces the configuration ranges: positive max_tokens, alpha in
// [0,1], positive candidate/limit counts, and (if embedding is enabled) a
// required model name and positive dims.
func (c Config) Validate() error {
	if c.Chunking.MaxTokens <= 0 {
		return apperr.UserInput("chunking.max_tokens must be positive, got %d", c.Chunking.MaxTokens)
	}
	if c.Retrieval.HybridAlpha < 0 || c.Retrieval.HybridAlpha > 1 {
		return apperr.UserInput("retrieval.hybrid_alpha must be in [0,1], got %f", c.Retrieval.HybridAlpha)
	}
	if c.Retrieval.CandidateKKeyword <= 0 {
		return apperr.UserInput("retrieval.candidate_k_keyword must be positive, got %d", c.Retrieval.CandidateKKeyword)
	}
	if c.Retrieval.CandidateKVector <= 0 {
		return apperr.UserInput("retrieval.candidate_k_vector must be positive, got %d", c.Retrieval.CandidateKVector)
	}
	if c.Retrieval.FinalLimit <= 0 {
		return apperr.UserInput("retrieval.final_limit must be positive, got %d", c.Retrieval.FinalLimit)
	}

	switch c.Embedding.Provider {
	case "", "disabled":
	case "hosted", "daemon", "inprocess":
		if c.Embedding.Model == "" {
			return apperr.UserInput("embedding.model is required when embedding.provider=%q", c.Embedding.Provider)
		}
		if c.Embedding.Dims <= 0 {
			return apperr.UserInput("embedding.dims must be positive when embedding.provider=%q", c.Embedding.Provider)
		}
	default:
		return apperr.UserInput("unknown embedding.provider %q", c.Embedding.Provider)
	}
	return nil
}

// Save writes cfg as YAML to path, used by the "config init" style flows
// that materialize a starter file for the operator to edit.
func Save(path string, cfg Config) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, raw, 0o644)
}
