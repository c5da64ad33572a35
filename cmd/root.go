// Package cmd implements the harness CLI boundary: thin cobra adapters
// over the ingestion pipeline and the hybrid retrieval engine. Results go
// to stdout; diagnostics go to stderr with a non-zero exit code.
package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/context-harness/harness/config"
	"github.com/context-harness/harness/internal/apperr"
	"github.com/context-harness/harness/internal/connector"
	"github.com/context-harness/harness/internal/embedding"
	"github.com/context-harness/harness/internal/extract"
	"github.com/context-harness/harness/internal/logging"
	"github.com/context-harness/harness/internal/pipeline"
	"github.com/context-harness/harness/internal/search"
	"github.com/context-harness/harness/internal/store"
	"github.com/context-harness/harness/internal/store/memstore"
	"github.com/context-harness/harness/internal/store/sqlitestore"
)

var (
	configPath string
	cfg        config.Config
	log        zerolog.Logger
)

// NewRootCmd builds the harness root command and its subcommands.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "harness",
		Short: "Local-first context ingestion and retrieval service for AI agents",
		Long: `harness pulls documents from heterogeneous sources, splits and
optionally embeds them, indexes them for keyword and vector retrieval, and
exposes a uniform query surface over both this CLI and an HTTP/RPC endpoint.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(configPath)
			if err != nil {
				return err
			}
			cfg = loaded
			log = logging.New(cfg.Logging.Level)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "path to harness.yaml (defaults baked in if absent)")

	root.AddCommand(newSyncCmd())
	root.AddCommand(newSearchCmd())
	root.AddCommand(newGetCmd())
	root.AddCommand(newSourcesCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newEmbedCmd())
	root.AddCommand(newConfigCmd())

	return root
}

// Execute runs the root command, printing a single-line diagnostic to
// stderr and returning a non-zero status on failure.
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, formatCLIError(err))
		return 1
	}
	return 0
}

func formatCLIError(err error) string {
	if appErr, ok := err.(*apperr.Error); ok {
		return fmt.Sprintf("error: %s: %s", appErr.Code(), appErr.Error())
	}
	return fmt.Sprintf("error: %s", err.Error())
}

// openStore opens the configured Store backend. An empty db.path or the
// special value ":memory:" selects the in-memory reference backend
// (memstore); anything else opens sqlitestore at that filesystem path.
func openStore() (store.Store, error) {
	if cfg.DB.Path == "" || cfg.DB.Path == ":memory:" {
		return memstore.New(), nil
	}
	return sqlitestore.Open(cfg.DB.Path, cfg.Embedding.Dims)
}

// connectorRegistry is the process-wide connector registry. No concrete
// connector ships with the core; it starts empty and exists so the
// pipeline and the "sources" boundary operation have something concrete
// to depend on.
var connectorRegistry = connector.NewRegistry()

// buildPipeline wires a Pipeline against the given store using the
// process's connector registry, extractor, and embedding provider.
func buildPipeline(s store.Store) (*pipeline.Pipeline, error) {
	embedder, err := embedding.New(embedding.Config{
		Provider:    cfg.Embedding.Provider,
		Model:       cfg.Embedding.Model,
		Dims:        cfg.Embedding.Dims,
		BaseURL:     cfg.Embedding.BaseURL,
		APIKey:      cfg.Embedding.APIKey,
		BatchSize:   cfg.Embedding.BatchSize,
		MaxRetries:  cfg.Embedding.MaxRetries,
		TimeoutSecs: cfg.Embedding.TimeoutSecs,
	})
	if err != nil {
		return nil, err
	}

	return pipeline.New(s, connectorRegistry, extract.None{}, embedder, pipeline.Config{
		ChunkMaxTokens: cfg.Chunking.MaxTokens,
		EmbedBatchSize: cfg.Embedding.BatchSize,
	}, log), nil
}

func buildEngine(s store.Store) *search.Engine {
	return search.New(s, log)
}
