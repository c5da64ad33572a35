package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/context-harness/harness/api"
	"github.com/context-harness/harness/internal/embedding"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP boundary (search, get, sources)",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

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
				return err
			}

			router := api.NewRouter(api.Deps{
				Store:      s,
				Engine:     buildEngine(s),
				Embedder:   embedder,
				Connectors: connectorRegistry,
				Retrieval: api.RetrievalDefaults{
					Alpha:      cfg.Retrieval.HybridAlpha,
					KKeyword:   cfg.Retrieval.CandidateKKeyword,
					KVector:    cfg.Retrieval.CandidateKVector,
					FinalLimit: cfg.Retrieval.FinalLimit,
				},
				Log: log,
			})

			addr := fmt.Sprintf(":%d", cfg.Server.Port)
			log.Info().Str("addr", addr).Msg("serving")
			return router.Run(addr)
		},
	}
}
