package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/context-harness/harness/internal/embedding"
	"github.com/context-harness/harness/internal/search"
)

func newSearchCmd() *cobra.Command {
	var mode, source, since string
	var limit int64
	var explain bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a hybrid keyword/semantic search over the indexed corpus",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			engine := buildEngine(s)
			req := search.Request{
				Query:      args[0],
				Mode:       search.Mode(mode),
				Source:     source,
				Since:      since,
				Alpha:      cfg.Retrieval.HybridAlpha,
				KKeyword:   cfg.Retrieval.CandidateKKeyword,
				KVector:    cfg.Retrieval.CandidateKVector,
				FinalLimit: limit,
				Explain:    explain,
			}
			if req.FinalLimit <= 0 {
				req.FinalLimit = cfg.Retrieval.FinalLimit
			}

			if req.Mode == search.ModeSemantic || req.Mode == search.ModeHybrid {
				embedder, err := embedding.New(embedding.Config{
					Provider: cfg.Embedding.Provider, Model: cfg.Embedding.Model, Dims: cfg.Embedding.Dims,
					BaseURL: cfg.Embedding.BaseURL, APIKey: cfg.Embedding.APIKey, TimeoutSecs: cfg.Embedding.TimeoutSecs,
				})
				if err != nil {
					return err
				}
				vectors, err := embedder.Embed(cmd.Context(), []string{args[0]})
				if err != nil {
					return err
				}
				req.QueryVector = vectors[0]
			}

			results, err := engine.Search(cmd.Context(), req)
			if err != nil {
				return err
			}

			if len(results) == 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "no results for %q\n", args[0])
				return nil
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "keyword", "search mode: keyword, semantic, hybrid")
	cmd.Flags().StringVar(&source, "source", "", "restrict results to this source label")
	cmd.Flags().StringVar(&since, "since", "", "drop documents updated before this date (YYYY-MM-DD)")
	cmd.Flags().Int64Var(&limit, "limit", 0, "maximum results (defaults to retrieval.final_limit)")
	cmd.Flags().BoolVar(&explain, "explain", false, "attach a per-document scoring breakdown")

	return cmd
}
