package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

func newEmbedCmd() *cobra.Command {
	embed := &cobra.Command{
		Use:   "embed",
		Short: "Embedding maintenance operations",
	}

	embed.AddCommand(newEmbedPendingCmd())
	embed.AddCommand(newEmbedRebuildCmd())
	return embed
}

func newEmbedPendingCmd() *cobra.Command {
	var limit, batchSize int
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Embed chunks that are missing an embedding or whose embedding is stale",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			p, err := buildPipeline(s)
			if err != nil {
				return err
			}

			result, err := p.EmbedPending(cmd.Context(), limit, batchSize, dryRun)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "maximum chunks to embed (0 = no limit)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "embedding batch size (defaults to embedding.batch_size)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report the pending count without writing")

	return cmd
}

func newEmbedRebuildCmd() *cobra.Command {
	var batchSize int

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Drop every embedding and regenerate all of them from scratch",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			p, err := buildPipeline(s)
			if err != nil {
				return err
			}

			result, err := p.EmbedRebuild(cmd.Context(), batchSize)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "embedding batch size (defaults to embedding.batch_size)")

	return cmd
}
