package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/context-harness/harness/internal/pipeline"
)

func newSyncCmd() *cobra.Command {
	var full, dryRun bool
	var since, until string
	var limit int

	cmd := &cobra.Command{
		Use:   "sync <source>",
		Short: "Run one ingestion cycle for a configured source",
		Args:  cobra.ExactArgs(1),
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

			summary, err := p.Sync(cmd.Context(), args[0], pipeline.SyncOptions{
				Full:   full,
				DryRun: dryRun,
				Since:  since,
				Until:  until,
				Limit:  limit,
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(summary)
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "ignore the checkpoint and resync everything")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report counts without writing")
	cmd.Flags().StringVar(&since, "since", "", "only items updated on/after this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&until, "until", "", "only items updated on/before this date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 0, "truncate the filtered item set to at most this many items")

	return cmd
}
