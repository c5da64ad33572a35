package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/context-harness/harness/internal/apperr"
)

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <document-id>",
		Short: "Fetch a document and its ordered chunks by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			doc, err := s.GetDocument(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if doc == nil {
				return apperr.NotFound("no document with id %q", args[0])
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(doc); err != nil {
				return fmt.Errorf("encode document: %w", err)
			}
			return nil
		},
	}
}
