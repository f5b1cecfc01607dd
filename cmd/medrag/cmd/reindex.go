package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/medrag/internal/output"
)

func newReindexCmd(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the keyword index from the vector index",
		Long: `Rebuild the TF-IDF keyword index from every point stored in the vector
index and persist it. Use this after the vector index was changed by another
tool or when the keyword file was lost.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), global, false)
			if err != nil {
				return err
			}
			defer a.Close()

			start := time.Now()
			n, err := a.indexer.RebuildKeywordIndex(cmd.Context())
			if err != nil {
				return err
			}

			output.New(cmd.OutOrStdout()).Successf("Keyword index rebuilt: %d documents, %d terms in %s",
				n, a.keyword.VocabularySize(), time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}
