package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	merrors "github.com/Aman-CERP/medrag/internal/errors"
	"github.com/Aman-CERP/medrag/internal/output"
)

func newDeleteCmd(global *globalOptions) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "delete <filename>",
		Short: "Delete every chunk of a user's document",
		Example: `  medrag delete cbc_2024.txt --user patient-42`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return merrors.ValidationError("--user must not be empty", nil)
			}

			a, err := openApp(cmd.Context(), global, false)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.indexer.DeleteDocument(cmd.Context(), args[0], userFilter(userID))
			if err != nil {
				return err
			}
			slog.Info("document_deleted", slog.String("filename", args[0]), slog.Int("chunks", n))

			out := output.New(cmd.OutOrStdout())
			if n == 0 {
				out.Warningf("No chunks of %s found for user %s", args[0], userID)
				return nil
			}
			out.Successf("Deleted %d chunks of %s", n, args[0])
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "User the document belongs to (required)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
