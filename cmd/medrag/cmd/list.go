package cmd

import (
	"github.com/spf13/cobra"

	merrors "github.com/Aman-CERP/medrag/internal/errors"
	"github.com/Aman-CERP/medrag/internal/output"
)

func newListCmd(global *globalOptions) *cobra.Command {
	var (
		userID string
		format string
	)

	cmd := &cobra.Command{
		Use:     "list",
		Short:   "List the documents indexed for a user",
		Example: `  medrag list --user patient-42`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if userID == "" {
				return merrors.ValidationError("--user must not be empty", nil)
			}

			a, err := openApp(cmd.Context(), global, false)
			if err != nil {
				return err
			}
			defer a.Close()

			names, err := a.indexer.ListDocuments(cmd.Context(), userFilter(userID))
			if err != nil {
				return err
			}

			out := output.New(cmd.OutOrStdout())
			if format == "json" {
				if names == nil {
					names = []string{}
				}
				return out.JSON(names)
			}
			if len(names) == 0 {
				out.Status("", "No documents indexed for "+userID)
				return nil
			}
			for _, name := range names {
				out.Status("📄", name)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "User whose documents are listed (required)")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
