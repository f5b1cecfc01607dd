package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/medrag/internal/output"
	"github.com/Aman-CERP/medrag/pkg/version"
)

func newVersionCmd() *cobra.Command {
	var asJSON, short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			var err error
			switch {
			case short:
				_, err = fmt.Fprintln(w, version.Short())
			case asJSON:
				err = output.New(w).JSON(version.GetInfo())
			default:
				_, err = fmt.Fprintln(w, version.String())
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print build information as JSON")
	cmd.Flags().BoolVar(&short, "short", false, "Print only the version number")

	return cmd
}
