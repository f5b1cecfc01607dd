package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	merrors "github.com/Aman-CERP/medrag/internal/errors"
	"github.com/Aman-CERP/medrag/internal/index"
	"github.com/Aman-CERP/medrag/internal/output"
)

// chunkOutput is the JSON form of one stored chunk.
type chunkOutput struct {
	ID       string         `json:"id"`
	ChunkID  int64          `json:"chunk_id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

func newShowCmd(global *globalOptions) *cobra.Command {
	var (
		userID string
		format string
	)

	cmd := &cobra.Command{
		Use:     "show <filename>",
		Short:   "Print the stored chunks of a user's document in order",
		Example: `  medrag show cbc_2024.txt --user patient-42`,
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

			chunks, err := a.indexer.GetDocumentByFilename(cmd.Context(), args[0], userFilter(userID))
			if err != nil {
				return err
			}
			return formatChunks(output.New(cmd.OutOrStdout()), args[0], chunks, format)
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "User the document belongs to (required)")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func formatChunks(out *output.Writer, filename string, chunks []index.ChunkView, format string) error {
	if format == "json" {
		rows := make([]chunkOutput, len(chunks))
		for i, c := range chunks {
			rows[i] = chunkOutput(c)
		}
		return out.JSON(rows)
	}

	if len(chunks) == 0 {
		out.Warningf("No chunks of %s found", filename)
		return nil
	}
	out.Heading(fmt.Sprintf("%s (%d chunks)", filename, len(chunks)))
	for _, c := range chunks {
		out.Faint(fmt.Sprintf("chunk %d  %s", c.ChunkID, c.ID))
		out.Code(c.Content)
		out.Newline()
	}
	return nil
}
