package cmd

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/medrag/internal/embed"
	merrors "github.com/Aman-CERP/medrag/internal/errors"
	"github.com/Aman-CERP/medrag/internal/output"
	"github.com/Aman-CERP/medrag/internal/preflight"
	"github.com/Aman-CERP/medrag/internal/store"
)

// DoctorOutput is the JSON form of a doctor run.
type DoctorOutput struct {
	Status string                  `json:"status"`
	Checks []preflight.CheckResult `json:"checks"`
}

func newDoctorCmd(global *globalOptions) *cobra.Command {
	var (
		verbose bool
		format  string
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the environment and diagnose issues",
		Long: `Run diagnostics against the current project.

Checks:
  - Data directory write access and free disk space (100MB minimum)
  - File descriptor limit
  - Configuration validity and fusion weight sum
  - Embedding provider reachability
  - Vector index point count
  - Keyword index consistency with the vector index

A failed required check makes the command exit non-zero.`,
		Example: `  medrag doctor
  medrag doctor --verbose
  medrag doctor --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != "text" && format != "json" {
				return merrors.ValidationError("--format must be text or json", nil)
			}

			results := runChecks(cmd.Context(), global)

			out := output.New(cmd.OutOrStdout())
			if format == "json" {
				if err := out.JSON(DoctorOutput{Status: preflight.SummaryStatus(results), Checks: results}); err != nil {
					return err
				}
			} else {
				printChecks(out, results, verbose)
			}

			if preflight.HasCriticalFailures(results) {
				return merrors.New(merrors.ErrCodeInternal, "system check failed", nil).
					WithSuggestion("Fix the failed checks above and run 'medrag doctor' again")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show check details")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")

	return cmd
}

// runChecks opens each component in turn. A component that cannot be opened
// is reported as a failed check and the components depending on it are skipped.
func runChecks(ctx context.Context, global *globalOptions) []preflight.CheckResult {
	var (
		results []preflight.CheckResult
		target  preflight.Target
	)

	cfg, root, err := global.loadConfig()
	if err != nil {
		results = append(results, preflight.Failure("config", err))
		return append(results, preflight.New().RunAll(ctx, target)...)
	}
	target.Config = cfg
	target.DataDir = cfg.ResolvePath(root, "")

	embedder, err := embed.NewEmbedder(ctx, cfg)
	if err != nil {
		results = append(results, preflight.Failure("embedder", err))
		return append(results, preflight.New().RunAll(ctx, target)...)
	}
	defer func() { _ = embedder.Close() }()
	target.Embedder = embedder

	vectors, err := store.NewVectorIndex(cfg, root, embedder.Dimensions())
	if err != nil {
		results = append(results, preflight.Failure("vector_index", err))
		return append(results, preflight.New().RunAll(ctx, target)...)
	}
	defer func() { _ = vectors.Close() }()
	target.Vectors = vectors

	keyword := store.NewKeywordIndex(store.KeywordConfigFrom(cfg))
	if err := keyword.Load(store.KeywordPath(cfg, root)); err != nil && !errors.Is(err, os.ErrNotExist) {
		r := preflight.Failure("keyword_index", err)
		r.Required = false
		r.Details = "Run 'medrag reindex' to rebuild the keyword index"
		results = append(results, r)
	} else {
		target.Keyword = keyword
	}

	return append(results, preflight.New().RunAll(ctx, target)...)
}

func printChecks(out *output.Writer, results []preflight.CheckResult, verbose bool) {
	out.Heading("medrag doctor")
	for _, r := range results {
		switch r.Status {
		case preflight.StatusPass:
			out.Successf("%s: %s", r.Name, r.Message)
		case preflight.StatusWarn:
			out.Warningf("%s: %s", r.Name, r.Message)
		default:
			out.Errorf("%s: %s", r.Name, r.Message)
		}
		// Warnings and failures always show their remedy.
		if r.Details != "" && (verbose || r.Status != preflight.StatusPass) {
			out.Faint("    " + r.Details)
		}
	}
	out.Newline()
	out.Statusf("", "Status: %s", strings.ToUpper(preflight.SummaryStatus(results)))
}
