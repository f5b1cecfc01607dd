package cmd

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	merrors "github.com/Aman-CERP/medrag/internal/errors"
	"github.com/Aman-CERP/medrag/internal/output"
	"github.com/Aman-CERP/medrag/internal/search"
	"github.com/Aman-CERP/medrag/internal/store"
)

// snippetChars bounds the content printed per text result.
const snippetChars = 400

// searchOptions holds CLI flags for search.
type searchOptions struct {
	userID  string
	topK    int
	filters []string // key=value
	format  string   // "text", "json"
	group   bool
}

func newSearchCmd(global *globalOptions) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search a user's reports with hybrid ranking",
		Long: `Search the indexed reports of one user.

Vector similarity and TF-IDF keyword similarity are fused with the
configured weights; chunks holding measurement values get a bonus.`,
		Example: `  medrag search "fasting glucose" --user patient-42
  medrag search "hemoglobin" --user patient-42 -k 10 --group
  medrag search "ldl cholesterol" --user patient-42 --filter filename=lipid.txt --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("top-k") {
				opts.topK = -1
			}
			return runSearch(cmd, global, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.userID, "user", "u", "", "User whose reports are searched (required)")
	cmd.Flags().IntVarP(&opts.topK, "top-k", "k", 0, "Number of results (default from config)")
	cmd.Flags().StringArrayVar(&opts.filters, "filter", nil, "Payload equality filter key=value (repeatable)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.group, "group", false, "Group results by filename")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func runSearch(cmd *cobra.Command, global *globalOptions, query string, opts searchOptions) error {
	if opts.format != "text" && opts.format != "json" {
		return merrors.ValidationError(fmt.Sprintf("invalid format %q (use: text, json)", opts.format), nil)
	}
	if strings.TrimSpace(opts.userID) == "" {
		return merrors.ValidationError("--user must not be empty", nil)
	}
	filter, err := parseFilters(opts.filters)
	if err != nil {
		return err
	}
	filter = filter.With(store.FieldUserID, opts.userID)

	ctx := cmd.Context()
	a, err := openApp(ctx, global, true)
	if err != nil {
		return err
	}
	defer a.Close()

	topK := opts.topK
	if topK < 0 {
		topK = a.engine.Config().DefaultTopK
	}

	slog.Info("search_started", slog.Int("top_k", topK), slog.Any("filter_keys", filter.Keys()))
	results, err := a.engine.HybridSearch(ctx, query, filter, topK)
	if err != nil {
		return err
	}
	slog.Info("search_complete", slog.Int("results", len(results)))

	out := output.New(cmd.OutOrStdout())
	if opts.format == "json" {
		if opts.group {
			return out.JSON(search.GroupByFilename(results))
		}
		return out.JSON(results)
	}

	if len(results) == 0 {
		out.Status("", fmt.Sprintf("No results found for %q", query))
		return nil
	}
	if opts.group {
		formatGroups(out, search.GroupByFilename(results))
		return nil
	}
	formatResults(out, results)
	return nil
}

// parseFilters turns key=value pairs into a filter. Values of the integer
// payload fields are typed so they compare equal to stored values.
func parseFilters(pairs []string) (store.Filter, error) {
	filter := store.Filter{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, merrors.ValidationError(fmt.Sprintf("invalid filter %q (use key=value)", pair), nil)
		}
		filter[key] = parseFilterValue(key, value)
	}
	return filter, nil
}

func parseFilterValue(key, v string) any {
	switch key {
	case store.FieldChunkID, store.FieldTotalChunks:
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return v
}

func formatResults(out *output.Writer, results []search.FusedResult) {
	for i, r := range results {
		formatResult(out, i+1, r)
	}
}

func formatGroups(out *output.Writer, groups []search.FileGroup) {
	rank := 1
	for _, g := range groups {
		name := g.Filename
		if name == "" {
			name = "(unknown file)"
		}
		out.Heading(fmt.Sprintf("%s  best %.3f, %d chunks", name, g.BestScore, len(g.Results)))
		for _, r := range g.Results {
			formatResult(out, rank, r)
			rank++
		}
	}
}

func formatResult(out *output.Writer, rank int, r search.FusedResult) {
	line := fmt.Sprintf("%d. %s  score %.3f (vector %.3f, keyword %.3f)",
		rank, r.Filename(), r.CombinedScore, r.VectorScore, r.KeywordScore)
	if len(r.Boosts) > 0 {
		line += " +" + strings.Join(r.Boosts, ",")
	}
	out.Status("", line)
	out.Code(snippet(r.Content, snippetChars))
	out.Newline()
}

// snippet truncates s to at most n runes.
func snippet(s string, n int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}
