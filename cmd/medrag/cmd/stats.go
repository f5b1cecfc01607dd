package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/medrag/internal/config"
	"github.com/Aman-CERP/medrag/internal/index"
	"github.com/Aman-CERP/medrag/internal/output"
	"github.com/Aman-CERP/medrag/internal/telemetry"
)

// StatsOutput is the JSON output format for stats.
type StatsOutput struct {
	Collection index.Stats      `json:"collection"`
	Queries    *QueryStatsOutput `json:"queries,omitempty"`
}

// QueryStatsOutput summarizes persisted query telemetry.
type QueryStatsOutput struct {
	Days                int                               `json:"days"`
	TotalQueries        int64                             `json:"total_queries"`
	ModeCounts          map[telemetry.QueryMode]int64     `json:"mode_counts"`
	LatencyDistribution map[telemetry.LatencyBucket]int64 `json:"latency_distribution"`
}

var latencyBuckets = []telemetry.LatencyBucket{
	telemetry.BucketP50,
	telemetry.BucketP100,
	telemetry.BucketP500,
	telemetry.BucketP1000,
	telemetry.BucketSlow,
}

func newStatsCmd(global *globalOptions) *cobra.Command {
	var (
		userID string
		format string
		days   int
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show collection statistics and query telemetry",
		Long: `Display the indexed documents and point counts of the collection,
optionally scoped to one user, plus the retrieval modes and latency of recent
queries. Query text is never stored; only daily counters are.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), global, false)
			if err != nil {
				return err
			}
			defer a.Close()

			stats, err := a.indexer.CollectionStats(cmd.Context(), userFilter(userID))
			if err != nil {
				return err
			}
			result := StatsOutput{Collection: stats}

			if !a.cfg.Telemetry.Disabled {
				q, err := loadQueryStats(a.cfg, a.root, days)
				if err != nil {
					return err
				}
				result.Queries = q
			}

			out := output.New(cmd.OutOrStdout())
			if format == "json" {
				return out.JSON(result)
			}
			formatStats(out, result)
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "Scope collection stats to one user")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().IntVar(&days, "days", 7, "Number of days of query telemetry to include")

	return cmd
}

// loadQueryStats sums the persisted counters of the last days days. A
// project that never ran a search has no telemetry file and gets nil.
func loadQueryStats(cfg *config.Config, root string, days int) (*QueryStatsOutput, error) {
	path := telemetryPath(cfg, root)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}

	st, err := telemetry.OpenSQLiteStore(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = st.Close() }()

	if days < 1 {
		days = 1
	}
	now := time.Now().UTC()
	from := now.AddDate(0, 0, -(days - 1)).Format(telemetry.DateLayout)
	to := now.Format(telemetry.DateLayout)

	modes, err := st.GetModeCounts(from, to)
	if err != nil {
		return nil, fmt.Errorf("read mode counts: %w", err)
	}
	latency, err := st.GetLatencyCounts(from, to)
	if err != nil {
		return nil, fmt.Errorf("read latency counts: %w", err)
	}

	q := &QueryStatsOutput{Days: days, ModeCounts: modes, LatencyDistribution: latency}
	for _, n := range modes {
		q.TotalQueries += n
	}
	return q, nil
}

func formatStats(out *output.Writer, s StatsOutput) {
	c := s.Collection
	out.Heading("Collection " + c.Collection)
	out.KeyValue("documents", humanize.Comma(int64(len(c.Filenames))))
	out.KeyValue("points", humanize.Comma(int64(c.TotalPoints)))
	out.KeyValue("chunks (estimate)", humanize.Comma(int64(c.TotalChunksEstimate)))
	out.KeyValue("keyword documents", humanize.Comma(int64(c.KeywordDocuments)))
	if !c.KeywordBuiltAt.IsZero() {
		out.KeyValue("keyword built", humanize.Time(c.KeywordBuiltAt))
	}
	if c.Truncated {
		out.Warning("Scan stopped at the scroll cap; counts are partial")
	}

	if s.Queries == nil {
		return
	}
	q := s.Queries
	out.Newline()
	out.Heading(fmt.Sprintf("Queries (last %d days)", q.Days))
	out.KeyValue("total", humanize.Comma(q.TotalQueries))
	for _, mode := range []telemetry.QueryMode{telemetry.ModeHybrid, telemetry.ModeVectorOnly, telemetry.ModeKeywordOnly} {
		out.KeyValue(string(mode), humanize.Comma(q.ModeCounts[mode]))
	}

	for _, b := range latencyBuckets {
		if n := q.LatencyDistribution[b]; n > 0 {
			out.KeyValue("latency "+string(b), humanize.Comma(n))
		}
	}
}
