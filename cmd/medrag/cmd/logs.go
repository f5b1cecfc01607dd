package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/spf13/cobra"

	merrors "github.com/Aman-CERP/medrag/internal/errors"
	"github.com/Aman-CERP/medrag/internal/logging"
	"github.com/Aman-CERP/medrag/internal/output"
)

type logsOptions struct {
	follow  bool
	lines   int
	level   string
	filter  string
	file    string
	noColor bool
}

func newLogsCmd(global *globalOptions) *cobra.Command {
	opts := &logsOptions{}

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View medrag log files",
		Example: `  medrag logs
  medrag logs -f --level warn
  medrag logs --filter "hybrid_search"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogs(cmd, global, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.follow, "follow", "f", false, "Follow new log entries")
	cmd.Flags().IntVarP(&opts.lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().StringVar(&opts.level, "level", "", "Minimum level: debug, info, warn, error")
	cmd.Flags().StringVar(&opts.filter, "filter", "", "Regex applied to raw log lines")
	cmd.Flags().StringVar(&opts.file, "file", "", "Log file (default: configured log file)")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	return cmd
}

func runLogs(cmd *cobra.Command, global *globalOptions, opts *logsOptions) error {
	path := opts.file
	if path == "" {
		path = logging.DefaultLogPath()
		if cfg, _, err := global.loadConfig(); err == nil && cfg.Logging.File != "" {
			path = cfg.Logging.File
		}
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return merrors.New(merrors.ErrCodeFileNotFound, fmt.Sprintf("log file not found: %s", path), err).
			WithSuggestion("Run a medrag command first, or pass --file")
	}

	cfg := logging.ViewerConfig{Level: opts.level}
	if opts.filter != "" {
		re, err := regexp.Compile(opts.filter)
		if err != nil {
			return merrors.ValidationError("invalid --filter pattern", err)
		}
		cfg.Pattern = re
	}
	out := cmd.OutOrStdout()
	cfg.NoColor = opts.noColor || !output.New(out).ColorEnabled()

	viewer := logging.NewViewer(cfg, out)
	entries, err := viewer.Tail(path, opts.lines)
	if err != nil {
		return err
	}
	viewer.Print(entries)

	if !opts.follow {
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	followed := make(chan logging.LogEntry, 16)
	errCh := make(chan error, 1)
	go func() {
		errCh <- viewer.Follow(ctx, path, followed)
	}()

	for {
		select {
		case entry := <-followed:
			viewer.Print([]logging.LogEntry{entry})
		case err := <-errCh:
			return err
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		}
	}
}
