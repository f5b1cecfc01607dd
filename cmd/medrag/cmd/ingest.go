package cmd

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/medrag/internal/chunk"
	merrors "github.com/Aman-CERP/medrag/internal/errors"
	"github.com/Aman-CERP/medrag/internal/index"
	"github.com/Aman-CERP/medrag/internal/output"
	"github.com/Aman-CERP/medrag/internal/watcher"
)

// ingestOptions holds CLI flags for ingest.
type ingestOptions struct {
	userID   string
	strategy string
	watch    bool
}

func newIngestCmd(global *globalOptions) *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest <file|dir>...",
		Short: "Chunk and index report files for a user",
		Long: `Chunk extracted report text (.txt, .md) and index it for one user.

Directories are walked recursively; hidden directories are skipped.
Re-ingesting a file replaces its previous chunks.

With --watch the command keeps running and keeps the index in step with
a single directory: created or modified files are re-ingested and removed
files are deleted.`,
		Example: `  medrag ingest reports/ --user patient-42
  medrag ingest cbc.txt lipid.txt --user patient-42 --strategy recursive
  medrag ingest reports/ --user patient-42 --watch`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, global, args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.userID, "user", "u", "", "User the documents belong to (required)")
	cmd.Flags().StringVar(&opts.strategy, "strategy", "", "Chunking strategy: report, recursive (default from config)")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "Watch the directory and re-index on changes")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func runIngest(cmd *cobra.Command, global *globalOptions, args []string, opts ingestOptions) error {
	if strings.TrimSpace(opts.userID) == "" {
		return merrors.ValidationError("--user must not be empty", nil)
	}
	if opts.watch {
		if len(args) != 1 {
			return merrors.ValidationError("--watch takes exactly one directory", nil)
		}
		if info, err := os.Stat(args[0]); err != nil || !info.IsDir() {
			return merrors.ValidationError(fmt.Sprintf("--watch needs a directory: %s", args[0]), err)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, global, false)
	if err != nil {
		return err
	}
	defer a.Close()

	splitOpts := chunk.OptionsFrom(a.cfg)
	if opts.strategy != "" {
		splitOpts.Strategy = chunk.Strategy(opts.strategy)
	}
	splitter, err := chunk.NewSplitter(splitOpts)
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	files, err := collectFiles(args, out)
	if err != nil {
		return err
	}

	coord := index.NewCoordinator(index.CoordinatorConfig{
		RootPath: watchRoot(args),
		UserID:   opts.userID,
		Splitter: splitter,
		Indexer:  a.indexer,
	})

	start := time.Now()
	var chunks, failed int
	for i, path := range files {
		n, err := coord.IngestFile(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failed++
			out.Newline()
			out.Errorf("%s: %v", path, err)
			continue
		}
		chunks += n
		out.Progress(i+1, len(files), filepath.Base(path))
	}

	slog.Info("ingest_complete",
		slog.String("user_id", opts.userID),
		slog.Int("files", len(files)),
		slog.Int("chunks", chunks),
		slog.Int("failed", failed),
		slog.Duration("duration", time.Since(start)))
	out.Successf("Indexed %d chunks from %d files in %s", chunks, len(files)-failed, time.Since(start).Round(time.Millisecond))
	if failed > 0 {
		out.Warningf("%d files failed; run with --debug for details", failed)
	}

	if opts.watch {
		return watchAndSync(ctx, a.cfg.WatchDebounce(), args[0], coord, out)
	}
	if failed > 0 && failed == len(files) {
		return merrors.New(merrors.ErrCodeIndexFailed, "no file could be indexed", nil)
	}
	return nil
}

// collectFiles expands args into ingestible files, sorted per directory.
func collectFiles(args []string, out *output.Writer) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, merrors.IOError(fmt.Sprintf("cannot read %s", arg), err)
		}
		if !info.IsDir() {
			if !chunk.Supported(arg) {
				out.Warningf("skipping %s: unsupported file type", arg)
				continue
			}
			files = append(files, arg)
			continue
		}

		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != arg && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Type().IsRegular() && chunk.Supported(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, merrors.IOError(fmt.Sprintf("failed to walk %s", arg), err)
		}
	}
	return files, nil
}

// watchRoot is the directory watcher events are relative to.
func watchRoot(args []string) string {
	if len(args) == 1 {
		if abs, err := filepath.Abs(args[0]); err == nil {
			return abs
		}
	}
	return ""
}

// watchAndSync applies debounced file events to the index until ctx ends.
func watchAndSync(ctx context.Context, debounce time.Duration, dir string, coord *index.Coordinator, out *output.Writer) error {
	w, err := watcher.New(watcher.Options{
		DebounceWindow: debounce,
		Include:        chunk.Supported,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- w.Start(ctx, dir) }()

	out.Statusf("👀", "Watching %s (Ctrl+C to stop)", dir)
	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			out.Newline()
			out.Success("Stopped watching")
			return nil

		case err := <-errCh:
			if err != nil && ctx.Err() == nil {
				return fmt.Errorf("watcher stopped: %w", err)
			}
			return nil

		case batch := <-w.Events():
			res := coord.HandleEvents(ctx, batch)
			if res.Indexed+res.Removed+res.Failed > 0 {
				out.Statusf("↻", "%d indexed (%d chunks), %d removed, %d failed",
					res.Indexed, res.Chunks, res.Removed, res.Failed)
			}

		case err := <-w.Errors():
			slog.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}
