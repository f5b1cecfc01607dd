// Package cmd provides the CLI commands for medrag.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/medrag/internal/config"
	merrors "github.com/Aman-CERP/medrag/internal/errors"
	"github.com/Aman-CERP/medrag/internal/logging"
	"github.com/Aman-CERP/medrag/internal/profiling"
	"github.com/Aman-CERP/medrag/pkg/version"
)

// globalOptions holds persistent flags shared by every subcommand.
type globalOptions struct {
	debug     bool
	configDir string
	profile   profiling.Options

	loggingCleanup func()
	profiler       *profiling.Session
}

// NewRootCmd creates the root command for the medrag CLI.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "medrag",
		Short: "Hybrid retrieval over medical report collections",
		Long: `medrag indexes lab report text and answers queries with hybrid ranking:
cosine similarity from a vector index fused with TF-IDF keyword similarity,
plus bonuses for chunks that carry measurement values.

Every document belongs to a user; searches and deletions are scoped by --user.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("medrag version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging to stderr and the log file")
	cmd.PersistentFlags().StringVar(&opts.configDir, "config", "", "Project directory holding .medrag.yaml (default: nearest project root)")

	cmd.PersistentFlags().StringVar(&opts.profile.CPUPath, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&opts.profile.HeapPath, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&opts.profile.TracePath, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = func(_ *cobra.Command, _ []string) error {
		if err := opts.startLogging(); err != nil {
			return err
		}
		return opts.startProfiling()
	}
	cmd.PersistentPostRunE = func(_ *cobra.Command, _ []string) error {
		err := opts.stopProfiling()
		opts.stopLogging()
		return err
	}

	cmd.AddCommand(newIngestCmd(opts))
	cmd.AddCommand(newSearchCmd(opts))
	cmd.AddCommand(newDeleteCmd(opts))
	cmd.AddCommand(newShowCmd(opts))
	cmd.AddCommand(newListCmd(opts))
	cmd.AddCommand(newStatsCmd(opts))
	cmd.AddCommand(newReindexCmd(opts))
	cmd.AddCommand(newConfigCmd(opts))
	cmd.AddCommand(newLogsCmd(opts))
	cmd.AddCommand(newDoctorCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command and prints any error in CLI form.
func Execute() error {
	root := NewRootCmd()
	err := root.Execute()
	if err != nil {
		_, _ = fmt.Fprint(os.Stderr, merrors.FormatForCLI(err))
	}
	return err
}

// projectRoot resolves the directory whose configuration and data dir apply.
func (o *globalOptions) projectRoot() (string, error) {
	start := o.configDir
	if start == "" {
		start = "."
	}
	return config.FindProjectRoot(start)
}

// loadConfig loads the merged configuration for the project root.
func (o *globalOptions) loadConfig() (*config.Config, string, error) {
	root, err := o.projectRoot()
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, "", merrors.ConfigError("failed to load configuration", err).
			WithSuggestion("Run 'medrag config show' to inspect the effective settings")
	}
	return cfg, root, nil
}

// startLogging installs the default slog logger. An unreadable config does
// not prevent logging; the command that needs the config reports it.
func (o *globalOptions) startLogging() error {
	logCfg := logging.DefaultConfig()
	if cfg, _, err := o.loadConfig(); err == nil {
		logCfg.Level = cfg.Logging.Level
		if cfg.Logging.File != "" {
			logCfg.FilePath = cfg.Logging.File
		}
	}
	if o.debug {
		logCfg.Level = "debug"
		logCfg.WriteToStderr = true
	}

	cleanup, err := logging.SetupDefault(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	o.loggingCleanup = cleanup
	slog.Debug("logging_started",
		slog.String("log_file", logCfg.FilePath),
		slog.String("version", version.Short()))
	return nil
}

func (o *globalOptions) startProfiling() error {
	if !o.profile.Enabled() {
		return nil
	}
	s, err := profiling.Start(o.profile)
	if err != nil {
		return err
	}
	o.profiler = s
	return nil
}

func (o *globalOptions) stopProfiling() error {
	if o.profiler == nil {
		return nil
	}
	err := o.profiler.Stop()
	o.profiler = nil
	if err != nil {
		return fmt.Errorf("failed to write profiles: %w", err)
	}
	return nil
}

func (o *globalOptions) stopLogging() {
	if o.loggingCleanup != nil {
		o.loggingCleanup()
		o.loggingCleanup = nil
	}
}
