package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/medrag/internal/config"
	merrors "github.com/Aman-CERP/medrag/internal/errors"
	"github.com/Aman-CERP/medrag/internal/output"
)

// projectConfigName is the file `config init` writes in the project root.
const projectConfigName = ".medrag.yaml"

func newConfigCmd(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage medrag configuration.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/medrag/config.yaml)
  3. Project config (.medrag.yaml, .medrag.yml or .medrag.toml)
  4. Environment variables (MEDRAG_*, OPENAI_API_KEY, GEMINI_API_KEY, QDRANT_*)`,
		Example: `  # Write a project config with all defaults
  medrag config init

  # Show effective configuration (merged from all sources)
  medrag config show

  # Print user config file path
  medrag config path`,
	}

	cmd.AddCommand(newConfigInitCmd(global))
	cmd.AddCommand(newConfigShowCmd(global))
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd(global *globalOptions) *cobra.Command {
	var (
		force bool
		user  bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with defaults",
		Long: `Write a configuration file holding every default value.

By default the file is .medrag.yaml in the project root; --user writes the
user config instead. An existing file is kept unless --force is given, in
which case it is backed up first.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := config.GetUserConfigPath()
			if !user {
				root, err := global.projectRoot()
				if err != nil {
					return err
				}
				path = filepath.Join(root, projectConfigName)
			}
			return runConfigInit(output.New(cmd.OutOrStdout()), path, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file (a backup is kept)")
	cmd.Flags().BoolVar(&user, "user", false, "Write the user config instead of the project config")

	return cmd
}

func runConfigInit(out *output.Writer, path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		out.Warning("Configuration already exists")
		out.Statusf("📁", "Location: %s", path)
		out.Status("💡", "Use --force to overwrite it with defaults (a backup is kept)")
		return nil
	}

	backup, err := config.BackupFile(path)
	if err != nil {
		return err
	}

	if err := config.NewConfig().WriteYAML(path); err != nil {
		return merrors.IOError("failed to write configuration", err)
	}

	out.Success("Created configuration")
	out.Statusf("📁", "Location: %s", path)
	if backup != "" {
		out.Statusf("💾", "Backup: %s", backup)
	}
	out.Newline()
	out.Status("📋", "Next steps:")
	out.Status("", "  1. Set embeddings.provider and export its API key")
	out.Status("", "  2. Point vector_store at your Qdrant server, or use the badger backend")
	out.Status("", "  3. Run 'medrag config show' to verify")
	return nil
}

func newConfigShowCmd(global *globalOptions) *cobra.Command {
	var (
		format string
		source string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Long: `Show the effective configuration after merging all sources.
API keys are masked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				cfg  *config.Config
				desc string
			)
			switch source {
			case "merged":
				loaded, root, err := global.loadConfig()
				if err != nil {
					return err
				}
				cfg = loaded
				desc = "merged (defaults + user + project + env) for " + root
			case "defaults":
				cfg = config.NewConfig()
				desc = "defaults (hardcoded)"
			default:
				return merrors.ValidationError(fmt.Sprintf("invalid source: %s (use: merged, defaults)", source), nil)
			}

			out := output.New(cmd.OutOrStdout())
			redacted := cfg.Redacted()
			if format == "json" {
				return out.JSON(redacted)
			}

			data, err := yaml.Marshal(redacted)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			out.Statusf("📋", "Configuration source: %s", desc)
			out.Newline()
			_, err = fmt.Fprint(cmd.OutOrStdout(), string(data))
			return err
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "Output format: yaml, json")
	cmd.Flags().StringVar(&source, "source", "merged", "Config source: merged, defaults")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print user config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return err
		},
	}
}
