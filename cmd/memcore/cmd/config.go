package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/juergengeck/memory.core/configs"
	"github.com/juergengeck/memory.core/internal/config"
	mcerrors "github.com/juergengeck/memory.core/internal/errors"
	"github.com/juergengeck/memory.core/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage memcore configuration",
		Long: `Inspect and initialize memcore configuration.

Configuration is layered: hardcoded defaults, then the user config at
~/.config/memcore/config.yaml, then the project's .memcore.yaml, then
MEMCORE_* environment variables.`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the user configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())
			path := config.UserConfigPath()

			if config.UserConfigExists() {
				if !force {
					return mcerrors.New(mcerrors.ErrCodeInvalidInput,
						fmt.Sprintf("config file already exists: %s", path), nil).
						WithSuggestion("Use --force to overwrite it")
				}
				backupPath, err := config.BackupUserConfig()
				if err != nil {
					return fmt.Errorf("failed to back up existing config: %w", err)
				}
				if backupPath != "" {
					out.Statusf("💾", "Backed up existing config to %s", backupPath)
				}
			}

			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return fmt.Errorf("failed to create config directory: %w", err)
			}
			if err := os.WriteFile(path, []byte(configs.UserConfigTemplate), 0o644); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}

			out.Successf("Created %s", path)
			out.Status("", "Edit it to change the store backend, extractor, or data directory.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var (
		source     string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the configuration",
		Long: `Show the configuration.

By default the fully merged configuration is shown. --source selects one
layer instead: 'defaults' for the built-in values, 'user' and 'project'
for the raw config files.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShow(cmd, source, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&source, "source", "merged", "Config layer to show (merged, defaults, user, project)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON (merged and defaults only)")

	return cmd
}

func runConfigShow(cmd *cobra.Command, source string, jsonOutput bool) error {
	out := output.New(cmd.OutOrStdout())

	switch source {
	case "merged", "defaults":
		var (
			cfg *config.Config
			err error
		)
		if source == "defaults" {
			cfg = config.DefaultConfig()
		} else {
			cfg, err = loadConfig()
			if err != nil {
				return err
			}
		}
		if jsonOutput {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(cfg)
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), string(data))
		return nil

	case "user":
		return printConfigFile(cmd, out, config.UserConfigPath(),
			"No user config found. Run 'memcore config init' to create one.")

	case "project":
		root, err := config.FindProjectRoot(".")
		if err != nil {
			root, err = os.Getwd()
			if err != nil {
				return err
			}
		}
		for _, name := range []string{".memcore.yaml", ".memcore.yml"} {
			p := filepath.Join(root, name)
			if _, err := os.Stat(p); err == nil {
				return printConfigFile(cmd, out, p, "")
			}
		}
		out.Status("", fmt.Sprintf("No project config found under %s", root))
		return nil

	default:
		return mcerrors.New(mcerrors.ErrCodeInvalidInput,
			fmt.Sprintf("unknown config source %q", source), nil).
			WithSuggestion("Valid sources: merged, defaults, user, project")
	}
}

// printConfigFile prints a raw config file, or the given hint when the file
// does not exist.
func printConfigFile(cmd *cobra.Command, out *output.Writer, path, missingHint string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if missingHint != "" {
				out.Status("", missingHint)
			}
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "# %s\n", path)
	fmt.Fprint(cmd.OutOrStdout(), string(data))
	return nil
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the user configuration path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := config.UserConfigPath()
			fmt.Fprintln(cmd.OutOrStdout(), path)
			if !config.UserConfigExists() {
				fmt.Fprintln(cmd.ErrOrStderr(), "(not created yet; run 'memcore config init')")
			}
			return nil
		},
	}
}
