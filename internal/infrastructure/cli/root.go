package cli

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var (
	configPath string
	pluginDir  string
	logLevel   string
	logFormat  string
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:     "lokus-plugins",
	Version: Version,
	Short:   "Develop Lokus plugins with automatic hot reload",
	Long: `lokus-plugins watches the Lokus plugin directory and reloads a plugin
whenever its manifest or built bundle changes on disk.

Edits are debounced, so one rebuild that touches many files causes one
reload per plugin, and a plugin that fails to reload never blocks the others.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger(cmd.ErrOrStderr(), logLevel, logFormat)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() error {
	err := RootCmd.Execute()
	if err != nil {
		printError(RootCmd, err)
	}
	return err
}

// ExitCode returns the process exit code for an Execute error.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var cliErr *CLIError
	if errors.As(err, &cliErr) && cliErr.ExitCode != 0 {
		return cliErr.ExitCode
	}
	return 1
}

func printError(cmd *cobra.Command, err error) {
	w := cmd.ErrOrStderr()
	_, _ = fmt.Fprintf(w, "Error: %v\n", err)
	var cliErr *CLIError
	if errors.As(err, &cliErr) && cliErr.Hint != "" {
		_, _ = fmt.Fprintf(w, "Hint: %s\n", cliErr.Hint)
	}
}

func init() {
	RootCmd.PersistentFlags().StringVar(&configPath, "config", "", "settings file (default ~/.lokus/hotreload.yaml)")
	RootCmd.PersistentFlags().StringVar(&pluginDir, "plugin-dir", "", "plugin root directory (overrides plugin_dir)")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn or error")
	RootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text or json")
}
