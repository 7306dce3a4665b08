package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/lokus-ai/lokus-plugins/pkg/application"
	"github.com/lokus-ai/lokus-plugins/pkg/domain/events"
	domainPlugin "github.com/lokus-ai/lokus-plugins/pkg/domain/plugin"
	"github.com/lokus-ai/lokus-plugins/pkg/plugin/contract"
	"github.com/spf13/cobra"
)

var (
	pluginJSON    bool
	historyPlugin string
	historyLimit  int
)

var pluginCmd = &cobra.Command{
	Use:   "plugin",
	Short: "Inspect, install and reload plugins",
}

var pluginListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed plugins",
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := loadServicesFromFlags()
		if err != nil {
			return MapError(err)
		}
		defer services.Close()

		plugins, err := services.Plugins.ListPlugins()
		if err != nil {
			return MapError(err)
		}

		out := cmd.OutOrStdout()
		if pluginJSON {
			return printJSON(out, plugins)
		}
		if len(plugins) == 0 {
			_, _ = fmt.Fprintf(out, "No plugins installed in %s.\n", services.Workspace.Root)
			return nil
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "ID\tVERSION\tSTATUS\tENABLED\tDIR")
		for _, p := range plugins {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", p.ID, orDash(p.Version), p.Status, p.Enabled, p.Dir)
		}
		return tw.Flush()
	},
}

var pluginInfoCmd = &cobra.Command{
	Use:   "info <plugin>",
	Short: "Show a plugin's manifest and status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := loadServicesFromFlags()
		if err != nil {
			return MapError(err)
		}
		defer services.Close()

		info, err := services.Plugins.Info(args[0])
		if err != nil {
			return MapError(err)
		}
		return printJSON(cmd.OutOrStdout(), info)
	},
}

var pluginValidateCmd = &cobra.Command{
	Use:   "validate <plugin>",
	Short: "Check that a plugin's entry point can be started",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := loadServicesFromFlags()
		if err != nil {
			return MapError(err)
		}
		defer services.Close()

		result, err := services.Plugins.ValidatePlugin(args[0])
		if err != nil {
			return MapError(err)
		}

		out := cmd.OutOrStdout()
		if !result.Valid {
			_, _ = fmt.Fprintf(out, "%s %s: %s\n", statusErr.Render("✗"), result.Name, result.Error)
			return NewCLIError(fmt.Sprintf("plugin %s is not valid", result.Name), "Fix the problem above and rebuild the plugin", nil)
		}
		_, _ = fmt.Fprintf(out, "%s %s is valid\n", statusDone.Render("✓"), result.Name)
		return nil
	},
}

var pluginInstallCmd = &cobra.Command{
	Use:   "install <dir|archive.zip>",
	Short: "Install a plugin into the plugin directory",
	Long: `Copy a plugin directory, or extract a .zip archive, into the plugin
directory. The source must contain a plugin.json with a name and a main
entry. A running watcher picks the new plugin up and loads it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := loadServicesFromFlags()
		if err != nil {
			return MapError(err)
		}
		defer services.Close()

		res, err := services.Plugins.Install(args[0])
		if err != nil {
			return MapError(err)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s into %s\n", statusDone.Render("installed"), res.ID, res.Dir)
		return nil
	},
}

var pluginUninstallCmd = &cobra.Command{
	Use:   "uninstall <plugin>",
	Short: "Stop a plugin and remove it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := loadServicesFromFlags()
		if err != nil {
			return MapError(err)
		}
		defer services.Close()

		info, err := services.Plugins.Uninstall(args[0])
		if err != nil {
			return MapError(err)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", statusDone.Render("uninstalled"), info.ID)
		return nil
	},
}

var pluginEnableCmd = &cobra.Command{
	Use:   "enable <plugin>",
	Short: "Allow a plugin to be loaded",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setPluginEnabled(cmd, args[0], true)
	},
}

var pluginDisableCmd = &cobra.Command{
	Use:   "disable <plugin>",
	Short: "Stop a plugin from being loaded",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setPluginEnabled(cmd, args[0], false)
	},
}

func setPluginEnabled(cmd *cobra.Command, name string, enabled bool) error {
	services, err := loadServicesFromFlags()
	if err != nil {
		return MapError(err)
	}
	defer services.Close()

	change := services.Plugins.Disable
	verb := "disabled"
	if enabled {
		change = services.Plugins.Enable
		verb = "enabled"
	}
	info, err := change(name)
	if err != nil {
		return MapError(err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", verb, info.ID)
	return nil
}

var pluginCheckCmd = &cobra.Command{
	Use:   "check <plugin>",
	Short: "Start a plugin and run the extension contract against it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := loadServicesFromFlags()
		if err != nil {
			return MapError(err)
		}
		defer services.Close()

		info, err := services.Plugins.Info(args[0])
		if err != nil {
			return MapError(err)
		}
		if info.Status != application.StatusAvailable {
			return NewCLIError(fmt.Sprintf("plugin %s is %s", info.ID, info.Status), "Run 'lokus-plugins plugin validate' for details", nil)
		}

		sr, err := contract.NewContractSuite(pluginLauncher).RunBinary(cmd.Context(), info.Main)
		if err != nil {
			return MapError(err)
		}

		out := cmd.OutOrStdout()
		for _, r := range sr.Results {
			mark := statusDone.Render("PASS")
			if !r.Passed {
				mark = statusErr.Render("FAIL")
			}
			_, _ = fmt.Fprintf(out, "%s %-14s %s\n", mark, r.Name, r.Message)
		}
		_, _ = fmt.Fprintf(out, "%d passed, %d failed\n", sr.Passed, sr.Failed)
		if !sr.OK() {
			return NewCLIError(fmt.Sprintf("plugin %s does not satisfy the extension contract", info.ID), "", nil)
		}
		return nil
	},
}

var pluginReloadCmd = &cobra.Command{
	Use:   "reload <plugin>...",
	Short: "Reload plugins once, as the watcher would",
	Long: `Reload the named plugins in one cycle: each is stopped if running,
then started again from disk and activated with its settings. Failures are
reported per plugin and recorded in the reload history.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := loadServicesFromFlags()
		if err != nil {
			return MapError(err)
		}
		defer services.Close()

		ids := make([]domainPlugin.ID, len(args))
		for i, a := range args {
			ids[i] = domainPlugin.ID(a)
		}

		out := cmd.OutOrStdout()
		failed := 0
		for _, res := range services.Controller.Reload(cmd.Context(), ids) {
			switch res.Outcome {
			case domainPlugin.OutcomeReloaded:
				_, _ = fmt.Fprintf(out, "%s %s (%dms)\n", statusDone.Render("reloaded"), res.Plugin, res.Duration.Milliseconds())
			default:
				failed++
				_, _ = fmt.Fprintf(out, "%s %s: %s\n", statusErr.Render(string(res.Outcome)), res.Plugin, res.Message())
			}
		}
		if failed > 0 {
			return NewCLIError(fmt.Sprintf("%d of %d plugins failed to reload", failed, len(ids)), "See 'lokus-plugins plugin history' for details", nil)
		}
		return nil
	},
}

var pluginClassifyCmd = &cobra.Command{
	Use:   "classify <path>...",
	Short: "Show which plugin a changed path would reload",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		root, err := cfg.ResolveRoot()
		if err != nil {
			return err
		}
		classifier := cfg.Classifier(root)

		out := cmd.OutOrStdout()
		for _, path := range args {
			if id, ok := classifier.Classify(path); ok {
				_, _ = fmt.Fprintf(out, "%s\t%s\n", path, id)
			} else {
				_, _ = fmt.Fprintf(out, "%s\t%s\n", path, dimStyle.Render("-"))
			}
		}
		return nil
	},
}

var pluginHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recorded reloads",
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := loadServicesFromFlags()
		if err != nil {
			return MapError(err)
		}
		defer services.Close()

		history := services.Workspace.History
		var list []*events.Event
		if historyPlugin != "" {
			list, err = history.LoadByPlugin(historyPlugin)
			if err == nil && historyLimit > 0 && len(list) > historyLimit {
				list = list[len(list)-historyLimit:]
			}
		} else {
			list, err = history.LoadRecent(historyLimit)
		}
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if pluginJSON {
			return printJSON(out, list)
		}
		if len(list) == 0 {
			_, _ = fmt.Fprintln(out, "No reloads recorded.")
			return nil
		}
		for _, e := range list {
			_, _ = fmt.Fprintln(out, formatEvent(e))
		}
		return nil
	},
}

func init() {
	pluginListCmd.Flags().BoolVar(&pluginJSON, "json", false, "print JSON")
	pluginHistoryCmd.Flags().BoolVar(&pluginJSON, "json", false, "print JSON")
	pluginHistoryCmd.Flags().StringVar(&historyPlugin, "plugin", "", "only show this plugin")
	pluginHistoryCmd.Flags().IntVar(&historyLimit, "limit", 20, "show at most this many events (0 for all)")

	pluginCmd.AddCommand(pluginListCmd)
	pluginCmd.AddCommand(pluginInfoCmd)
	pluginCmd.AddCommand(pluginValidateCmd)
	pluginCmd.AddCommand(pluginInstallCmd)
	pluginCmd.AddCommand(pluginUninstallCmd)
	pluginCmd.AddCommand(pluginEnableCmd)
	pluginCmd.AddCommand(pluginDisableCmd)
	pluginCmd.AddCommand(pluginCheckCmd)
	pluginCmd.AddCommand(pluginReloadCmd)
	pluginCmd.AddCommand(pluginClassifyCmd)
	pluginCmd.AddCommand(pluginHistoryCmd)
	RootCmd.AddCommand(pluginCmd)
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
