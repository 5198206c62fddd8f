// Package main provides the supervisor CLI: run a script under supervision,
// follow its log file in the terminal, serve the web shell, or list past runs.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/t77yq/script-supervisor/internal/config"
)

var (
	configFile string
	logFile    string
	logLevel   string
	historyMax int
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "supervisor",
	Short: "Run scripts under supervision and follow their log",
	Long: `supervisor launches a script, records its outcome and resource usage
as structured lines in a log file, and renders that file live in the terminal
or in a browser.`,
	SilenceUsage: true,
}

var runCmd = &cobra.Command{
	Use:   "run <script>",
	Short: "Execute a script once and record the outcome",
	Args:  cobra.ExactArgs(1),
	RunE:  runScript,
}

var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "Follow the log file in the terminal until interrupted",
	Args:  cobra.NoArgs,
	RunE:  runViewer,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the web shell",
	Args:  cobra.NoArgs,
	RunE:  runServer,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent runs, newest first",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default ./config/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Log file the runner appends to [default: debug.log]")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Minimum record level (DEBUG|INFO|ERROR) [default: DEBUG]")

	historyCmd.Flags().IntVar(&historyMax, "limit", 20, "Number of runs to list")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(viewCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(historyCmd)
}

// loadConfig resolves settings from file, environment and root flags.
// Unset flags fall through to the config file and defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	v := config.NewViper(configFile)

	flags := cmd.Root().PersistentFlags()
	if err := v.BindPFlag("log.file", flags.Lookup("log-file")); err != nil {
		return nil, fmt.Errorf("failed to bind log-file flag: %w", err)
	}
	if err := v.BindPFlag("log.level", flags.Lookup("log-level")); err != nil {
		return nil, fmt.Errorf("failed to bind log-level flag: %w", err)
	}

	return config.Load(v)
}
