// Package app contains the Cobra command tree for termlearn.
package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/termlearn/internal/output"
)

var appVersion = "dev"

// SetVersion sets the application version (called from main with ldflags value).
func SetVersion(v string) {
	appVersion = v
	rootCmd.Version = v
}

var (
	flagNoColor bool
	flagJSON    bool
	flagVerbose bool
	flagConfig  string
)

var rootCmd = &cobra.Command{
	Use:   "termlearn",
	Short: "Local, private learning of your shell habits",
	Long: `termlearn watches the commands you run, learns your habits locally and
suggests what to run next, how to fix errors and which command matches what
you want to do. Nothing leaves your machine; secrets are redacted before
anything is stored.

Run 'termlearn stats' to see what has been learned so far.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if flagNoColor || !output.ColorWanted(true, os.Stdout) {
			output.SetNoColor(true)
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "termlearn", appVersion)
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Use a subcommand:")
		fmt.Fprintln(out, "  record    Record a command, assistant interaction or error")
		fmt.Fprintln(out, "  train     Learn from recorded events")
		fmt.Fprintln(out, "  suggest   Suggest the next command")
		fmt.Fprintln(out, "  explain   Explain a learned fix for an error")
		fmt.Fprintln(out, "  predict   Map a description or prefix to commands")
		fmt.Fprintln(out, "  stats     Show what has been learned")
		fmt.Fprintln(out, "  history   Show training runs and how the model changed")
		fmt.Fprintln(out, "  import    Learn from existing shell history files")
		fmt.Fprintln(out, "  watch     Follow shell history and train on a schedule")
		fmt.Fprintln(out, "  export    Export collected events as JSONL")
		fmt.Fprintln(out, "  delete    Delete all collected data and the model")
	fmt.Fprintln(out, "  mcp       Serve suggestions to coding assistants over MCP")
		return nil
	},
}

// Execute is the entry point called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file path (default: ~/.config/termlearn/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Output as JSON")
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "Enable debug logging")
}
