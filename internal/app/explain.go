package app

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/termlearn/internal/output"
)

var explainCmd = &cobra.Command{
	Use:   "explain <error text>",
	Short: "Explain a learned fix for an error",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runExplain,
}

var predictCmd = &cobra.Command{
	Use:   "predict <description or prefix>",
	Short: "Map a description or prefix to commands",
	Long: `Match what you want to do against learned intents, then complete it as
a command prefix. Intent matches come first.

Examples:
  termlearn predict list files
  termlearn predict "git ch"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPredict,
}

func init() {
	rootCmd.AddCommand(explainCmd, predictCmd)
}

func runExplain(cmd *cobra.Command, args []string) error {
	e, err := openEnv(envOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = e.close() }()
	if err := e.requireRunning(); err != nil {
		return err
	}

	explanation, ok := e.sys.ExplainError(strings.Join(args, " "))
	out := cmd.OutOrStdout()
	if flagJSON {
		return writeJSON(out, map[string]any{"found": ok, "explanation": explanation})
	}
	if !ok {
		fmt.Fprintln(out, output.StyleMuted.Render("No fix learned for this error yet."))
		return nil
	}
	fmt.Fprintln(out, explanation)
	return nil
}

func runPredict(cmd *cobra.Command, args []string) error {
	e, err := openEnv(envOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = e.close() }()
	if err := e.requireRunning(); err != nil {
		return err
	}

	predictions := e.sys.PredictIntent(strings.Join(args, " "))
	out := cmd.OutOrStdout()
	if flagJSON {
		if predictions == nil {
			predictions = []string{}
		}
		return writeJSON(out, predictions)
	}
	if len(predictions) == 0 {
		fmt.Fprintln(out, output.StyleMuted.Render("No matching commands."))
		return nil
	}
	for _, p := range predictions {
		fmt.Fprintln(out, p)
	}
	return nil
}
