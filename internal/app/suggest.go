package app

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/termlearn/internal/model"
	"github.com/blackwell-systems/termlearn/internal/output"
)

var (
	suggestLast  string
	suggestDir   string
	suggestHour  int
	suggestError string
	suggestLimit int
)

var suggestCmd = &cobra.Command{
	Use:   "suggest [partial input]",
	Short: "Suggest the next command",
	Long: `Rank likely next commands from what was learned: sequences, n-grams,
per-directory habits, time of day and known error fixes. The last command
defaults to the most recently recorded one and the directory to the current
one.

Examples:
  termlearn suggest                       # what usually comes next
  termlearn suggest git                   # complete a prefix
  termlearn suggest --error "permission denied"`,
	Args: cobra.ArbitraryArgs,
	RunE: runSuggest,
}

func init() {
	suggestCmd.Flags().StringVar(&suggestLast, "last", "", "Previous command (default: last recorded command)")
	suggestCmd.Flags().StringVar(&suggestDir, "dir", "", "Working directory (default: current directory)")
	suggestCmd.Flags().IntVar(&suggestHour, "hour", -1, "Hour of day 0-23 (default: now)")
	suggestCmd.Flags().StringVar(&suggestError, "error", "", "Error currently on screen")
	suggestCmd.Flags().IntVar(&suggestLimit, "limit", 5, "Maximum number of suggestions to show")
	rootCmd.AddCommand(suggestCmd)
}

func runSuggest(cmd *cobra.Command, args []string) error {
	if suggestHour > 23 {
		return fmt.Errorf("--hour must be between 0 and 23, got %d", suggestHour)
	}
	e, err := openEnv(envOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = e.close() }()
	if err := e.requireRunning(); err != nil {
		return err
	}

	ctx := model.Context{
		WorkingDir:     suggestDir,
		LastCommand:    suggestLast,
		RecentCommands: e.sys.RecentCommands(5),
		Hour:           suggestHour,
		PartialInput:   strings.Join(args, " "),
		CurrentError:   suggestError,
	}
	if ctx.WorkingDir == "" {
		ctx.WorkingDir, _ = os.Getwd()
	}
	if ctx.Hour < 0 {
		ctx.Hour = time.Now().Hour()
	}
	if ctx.LastCommand == "" && len(ctx.RecentCommands) > 0 {
		ctx.LastCommand = ctx.RecentCommands[len(ctx.RecentCommands)-1]
	}

	suggestions := e.sys.SuggestNext(ctx)
	if suggestLimit > 0 && len(suggestions) > suggestLimit {
		suggestions = suggestions[:suggestLimit]
	}

	out := cmd.OutOrStdout()
	if flagJSON {
		if suggestions == nil {
			suggestions = []model.Suggestion{}
		}
		return writeJSON(out, suggestions)
	}
	return renderSuggestions(out, suggestions)
}

func renderSuggestions(w io.Writer, suggestions []model.Suggestion) error {
	if len(suggestions) == 0 {
		fmt.Fprintln(w, output.StyleMuted.Render("No suggestions yet. Record some commands and run 'termlearn train'."))
		return nil
	}
	fmt.Fprintln(w, output.Section("Suggestions", sectionWidth))
	t := output.NewTable("#", "Command", "Confidence", "Source")
	for i, s := range suggestions {
		t.AddRow(
			fmt.Sprintf("%d", i+1),
			output.StyleBold.Render(output.Truncate(s.Command, 40)),
			output.ConfidenceBar(s.Confidence, 10),
			output.StyleMuted.Render(s.Source),
		)
	}
	if err := t.Fprint(w); err != nil {
		return err
	}
	for _, s := range suggestions {
		if s.Explanation != "" {
			fmt.Fprintf(w, "\n%s %s\n", output.StyleLabel.Render(s.Command+":"), s.Explanation)
		}
	}
	return nil
}
