package app

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/termlearn/internal/learning"
	"github.com/blackwell-systems/termlearn/internal/output"
	"github.com/blackwell-systems/termlearn/internal/trainer"
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Learn from recorded events",
	Long: `Run one training pass over the events recorded since the last training.
The updated model is saved next to the journal and the run is added to the
training history (see 'termlearn history').`,
	Args: cobra.NoArgs,
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)
}

func runTrain(cmd *cobra.Command, args []string) error {
	e, err := openEnv(envOptions{withStore: true})
	if err != nil {
		return err
	}
	stats, trainErr := e.sys.Train()
	closeErr := e.close()

	if errors.Is(trainErr, learning.ErrNotRunning) {
		return errors.New("learning is disabled (set learning.enabled: true)")
	}
	if trainErr != nil {
		return fmt.Errorf("training: %w", trainErr)
	}
	if closeErr != nil {
		return closeErr
	}

	out := cmd.OutOrStdout()
	if flagJSON {
		return writeJSON(out, stats)
	}
	return renderTrainStats(out, stats)
}

func renderTrainStats(w io.Writer, stats trainer.Stats) error {
	if stats.EventsProcessed == 0 {
		fmt.Fprintln(w, output.StyleMuted.Render("Nothing new to learn (too few events since the last training)."))
		return nil
	}
	fmt.Fprintln(w, output.Section("Training", sectionWidth))
	t := output.NewTable("Metric", "Value")
	t.AddRow("Events processed", strconv.Itoa(stats.EventsProcessed))
	t.AddRow("Commands analyzed", strconv.Itoa(stats.CommandsAnalyzed))
	t.AddRow("New patterns", strconv.Itoa(stats.NewPatterns))
	t.AddRow("Updated patterns", strconv.Itoa(stats.UpdatedPatterns))
	t.AddRow("Pruned patterns", strconv.Itoa(stats.PrunedPatterns))
	t.AddRow("Duration", stats.Duration.String())
	return t.Fprint(w)
}
