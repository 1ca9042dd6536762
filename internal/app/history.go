package app

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/termlearn/internal/config"
	"github.com/blackwell-systems/termlearn/internal/output"
	"github.com/blackwell-systems/termlearn/internal/store"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show training runs and how the model changed",
	Long: `List recent training runs, newest first, followed by how each model table
grew or shrank in the latest run compared to the one before it.`,
	Args: cobra.NoArgs,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "Number of runs to show")
	rootCmd.AddCommand(historyCmd)
}

type historyReport struct {
	Runs []store.TrainingRun `json:"runs"`
	Diff *store.RunDiff      `json:"diff,omitempty"`
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	applyOutputConfig(cfg)
	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	limit := historyLimit
	if limit < 2 {
		limit = 2
	}
	runs, err := db.RecentRuns(limit)
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}

	report := historyReport{Runs: runs}
	if len(runs) >= 2 {
		report.Diff, err = db.CompareRuns(runs[1].ID, runs[0].ID)
		if err != nil {
			return err
		}
	}
	if historyLimit > 0 && len(report.Runs) > historyLimit {
		report.Runs = report.Runs[:historyLimit]
	}
	if report.Runs == nil {
		report.Runs = []store.TrainingRun{}
	}

	out := cmd.OutOrStdout()
	if flagJSON {
		return writeJSON(out, report)
	}
	return renderHistory(out, report)
}

func renderHistory(w io.Writer, r historyReport) error {
	if len(r.Runs) == 0 {
		fmt.Fprintln(w, output.StyleMuted.Render("No training runs recorded yet."))
		return nil
	}
	fmt.Fprintln(w, output.Section("Training runs", sectionWidth))
	t := output.NewTable("Trained", "Version", "Events", "New", "Updated", "Pruned", "Duration")
	for _, run := range r.Runs {
		t.AddRow(
			run.TrainedAt.Local().Format("2006-01-02 15:04"),
			strconv.FormatUint(run.ModelVersion, 10),
			strconv.Itoa(run.EventsProcessed),
			strconv.Itoa(run.NewPatterns),
			strconv.Itoa(run.UpdatedPatterns),
			strconv.Itoa(run.PrunedPatterns),
			run.Duration.String(),
		)
	}
	if err := t.Fprint(w); err != nil {
		return err
	}

	if r.Diff == nil {
		return nil
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, output.Section(fmt.Sprintf("Model change (v%d → v%d)",
		r.Diff.Previous.ModelVersion, r.Diff.Current.ModelVersion), sectionWidth))
	d := output.NewTable("Table", "Before", "After", "Change")
	for _, delta := range r.Diff.Deltas {
		d.AddRow(
			delta.Name,
			strconv.FormatFloat(delta.Previous, 'f', 0, 64),
			strconv.FormatFloat(delta.Current, 'f', 0, 64),
			output.TrendArrow(delta.Delta, true),
		)
	}
	return d.Fprint(w)
}
