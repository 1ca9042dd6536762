package app

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/termlearn/internal/learning"
	"github.com/blackwell-systems/termlearn/internal/model"
	"github.com/blackwell-systems/termlearn/internal/output"
)

var statsTop int

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show what has been learned",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().IntVar(&statsTop, "top", 10, "Number of top commands to list")
	rootCmd.AddCommand(statsCmd)
}

type statsReport struct {
	learning.Stats
	TopCommands []model.CommandCount `json:"top_commands"`
}

func runStats(cmd *cobra.Command, args []string) error {
	e, err := openEnv(envOptions{})
	if err != nil {
		return err
	}
	report := statsReport{
		Stats:       e.sys.Stats(),
		TopCommands: e.sys.TopCommands(statsTop),
	}
	if err := e.close(); err != nil {
		return err
	}
	if report.TopCommands == nil {
		report.TopCommands = []model.CommandCount{}
	}

	out := cmd.OutOrStdout()
	if flagJSON {
		return writeJSON(out, report)
	}
	return renderStats(out, report)
}

func renderStats(w io.Writer, r statsReport) error {
	fmt.Fprintln(w, output.Section("Learning", sectionWidth))
	t := output.NewTable("Metric", "Value")
	state := output.StyleError.Render("disabled")
	if r.Enabled {
		state = output.StyleSuccess.Render("enabled")
	}
	t.AddRow("State", state)
	t.AddRow("Model version", strconv.FormatUint(r.ModelVersion, 10))
	last := "never"
	if r.LastTraining != nil {
		last = r.LastTraining.Format("2006-01-02 15:04")
	}
	t.AddRow("Last training", last)
	t.AddRow("Buffered events", strconv.Itoa(r.BufferedEvents))
	t.AddRow("Pending (unflushed)", strconv.Itoa(r.PendingEvents))
	t.AddRow("Data on disk", formatBytes(r.DataSizeBytes))
	if err := t.Fprint(w); err != nil {
		return err
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, output.Section("Model", sectionWidth))
	m := output.NewTable("Table", "Entries")
	m.AddRow("Commands", strconv.Itoa(r.Model.Commands))
	m.AddRow("Sequences", strconv.Itoa(r.Model.Sequences))
	m.AddRow("N-grams", strconv.Itoa(r.Model.NGrams))
	m.AddRow("Directories", strconv.Itoa(r.Model.Directories))
	m.AddRow("Projects", strconv.Itoa(r.Model.Projects))
	m.AddRow("Time slots", strconv.Itoa(r.Model.TimeSlots))
	m.AddRow("Error patterns", strconv.Itoa(r.Model.ErrorPatterns))
	m.AddRow("Error fixes", strconv.Itoa(r.Model.ErrorFixes))
	m.AddRow("Intents", strconv.Itoa(r.Model.Intents))
	if err := m.Fprint(w); err != nil {
		return err
	}

	if len(r.TopCommands) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, output.Section("Top commands", sectionWidth))
	tc := output.NewTable("Command", "Weight")
	for _, c := range r.TopCommands {
		tc.AddRow(output.Truncate(c.Command, 50), strconv.FormatFloat(c.Count, 'f', 1, 64))
	}
	return tc.Fprint(w)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
