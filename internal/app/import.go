package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/blackwell-systems/termlearn/internal/event"
	"github.com/blackwell-systems/termlearn/internal/output"
	"github.com/blackwell-systems/termlearn/internal/shellhist"
)

var importFormat string

var importCmd = &cobra.Command{
	Use:   "import [history files...]",
	Short: "Learn from existing shell history files",
	Long: `Parse bash or zsh history files, pass every command through the privacy
filter and train on them in one run. Without arguments, $HISTFILE,
~/.zsh_history and ~/.bash_history are used when they exist.

Examples:
  termlearn import
  termlearn import ~/.zsh_history --format zsh`,
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVar(&importFormat, "format", "", "History format: bash or zsh (default: detect)")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	var format shellhist.Format
	if importFormat != "" {
		f, err := shellhist.ParseFormat(importFormat)
		if err != nil {
			return err
		}
		format = f
	}
	files := args
	if len(files) == 0 {
		files = shellhist.DefaultFiles()
	}
	if len(files) == 0 {
		return errors.New("no shell history file found; pass one explicitly")
	}

	events, err := loadHistory(cmd.Context(), files, format, time.Now())
	if err != nil {
		return err
	}

	e, err := openEnv(envOptions{withStore: true})
	if err != nil {
		return err
	}
	stats, importErr := e.sys.ImportEvents(events)
	closeErr := e.close()
	if importErr != nil {
		return fmt.Errorf("importing: %w", importErr)
	}
	if closeErr != nil {
		return closeErr
	}

	out := cmd.OutOrStdout()
	if flagJSON {
		return writeJSON(out, stats)
	}
	fmt.Fprintf(out, "%s Read %d commands from %d file(s)\n",
		output.StyleSuccess.Render("✓"), len(events), len(files))
	return renderTrainStats(out, stats)
}

// loadHistory parses files concurrently and merges their commands into
// one time-ordered slice.
func loadHistory(ctx context.Context, files []string, format shellhist.Format, end time.Time) ([]event.Event, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	perFile := make([][]event.Event, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, path := range files {
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			entries, err := shellhist.ParseFile(path, format)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}
			perFile[i] = shellhist.Events(entries, end)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []event.Event
	for _, evs := range perFile {
		all = append(all, evs...)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Time().Before(all[j].Time())
	})
	return all, nil
}
