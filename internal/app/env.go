package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/blackwell-systems/termlearn/internal/config"
	"github.com/blackwell-systems/termlearn/internal/learning"
	"github.com/blackwell-systems/termlearn/internal/logging"
	"github.com/blackwell-systems/termlearn/internal/model"
	"github.com/blackwell-systems/termlearn/internal/output"
	"github.com/blackwell-systems/termlearn/internal/store"
)

// env is what a command needs: configuration, a logger, the learning system
// and, when requested, the history store.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	sys    *learning.System
	db     *store.DB
}

// sectionWidth is the rule width of section headers, from output.width.
var sectionWidth int

type envOptions struct {
	withStore bool
}

// openEnv loads configuration, builds the logger and starts the learning
// system. With a store, every training run is recorded in it.
func openEnv(opts envOptions) (*env, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	applyOutputConfig(cfg)

	logger, err := logging.New(cfg.Log, flagVerbose)
	if err != nil {
		return nil, err
	}

	e := &env{cfg: cfg, logger: logger}
	var sysOpts []learning.Option
	if opts.withStore {
		db, err := store.Open(cfg.Store.Path)
		if err != nil {
			_ = logger.Sync()
			return nil, fmt.Errorf("opening database: %w", err)
		}
		e.db = db
		sysOpts = append(sysOpts, learning.WithRunRecorder(storeRecorder{db: db}))
	}

	sys, err := learning.New(cfg.Learning, logger, sysOpts...)
	if err != nil {
		_ = e.close()
		return nil, err
	}
	e.sys = sys
	sys.Start()
	return e, nil
}

func applyOutputConfig(cfg *config.Config) {
	if !cfg.Output.Color {
		output.SetNoColor(true)
	}
	sectionWidth = cfg.Output.Width
}

// close stops the learning system (saving the model and flushing events)
// and releases the store.
func (e *env) close() error {
	var errs []error
	if e.sys != nil {
		errs = append(errs, e.sys.Stop())
	}
	if e.db != nil {
		errs = append(errs, e.db.Close())
	}
	_ = e.logger.Sync()
	return errors.Join(errs...)
}

// requireRunning turns a disabled configuration into a clear error.
func (e *env) requireRunning() error {
	if !e.sys.Running() {
		return errors.New("learning is disabled (set learning.enabled: true)")
	}
	return nil
}

// storeRecorder saves training runs and model table sizes to the store.
type storeRecorder struct {
	db *store.DB
}

func (r storeRecorder) RecordRun(run learning.Run) error {
	tr := &store.TrainingRun{
		TrainedAt:        run.TrainedAt,
		ModelVersion:     run.ModelVersion,
		EventsProcessed:  run.Stats.EventsProcessed,
		CommandsAnalyzed: run.Stats.CommandsAnalyzed,
		NewPatterns:      run.Stats.NewPatterns,
		UpdatedPatterns:  run.Stats.UpdatedPatterns,
		PrunedPatterns:   run.Stats.PrunedPatterns,
		Duration:         run.Stats.Duration,
	}
	_, err := r.db.SaveRun(tr, sizeMetrics(run.Sizes))
	return err
}

func sizeMetrics(s model.Sizes) []store.RunMetric {
	return []store.RunMetric{
		{Name: "commands", Value: float64(s.Commands)},
		{Name: "sequences", Value: float64(s.Sequences)},
		{Name: "error_patterns", Value: float64(s.ErrorPatterns)},
		{Name: "projects", Value: float64(s.Projects)},
		{Name: "time_slots", Value: float64(s.TimeSlots)},
		{Name: "ngrams", Value: float64(s.NGrams)},
		{Name: "directories", Value: float64(s.Directories)},
		{Name: "intents", Value: float64(s.Intents)},
		{Name: "error_fixes", Value: float64(s.ErrorFixes)},
	}
}

// writeJSON writes v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
