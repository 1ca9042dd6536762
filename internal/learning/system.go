// Package learning is the facade over the privacy filter, event collector,
// trainer and user model.
//
// A System holds no lock. Every method mutates or reads shared state, so an
// application that calls it from more than one goroutine must serialize
// access itself, typically with one mutex around the System.
package learning

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/blackwell-systems/termlearn/internal/collector"
	"github.com/blackwell-systems/termlearn/internal/event"
	"github.com/blackwell-systems/termlearn/internal/model"
	"github.com/blackwell-systems/termlearn/internal/privacy"
	"github.com/blackwell-systems/termlearn/internal/trainer"
)

// ErrNotRunning is returned by maintenance calls made while the system is
// disabled or stopped.
var ErrNotRunning = errors.New("learning system is not running")

// intentThreshold is the minimum intent score PredictIntent accepts.
const intentThreshold = 0.1

// maxPredictions caps PredictIntent results.
const maxPredictions = 10

// Config is the full learning configuration.
type Config struct {
	Enabled        bool             `mapstructure:"enabled" json:"enabled"`
	DataDir        string           `mapstructure:"data_dir" json:"data_dir"`
	MaxDataAgeDays int              `mapstructure:"max_data_age_days" json:"max_data_age_days"`
	Collector      collector.Config `mapstructure:"collector" json:"collector"`
	Privacy        privacy.Config   `mapstructure:"privacy" json:"privacy"`
	Trainer        trainer.Config   `mapstructure:"trainer" json:"trainer"`
}

// DefaultConfig enables learning with privacy-first defaults. DataDir is
// left for the caller to choose.
func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		MaxDataAgeDays: 90,
		Collector:      collector.DefaultConfig(),
		Privacy:        privacy.DefaultConfig(),
		Trainer:        trainer.DefaultConfig(),
	}
}

// Run describes one completed training pass.
type Run struct {
	TrainedAt    time.Time
	ModelVersion uint64
	Stats        trainer.Stats
	Sizes        model.Sizes
}

// RunRecorder persists training history.
type RunRecorder interface {
	RecordRun(run Run) error
}

// System owns the learning pipeline.
type System struct {
	cfg       Config
	filter    *privacy.Filter
	collector *collector.Collector
	trainer   *trainer.Trainer
	model     *model.Model
	running   bool

	recorder RunRecorder
	now      func() time.Time
	getwd    func() (string, error)
	logger   *zap.Logger
}

type options struct {
	now        func() time.Time
	recorder   RunRecorder
	filterOpts []privacy.Option
}

// Option customizes a System.
type Option func(*options)

// WithClock sets the clock used for event timestamps, journal names and
// retention.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithRunRecorder records every training pass.
func WithRunRecorder(r RunRecorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithFilterOptions passes options to the privacy filter.
func WithFilterOptions(opts ...privacy.Option) Option {
	return func(o *options) { o.filterOpts = append(o.filterOpts, opts...) }
}

// New builds a System. The data directory is created owner-only and the
// model is loaded from it, or started empty.
func New(cfg Config, logger *zap.Logger, opts ...Option) (*System, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return nil, errors.New("learning data directory is not set")
	}

	filter, err := privacy.New(cfg.Privacy, o.filterOpts...)
	if err != nil {
		return nil, fmt.Errorf("building privacy filter: %w", err)
	}
	if err := ensureDataDir(cfg.DataDir, logger); err != nil {
		return nil, err
	}

	return &System{
		cfg:    cfg,
		filter: filter,
		collector: collector.New(cfg.DataDir, cfg.Collector,
			collector.WithClock(o.now), collector.WithLogger(logger)),
		trainer: trainer.New(cfg.Trainer,
			trainer.WithClock(o.now), trainer.WithLogger(logger)),
		model:    model.LoadOrCreate(modelPath(cfg.DataDir), logger),
		recorder: o.recorder,
		now:      o.now,
		getwd:    os.Getwd,
		logger:   logger,
	}, nil
}

func modelPath(dir string) string {
	return filepath.Join(dir, model.FileName)
}

// ensureDataDir creates dir and restricts it to its owner. Failing to
// tighten permissions is logged, not fatal.
func ensureDataDir(dir string, logger *zap.Logger) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	if err := restrictDir(dir); err != nil {
		logger.Warn("could not restrict data directory permissions",
			zap.String("dir", dir), zap.Error(err))
	}
	return nil
}

// Config returns the active configuration.
func (s *System) Config() Config { return s.cfg }

// Running reports whether the system accepts events.
func (s *System) Running() bool { return s.running }

// Start begins accepting events, removes journals older than the retention
// window and warms the recent-events buffer from disk. It does nothing when
// learning is disabled.
func (s *System) Start() {
	if !s.cfg.Enabled || s.running {
		return
	}
	s.running = true
	s.cleanupOldData()
	if err := s.collector.Warm(s.model.LastTrained); err != nil {
		s.logger.Warn("loading journaled events", zap.Error(err))
	}
	s.logger.Debug("learning system started", zap.String("data_dir", s.cfg.DataDir))
}

// CleanupOldData removes journals older than MaxDataAgeDays.
func (s *System) CleanupOldData() error {
	if s.cfg.MaxDataAgeDays <= 0 {
		return nil
	}
	cutoff := s.now().AddDate(0, 0, -s.cfg.MaxDataAgeDays)
	return s.collector.CleanupBefore(cutoff)
}

func (s *System) cleanupOldData() {
	if err := s.CleanupOldData(); err != nil {
		s.logger.Warn("retention cleanup failed", zap.Error(err))
	}
}

// Stop saves the model, flushes pending events and stops accepting events.
func (s *System) Stop() error {
	if !s.running {
		return nil
	}
	s.running = false

	var errs []error
	if err := s.model.Save(modelPath(s.cfg.DataDir)); err != nil {
		errs = append(errs, fmt.Errorf("saving model: %w", err))
	}
	if err := s.collector.Flush(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close is Stop.
func (s *System) Close() error { return s.Stop() }

// RecordCommand records a command run now in the process working
// directory. Failures are logged, never returned.
func (s *System) RecordCommand(command, output string, exitCode int, durationMs int64) {
	wd, _ := s.getwd()
	s.RecordCommandEvent(event.CommandEvent{
		Command:    command,
		Output:     output,
		ExitCode:   exitCode,
		DurationMs: durationMs,
		Timestamp:  s.now(),
		WorkingDir: wd,
	})
}

// RecordCommandEvent records a command keeping the caller's timestamp and
// working directory.
func (s *System) RecordCommandEvent(ev event.CommandEvent) {
	filtered, ok := s.admitCommand(ev)
	if !ok {
		return
	}
	if err := s.collector.RecordCommand(*filtered); err != nil {
		s.logger.Warn("recording command", zap.Error(err))
	}
}

// admitCommand applies the skip policy and privacy filter.
func (s *System) admitCommand(ev event.CommandEvent) (*event.CommandEvent, bool) {
	if !s.running || !s.cfg.Collector.CollectCommands {
		return nil, false
	}
	if strings.TrimSpace(ev.Command) == "" {
		return nil, false
	}
	if s.filter.ShouldSkipCommand(ev.Command) {
		s.logger.Debug("skipping sensitive command")
		return nil, false
	}
	ev.Command = s.filter.FilterCommand(ev.Command)
	if !s.cfg.Collector.CollectOutputs {
		ev.Output = ""
	}
	if ev.Output != "" {
		ev.Output = s.filter.FilterOutput(ev.Output)
	}
	if ev.WorkingDir != "" {
		ev.WorkingDir = s.filter.FilterPath(ev.WorkingDir)
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.now()
	}
	return &ev, true
}

// RecordAIInteraction records an assistant exchange. Failures are logged,
// never returned.
func (s *System) RecordAIInteraction(query, response string, wasHelpful bool) {
	if !s.running || !s.cfg.Collector.CollectAIInteractions {
		return
	}
	ev := event.InteractionEvent{
		Query:      s.filter.FilterOutput(query),
		Response:   s.filter.FilterOutput(response),
		WasHelpful: wasHelpful,
		Timestamp:  s.now(),
	}
	if err := s.collector.RecordInteraction(ev); err != nil {
		s.logger.Warn("recording interaction", zap.Error(err))
	}
}

// RecordError records an error and, optionally, the command that raised
// it. Failures are logged, never returned.
func (s *System) RecordError(errText, command string) {
	if !s.running || !s.cfg.Collector.CollectErrors {
		return
	}
	if command != "" && s.filter.ShouldSkipCommand(command) {
		return
	}
	ev := event.ErrorEvent{
		Error:     s.filter.FilterOutput(errText),
		Timestamp: s.now(),
	}
	if command != "" {
		ev.Command = s.filter.FilterCommand(command)
	}
	if err := s.collector.RecordError(ev); err != nil {
		s.logger.Warn("recording error", zap.Error(err))
	}
}

// SuggestNext ranks likely next commands for ctx.
func (s *System) SuggestNext(ctx model.Context) []model.Suggestion {
	if !s.running {
		return nil
	}
	return s.model.SuggestNextCommand(ctx)
}

// ExplainError describes a learned fix for errText.
func (s *System) ExplainError(errText string) (string, bool) {
	if !s.running {
		return "", false
	}
	return s.model.ExplainError(errText)
}

// PredictIntent maps partial natural language or a command prefix to
// commands: intent matches first, then frequency-ranked completions.
func (s *System) PredictIntent(partial string) []string {
	if !s.running || strings.TrimSpace(partial) == "" {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	add := func(cmd string) {
		if cmd != "" && !seen[cmd] && len(out) < maxPredictions {
			seen[cmd] = true
			out = append(out, cmd)
		}
	}
	for _, match := range s.model.FindIntentMatches(partial, intentThreshold) {
		add(match.Command)
	}
	for _, cmd := range s.model.CompleteCommand(partial, maxPredictions) {
		add(cmd)
	}
	return out
}

// LearnNGram teaches the n-gram model directly that next followed prev.
func (s *System) LearnNGram(prev, next string) {
	if !s.running {
		return
	}
	s.model.UpdateNGram(s.filter.FilterCommand(prev), s.filter.FilterCommand(next), s.cfg.Trainer.LearningRate)
}

// LearnErrorFix teaches directly that fix resolved failed's error.
func (s *System) LearnErrorFix(failed, errText, fix string) {
	if !s.running {
		return
	}
	if s.filter.ShouldSkipCommand(failed) || s.filter.ShouldSkipCommand(fix) {
		return
	}
	s.model.LearnErrorFix(s.filter.FilterCommand(failed), s.filter.FilterOutput(errText), s.filter.FilterCommand(fix))
}

// Train runs the trainer over buffered events not yet trained on, whatever
// their timestamps, saves the model and records the run.
func (s *System) Train() (trainer.Stats, error) {
	if !s.running {
		return trainer.Stats{}, ErrNotRunning
	}
	fresh := s.collector.Untrained()
	stats, err := s.train(fresh)
	if err == nil && stats.EventsProcessed > 0 {
		s.collector.MarkTrained(fresh)
	}
	return stats, err
}

// ImportEvents records a batch of historical events and trains on exactly
// that batch, regardless of when the model was last trained. Only command
// and error events are accepted.
func (s *System) ImportEvents(events []event.Event) (trainer.Stats, error) {
	if !s.running {
		return trainer.Stats{}, ErrNotRunning
	}
	backlog := make(map[event.Event]bool)
	for _, e := range s.collector.Untrained() {
		backlog[e] = true
	}
	var admitted []event.Event
	for _, e := range events {
		switch ev := e.(type) {
		case *event.CommandEvent:
			filtered, ok := s.admitCommand(*ev)
			if !ok {
				continue
			}
			if err := s.collector.RecordCommand(*filtered); err != nil {
				s.logger.Warn("recording imported command", zap.Error(err))
			}
			admitted = append(admitted, filtered)
		case *event.ErrorEvent, *event.InteractionEvent:
			s.logger.Debug("import ignores non-command event", zap.String("type", string(e.Type())))
		}
	}
	if err := s.collector.Flush(); err != nil {
		return trainer.Stats{}, err
	}
	stats, err := s.train(admitted)
	if err == nil && stats.EventsProcessed > 0 {
		// The buffered copies of the batch are trained; the backlog is not.
		var imported []event.Event
		for _, e := range s.collector.Untrained() {
			if !backlog[e] {
				imported = append(imported, e)
			}
		}
		s.collector.MarkTrained(imported)
	}
	return stats, err
}

func (s *System) train(events []event.Event) (trainer.Stats, error) {
	stats, err := s.trainer.Train(s.model, events)
	if err != nil {
		return stats, err
	}
	if stats.EventsProcessed == 0 {
		return stats, nil
	}
	if err := s.model.Save(modelPath(s.cfg.DataDir)); err != nil {
		return stats, fmt.Errorf("saving model: %w", err)
	}
	if s.recorder != nil {
		run := Run{
			TrainedAt:    s.model.LastTrained,
			ModelVersion: s.model.Version,
			Stats:        stats,
			Sizes:        s.model.Sizes(),
		}
		if err := s.recorder.RecordRun(run); err != nil {
			s.logger.Warn("recording training run", zap.Error(err))
		}
	}
	return stats, nil
}

// ExportData writes every collected event to path as JSONL.
func (s *System) ExportData(path string) error {
	return s.collector.Export(path)
}

// DeleteData wipes the journals and the model file and resets the model.
func (s *System) DeleteData() error {
	var errs []error
	if err := s.collector.Clear(); err != nil {
		errs = append(errs, err)
	}
	if err := os.Remove(modelPath(s.cfg.DataDir)); err != nil && !os.IsNotExist(err) {
		errs = append(errs, err)
	}
	s.model = model.New()
	return errors.Join(errs...)
}

// UpdateConfig applies a new configuration. An invalid privacy
// configuration is rejected without changing anything. The data directory
// cannot change on a live System; disabling learning stops it.
func (s *System) UpdateConfig(cfg Config) error {
	if err := s.filter.Reconfigure(cfg.Privacy); err != nil {
		return fmt.Errorf("privacy config: %w", err)
	}
	cfg.DataDir = s.cfg.DataDir
	s.cfg = cfg
	s.collector.SetConfig(cfg.Collector)
	s.trainer.SetConfig(cfg.Trainer)

	if !cfg.Enabled && s.running {
		return s.Stop()
	}
	return nil
}

// RecentCommands returns up to n of the newest buffered commands, oldest
// first.
func (s *System) RecentCommands(n int) []string {
	var out []string
	for _, c := range event.Commands(s.collector.RecentEvents()) {
		out = append(out, c.Command)
	}
	if n >= 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

// TopCommands returns the most frequent learned commands.
func (s *System) TopCommands(n int) []model.CommandCount {
	return s.model.TopCommands(n)
}
