// Package collector buffers filtered learning events in memory and journals
// them to append-only, date-partitioned JSONL files.
//
// A Collector is not safe for concurrent use; the owner serializes access.
package collector

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/blackwell-systems/termlearn/internal/event"
)

// Config gates which events are collected and sizes the buffer.
type Config struct {
	CollectCommands       bool `mapstructure:"collect_commands" json:"collect_commands"`
	CollectOutputs        bool `mapstructure:"collect_outputs" json:"collect_outputs"`
	CollectAIInteractions bool `mapstructure:"collect_ai_interactions" json:"collect_ai_interactions"`
	CollectErrors         bool `mapstructure:"collect_errors" json:"collect_errors"`
	MaxMemoryEvents       int  `mapstructure:"max_memory_events" json:"max_memory_events"`
	FlushThreshold        int  `mapstructure:"flush_threshold" json:"flush_threshold"`
}

// DefaultConfig collects everything except command output.
func DefaultConfig() Config {
	return Config{
		CollectCommands:       true,
		CollectOutputs:        false,
		CollectAIInteractions: true,
		CollectErrors:         true,
		MaxMemoryEvents:       1000,
		FlushThreshold:        50,
	}
}

// FlushError reports a failed flush. The Pending events stay buffered and are
// written by the next successful flush.
type FlushError struct {
	Path    string
	Pending int
	Err     error
}

func (e *FlushError) Error() string {
	return fmt.Sprintf("flushing %d events to %s: %v", e.Pending, e.Path, e.Err)
}

func (e *FlushError) Unwrap() error { return e.Err }

// Collector holds the most recent events and the journal directory.
type Collector struct {
	cfg     Config
	dir     string
	buffer  []event.Event
	pending int
	trained map[event.Event]bool
	now     func() time.Time
	logger  *zap.Logger
}

// Option customizes a Collector.
type Option func(*Collector)

// WithClock sets the clock used to name journal files.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) { c.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Collector) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Collector journaling into dir. The directory is created on
// first flush if it does not exist.
func New(dir string, cfg Config, opts ...Option) *Collector {
	c := &Collector{
		cfg:    cfg,
		dir:    dir,
		now:     time.Now,
		logger:  zap.NewNop(),
		trained: make(map[event.Event]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the active configuration.
func (c *Collector) Config() Config {
	return c.cfg
}

// SetConfig replaces the configuration. Shrinking MaxMemoryEvents evicts the
// oldest buffered events immediately.
func (c *Collector) SetConfig(cfg Config) {
	c.cfg = cfg
	c.evict()
}

// Dir returns the journal directory.
func (c *Collector) Dir() string {
	return c.dir
}

// RecordCommand buffers a command event. Output is dropped unless
// CollectOutputs is enabled.
func (c *Collector) RecordCommand(ev event.CommandEvent) error {
	if !c.cfg.CollectCommands {
		return nil
	}
	if !c.cfg.CollectOutputs {
		ev.Output = ""
	}
	return c.record(&ev)
}

// RecordInteraction buffers an assistant interaction.
func (c *Collector) RecordInteraction(ev event.InteractionEvent) error {
	if !c.cfg.CollectAIInteractions {
		return nil
	}
	return c.record(&ev)
}

// RecordError buffers an error event.
func (c *Collector) RecordError(ev event.ErrorEvent) error {
	if !c.cfg.CollectErrors {
		return nil
	}
	return c.record(&ev)
}

func (c *Collector) record(ev event.Event) error {
	c.buffer = append(c.buffer, ev)
	c.pending++
	c.evict()

	if c.cfg.FlushThreshold > 0 && c.pending >= c.cfg.FlushThreshold {
		return c.Flush()
	}
	return nil
}

func (c *Collector) evict() {
	limit := c.cfg.MaxMemoryEvents
	if limit <= 0 || len(c.buffer) <= limit {
		return
	}
	drop := len(c.buffer) - limit
	if c.pending > limit {
		c.logger.Warn("unflushed events evicted from buffer",
			zap.Int("evicted", c.pending-limit))
		c.pending = limit
	}
	for _, ev := range c.buffer[:drop] {
		delete(c.trained, ev)
	}
	// Copy so the evicted prefix can be collected.
	kept := make([]event.Event, limit, limit+1)
	copy(kept, c.buffer[drop:])
	c.buffer = kept
}

// Flush appends every not-yet-journaled buffered event to today's journal
// file. The buffer itself is kept as the recent-events window.
func (c *Collector) Flush() error {
	if c.pending == 0 {
		return nil
	}
	n := c.pending
	if n > len(c.buffer) {
		n = len(c.buffer)
	}
	path := filepath.Join(c.dir, JournalName(c.now()))

	if err := os.MkdirAll(c.dir, 0o700); err != nil {
		return &FlushError{Path: path, Pending: c.pending, Err: err}
	}
	if err := appendJournal(path, c.buffer[len(c.buffer)-n:]); err != nil {
		return &FlushError{Path: path, Pending: c.pending, Err: err}
	}

	c.logger.Debug("flushed events", zap.Int("count", n), zap.String("path", path))
	c.pending = 0
	return nil
}

// Pending returns the number of buffered events not yet journaled.
func (c *Collector) Pending() int {
	return c.pending
}

// RecentEvents returns a copy of the buffered events, oldest first.
func (c *Collector) RecentEvents() []event.Event {
	out := make([]event.Event, len(c.buffer))
	copy(out, c.buffer)
	return out
}

// Untrained returns the buffered events not yet marked trained, oldest
// first.
func (c *Collector) Untrained() []event.Event {
	var out []event.Event
	for _, ev := range c.buffer {
		if !c.trained[ev] {
			out = append(out, ev)
		}
	}
	return out
}

// MarkTrained records that events have been trained on. Events no longer
// buffered are ignored.
func (c *Collector) MarkTrained(events []event.Event) {
	buffered := make(map[event.Event]bool, len(c.buffer))
	for _, ev := range c.buffer {
		buffered[ev] = true
	}
	for _, ev := range events {
		if buffered[ev] {
			c.trained[ev] = true
		}
	}
}

// Warm fills the buffer with the newest journaled events so a fresh process
// can serve reads and training without re-journaling them. Events already
// buffered are kept and stay newest. Warmed events stamped at or before
// trainedThrough count as trained.
func (c *Collector) Warm(trainedThrough time.Time) error {
	loaded, err := c.LoadEvents()
	if err != nil {
		return err
	}
	limit := c.cfg.MaxMemoryEvents
	room := len(loaded)
	if limit > 0 {
		room = limit - len(c.buffer)
		if room <= 0 {
			return nil
		}
		if room > len(loaded) {
			room = len(loaded)
		}
	}
	warmed := make([]event.Event, 0, room+len(c.buffer))
	for _, ev := range loaded[len(loaded)-room:] {
		if !ev.Time().After(trainedThrough) {
			c.trained[ev] = true
		}
		warmed = append(warmed, ev)
	}
	warmed = append(warmed, c.buffer...)
	c.buffer = warmed
	return nil
}

// LoadEvents reads every journal file and returns the events sorted by
// timestamp. Malformed lines are skipped; an unreadable file is logged and
// skipped.
func (c *Collector) LoadEvents() ([]event.Event, error) {
	files, err := journalFiles(c.dir)
	if err != nil {
		return nil, err
	}

	var all []event.Event
	for _, path := range files {
		events, err := readJournal(path)
		if err != nil {
			c.logger.Warn("skipping unreadable journal", zap.String("path", path), zap.Error(err))
		}
		all = append(all, events...)
	}
	sortByTime(all)
	return all, nil
}

// CleanupBefore deletes journal files whose day precedes the day of cutoff.
func (c *Collector) CleanupBefore(cutoff time.Time) error {
	files, err := journalFiles(c.dir)
	if err != nil {
		return err
	}

	y, m, d := cutoff.UTC().Date()
	cutoffDay := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	var errs []error
	for _, path := range files {
		day, _ := ParseJournalDate(filepath.Base(path))
		if !day.Before(cutoffDay) {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
			continue
		}
		c.logger.Debug("removed expired journal", zap.String("path", path))
	}
	return errors.Join(errs...)
}

// Export writes every journaled and pending event to path as JSONL, sorted by
// timestamp.
func (c *Collector) Export(path string) error {
	events, err := c.LoadEvents()
	if err != nil {
		return err
	}
	if n := c.pending; n > 0 {
		if n > len(c.buffer) {
			n = len(c.buffer)
		}
		events = append(events, c.buffer[len(c.buffer)-n:]...)
		sortByTime(events)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := encodeEvents(events)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Clear deletes every journal file and empties the buffer.
func (c *Collector) Clear() error {
	files, err := journalFiles(c.dir)
	if err != nil {
		return err
	}
	var errs []error
	for _, path := range files {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	c.buffer = nil
	c.pending = 0
	c.trained = make(map[event.Event]bool)
	return errors.Join(errs...)
}

// DataSize returns the total size in bytes of the files in the journal
// directory.
func (c *Collector) DataSize() (int64, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	var total int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		total += info.Size()
	}
	return total, nil
}
