// Package watcher tails a shell history file and hands newly appended
// commands to a callback.
package watcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/blackwell-systems/termlearn/internal/shellhist"
)

// Watcher polls a history file at a regular interval. It remembers the byte
// offset it has consumed, so each check only parses what was appended.
// A Watcher is driven by one goroutine.
type Watcher struct {
	path      string
	format    shellhist.Format
	interval  time.Duration
	fromStart bool

	offset  int64
	partial []byte
	primed  bool

	onEntries func([]shellhist.Entry)
	alertFn   func(Alert)
	alerts    dedup
	now       func() time.Time
	logger    *zap.Logger
}

// Option customizes a Watcher.
type Option func(*Watcher)

// WithAlertFunc receives deduplicated alerts such as a missing or truncated
// history file.
func WithAlertFunc(fn func(Alert)) Option {
	return func(w *Watcher) { w.alertFn = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(w *Watcher) { w.logger = logger }
}

// FromStart makes the first check consume the whole file instead of only
// what is appended after the watcher starts.
func FromStart() Option {
	return func(w *Watcher) { w.fromStart = true }
}

// WithClock sets the clock used to stamp alerts.
func WithClock(now func() time.Time) Option {
	return func(w *Watcher) { w.now = now }
}

// New creates a Watcher for the history file at path. An empty format is
// detected from the file.
func New(path string, format shellhist.Format, interval time.Duration, onEntries func([]shellhist.Entry), opts ...Option) *Watcher {
	w := &Watcher{
		path:      path,
		format:    format,
		interval:  interval,
		onEntries: onEntries,
		now:       time.Now,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.format == "" {
		w.format = shellhist.DetectFormat(path, nil)
	}
	return w
}

// Offset returns the number of bytes consumed so far.
func (w *Watcher) Offset() int64 { return w.offset }

// Run checks once immediately, then at every interval. It blocks until ctx
// is cancelled and returns ctx.Err().
func (w *Watcher) Run(ctx context.Context) error {
	w.tick()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.tick()
		}
	}
}

func (w *Watcher) tick() {
	entries, alerts := w.Check()
	if len(entries) > 0 && w.onEntries != nil {
		w.onEntries(entries)
	}
	for _, a := range w.alerts.filter(alerts) {
		if w.alertFn != nil {
			w.alertFn(a)
		}
	}
}

// Check reads whatever was appended since the last check and returns the
// complete entries in it. An incomplete trailing line is held back until it
// is finished. A file that shrank is treated as rotated and re-read from
// the start.
func (w *Watcher) Check() ([]shellhist.Entry, []Alert) {
	info, err := os.Stat(w.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, []Alert{w.alert(LevelWarning, "History file missing", w.path)}
		}
		return nil, []Alert{w.alert(LevelWarning, "History file unreadable", err.Error())}
	}
	size := info.Size()

	if !w.primed {
		w.primed = true
		if !w.fromStart {
			w.offset = size
			return nil, nil
		}
	}

	var alerts []Alert
	if size < w.offset {
		w.logger.Info("history file shrank, rereading", zap.String("path", w.path),
			zap.Int64("offset", w.offset), zap.Int64("size", size))
		alerts = append(alerts, w.alert(LevelInfo, "History file truncated", w.path))
		w.offset = 0
		w.partial = nil
	}
	if size == w.offset {
		return nil, alerts
	}

	chunk, err := w.readFrom(w.offset, size)
	if err != nil {
		return nil, append(alerts, w.alert(LevelWarning, "History file unreadable", err.Error()))
	}
	w.offset += int64(len(chunk))

	data := append(w.partial, chunk...)
	complete, rest := splitComplete(data, w.format)
	w.partial = append([]byte(nil), rest...)
	if len(complete) == 0 {
		return nil, alerts
	}

	entries, err := shellhist.Parse(bytes.NewReader(complete), w.format)
	if err != nil {
		return nil, append(alerts, w.alert(LevelWarning, "History parse failed", err.Error()))
	}
	w.logger.Debug("read history entries", zap.Int("count", len(entries)))
	return entries, alerts
}

func (w *Watcher) readFrom(offset, size int64) ([]byte, error) {
	f, err := os.Open(w.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, size-offset)
	n, err := f.ReadAt(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("reading %s: %w", w.path, err)
	}
	return buf[:n], nil
}

func (w *Watcher) alert(level, title, msg string) Alert {
	return Alert{Level: level, Title: title, Message: msg, Time: w.now()}
}

// splitComplete splits data after its last full line. For zsh, a line
// ending in a backslash continues onto the next, so it stays with the rest.
func splitComplete(data []byte, format shellhist.Format) (complete, rest []byte) {
	end := bytes.LastIndexByte(data, '\n')
	if end < 0 {
		return nil, data
	}
	complete, rest = data[:end+1], data[end+1:]

	if format == shellhist.FormatZsh {
		for len(complete) > 0 {
			body := bytes.TrimRight(complete[:len(complete)-1], "\r")
			if !bytes.HasSuffix(body, []byte("\\")) {
				break
			}
			prev := bytes.LastIndexByte(complete[:len(complete)-1], '\n')
			complete, rest = complete[:prev+1], data[prev+1:]
		}
	}
	return complete, rest
}
