// Package shellhist parses bash and zsh history files.
package shellhist

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/blackwell-systems/termlearn/internal/event"
)

// Format identifies a history file dialect.
type Format string

const (
	FormatBash Format = "bash"
	FormatZsh  Format = "zsh"
)

// Entry is one history command. Timestamp is zero when the file does not
// record times.
type Entry struct {
	Command   string
	Timestamp time.Time
	Duration  time.Duration
}

// zshMeta marks a metafied byte in zsh history files.
const zshMeta = 0x83

// maxLine bounds a single history line.
const maxLine = 1 << 20

// ParseFormat parses a format name.
func ParseFormat(name string) (Format, error) {
	switch Format(strings.ToLower(name)) {
	case FormatBash:
		return FormatBash, nil
	case FormatZsh:
		return FormatZsh, nil
	}
	return "", fmt.Errorf("unknown history format %q (want bash or zsh)", name)
}

// DetectFormat guesses the format from the file name, then from the first
// non-blank line.
func DetectFormat(path string, head []byte) Format {
	name := filepath.Base(path)
	switch {
	case strings.Contains(name, "zsh"):
		return FormatZsh
	case strings.Contains(name, "bash"):
		return FormatBash
	}
	for _, line := range bytes.Split(head, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if _, _, _, ok := parseZshExtended(string(line)); ok {
			return FormatZsh
		}
		break
	}
	return FormatBash
}

// ParseFile reads a history file. An empty format is detected.
func ParseFile(path string, format Format) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if format == "" {
		head := make([]byte, 512)
		n, _ := io.ReadFull(f, head)
		format = DetectFormat(path, head[:n])
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
	}
	entries, err := Parse(f, format)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return entries, nil
}

// Parse reads history in the given format.
func Parse(r io.Reader, format Format) ([]Entry, error) {
	switch format {
	case FormatZsh:
		return parseZsh(r)
	case FormatBash:
		return parseBash(r)
	}
	return nil, fmt.Errorf("unknown history format %q", format)
}

func newScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLine)
	return sc
}

// parseBash reads plain lines. A "#<epoch>" line written by HISTTIMEFORMAT
// stamps the command after it.
func parseBash(r io.Reader) ([]Entry, error) {
	var entries []Entry
	var stamp time.Time
	sc := newScanner(r)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if ts, ok := parseBashStamp(line); ok {
			stamp = ts
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		entries = append(entries, Entry{Command: line, Timestamp: stamp})
		stamp = time.Time{}
	}
	return entries, sc.Err()
}

func parseBashStamp(line string) (time.Time, bool) {
	if len(line) < 2 || line[0] != '#' {
		return time.Time{}, false
	}
	secs, err := strconv.ParseInt(line[1:], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(secs, 0), true
}

// parseZsh reads extended history (": <start>:<elapsed>;<command>") or
// plain lines. A trailing backslash continues a command on the next line.
func parseZsh(r io.Reader) ([]Entry, error) {
	var entries []Entry
	var cur *Entry
	var parts []string

	finish := func() {
		if cur != nil {
			cur.Command = strings.Join(parts, "\n")
			if strings.TrimSpace(cur.Command) != "" {
				entries = append(entries, *cur)
			}
		}
		cur, parts = nil, nil
	}

	sc := newScanner(r)
	for sc.Scan() {
		line := strings.TrimRight(unmetafy(sc.Bytes()), "\r")

		if cur == nil {
			cur = &Entry{}
			if ts, dur, cmd, ok := parseZshExtended(line); ok {
				cur.Timestamp, cur.Duration = ts, dur
				line = cmd
			}
		}

		if strings.HasSuffix(line, "\\") {
			parts = append(parts, strings.TrimSuffix(line, "\\"))
			continue
		}
		parts = append(parts, line)
		finish()
	}
	finish()
	return entries, sc.Err()
}

func parseZshExtended(line string) (time.Time, time.Duration, string, bool) {
	if !strings.HasPrefix(line, ": ") {
		return time.Time{}, 0, "", false
	}
	meta, cmd, ok := strings.Cut(line[2:], ";")
	if !ok {
		return time.Time{}, 0, "", false
	}
	start, elapsed, ok := strings.Cut(meta, ":")
	if !ok {
		return time.Time{}, 0, "", false
	}
	secs, err := strconv.ParseInt(strings.TrimSpace(start), 10, 64)
	if err != nil {
		return time.Time{}, 0, "", false
	}
	dur, err := strconv.ParseInt(strings.TrimSpace(elapsed), 10, 64)
	if err != nil {
		return time.Time{}, 0, "", false
	}
	return time.Unix(secs, 0), time.Duration(dur) * time.Second, cmd, true
}

// unmetafy reverses zsh's encoding of special bytes: 0x83 followed by the
// byte XOR 0x20.
func unmetafy(b []byte) string {
	if bytes.IndexByte(b, zshMeta) < 0 {
		return string(b)
	}
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		if b[i] == zshMeta && i+1 < len(b) {
			i++
			out = append(out, b[i]^0x20)
			continue
		}
		out = append(out, b[i])
	}
	return string(out)
}

// DefaultFiles returns the history files that exist for the current user:
// $HISTFILE first, then ~/.zsh_history and ~/.bash_history.
func DefaultFiles() []string {
	var candidates []string
	if hf := os.Getenv("HISTFILE"); hf != "" {
		candidates = append(candidates, hf)
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".zsh_history"),
			filepath.Join(home, ".bash_history"),
		)
	}

	seen := make(map[string]bool)
	var out []string
	for _, path := range candidates {
		if seen[path] {
			continue
		}
		seen[path] = true
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			out = append(out, path)
		}
	}
	return out
}

// Events converts entries to command events with exit code 0. Entries
// without a timestamp are spaced one second apart ending at end, so their
// order survives and consecutive commands stay adjacent.
func Events(entries []Entry, end time.Time) []event.Event {
	events := make([]event.Event, 0, len(entries))
	for i, e := range entries {
		ts := e.Timestamp
		if ts.IsZero() {
			ts = end.Add(-time.Duration(len(entries)-1-i) * time.Second)
		}
		events = append(events, &event.CommandEvent{
			Command:    e.Command,
			DurationMs: e.Duration.Milliseconds(),
			Timestamp:  ts,
		})
	}
	return events
}
