package collector

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/blackwell-systems/termlearn/internal/event"
)

const (
	journalPrefix     = "events-"
	journalSuffix     = ".jsonl"
	journalDateLayout = "2006-01-02"
)

// JournalName returns the journal file name for the UTC day of t.
func JournalName(t time.Time) string {
	return journalPrefix + t.UTC().Format(journalDateLayout) + journalSuffix
}

// ParseJournalDate extracts the day encoded in a journal file name.
func ParseJournalDate(name string) (time.Time, bool) {
	if !strings.HasPrefix(name, journalPrefix) || !strings.HasSuffix(name, journalSuffix) {
		return time.Time{}, false
	}
	day := strings.TrimSuffix(strings.TrimPrefix(name, journalPrefix), journalSuffix)
	t, err := time.Parse(journalDateLayout, day)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// journalFiles lists journal files in dir, oldest name first.
func journalFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := ParseJournalDate(e.Name()); ok {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// maxJournalLine bounds a single journal line. Longer lines are skipped on
// read.
const maxJournalLine = 1024 * 1024

// encodeEvents renders events as JSONL.
func encodeEvents(events []event.Event) ([]byte, error) {
	var buf bytes.Buffer
	for _, e := range events {
		line, err := event.Marshal(e)
		if err != nil {
			return nil, err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// appendJournal appends events to path as JSONL. Either every line lands or
// the file is left as it was.
func appendJournal(path string, events []event.Event) error {
	data, err := encodeEvents(events)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	if err := appendAll(f, data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// appendFile is the part of *os.File appendAll needs.
type appendFile interface {
	io.Writer
	Stat() (os.FileInfo, error)
	Truncate(size int64) error
}

// appendAll writes data in one call and truncates a partial write away.
func appendAll(f appendFile, data []byte) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		if terr := f.Truncate(info.Size()); terr != nil {
			return errors.Join(err, fmt.Errorf("rolling back partial write: %w", terr))
		}
		return err
	}
	return nil
}

// readJournal parses one JSONL file. Malformed and oversize lines are
// skipped.
func readJournal(path string) ([]event.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var events []event.Event
	r := bufio.NewReaderSize(f, 64*1024)
	var buf []byte
	for {
		line, tooLong, err := readLine(r, buf[:0])
		buf = line
		if !tooLong {
			if line = bytes.TrimSpace(line); len(line) > 0 {
				if ev, uerr := event.Unmarshal(line); uerr == nil {
					events = append(events, ev)
				}
			}
		}
		if errors.Is(err, io.EOF) {
			return events, nil
		}
		if err != nil {
			return events, err
		}
	}
}

// readLine reads up to and including the next newline into buf. A line
// longer than maxJournalLine is consumed but not returned.
func readLine(r *bufio.Reader, buf []byte) (line []byte, tooLong bool, err error) {
	for {
		chunk, err := r.ReadSlice('\n')
		if !tooLong {
			if len(buf)+len(chunk) > maxJournalLine {
				tooLong = true
				buf = buf[:0]
			} else {
				buf = append(buf, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return buf, tooLong, err
	}
}

// sortByTime orders events by timestamp, keeping file order for ties.
func sortByTime(events []event.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Time().Before(events[j].Time())
	})
}
