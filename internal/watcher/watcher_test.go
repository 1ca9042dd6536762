package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/blackwell-systems/termlearn/internal/shellhist"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func appendFile(t *testing.T, path, text string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString(text)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func commands(entries []shellhist.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Command)
	}
	return out
}

func TestCheck_SkipsExistingHistoryByDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".bash_history")
	appendFile(t, path, "old one\nold two\n")

	w := New(path, shellhist.FormatBash, time.Minute, nil)
	entries, alerts := w.Check()
	assert.Empty(t, entries)
	assert.Empty(t, alerts)
	assert.Equal(t, int64(len("old one\nold two\n")), w.Offset())

	appendFile(t, path, "ls\ngit status\n")
	entries, _ = w.Check()
	assert.Equal(t, []string{"ls", "git status"}, commands(entries))

	entries, _ = w.Check()
	assert.Empty(t, entries, "nothing new")
}

func TestCheck_FromStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history")
	appendFile(t, path, "make\n")

	w := New(path, shellhist.FormatBash, time.Minute, nil, FromStart())
	entries, _ := w.Check()
	assert.Equal(t, []string{"make"}, commands(entries))
}

func TestCheck_HoldsPartialLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history")
	appendFile(t, path, "")
	w := New(path, shellhist.FormatBash, time.Minute, nil)
	w.Check()

	appendFile(t, path, "docker p")
	entries, _ := w.Check()
	assert.Empty(t, entries)

	appendFile(t, path, "s -a\n")
	entries, _ = w.Check()
	assert.Equal(t, []string{"docker ps -a"}, commands(entries))
}

func TestCheck_ZshContinuation(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".zsh_history")
	appendFile(t, path, "")
	w := New(path, "", time.Minute, nil)
	w.Check()

	appendFile(t, path, ": 1700000000:0;kubectl apply \\\n")
	entries, _ := w.Check()
	assert.Empty(t, entries, "continued command is not complete yet")

	appendFile(t, path, "  -f deploy.yaml\n: 1700000009:1;kubectl get pods\n")
	entries, _ = w.Check()
	require.Len(t, entries, 2)
	assert.Equal(t, "kubectl apply \n  -f deploy.yaml", entries[0].Command)
	assert.Equal(t, int64(1700000000), entries[0].Timestamp.Unix())
	assert.Equal(t, "kubectl get pods", entries[1].Command)
}

func TestCheck_TruncationRereads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history")
	appendFile(t, path, "a long first command\nanother one\n")
	w := New(path, shellhist.FormatBash, time.Minute, nil)
	w.Check()

	require.NoError(t, os.WriteFile(path, []byte("pwd\n"), 0o600))
	entries, alerts := w.Check()
	assert.Equal(t, []string{"pwd"}, commands(entries))
	require.Len(t, alerts, 1)
	assert.Equal(t, "History file truncated", alerts[0].Title)
}

func TestCheck_MissingFile(t *testing.T) {
	now := time.Date(2026, 5, 20, 9, 0, 0, 0, time.UTC)
	w := New(filepath.Join(t.TempDir(), "nope"), shellhist.FormatBash, time.Minute, nil,
		WithClock(func() time.Time { return now }))

	entries, alerts := w.Check()
	assert.Empty(t, entries)
	require.Len(t, alerts, 1)
	assert.Equal(t, LevelWarning, alerts[0].Level)
	assert.True(t, alerts[0].Time.Equal(now))
}

func TestSplitComplete(t *testing.T) {
	tests := []struct {
		name           string
		data           string
		format         shellhist.Format
		complete, rest string
	}{
		{"no newline", "ls", shellhist.FormatBash, "", "ls"},
		{"full lines", "ls\npwd\n", shellhist.FormatBash, "ls\npwd\n", ""},
		{"partial tail", "ls\npw", shellhist.FormatBash, "ls\n", "pw"},
		{"bash ignores backslash", "echo \\\n", shellhist.FormatBash, "echo \\\n", ""},
		{"zsh continuation", "ls\necho \\\n", shellhist.FormatZsh, "ls\n", "echo \\\n"},
		{"zsh all continued", "a \\\nb \\\n", shellhist.FormatZsh, "", "a \\\nb \\\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			complete, rest := splitComplete([]byte(tc.data), tc.format)
			assert.Equal(t, tc.complete, string(complete))
			assert.Equal(t, tc.rest, string(rest))
		})
	}
}

func TestRun_DeliversAndStops(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history")
	appendFile(t, path, "")

	var mu sync.Mutex
	var got []string
	delivered := make(chan struct{}, 1)
	w := New(path, shellhist.FormatBash, 10*time.Millisecond, func(entries []shellhist.Entry) {
		mu.Lock()
		got = append(got, commands(entries)...)
		mu.Unlock()
		select {
		case delivered <- struct{}{}:
		default:
		}
	}, FromStart())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	appendFile(t, path, "make test\n")

	select {
	case <-delivered:
	case <-time.After(5 * time.Second):
		t.Fatal("entries were not delivered")
	}
	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"make test"}, got)
}
