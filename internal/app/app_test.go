package app

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/termlearn/internal/learning"
	"github.com/blackwell-systems/termlearn/internal/store"
	"github.com/blackwell-systems/termlearn/internal/trainer"
)

type testEnv struct {
	home    string
	dataDir string
	dbPath  string
}

// setupEnv points configuration, data and the database at a temp home.
func setupEnv(t *testing.T) testEnv {
	t.Helper()
	home := t.TempDir()
	te := testEnv{
		home:    home,
		dataDir: filepath.Join(home, "data"),
		dbPath:  filepath.Join(home, "termlearn.db"),
	}
	t.Setenv("HOME", home)
	t.Setenv("HISTFILE", "")
	t.Setenv("TERMLEARN_LEARNING_DATA_DIR", te.dataDir)
	t.Setenv("TERMLEARN_STORE_PATH", te.dbPath)
	t.Setenv("TERMLEARN_OUTPUT_COLOR", "false")
	return te
}

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// runCLI executes the command tree with args and returns what it printed.
func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// writeBashHistory writes n timestamped commands, one minute apart.
func writeBashHistory(t *testing.T, path string, start time.Time, cmds ...string) {
	t.Helper()
	var b strings.Builder
	for i, c := range cmds {
		fmt.Fprintf(&b, "#%d\n%s\n", start.Add(time.Duration(i)*time.Minute).Unix(), c)
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))
}

func repeat(cmd string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = cmd
	}
	return out
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"record", "train", "suggest", "explain", "predict", "stats",
		"history", "import", "watch", "export", "delete", "mcp"}
	have := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		have[c.Name()] = true
	}
	for _, name := range want {
		assert.True(t, have[name], "subcommand %q not registered", name)
	}
}

func TestImport_TrainsAndRecordsRun(t *testing.T) {
	te := setupEnv(t)
	hist := filepath.Join(te.home, "history")
	start := time.Now().Add(-2 * time.Hour).Truncate(time.Minute)
	writeBashHistory(t, hist, start, append(repeat("make build", 12), repeat("go test ./...", 4)...)...)

	out, err := runCLI(t, "", "import", hist, "--format", "bash", "--json")
	require.NoError(t, err)

	var stats trainer.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 16, stats.EventsProcessed)

	db, err := store.Open(te.dbPath)
	require.NoError(t, err)
	defer db.Close()
	runs, err := db.RecentRuns(5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, uint64(1), runs[0].ModelVersion)
	metrics, err := db.RunMetrics(runs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 2.0, metrics["commands"])
}

func TestImport_UnknownFormat(t *testing.T) {
	setupEnv(t)
	_, err := runCLI(t, "", "import", "x", "--format", "fish")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown history format")
}

func TestImport_NoHistoryFiles(t *testing.T) {
	setupEnv(t)
	_, err := runCLI(t, "", "import")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no shell history file")
}

func TestStats_AfterImport(t *testing.T) {
	te := setupEnv(t)
	hist := filepath.Join(te.home, "history")
	writeBashHistory(t, hist, time.Now().Add(-time.Hour), append(repeat("ls", 10), repeat("git status", 5)...)...)
	_, err := runCLI(t, "", "import", hist)
	require.NoError(t, err)

	out, err := runCLI(t, "", "stats", "--json", "--top", "1")
	require.NoError(t, err)

	var report struct {
		learning.Stats
		TopCommands []struct {
			Command string `json:"command"`
		} `json:"top_commands"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.True(t, report.Enabled)
	assert.Equal(t, uint64(1), report.ModelVersion)
	assert.Equal(t, 15, report.CommandEvents)
	require.Len(t, report.TopCommands, 1)
	assert.Equal(t, "ls", report.TopCommands[0].Command)

	text, err := runCLI(t, "", "stats")
	require.NoError(t, err)
	assert.Contains(t, text, "Top commands")
	assert.Contains(t, text, "Model version")
}

func TestRecord_RedactsAndExports(t *testing.T) {
	te := setupEnv(t)

	_, err := runCLI(t, "", "record", "command", "--exit", "1", "--dir", "/tmp", "--", "mysql", "-u", "root", "-p", "secret123")
	require.NoError(t, err)
	_, err = runCLI(t, "", "record", "error", "--command", "make", "undefined reference to foo")
	require.NoError(t, err)
	_, err = runCLI(t, "", "record", "interaction", "--query", "list pods", "--response", "kubectl get pods", "--helpful")
	require.NoError(t, err)

	exported := filepath.Join(te.home, "export.jsonl")
	out, err := runCLI(t, "", "export", exported)
	require.NoError(t, err)
	assert.Contains(t, out, "Exported events")

	f, err := os.Open(exported)
	require.NoError(t, err)
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.NoError(t, sc.Err())
	require.Len(t, lines, 3)
	assert.NotContains(t, lines[0], "secret123")
	assert.Contains(t, lines[1], "undefined reference to foo")
	assert.Contains(t, lines[2], "kubectl get pods")
}

func TestRecord_InteractionNeedsQuery(t *testing.T) {
	setupEnv(t)
	_, err := runCLI(t, "", "record", "interaction", "--response", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--query")
}

func TestTrain_TooFewEvents(t *testing.T) {
	setupEnv(t)
	_, err := runCLI(t, "", "record", "command", "--", "ls")
	require.NoError(t, err)

	out, err := runCLI(t, "", "train")
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing new to learn")
}

func TestTrain_Disabled(t *testing.T) {
	setupEnv(t)
	t.Setenv("TERMLEARN_LEARNING_ENABLED", "false")
	_, err := runCLI(t, "", "train")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "learning is disabled")
}

func TestTrain_RecordsAfterRecording(t *testing.T) {
	te := setupEnv(t)
	for i := 0; i < 10; i++ {
		_, err := runCLI(t, "", "record", "command", "--dir", "/srv/app", "--", "docker", "ps")
		require.NoError(t, err)
	}

	out, err := runCLI(t, "", "train")
	require.NoError(t, err)
	assert.Contains(t, out, "Events processed")

	db, err := store.Open(te.dbPath)
	require.NoError(t, err)
	defer db.Close()
	runs, err := db.RecentRuns(5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 10, runs[0].EventsProcessed)
}

func TestHistory_ShowsDiffBetweenRuns(t *testing.T) {
	te := setupEnv(t)
	first := filepath.Join(te.home, "first")
	second := filepath.Join(te.home, "second")
	writeBashHistory(t, first, time.Now().Add(-3*time.Hour), repeat("ls", 12)...)
	writeBashHistory(t, second, time.Now().Add(-2*time.Hour), append(repeat("ls", 6), repeat("make", 6)...)...)

	_, err := runCLI(t, "", "import", first)
	require.NoError(t, err)
	_, err = runCLI(t, "", "import", second)
	require.NoError(t, err)

	out, err := runCLI(t, "", "history", "--json")
	require.NoError(t, err)
	var report historyReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Len(t, report.Runs, 2)
	assert.Equal(t, uint64(2), report.Runs[0].ModelVersion)
	require.NotNil(t, report.Diff)

	var commands *store.MetricDelta
	for i := range report.Diff.Deltas {
		if report.Diff.Deltas[i].Name == "commands" {
			commands = &report.Diff.Deltas[i]
		}
	}
	require.NotNil(t, commands)
	assert.Equal(t, 1.0, commands.Previous)
	assert.Equal(t, 2.0, commands.Current)
	assert.Equal(t, store.DirectionGrew, commands.Direction)

	text, err := runCLI(t, "", "history")
	require.NoError(t, err)
	assert.Contains(t, text, "Model change (v1 → v2)")
	assert.Contains(t, text, "▲ +1")
}

func TestHistory_Empty(t *testing.T) {
	setupEnv(t)
	out, err := runCLI(t, "", "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No training runs")
}

func TestSuggestAndPredict(t *testing.T) {
	te := setupEnv(t)
	hist := filepath.Join(te.home, "history")
	var cmds []string
	for i := 0; i < 6; i++ {
		cmds = append(cmds, "git add .", "git commit")
	}
	writeBashHistory(t, hist, time.Now().Add(-time.Hour), cmds...)
	_, err := runCLI(t, "", "import", hist)
	require.NoError(t, err)

	out, err := runCLI(t, "", "suggest", "--last", "git add .", "--json")
	require.NoError(t, err)
	var suggestions []struct {
		Command string `json:"command"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &suggestions))
	require.NotEmpty(t, suggestions)
	assert.Equal(t, "git commit", suggestions[0].Command)

	out, err = runCLI(t, "", "predict", "git", "c", "--json")
	require.NoError(t, err)
	var predictions []string
	require.NoError(t, json.Unmarshal([]byte(out), &predictions))
	assert.Contains(t, predictions, "git commit")
}

func TestSuggest_InvalidHour(t *testing.T) {
	setupEnv(t)
	_, err := runCLI(t, "", "suggest", "--hour", "24")
	require.Error(t, err)
}

func TestExplain_Unknown(t *testing.T) {
	setupEnv(t)
	out, err := runCLI(t, "", "explain", "segmentation", "fault")
	require.NoError(t, err)
	assert.Contains(t, out, "No fix learned")
}

func TestDelete_Confirmation(t *testing.T) {
	te := setupEnv(t)
	_, err := runCLI(t, "", "record", "command", "--", "ls")
	require.NoError(t, err)

	out, err := runCLI(t, "n\n", "delete")
	require.NoError(t, err)
	assert.Contains(t, out, "Aborted.")
	files, err := filepath.Glob(filepath.Join(te.dataDir, "*.jsonl"))
	require.NoError(t, err)
	assert.NotEmpty(t, files)

	out, err = runCLI(t, "", "delete", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted all learning data")
	files, err = filepath.Glob(filepath.Join(te.dataDir, "*.jsonl"))
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestConfirm(t *testing.T) {
	var out bytes.Buffer
	assert.True(t, confirm(strings.NewReader("Y\n"), &out, "sure?"))
	assert.True(t, confirm(strings.NewReader("yes"), &out, "sure?"))
	assert.False(t, confirm(strings.NewReader("\n"), &out, "sure?"))
	assert.False(t, confirm(strings.NewReader(""), &out, "sure?"))
	assert.Contains(t, out.String(), "sure? [y/N]")
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KiB", formatBytes(1536))
	assert.Equal(t, "2.0 MiB", formatBytes(2<<20))
}
