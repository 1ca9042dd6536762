package model

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// populated builds a model touching every table.
func populated(t *testing.T) *Model {
	t.Helper()
	m := New()
	for _, cmd := range []string{"ls -la", "git status", "ls -la", "go test ./..."} {
		m.UpdateCommandFrequency(cmd, 0.1)
	}
	m.LearnSequences([]string{"git add .", "git commit -m wip", "git push"}, 3)
	m.LearnErrorPattern("cat /etc/shadow", "cat: /etc/shadow: Permission denied", "")
	m.LearnProjectCommands("/home/alice/code/termlearn", []string{"go build ./...", "go test ./...", "alias gt='go test ./...'"})
	m.LearnTimePattern(9, "git pull")
	m.UpdateNGram("git add .", "git commit -m wip", 0.1)
	m.LearnDirectoryPattern("/home/alice/code/termlearn/internal", "go vet ./...")
	m.AddIntentMapping("list all files including hidden", "ls -la")
	m.LearnErrorFix("gti status", "gti: command not found", "git status")
	m.IncrementVersion(time.Date(2026, 5, 20, 10, 0, 0, 0, time.UTC))
	return m
}

func TestNew_IsEmpty(t *testing.T) {
	m := New()
	assert.Zero(t, m.Version)
	assert.True(t, m.LastTrained.IsZero())
	assert.Empty(t, m.CommandFrequency)
	assert.NotNil(t, m.CommonSequences)
	assert.Equal(t, Sizes{}, m.Sizes())
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	m := populated(t)
	path := filepath.Join(t.TempDir(), "nested", "dir", FileName)

	require.NoError(t, m.Save(path))

	loaded := LoadOrCreate(path, zap.NewNop())
	assert.Equal(t, m, loaded)
	assert.Equal(t, uint64(1), loaded.Version)
	assert.Equal(t, "go", loaded.ProjectContexts["code/termlearn"].ProjectType)
}

func TestSave_WritesIndentedJSONAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	require.NoError(t, New().Save(path))
	require.NoError(t, populated(t).Save(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"version\": 1")
	assert.True(t, json.Valid(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestLoadOrCreate_MissingFileIsSilent(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	m := LoadOrCreate(filepath.Join(t.TempDir(), FileName), zap.New(core))
	assert.Equal(t, New(), m)
	assert.Zero(t, logs.Len())
}

func TestLoadOrCreate_CorruptFileFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	core, logs := observer.New(zapcore.WarnLevel)
	m := LoadOrCreate(path, zap.New(core))
	assert.Equal(t, New(), m)
	require.Equal(t, 1, logs.Len())
	assert.Contains(t, logs.All()[0].Message, "starting fresh")
}

func TestLoad_NullCollectionsAreInitialized(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	doc := `{"version":3,"command_frequency":null,"project_contexts":{"a/b":{"commands":null}}}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), m.Version)
	assert.NotNil(t, m.CommandFrequency)
	assert.NotNil(t, m.ProjectContexts["a/b"].Commands)
	assert.NotNil(t, m.ProjectContexts["a/b"].Aliases)

	// Usable without panicking on nil maps.
	m.UpdateCommandFrequency("ls", 0.1)
	m.LearnProjectCommands("/home/x/a/b", []string{"make"})
}

func TestIncrementVersion(t *testing.T) {
	m := New()
	local := time.Date(2026, 5, 20, 12, 0, 0, 0, time.FixedZone("X", 3600))
	m.IncrementVersion(local)
	m.IncrementVersion(local)
	assert.Equal(t, uint64(2), m.Version)
	assert.Equal(t, time.UTC, m.LastTrained.Location())
	assert.True(t, m.LastTrained.Equal(local))
}

func TestSizes(t *testing.T) {
	s := populated(t).Sizes()
	assert.Equal(t, 3, s.Commands)
	assert.Equal(t, 3, s.Sequences)
	assert.Equal(t, 1, s.ErrorPatterns)
	assert.Equal(t, 1, s.Projects)
	assert.Equal(t, 1, s.TimeSlots)
	assert.Equal(t, 1, s.NGrams)
	assert.Equal(t, 1, s.Directories)
	assert.Equal(t, 1, s.Intents)
	assert.Equal(t, 1, s.ErrorFixes)
}
