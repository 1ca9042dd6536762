package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/termlearn/internal/learning"
	"github.com/blackwell-systems/termlearn/internal/privacy"
)

func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	return home
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	home := isolateHome(t)

	cfg, err := Load("")
	require.NoError(t, err)

	want := learning.DefaultConfig()
	want.DataDir = filepath.Join(home, ".local/share/termlearn/learning")
	got := cfg.Learning
	assert.Empty(t, got.Privacy.CustomPatterns)
	got.Privacy.CustomPatterns = nil
	assert.Equal(t, want, got)

	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, DefaultOutput, cfg.Output)
	assert.Equal(t, 30*time.Second, cfg.Watch.Interval)
	assert.Equal(t, "@every 30m", cfg.Watch.TrainSchedule)
	assert.Equal(t, filepath.Join(home, ".config/termlearn/termlearn.db"), cfg.Store.Path)
	assert.Equal(t, cfg.Store.Path, DBPath())
}

func TestLoad_FileOverrides(t *testing.T) {
	home := isolateHome(t)
	path := writeConfig(t, `
learning:
  data_dir: ~/tl
  max_data_age_days: 30
  collector:
    collect_outputs: true
    flush_threshold: 10
  privacy:
    filter_emails: false
    custom_patterns:
      - "proj-[0-9]+"
  trainer:
    learning_rate: 0.2
    enable_intent_learning: false
log:
  level: debug
  json: true
watch:
  history_file: ~/.zsh_history
  interval: 45s
  train_schedule: "*/15 * * * *"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, "tl"), cfg.Learning.DataDir)
	assert.Equal(t, 30, cfg.Learning.MaxDataAgeDays)
	assert.True(t, cfg.Learning.Collector.CollectOutputs)
	assert.True(t, cfg.Learning.Collector.CollectCommands, "unset keys keep defaults")
	assert.Equal(t, 10, cfg.Learning.Collector.FlushThreshold)
	assert.False(t, cfg.Learning.Privacy.FilterEmails)
	assert.Equal(t, []string{"proj-[0-9]+"}, cfg.Learning.Privacy.CustomPatterns)
	assert.Equal(t, privacy.DefaultSensitiveDirs, cfg.Learning.Privacy.SensitiveDirs)
	assert.InDelta(t, 0.2, cfg.Learning.Trainer.LearningRate, 1e-12)
	assert.False(t, cfg.Learning.Trainer.EnableIntentLearning)
	assert.True(t, cfg.Learning.Trainer.EnableNGramLearning)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)
	assert.Equal(t, filepath.Join(home, ".zsh_history"), cfg.Watch.HistoryFile)
	assert.Equal(t, 45*time.Second, cfg.Watch.Interval)
	assert.Equal(t, "*/15 * * * *", cfg.Watch.TrainSchedule)
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolateHome(t)
	t.Setenv("TERMLEARN_LEARNING_ENABLED", "false")
	t.Setenv("TERMLEARN_LEARNING_TRAINER_MIN_EVENTS", "3")
	t.Setenv("TERMLEARN_LOG_LEVEL", "error")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.False(t, cfg.Learning.Enabled)
	assert.Equal(t, 3, cfg.Learning.Trainer.MinEvents)
	assert.Equal(t, "error", cfg.Log.Level)
}

func TestLoad_MissingExplicitFileUsesDefaults(t *testing.T) {
	isolateHome(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.True(t, cfg.Learning.Enabled)
}

func TestLoad_MalformedFile(t *testing.T) {
	isolateHome(t)
	_, err := Load(writeConfig(t, "learning: [unclosed"))
	assert.Error(t, err)
}

func TestLoad_ValidationErrors(t *testing.T) {
	isolateHome(t)
	path := writeConfig(t, `
learning:
  collector:
    max_memory_events: 0
  privacy:
    custom_patterns: ["("]
  trainer:
    decay_rate: 2
log:
  level: shouty
output:
  width: 0
watch:
  interval: 0s
  cleanup_schedule: "whenever"
`)

	_, err := Load(path)
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		"max_memory_events",
		"learning.privacy",
		"decay_rate",
		"log.level",
		"output.width",
		"watch.interval",
		"watch.cleanup_schedule",
	} {
		assert.Contains(t, msg, want)
	}
}

func TestExpandPath(t *testing.T) {
	home := isolateHome(t)
	assert.Equal(t, home, expandPath("~"))
	assert.Equal(t, filepath.Join(home, "a/b"), expandPath("~/a/b"))
	assert.Equal(t, "/abs/path", expandPath("/abs/path"))
	assert.Equal(t, "", expandPath(""))
	assert.Equal(t, "~user/x", expandPath("~user/x"))
}
