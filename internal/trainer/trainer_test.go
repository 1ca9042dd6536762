package trainer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/termlearn/internal/event"
	"github.com/blackwell-systems/termlearn/internal/model"
)

var base = time.Date(2026, 5, 20, 9, 0, 0, 0, time.Local)

var trainedAt = time.Date(2026, 5, 20, 18, 0, 0, 0, time.UTC)

func newTrainer(cfg Config) *Trainer {
	return New(cfg, WithClock(func() time.Time { return trainedAt }))
}

// commands builds command events one minute apart.
func commands(start time.Time, specs ...event.CommandEvent) []event.Event {
	events := make([]event.Event, 0, len(specs))
	for i := range specs {
		ev := specs[i]
		ev.Timestamp = start.Add(time.Duration(i) * time.Minute)
		events = append(events, &ev)
	}
	return events
}

func cmd(command string, exit int) event.CommandEvent {
	return event.CommandEvent{Command: command, ExitCode: exit}
}

func TestTrain_BelowMinEventsLeavesModelUntouched(t *testing.T) {
	m := model.New()
	tr := newTrainer(DefaultConfig())

	stats, err := tr.Train(m, commands(base, cmd("ls", 0), cmd("pwd", 0)))
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)
	assert.Equal(t, model.New(), m)
}

func TestTrain_NilModel(t *testing.T) {
	_, err := newTrainer(DefaultConfig()).Train(nil, nil)
	assert.Error(t, err)
}

func TestTrain_EndToEndScenario(t *testing.T) {
	var specs []event.CommandEvent
	for i := 0; i < 15; i++ {
		specs = append(specs, cmd("ls", 0))
	}
	for i := 0; i < 5; i++ {
		exit := 0
		if i == 2 {
			exit = 1
		}
		specs = append(specs, cmd("git status", exit))
	}

	m := model.New()
	stats, err := newTrainer(DefaultConfig()).Train(m, commands(base, specs...))
	require.NoError(t, err)

	assert.Equal(t, 20, stats.EventsProcessed)
	assert.Equal(t, 20, stats.CommandsAnalyzed)
	assert.Positive(t, stats.NewPatterns)
	assert.Positive(t, stats.UpdatedPatterns)

	top := m.TopCommands(1)
	require.Len(t, top, 1)
	assert.Equal(t, model.Normalize("ls"), top[0].Command)

	assert.Equal(t, uint64(1), m.Version)
	assert.True(t, m.LastTrained.Equal(trainedAt))
}

func TestTrain_PrunesThenDecays(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinEvents = 1
	cfg.DecayRate = 0.5
	m := model.New()

	_, err := newTrainer(cfg).Train(m, commands(base, cmd("make", 0), cmd("make", 0), cmd("make", 0)))
	require.NoError(t, err)

	// 3 EMA hits give 0.271, which survives pruning and is then halved.
	assert.InDelta(t, 0.271*0.5, m.CommandFrequency["make"], 1e-9)
	// [make make] seen twice survives; [make make make] seen once is pruned.
	require.Len(t, m.CommonSequences, 1)
	assert.InDelta(t, 1.0, m.CommonSequences[0].Frequency, 1e-9)
}

func TestTrain_TimeProjectDirectory(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinEvents = 1
	m := model.New()
	dir := "/home/bob/code/shop/api"

	events := commands(base,
		event.CommandEvent{Command: "go build ./...", WorkingDir: dir},
		event.CommandEvent{Command: "go test ./...", WorkingDir: dir},
		event.CommandEvent{Command: "ls"},
	)
	_, err := newTrainer(cfg).Train(m, events)
	require.NoError(t, err)

	require.NotEmpty(t, m.TimePatterns[9])
	pc := m.ProjectContexts["code/shop"]
	require.NotNil(t, pc)
	assert.Equal(t, "go", pc.ProjectType)
	assert.Contains(t, m.DirectoryCommands["shop/api"], "go test <path>")
	assert.Len(t, m.DirectoryCommands, 1)
}

func TestTrain_GatedPassesStayOff(t *testing.T) {
	cfg := Config{
		MinEvents:             1,
		LearningRate:          0.1,
		DecayRate:             1,
		MaxSequenceLength:     2,
		MinPatternOccurrences: 0,
	}
	m := model.New()
	events := commands(base,
		event.CommandEvent{Command: "cat missing.txt", ExitCode: 1, WorkingDir: "/home/bob/code/x"},
		event.CommandEvent{Command: "cat docs/missing.txt", WorkingDir: "/home/bob/code/x"},
	)
	events = append(events, &event.InteractionEvent{Query: "show files", Response: "`ls`", WasHelpful: true, Timestamp: base})

	_, err := newTrainer(cfg).Train(m, events)
	require.NoError(t, err)

	assert.Len(t, m.CommandFrequency, 1)
	assert.Len(t, m.CommonSequences, 1)
	assert.Empty(t, m.TimePatterns)
	assert.Empty(t, m.ProjectContexts)
	assert.Empty(t, m.ErrorPatterns)
	assert.Empty(t, m.NGramModel)
	assert.Empty(t, m.DirectoryCommands)
	assert.Empty(t, m.ErrorFixes)
	assert.Empty(t, m.IntentMappings)
}

func TestTrain_ErrorPatternsAndFixes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinEvents = 1
	cfg.MinPatternOccurrences = 1
	m := model.New()

	events := commands(base,
		event.CommandEvent{Command: "cat /etc/shadow", ExitCode: 1, Output: "cat: /etc/shadow: Permission denied"},
		event.CommandEvent{Command: "sudo cat /etc/shadow"},
		event.CommandEvent{Command: "npm test", ExitCode: 1},
		event.CommandEvent{Command: "npm ci"},
		event.CommandEvent{Command: "make", ExitCode: 2},
		event.CommandEvent{Command: "ls"},
	)
	events = append(events, &event.ErrorEvent{Error: "bash: foo: command not found", Command: "foo", Timestamp: base})

	_, err := newTrainer(cfg).Train(m, events)
	require.NoError(t, err)

	patterns := map[string]model.ErrorPattern{}
	for _, p := range m.ErrorPatterns {
		patterns[p.CommandPattern+"|"+p.ErrorPattern] = p
	}
	assert.Equal(t, "sudo cat /etc/shadow", patterns["cat|permission denied"].SuggestedFix)
	assert.Equal(t, "npm ci", patterns["npm|exit code 1"].SuggestedFix, "observed fix when no heuristic applies")
	assert.Empty(t, patterns["make|exit code 2"].SuggestedFix, "ls is unrelated to make")
	assert.Equal(t, "which foo", patterns["foo|not found"].SuggestedFix)

	fixes := m.GetErrorFixes("permission denied", "cat /etc/shadow")
	require.Len(t, fixes, 1)
	assert.Equal(t, "sudo cat /etc/shadow", fixes[0].FixCommand)
	assert.NotEmpty(t, m.GetErrorFixes("exit code 1", "npm test"))
	assert.Empty(t, m.GetErrorFixes("exit code 2", ""))
}

func TestTrain_NGramWindow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinEvents = 1
	m := model.New()
	events := []event.Event{
		&event.CommandEvent{Command: "git add .", Timestamp: base},
		&event.CommandEvent{Command: "git commit -m x", Timestamp: base.Add(time.Minute)},
		&event.CommandEvent{Command: "git push", Timestamp: base.Add(time.Hour)},
	}
	_, err := newTrainer(cfg).Train(m, events)
	require.NoError(t, err)

	assert.Len(t, m.PredictNextNGram("git add ."), 1)
	assert.Nil(t, m.PredictNextNGram("git commit -m x"), "an hour apart is not a pair")
}

func TestTrain_IntentLearning(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinEvents = 1
	m := model.New()
	events := []event.Event{
		&event.InteractionEvent{Query: "list all files including hidden", Response: "Run:\n```bash\nls -la\n```", WasHelpful: true, Timestamp: base},
		&event.InteractionEvent{Query: "check git status", Response: "Use `git status`.", WasHelpful: true, Timestamp: base},
		&event.InteractionEvent{Query: "delete everything", Response: "`rm -rf /`", WasHelpful: false, Timestamp: base},
	}
	stats, err := newTrainer(cfg).Train(m, events)
	require.NoError(t, err)
	assert.Zero(t, stats.CommandsAnalyzed)
	assert.Equal(t, 2, stats.NewPatterns)

	matches := m.FindIntentMatches("list hidden files", 0.1)
	require.NotEmpty(t, matches)
	assert.Equal(t, "ls -la", matches[0].Command)
	assert.Empty(t, m.FindIntentMatches("delete everything", 0.1))
}

func TestRelated(t *testing.T) {
	tests := []struct {
		failed, fix string
		want        bool
	}{
		{"git psuh", "git push", true},
		{"apt install x", "sudo apt install x", true},
		{"cd build", "mkdir build && cd build", true},
		{"make", "ls", false},
		{"gti status", "git status", false},
		{"", "ls", false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, related(tc.failed, tc.fix), "%q -> %q", tc.failed, tc.fix)
	}
}

func TestExtractCommand(t *testing.T) {
	tests := []struct {
		response string
		want     string
	}{
		{"Try this:\n```sh\n# list\n$ ls -la\n```", "ls -la"},
		{"```\ndocker ps -a\ndocker logs web\n```", "docker ps -a"},
		{"You can run\n$ git log --oneline\nto see history", "git log --oneline"},
		{"Use `kubectl get pods` to list them", "kubectl get pods"},
		{"No command here.", ""},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, ExtractCommand(tc.response), tc.response)
	}
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	bad := DefaultConfig()
	bad.LearningRate = 0
	bad.DecayRate = 1.5
	bad.MaxSequenceLength = 1
	err := bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "learning_rate")
	assert.Contains(t, err.Error(), "decay_rate")
	assert.Contains(t, err.Error(), "max_sequence_length")
}
