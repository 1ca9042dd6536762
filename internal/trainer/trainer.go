// Package trainer turns a batch of collected events into model updates.
package trainer

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/blackwell-systems/termlearn/internal/event"
	"github.com/blackwell-systems/termlearn/internal/model"
)

// ngramWindow is the longest gap between two commands that still counts as
// one following the other.
const ngramWindow = 5 * time.Minute

// relatedSubstringLimit is the longest failed command that may match a fix
// by plain substring.
const relatedSubstringLimit = 30

// Config controls which learning passes run and their rates.
type Config struct {
	MinEvents             int     `mapstructure:"min_events" json:"min_events"`
	LearningRate          float64 `mapstructure:"learning_rate" json:"learning_rate"`
	DecayRate             float64 `mapstructure:"decay_rate" json:"decay_rate"`
	MaxSequenceLength     int     `mapstructure:"max_sequence_length" json:"max_sequence_length"`
	MinPatternOccurrences int     `mapstructure:"min_pattern_occurrences" json:"min_pattern_occurrences"`

	EnableTimePatterns      bool `mapstructure:"enable_time_patterns" json:"enable_time_patterns"`
	EnableProjectPatterns   bool `mapstructure:"enable_project_patterns" json:"enable_project_patterns"`
	EnableErrorLearning     bool `mapstructure:"enable_error_learning" json:"enable_error_learning"`
	EnableNGramLearning     bool `mapstructure:"enable_ngram_learning" json:"enable_ngram_learning"`
	EnableDirectoryPatterns bool `mapstructure:"enable_directory_patterns" json:"enable_directory_patterns"`
	EnableErrorFixLearning  bool `mapstructure:"enable_error_fix_learning" json:"enable_error_fix_learning"`
	EnableIntentLearning    bool `mapstructure:"enable_intent_learning" json:"enable_intent_learning"`
}

// DefaultConfig enables every pass.
func DefaultConfig() Config {
	return Config{
		MinEvents:               10,
		LearningRate:            0.1,
		DecayRate:               0.99,
		MaxSequenceLength:       5,
		MinPatternOccurrences:   2,
		EnableTimePatterns:      true,
		EnableProjectPatterns:   true,
		EnableErrorLearning:     true,
		EnableNGramLearning:     true,
		EnableDirectoryPatterns: true,
		EnableErrorFixLearning:  true,
		EnableIntentLearning:    true,
	}
}

// Validate reports out-of-range rates and sizes.
func (c Config) Validate() error {
	var errs []error
	if c.MinEvents < 0 {
		errs = append(errs, fmt.Errorf("min_events must not be negative, got %d", c.MinEvents))
	}
	if c.LearningRate <= 0 || c.LearningRate > 1 {
		errs = append(errs, fmt.Errorf("learning_rate must be in (0, 1], got %g", c.LearningRate))
	}
	if c.DecayRate <= 0 || c.DecayRate > 1 {
		errs = append(errs, fmt.Errorf("decay_rate must be in (0, 1], got %g", c.DecayRate))
	}
	if c.MaxSequenceLength < 2 {
		errs = append(errs, fmt.Errorf("max_sequence_length must be at least 2, got %d", c.MaxSequenceLength))
	}
	if c.MinPatternOccurrences < 0 {
		errs = append(errs, fmt.Errorf("min_pattern_occurrences must not be negative, got %d", c.MinPatternOccurrences))
	}
	return errors.Join(errs...)
}

// Stats summarizes one training pass.
type Stats struct {
	EventsProcessed  int           `json:"events_processed"`
	CommandsAnalyzed int           `json:"commands_analyzed"`
	NewPatterns      int           `json:"new_patterns"`
	UpdatedPatterns  int           `json:"updated_patterns"`
	PrunedPatterns   int           `json:"pruned_patterns"`
	Duration         time.Duration `json:"duration"`
}

// Trainer applies learning passes to a model.
type Trainer struct {
	cfg    Config
	now    func() time.Time
	logger *zap.Logger
}

// Option customizes a Trainer.
type Option func(*Trainer)

// WithClock sets the clock used to stamp the model.
func WithClock(now func() time.Time) Option {
	return func(t *Trainer) { t.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Trainer) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// New creates a Trainer.
func New(cfg Config, opts ...Option) *Trainer {
	t := &Trainer{cfg: cfg, now: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Config returns the active configuration.
func (t *Trainer) Config() Config { return t.cfg }

// SetConfig replaces the configuration.
func (t *Trainer) SetConfig(cfg Config) { t.cfg = cfg }

// Train runs every enabled pass over events, which must be in time order,
// then prunes, decays and versions the model. Fewer than MinEvents events
// leave the model untouched and return zero Stats.
func (t *Trainer) Train(m *model.Model, events []event.Event) (Stats, error) {
	if m == nil {
		return Stats{}, errors.New("train: nil model")
	}
	if len(events) < t.cfg.MinEvents {
		t.logger.Debug("not enough events to train",
			zap.Int("events", len(events)), zap.Int("min_events", t.cfg.MinEvents))
		return Stats{}, nil
	}

	start := time.Now()
	var stats Stats
	stats.EventsProcessed = len(events)

	cmds := event.Commands(events)
	stats.CommandsAnalyzed = len(cmds)

	t.learnFrequencies(m, cmds, &stats)
	t.learnSequences(m, cmds, &stats)
	if t.cfg.EnableTimePatterns {
		for _, c := range cmds {
			m.LearnTimePattern(c.Timestamp.Local().Hour(), c.Command)
		}
	}
	if t.cfg.EnableProjectPatterns {
		t.learnProjects(m, cmds, &stats)
	}
	if t.cfg.EnableErrorLearning {
		t.learnErrorPatterns(m, events, cmds, &stats)
	}
	if t.cfg.EnableNGramLearning {
		t.learnNGrams(m, cmds, &stats)
	}
	if t.cfg.EnableDirectoryPatterns {
		for _, c := range cmds {
			if c.WorkingDir != "" {
				m.LearnDirectoryPattern(c.WorkingDir, c.Command)
			}
		}
	}
	if t.cfg.EnableErrorFixLearning {
		t.learnErrorFixes(m, cmds, &stats)
	}
	if t.cfg.EnableIntentLearning {
		t.learnIntents(m, events, &stats)
	}

	stats.PrunedPatterns = m.PrunePatterns(t.cfg.MinPatternOccurrences)
	m.ApplyDecay(t.cfg.DecayRate)
	m.IncrementVersion(t.now())
	stats.Duration = time.Since(start)

	t.logger.Info("training complete",
		zap.Int("events", stats.EventsProcessed),
		zap.Int("commands", stats.CommandsAnalyzed),
		zap.Int("new", stats.NewPatterns),
		zap.Int("updated", stats.UpdatedPatterns),
		zap.Int("pruned", stats.PrunedPatterns),
		zap.Uint64("version", m.Version),
		zap.Duration("duration", stats.Duration))
	return stats, nil
}

func (t *Trainer) learnFrequencies(m *model.Model, cmds []*event.CommandEvent, stats *Stats) {
	for _, c := range cmds {
		if m.UpdateCommandFrequency(c.Command, t.cfg.LearningRate) {
			stats.UpdatedPatterns++
		} else {
			stats.NewPatterns++
		}
	}
}

func (t *Trainer) learnSequences(m *model.Model, cmds []*event.CommandEvent, stats *Stats) {
	raw := make([]string, 0, len(cmds))
	for _, c := range cmds {
		if s := strings.TrimSpace(c.Command); s != "" {
			raw = append(raw, s)
		}
	}
	created, updated := m.LearnSequences(raw, t.cfg.MaxSequenceLength)
	stats.NewPatterns += created
	stats.UpdatedPatterns += updated
}

// learnProjects groups commands by working directory, keeping first-seen
// order.
func (t *Trainer) learnProjects(m *model.Model, cmds []*event.CommandEvent, stats *Stats) {
	var dirs []string
	byDir := make(map[string][]string)
	for _, c := range cmds {
		if c.WorkingDir == "" {
			continue
		}
		if _, ok := byDir[c.WorkingDir]; !ok {
			dirs = append(dirs, c.WorkingDir)
		}
		byDir[c.WorkingDir] = append(byDir[c.WorkingDir], c.Command)
	}
	for _, dir := range dirs {
		if m.LearnProjectCommands(dir, byDir[dir]) {
			stats.NewPatterns++
		}
	}
}

func (t *Trainer) learnErrorPatterns(m *model.Model, events []event.Event, cmds []*event.CommandEvent, stats *Stats) {
	for i, c := range cmds {
		if c.Succeeded() {
			continue
		}
		observedFix := ""
		if i+1 < len(cmds) && cmds[i+1].Succeeded() && related(c.Command, cmds[i+1].Command) {
			observedFix = cmds[i+1].Command
		}
		t.countPattern(m.LearnErrorPattern(c.Command, errorText(c), observedFix), stats)
	}

	for _, e := range events {
		switch ev := e.(type) {
		case *event.ErrorEvent:
			t.countPattern(m.LearnErrorPattern(ev.Command, ev.Error, ""), stats)
		case *event.CommandEvent, *event.InteractionEvent:
		}
	}
}

func (t *Trainer) countPattern(existed bool, stats *Stats) {
	if existed {
		stats.UpdatedPatterns++
	} else {
		stats.NewPatterns++
	}
}

func (t *Trainer) learnNGrams(m *model.Model, cmds []*event.CommandEvent, stats *Stats) {
	for i := 1; i < len(cmds); i++ {
		prev, next := cmds[i-1], cmds[i]
		gap := next.Timestamp.Sub(prev.Timestamp)
		if gap < 0 || gap > ngramWindow {
			continue
		}
		t.countPattern(m.UpdateNGram(prev.Command, next.Command, t.cfg.LearningRate), stats)
	}
}

func (t *Trainer) learnErrorFixes(m *model.Model, cmds []*event.CommandEvent, stats *Stats) {
	for i := 1; i < len(cmds); i++ {
		failed, fix := cmds[i-1], cmds[i]
		if failed.Succeeded() || !fix.Succeeded() || !related(failed.Command, fix.Command) {
			continue
		}
		t.countPattern(m.LearnErrorFix(failed.Command, errorText(failed), fix.Command), stats)
	}
}

func (t *Trainer) learnIntents(m *model.Model, events []event.Event, stats *Stats) {
	for _, e := range events {
		ev, ok := e.(*event.InteractionEvent)
		if !ok || !ev.WasHelpful {
			continue
		}
		cmd := ExtractCommand(ev.Response)
		if cmd == "" {
			continue
		}
		t.countPattern(m.AddIntentMapping(ev.Query, cmd), stats)
	}
}

// errorText is the failure text of a command: its output when captured,
// otherwise its exit status.
func errorText(c *event.CommandEvent) string {
	if out := strings.TrimSpace(c.Output); out != "" {
		return out
	}
	return fmt.Sprintf("exit code %d", c.ExitCode)
}

// related reports whether fix plausibly corrects failed: same base command,
// the fix runs the failed base command, or a short failed command appears
// verbatim in the fix.
func related(failed, fix string) bool {
	base := model.BaseCommand(failed)
	if base == "" {
		return false
	}
	if model.BaseCommand(fix) == base {
		return true
	}
	for _, f := range strings.Fields(fix) {
		if f == base {
			return true
		}
	}
	failed = strings.TrimSpace(failed)
	return len(failed) < relatedSubstringLimit && strings.Contains(fix, failed)
}

var (
	fencedBlock = regexp.MustCompile("(?s)```[a-zA-Z]*\\n(.*?)```")
	promptLine  = regexp.MustCompile(`(?m)^\s*\$ (.+)$`)
	inlineCode  = regexp.MustCompile("`([^`\\n]+)`")
)

// ExtractCommand pulls the first shell command out of an assistant
// response: the first line of a fenced block, a "$ " prompt line, or an
// inline code span, in that order.
func ExtractCommand(response string) string {
	if m := fencedBlock.FindStringSubmatch(response); m != nil {
		for _, line := range strings.Split(m[1], "\n") {
			line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "$ "))
			if line != "" && !strings.HasPrefix(line, "#") {
				return line
			}
		}
	}
	if m := promptLine.FindStringSubmatch(response); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := inlineCode.FindStringSubmatch(response); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}
