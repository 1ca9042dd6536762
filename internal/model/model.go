// Package model holds the learned per-user state and the incremental
// algorithms that update and query it.
//
// A Model is plain data plus methods; it performs no locking. Mutations come
// from the trainer and from a few online-learning calls made by the owner.
package model

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// FileName is the model document inside the learning data directory.
const FileName = "model.json"

// topK caps every ranked per-key list (time slots, n-grams, project and
// directory command counts).
const topK = 10

// Model is the single long-lived aggregate of everything learned about the
// user. It round-trips through JSON without loss.
type Model struct {
	Version     uint64    `json:"version"`
	LastTrained time.Time `json:"last_trained"`

	CommandFrequency  map[string]float64            `json:"command_frequency"`
	CommonSequences   []CommandSequence             `json:"common_sequences"`
	ErrorPatterns     []ErrorPattern                `json:"error_patterns"`
	ProjectContexts   map[string]*ProjectContext    `json:"project_contexts"`
	TimePatterns      map[int][]CommandCount        `json:"time_patterns"`
	NGramModel        map[string][]NGramEntry       `json:"ngram_model"`
	DirectoryCommands map[string]map[string]float64 `json:"directory_commands"`

	IntentVocabulary map[string]int  `json:"intent_vocabulary"`
	IntentDocCount   int             `json:"intent_doc_count"`
	IntentMappings   []IntentMapping `json:"intent_mappings"`
	ErrorFixes       []ErrorFix      `json:"error_fixes"`
}

// CommandSequence is a run of raw commands observed back to back.
type CommandSequence struct {
	Commands   []string `json:"commands"`
	Frequency  float64  `json:"frequency"`
	Confidence float64  `json:"confidence"`
}

// ErrorPattern pairs a command's base verb with a generalized error.
type ErrorPattern struct {
	CommandPattern string  `json:"command_pattern"`
	ErrorPattern   string  `json:"error_pattern"`
	SuggestedFix   string  `json:"suggested_fix,omitempty"`
	Frequency      float64 `json:"frequency"`
}

// ProjectContext is what was learned about one project directory.
type ProjectContext struct {
	Commands    map[string]float64 `json:"commands"`
	ProjectType string             `json:"project_type,omitempty"`
	Aliases     map[string]string  `json:"aliases"`
}

// CommandCount is one entry of a ranked command list.
type CommandCount struct {
	Command string  `json:"command"`
	Count   float64 `json:"count"`
}

// NGramEntry is one candidate next command and its smoothed probability.
type NGramEntry struct {
	Command     string  `json:"command"`
	Probability float64 `json:"probability"`
}

// IntentMapping links a natural-language intent to a command.
type IntentMapping struct {
	Intent       string             `json:"intent"`
	Tokens       []string           `json:"tokens"`
	Vector       map[string]float64 `json:"vector"`
	Command      string             `json:"command"`
	SuccessCount int                `json:"success_count"`
	Confidence   float64            `json:"confidence"`
}

// ErrorFix is a learned correction for a failing command.
type ErrorFix struct {
	ErrorPattern   string `json:"error_pattern"`
	CommandPattern string `json:"command_pattern"`
	FixCommand     string `json:"fix_command"`
	SuccessCount   int    `json:"success_count"`
	Explanation    string `json:"explanation,omitempty"`
}

// New returns an empty model.
func New() *Model {
	m := &Model{}
	m.init()
	return m
}

// init replaces nil collections so a decoded document behaves like New.
func (m *Model) init() {
	if m.CommandFrequency == nil {
		m.CommandFrequency = make(map[string]float64)
	}
	if m.CommonSequences == nil {
		m.CommonSequences = []CommandSequence{}
	}
	if m.ErrorPatterns == nil {
		m.ErrorPatterns = []ErrorPattern{}
	}
	if m.ProjectContexts == nil {
		m.ProjectContexts = make(map[string]*ProjectContext)
	}
	for _, pc := range m.ProjectContexts {
		if pc.Commands == nil {
			pc.Commands = make(map[string]float64)
		}
		if pc.Aliases == nil {
			pc.Aliases = make(map[string]string)
		}
	}
	if m.TimePatterns == nil {
		m.TimePatterns = make(map[int][]CommandCount)
	}
	if m.NGramModel == nil {
		m.NGramModel = make(map[string][]NGramEntry)
	}
	if m.DirectoryCommands == nil {
		m.DirectoryCommands = make(map[string]map[string]float64)
	}
	if m.IntentVocabulary == nil {
		m.IntentVocabulary = make(map[string]int)
	}
	if m.IntentMappings == nil {
		m.IntentMappings = []IntentMapping{}
	}
	if m.ErrorFixes == nil {
		m.ErrorFixes = []ErrorFix{}
	}
}

// IncrementVersion bumps the version and stamps the training time.
func (m *Model) IncrementVersion(now time.Time) {
	m.Version++
	m.LastTrained = now.UTC()
}

// Save writes the model as indented JSON. The document is written to a
// temporary file in the same directory and renamed into place.
func (m *Model) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding model: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating model directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".model-*.json")
	if err != nil {
		return fmt.Errorf("creating temp model file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("writing model: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("syncing model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("closing model: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replacing model: %w", err)
	}
	return nil
}

// Load reads a model document from path.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	m.init()
	return &m, nil
}

// LoadOrCreate loads the model at path, or returns an empty model if the file
// is missing, unreadable or corrupt. Failures other than a missing file are
// logged.
func LoadOrCreate(path string, logger *zap.Logger) *Model {
	if logger == nil {
		logger = zap.NewNop()
	}
	m, err := Load(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("model unreadable, starting fresh", zap.String("path", path), zap.Error(err))
		}
		return New()
	}
	return m
}

// Sizes counts the entries of each learned table.
type Sizes struct {
	Commands      int `json:"commands"`
	Sequences     int `json:"sequences"`
	ErrorPatterns int `json:"error_patterns"`
	Projects      int `json:"projects"`
	TimeSlots     int `json:"time_slots"`
	NGrams        int `json:"ngrams"`
	Directories   int `json:"directories"`
	Intents       int `json:"intents"`
	ErrorFixes    int `json:"error_fixes"`
}

// Sizes reports the current table sizes.
func (m *Model) Sizes() Sizes {
	return Sizes{
		Commands:      len(m.CommandFrequency),
		Sequences:     len(m.CommonSequences),
		ErrorPatterns: len(m.ErrorPatterns),
		Projects:      len(m.ProjectContexts),
		TimeSlots:     len(m.TimePatterns),
		NGrams:        len(m.NGramModel),
		Directories:   len(m.DirectoryCommands),
		Intents:       len(m.IntentMappings),
		ErrorFixes:    len(m.ErrorFixes),
	}
}

// TopCommands returns the n highest-frequency normalized commands.
func (m *Model) TopCommands(n int) []CommandCount {
	return topCounts(m.CommandFrequency, n)
}
