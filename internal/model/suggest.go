package model

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// Suggestion sources.
const (
	SourceSequence   = "sequence"
	SourceNGram      = "ngram"
	SourceTime       = "time_pattern"
	SourceProject    = "project"
	SourceDirectory  = "directory"
	SourceErrorFix   = "error_fix"
	SourceCompletion = "completion"
)

// maxSuggestions caps the merged suggestion list.
const maxSuggestions = 10

// Suggestion is a ranked candidate for the next command.
type Suggestion struct {
	Command     string  `json:"command"`
	Confidence  float64 `json:"confidence"`
	Source      string  `json:"source"`
	Explanation string  `json:"explanation,omitempty"`
}

// Context is what the caller knows about the moment a suggestion is asked
// for.
type Context struct {
	WorkingDir     string   `json:"working_dir,omitempty"`
	LastCommand    string   `json:"last_command,omitempty"`
	RecentCommands []string `json:"recent_commands,omitempty"`
	Hour           int      `json:"hour"`
	PartialInput   string   `json:"partial_input,omitempty"`
	CurrentError   string   `json:"current_error,omitempty"`
}

// history is the recent commands ending with the last command.
func (c *Context) history() []string {
	h := c.RecentCommands
	if c.LastCommand != "" && (len(h) == 0 || h[len(h)-1] != c.LastCommand) {
		h = append(append([]string(nil), h...), c.LastCommand)
	}
	return h
}

func (c *Context) last() string {
	if c.LastCommand != "" {
		return c.LastCommand
	}
	if n := len(c.RecentCommands); n > 0 {
		return c.RecentCommands[n-1]
	}
	return ""
}

// Source produces suggestions from one aspect of the model.
type Source func(m *Model, ctx *Context) []Suggestion

var defaultSources = []Source{
	sequenceSuggestions,
	ngramSuggestions,
	timeSuggestions,
	locationSuggestions,
	errorFixSuggestions,
	completionSuggestions,
}

// SuggestNextCommand merges every source, filters by the partial input when
// one is given, and returns at most ten suggestions ordered by confidence
// with duplicate commands removed.
func (m *Model) SuggestNextCommand(ctx Context) []Suggestion {
	var all []Suggestion
	for _, source := range defaultSources {
		all = append(all, source(m, &ctx)...)
	}

	if prefix := strings.TrimSpace(ctx.PartialInput); prefix != "" {
		filtered := all[:0]
		for _, s := range all {
			if strings.HasPrefix(s.Command, prefix) {
				filtered = append(filtered, s)
			}
		}
		all = filtered
	}
	return rankSuggestions(all, maxSuggestions)
}

// rankSuggestions sorts by confidence, keeps the first occurrence of each
// command and truncates to n.
func rankSuggestions(suggestions []Suggestion, n int) []Suggestion {
	sorted := make([]Suggestion, len(suggestions))
	copy(sorted, suggestions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	seen := make(map[string]bool, len(sorted))
	out := make([]Suggestion, 0, min(n, len(sorted)))
	for _, s := range sorted {
		if s.Command == "" || seen[s.Command] {
			continue
		}
		seen[s.Command] = true
		out = append(out, s)
		if len(out) == n {
			break
		}
	}
	return out
}

// sequenceSuggestions continues the longest learned sequence whose prefix
// matches the tail of the recent history.
func sequenceSuggestions(m *Model, ctx *Context) []Suggestion {
	hist := ctx.history()
	if len(hist) == 0 {
		return nil
	}
	var out []Suggestion
	for _, seq := range m.CommonSequences {
		for k := min(len(seq.Commands)-1, len(hist)); k >= 1; k-- {
			if !slices.Equal(seq.Commands[:k], hist[len(hist)-k:]) {
				continue
			}
			out = append(out, Suggestion{
				Command:     seq.Commands[k],
				Confidence:  seq.Confidence * 0.9,
				Source:      SourceSequence,
				Explanation: fmt.Sprintf("Usually follows %q", seq.Commands[k-1]),
			})
			break
		}
	}
	return out
}

func ngramSuggestions(m *Model, ctx *Context) []Suggestion {
	last := ctx.last()
	if last == "" {
		return nil
	}
	var out []Suggestion
	for _, e := range m.PredictNextNGram(last) {
		out = append(out, Suggestion{
			Command:     e.Command,
			Confidence:  e.Probability,
			Source:      SourceNGram,
			Explanation: "Commonly run after " + Normalize(last),
		})
	}
	return out
}

func timeSuggestions(m *Model, ctx *Context) []Suggestion {
	slot := m.TimePatterns[ctx.Hour]
	if len(slot) == 0 {
		return nil
	}
	maxCount := slot[0].Count
	for _, cc := range slot {
		maxCount = max(maxCount, cc.Count)
	}
	if maxCount <= 0 {
		return nil
	}
	out := make([]Suggestion, 0, len(slot))
	for _, cc := range slot {
		out = append(out, Suggestion{
			Command:     cc.Command,
			Confidence:  cc.Count / maxCount * 0.6,
			Source:      SourceTime,
			Explanation: fmt.Sprintf("Often run around %02d:00", ctx.Hour),
		})
	}
	return out
}

// locationSuggestions draws on the project and the directory of the
// working directory.
func locationSuggestions(m *Model, ctx *Context) []Suggestion {
	if ctx.WorkingDir == "" {
		return nil
	}
	var out []Suggestion
	if key := ProjectKey(ctx.WorkingDir); key != "" {
		if pc := m.ProjectContexts[key]; pc != nil {
			out = append(out, scaledCounts(pc.Commands, 0.7, SourceProject, "Frequent in project "+key)...)
		}
	}
	if key := DirectoryKey(ctx.WorkingDir); key != "" {
		out = append(out, scaledCounts(m.DirectoryCommands[key], 0.7, SourceDirectory, "Frequent in "+key)...)
	}
	return out
}

func scaledCounts(counts map[string]float64, weight float64, source, explanation string) []Suggestion {
	ranked := topCounts(counts, topK)
	if len(ranked) == 0 || ranked[0].Count <= 0 {
		return nil
	}
	maxCount := ranked[0].Count
	out := make([]Suggestion, 0, len(ranked))
	for _, cc := range ranked {
		out = append(out, Suggestion{
			Command:     cc.Command,
			Confidence:  cc.Count / maxCount * weight,
			Source:      source,
			Explanation: explanation,
		})
	}
	return out
}

func errorFixSuggestions(m *Model, ctx *Context) []Suggestion {
	if ctx.CurrentError == "" {
		return nil
	}
	var out []Suggestion
	for _, f := range m.GetErrorFixes(ctx.CurrentError, "") {
		out = append(out, Suggestion{
			Command:     f.FixCommand,
			Confidence:  min(0.95, 0.5+0.1*float64(f.SuccessCount)),
			Source:      SourceErrorFix,
			Explanation: f.Explanation,
		})
	}

	errPattern := GeneralizeError(ctx.CurrentError)
	base := BaseCommand(ctx.last())
	for _, p := range m.ErrorPatterns {
		if p.ErrorPattern != errPattern || p.SuggestedFix == "" {
			continue
		}
		if base != "" && p.CommandPattern != "" && p.CommandPattern != base {
			continue
		}
		out = append(out, Suggestion{
			Command:     p.SuggestedFix,
			Confidence:  0.5,
			Source:      SourceErrorFix,
			Explanation: "Suggested fix for " + p.ErrorPattern,
		})
	}
	return out
}

func completionSuggestions(m *Model, ctx *Context) []Suggestion {
	prefix := strings.TrimSpace(ctx.PartialInput)
	if prefix == "" {
		return nil
	}
	var out []Suggestion
	for cmd, freq := range m.CommandFrequency {
		if !strings.HasPrefix(cmd, prefix) {
			continue
		}
		out = append(out, Suggestion{
			Command:    cmd,
			Confidence: min(1, freq) * 0.8,
			Source:     SourceCompletion,
		})
	}
	// Map order is random; fix it before the stable rank.
	sort.Slice(out, func(i, j int) bool { return out[i].Command < out[j].Command })
	return out
}

// CompleteCommand returns frequency-ranked known commands starting with
// prefix.
func (m *Model) CompleteCommand(prefix string, n int) []string {
	ranked := rankSuggestions(completionSuggestions(m, &Context{PartialInput: prefix}), n)
	out := make([]string, 0, len(ranked))
	for _, s := range ranked {
		out = append(out, s.Command)
	}
	return out
}
