package model

import (
	"strings"
)

// UpdateCommandFrequency applies an exponential moving average hit,
// f = f*(1-alpha) + alpha, to the command's normalized key. It reports
// whether the key already existed.
func (m *Model) UpdateCommandFrequency(command string, alpha float64) bool {
	key := Normalize(command)
	if key == "" {
		return false
	}
	old, existed := m.CommandFrequency[key]
	m.CommandFrequency[key] = old*(1-alpha) + alpha
	return existed
}

// Sequence blend constants.
const (
	sequenceInitialConfidence = 0.5
	sequenceBlend             = 0.9
)

// LearnSequences records every contiguous window of 2..maxLen commands.
// A known sequence gains one occurrence and moves its confidence toward 1;
// a new one starts at confidence 0.5. It returns the number of new and
// reinforced sequences.
func (m *Model) LearnSequences(commands []string, maxLen int) (created, updated int) {
	if maxLen < 2 {
		return 0, 0
	}
	index := make(map[string]int, len(m.CommonSequences))
	for i, seq := range m.CommonSequences {
		index[sequenceKey(seq.Commands)] = i
	}

	for size := 2; size <= maxLen; size++ {
		for start := 0; start+size <= len(commands); start++ {
			window := commands[start : start+size]
			key := sequenceKey(window)
			if i, ok := index[key]; ok {
				seq := &m.CommonSequences[i]
				seq.Frequency++
				seq.Confidence = min(1, seq.Confidence*sequenceBlend+(1-sequenceBlend))
				updated++
				continue
			}
			index[key] = len(m.CommonSequences)
			m.CommonSequences = append(m.CommonSequences, CommandSequence{
				Commands:   append([]string(nil), window...),
				Frequency:  1,
				Confidence: sequenceInitialConfidence,
			})
			created++
		}
	}
	return created, updated
}

func sequenceKey(commands []string) string {
	return strings.Join(commands, "\x00")
}

// LearnTimePattern counts a command in its hour-of-day slot and keeps the
// slot's top 10.
func (m *Model) LearnTimePattern(hour int, command string) {
	key := Normalize(command)
	if key == "" || hour < 0 || hour > 23 {
		return
	}
	slot := m.TimePatterns[hour]
	found := false
	for i := range slot {
		if slot[i].Command == key {
			slot[i].Count++
			found = true
			break
		}
	}
	if !found {
		// A full slot gives up its weakest entry to the newcomer.
		if len(slot) >= topK {
			slot = slot[:topK-1]
		}
		slot = append(slot, CommandCount{Command: key, Count: 1})
	}
	sortCounts(slot)
	m.TimePatterns[hour] = slot
}

// LearnDirectoryPattern counts a command under its directory key.
func (m *Model) LearnDirectoryPattern(dir, command string) {
	key := DirectoryKey(dir)
	cmd := Normalize(command)
	if key == "" || cmd == "" {
		return
	}
	counts := m.DirectoryCommands[key]
	if counts == nil {
		counts = make(map[string]float64)
		m.DirectoryCommands[key] = counts
	}
	counts[cmd]++
	trimCounts(counts, topK, cmd)
}

// projectIndicators vote for a project type by a command's base verb. The
// slice order breaks ties.
var projectIndicators = []struct {
	projectType string
	commands    []string
}{
	{"nodejs", []string{"npm", "node", "yarn", "npx", "pnpm"}},
	{"rust", []string{"cargo", "rustc", "rustup"}},
	{"python", []string{"python", "python3", "pip", "pip3", "pytest", "poetry"}},
	{"go", []string{"go"}},
	{"java", []string{"mvn", "gradle", "java"}},
	{"docker", []string{"docker", "docker-compose"}},
	{"ruby", []string{"bundle", "gem", "rake", "rails"}},
}

// minProjectTypeVotes is the number of indicator commands needed before a
// project type is assigned.
const minProjectTypeVotes = 2

// LearnProjectCommands counts a batch of commands run inside one directory
// against its project, records shell aliases, and detects the project type
// once. It reports whether the project was new.
func (m *Model) LearnProjectCommands(dir string, commands []string) bool {
	key := ProjectKey(dir)
	if key == "" || len(commands) == 0 {
		return false
	}
	pc, existed := m.ProjectContexts[key]
	if !existed {
		pc = &ProjectContext{
			Commands: make(map[string]float64),
			Aliases:  make(map[string]string),
		}
		m.ProjectContexts[key] = pc
	}

	for _, cmd := range commands {
		if name, value, ok := parseAlias(cmd); ok {
			pc.Aliases[name] = value
		}
		if norm := Normalize(cmd); norm != "" {
			pc.Commands[norm]++
			trimCounts(pc.Commands, topK, norm)
		}
	}

	if pc.ProjectType == "" {
		pc.ProjectType = detectProjectType(commands)
	}
	return !existed
}

func detectProjectType(commands []string) string {
	votes := make(map[string]int)
	for _, cmd := range commands {
		base := BaseCommand(cmd)
		for _, ind := range projectIndicators {
			for _, c := range ind.commands {
				if base == c {
					votes[ind.projectType]++
				}
			}
		}
	}
	best, bestVotes := "", 0
	for _, ind := range projectIndicators {
		if v := votes[ind.projectType]; v >= minProjectTypeVotes && v > bestVotes {
			best, bestVotes = ind.projectType, v
		}
	}
	return best
}

// parseAlias recognizes `alias name=value` with optional quoting.
func parseAlias(command string) (name, value string, ok bool) {
	rest, found := strings.CutPrefix(strings.TrimSpace(command), "alias ")
	if !found {
		return "", "", false
	}
	name, value, found = strings.Cut(strings.TrimSpace(rest), "=")
	if !found || name == "" || strings.ContainsAny(name, " \t") {
		return "", "", false
	}
	value = strings.Trim(value, `'"`)
	if value == "" {
		return "", "", false
	}
	return name, value, true
}
