package model

import (
	"fmt"
	"sort"
	"strings"
)

// Canonical error phrases, checked in order.
var canonicalErrors = []string{
	"permission denied",
	"no such file",
	"not found",
	"connection refused",
	"syntax error",
}

// maxErrorPrefix bounds an error that matches no canonical phrase.
const maxErrorPrefix = 50

// GeneralizeError maps an error message to a canonical phrase, or to its
// first 50 characters when none applies.
func GeneralizeError(msg string) string {
	lower := strings.ToLower(msg)
	for _, phrase := range canonicalErrors {
		if strings.Contains(lower, phrase) {
			return phrase
		}
	}
	msg = strings.TrimSpace(msg)
	if r := []rune(msg); len(r) > maxErrorPrefix {
		return string(r[:maxErrorPrefix])
	}
	return msg
}

// GenerateFixSuggestion proposes a fix for a failed command from the shape
// of its error, or returns "" when no heuristic applies.
func GenerateFixSuggestion(command, errMsg string) string {
	command = strings.TrimSpace(command)
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}

	switch GeneralizeError(errMsg) {
	case "permission denied":
		if fields[0] != "sudo" {
			return "sudo " + command
		}
	case "no such file", "not found":
		if fields[0] == "cd" && len(fields) > 1 {
			dir := fields[1]
			return fmt.Sprintf("mkdir -p %s && cd %s", dir, dir)
		}
		if strings.Contains(strings.ToLower(errMsg), "command not found") || len(fields) == 1 {
			return "which " + fields[0]
		}
	}
	return ""
}

// LearnErrorPattern records that command failed with errMsg. The stored fix
// comes from GenerateFixSuggestion, falling back to observedFix. It reports
// whether the pattern already existed.
func (m *Model) LearnErrorPattern(command, errMsg, observedFix string) bool {
	cmdPattern := BaseCommand(command)
	errPattern := GeneralizeError(errMsg)
	if errPattern == "" {
		return false
	}
	fix := GenerateFixSuggestion(command, errMsg)
	if fix == "" {
		fix = observedFix
	}

	for i := range m.ErrorPatterns {
		p := &m.ErrorPatterns[i]
		if p.CommandPattern == cmdPattern && p.ErrorPattern == errPattern {
			p.Frequency++
			if p.SuggestedFix == "" {
				p.SuggestedFix = fix
			}
			return true
		}
	}
	m.ErrorPatterns = append(m.ErrorPatterns, ErrorPattern{
		CommandPattern: cmdPattern,
		ErrorPattern:   errPattern,
		SuggestedFix:   fix,
		Frequency:      1,
	})
	return false
}

// LearnErrorFix records that fixCmd resolved failedCmd's errMsg. Repeated
// observations increase the fix's success count. It reports whether the
// mapping already existed.
func (m *Model) LearnErrorFix(failedCmd, errMsg, fixCmd string) bool {
	fixCmd = strings.TrimSpace(fixCmd)
	if fixCmd == "" {
		return false
	}
	errPattern := GeneralizeError(errMsg)
	cmdPattern := Normalize(failedCmd)

	for i := range m.ErrorFixes {
		f := &m.ErrorFixes[i]
		if f.ErrorPattern == errPattern && f.CommandPattern == cmdPattern && f.FixCommand == fixCmd {
			f.SuccessCount++
			return true
		}
	}
	m.ErrorFixes = append(m.ErrorFixes, ErrorFix{
		ErrorPattern:   errPattern,
		CommandPattern: cmdPattern,
		FixCommand:     fixCmd,
		SuccessCount:   1,
		Explanation:    explainFix(failedCmd, errMsg, fixCmd),
	})
	return false
}

func explainFix(failedCmd, errMsg, fixCmd string) string {
	failed := strings.Fields(failedCmd)
	fix := strings.Fields(fixCmd)

	if len(fix) > 0 && fix[0] == "sudo" && (len(failed) == 0 || failed[0] != "sudo") {
		return "Needs elevated privileges; run it with sudo"
	}
	if len(fix) == len(failed) {
		diff := -1
		for i := range fix {
			if fix[i] != failed[i] {
				if diff >= 0 {
					diff = -1
					break
				}
				diff = i
			}
		}
		if diff >= 0 {
			return fmt.Sprintf("Typo: %q should be %q", failed[diff], fix[diff])
		}
	}
	if len(fix) > len(failed) && strings.HasPrefix(strings.TrimSpace(fixCmd), strings.TrimSpace(failedCmd)) {
		return "Missing argument: " + strings.Join(fix[len(failed):], " ")
	}
	switch GeneralizeError(errMsg) {
	case "no such file", "not found":
		return "The path or command did not exist; the fix points at the right one"
	}
	return ""
}

// GetErrorFixes returns learned fixes for errMsg, most successful first.
// When failedCmd is non-empty only fixes for its normalized shape match.
func (m *Model) GetErrorFixes(errMsg, failedCmd string) []ErrorFix {
	errPattern := GeneralizeError(errMsg)
	cmdPattern := ""
	if failedCmd != "" {
		cmdPattern = Normalize(failedCmd)
	}

	var out []ErrorFix
	for _, f := range m.ErrorFixes {
		if f.ErrorPattern != errPattern {
			continue
		}
		if cmdPattern != "" && f.CommandPattern != cmdPattern {
			continue
		}
		out = append(out, f)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SuccessCount > out[j].SuccessCount
	})
	return out
}

// ExplainError describes how to resolve errMsg from learned fixes, falling
// back to the suggested fix of a matching error pattern.
func (m *Model) ExplainError(errMsg string) (string, bool) {
	if fixes := m.GetErrorFixes(errMsg, ""); len(fixes) > 0 {
		best := fixes[0]
		if best.Explanation != "" {
			return fmt.Sprintf("%s. Try: %s", best.Explanation, best.FixCommand), true
		}
		return "Previously fixed with: " + best.FixCommand, true
	}

	errPattern := GeneralizeError(errMsg)
	var best *ErrorPattern
	for i := range m.ErrorPatterns {
		p := &m.ErrorPatterns[i]
		if p.ErrorPattern != errPattern || p.SuggestedFix == "" {
			continue
		}
		if best == nil || p.Frequency > best.Frequency {
			best = p
		}
	}
	if best == nil {
		return "", false
	}
	return fmt.Sprintf("Seen %q fail this way before. Try: %s", best.CommandPattern, best.SuggestedFix), true
}
