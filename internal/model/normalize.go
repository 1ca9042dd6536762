package model

import (
	"path"
	"sort"
	"strings"
)

// Argument placeholders used in normalized commands.
const (
	PlaceholderPath = "<path>"
	PlaceholderArg  = "<arg>"
)

// subcommandTools keep their first positional argument verbatim, so
// "git add" and "git commit" stay distinct patterns.
var subcommandTools = map[string]bool{
	"git": true, "docker": true, "docker-compose": true, "podman": true,
	"kubectl": true, "helm": true, "npm": true, "yarn": true, "pnpm": true,
	"cargo": true, "go": true, "brew": true, "apt": true, "apt-get": true,
	"dnf": true, "systemctl": true, "pip": true, "pip3": true, "poetry": true,
	"make": true, "terraform": true, "gh": true, "bundle": true, "rails": true,
	"mvn": true, "gradle": true, "rustup": true, "uv": true,
}

// Normalize reduces a command to its verb plus a generalized argument
// shape. Flags are kept verbatim, path-like or dotted arguments become
// <path> and other arguments become <arg>. Normalize is deterministic and
// Normalize(Normalize(s)) == Normalize(s).
func Normalize(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}

	out := make([]string, 0, len(fields))
	i := 0
	for i < len(fields) && fields[i] == "sudo" {
		out = append(out, fields[i])
		i++
	}
	if i == len(fields) {
		return strings.Join(out, " ")
	}

	verb := fields[i]
	out = append(out, verb)
	i++
	if subcommandTools[verb] && i < len(fields) && isSubcommand(fields[i]) {
		out = append(out, fields[i])
		i++
	}

	for ; i < len(fields); i++ {
		out = append(out, generalize(fields[i]))
	}
	return strings.Join(out, " ")
}

func generalize(tok string) string {
	if tok == PlaceholderPath || tok == PlaceholderArg {
		return tok
	}
	if strings.HasPrefix(tok, "-") {
		name, value, ok := strings.Cut(tok, "=")
		if !ok {
			return tok
		}
		return name + "=" + generalize(value)
	}
	if isPathLike(tok) {
		return PlaceholderPath
	}
	return PlaceholderArg
}

func isPathLike(tok string) bool {
	return strings.Contains(tok, "/") ||
		strings.HasPrefix(tok, "~") ||
		strings.HasPrefix(tok, ".") ||
		strings.Contains(tok, ".")
}

func isSubcommand(tok string) bool {
	if tok == "" || tok[0] < 'a' || tok[0] > 'z' {
		return false
	}
	for _, r := range tok {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' && r != '_' {
			return false
		}
	}
	return true
}

// BaseCommand returns the first token of a command.
func BaseCommand(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// ProjectKey derives a project identifier from a working directory: the
// first two components below the home directory, or the first two
// components of the path otherwise. Home prefixes are matched by shape so
// anonymized paths (/home/<USER>/...) produce the same keys.
func ProjectKey(dir string) string {
	parts := splitPath(dir)
	switch {
	case len(parts) >= 2 && (parts[0] == "home" || parts[0] == "Users"):
		parts = parts[2:]
	case len(parts) >= 1 && (parts[0] == "root" || parts[0] == "~"):
		parts = parts[1:]
	}
	if len(parts) == 0 {
		return ""
	}
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return strings.Join(parts, "/")
}

// DirectoryKey is the last two components of a working directory.
func DirectoryKey(dir string) string {
	parts := splitPath(dir)
	if len(parts) > 2 {
		parts = parts[len(parts)-2:]
	}
	return strings.Join(parts, "/")
}

func splitPath(dir string) []string {
	dir = strings.ReplaceAll(strings.TrimSpace(dir), `\`, "/")
	if dir == "" {
		return nil
	}
	dir = path.Clean(dir)
	var parts []string
	for _, p := range strings.Split(dir, "/") {
		if p != "" && p != "." {
			parts = append(parts, p)
		}
	}
	return parts
}

// topCounts ranks a count map, highest first, ties by command.
func topCounts(counts map[string]float64, n int) []CommandCount {
	list := make([]CommandCount, 0, len(counts))
	for cmd, c := range counts {
		list = append(list, CommandCount{Command: cmd, Count: c})
	}
	sortCounts(list)
	if n > 0 && len(list) > n {
		list = list[:n]
	}
	return list
}

func sortCounts(list []CommandCount) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Count != list[j].Count {
			return list[i].Count > list[j].Count
		}
		return list[i].Command < list[j].Command
	})
}

// trimCounts drops the lowest entries of a count map beyond n, never
// dropping keep.
func trimCounts(counts map[string]float64, n int, keep string) {
	if len(counts) <= n {
		return
	}
	ranked := topCounts(counts, 0)
	for i := len(ranked) - 1; i >= 0 && len(counts) > n; i-- {
		if ranked[i].Command != keep {
			delete(counts, ranked[i].Command)
		}
	}
}
