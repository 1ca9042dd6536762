// Package output provides styled terminal rendering helpers for termlearn.
package output

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Color constants for consistent styling across the CLI.
var (
	// ColorPrimary is used for headers and emphasis.
	ColorPrimary = lipgloss.Color("#64b5f6")

	// ColorSuccess is used for high confidence and growth.
	ColorSuccess = lipgloss.Color("#66bb6a")

	// ColorError is used for low confidence and shrinkage.
	ColorError = lipgloss.Color("#ef5350")

	// ColorWarning is used for middling confidence.
	ColorWarning = lipgloss.Color("#fff59d")

	// ColorMuted is used for secondary text and borders.
	ColorMuted = lipgloss.Color("#888888")
)

// Styles provides reusable lipgloss styles.
var (
	StyleHeader  lipgloss.Style
	StyleSuccess lipgloss.Style
	StyleError   lipgloss.Style
	StyleWarning lipgloss.Style
	StyleMuted   lipgloss.Style
	StyleBold    lipgloss.Style
	StyleLabel   lipgloss.Style
	StyleValue   lipgloss.Style
)

func init() {
	applyStyles(false)
}

// noColor tracks whether color output is disabled.
var noColor bool

func applyStyles(plain bool) {
	style := func() lipgloss.Style { return lipgloss.NewStyle() }
	fg := func(c lipgloss.Color) lipgloss.Style {
		if plain {
			return style()
		}
		return style().Foreground(c)
	}
	bold := func(s lipgloss.Style) lipgloss.Style {
		if plain {
			return s
		}
		return s.Bold(true)
	}

	StyleHeader = bold(fg(ColorPrimary))
	StyleSuccess = fg(ColorSuccess)
	StyleError = fg(ColorError)
	StyleWarning = fg(ColorWarning)
	StyleMuted = fg(ColorMuted)
	StyleBold = bold(style())
	StyleLabel = style().Width(24)
	StyleValue = bold(style()).Width(12)
}

// SetNoColor disables or re-enables color output globally.
func SetNoColor(disabled bool) {
	noColor = disabled
	applyStyles(disabled)
}

// IsNoColor returns whether color output is currently disabled.
func IsNoColor() bool {
	return noColor
}

// ColorWanted reports whether output to f should be colored: color must be
// enabled in config, NO_COLOR unset, and f a terminal.
func ColorWanted(enabled bool, f *os.File) bool {
	if !enabled || os.Getenv("NO_COLOR") != "" || f == nil {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
