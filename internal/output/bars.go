package output

import (
	"fmt"
	"strings"
)

// ConfidenceBar renders a confidence in [0, 1] as a bar and percentage.
// Example: "████████░░ 80%"
func ConfidenceBar(confidence float64, width int) string {
	if width <= 0 {
		width = 10
	}
	switch {
	case confidence < 0:
		confidence = 0
	case confidence > 1:
		confidence = 1
	}
	filled := int(confidence*float64(width) + 0.5)
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)

	style := StyleError
	switch {
	case confidence >= 0.7:
		style = StyleSuccess
	case confidence >= 0.4:
		style = StyleWarning
	}
	return fmt.Sprintf("%s %s", style.Render(bar), StyleMuted.Render(fmt.Sprintf("%3.0f%%", confidence*100)))
}

// TrendArrow returns a styled indicator for a change in a count.
// Growth is shown as good when higherIsBetter.
func TrendArrow(delta float64, higherIsBetter bool) string {
	if delta == 0 {
		return StyleMuted.Render("─")
	}

	isPositive := delta > 0
	isImproved := isPositive == higherIsBetter

	var arrow string
	if isPositive {
		arrow = fmt.Sprintf("▲ +%.0f", delta)
	} else {
		arrow = fmt.Sprintf("▼ %.0f", delta)
	}

	if isImproved {
		return StyleSuccess.Render(arrow)
	}
	return StyleError.Render(arrow)
}

// Section renders a styled section header with a horizontal rule of the
// given width.
func Section(title string, width int) string {
	if width <= 0 {
		width = 66
	}
	header := StyleHeader.Render(title)
	rule := StyleMuted.Render(strings.Repeat("─", width))
	return fmt.Sprintf("\n %s\n %s", header, rule)
}

// Truncate shortens s to at most n runes, marking the cut with "…".
func Truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}
