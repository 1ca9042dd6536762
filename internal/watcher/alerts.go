package watcher

import "time"

// Alert levels.
const (
	LevelInfo     = "info"
	LevelWarning  = "warning"
	LevelCritical = "critical"
)

// Alert represents a notable event detected by the watcher.
type Alert struct {
	Level   string
	Title   string
	Message string
	Time    time.Time
}

func (a Alert) key() string {
	return a.Level + ":" + a.Title + ":" + a.Message
}

// dedup suppresses an alert identical to one raised in the previous cycle,
// until a cycle passes without it.
type dedup struct {
	last map[string]bool
}

func (d *dedup) filter(raw []Alert) []Alert {
	current := make(map[string]bool, len(raw))
	var out []Alert
	for _, a := range raw {
		k := a.key()
		current[k] = true
		if !d.last[k] {
			out = append(out, a)
		}
	}
	d.last = current
	return out
}
