// Package config provides configuration loading and defaults for termlearn.
package config

import "time"

// DefaultConfigDir is the default location for termlearn configuration.
const DefaultConfigDir = "~/.config/termlearn"

// DefaultConfigFile is the filename for the YAML config.
const DefaultConfigFile = "config.yaml"

// DefaultDBName is the filename for the SQLite history database.
const DefaultDBName = "termlearn.db"

// DefaultDataDir holds journals and the model.
const DefaultDataDir = "~/.local/share/termlearn/learning"

// EnvPrefix prefixes environment overrides, e.g. TERMLEARN_LEARNING_ENABLED.
const EnvPrefix = "TERMLEARN"

// DefaultOutput holds the default output preferences.
var DefaultOutput = Output{
	Color: true,
	Width: 80,
}

// DefaultWatch polls history every 30 seconds, trains every half hour and
// applies retention daily.
var DefaultWatch = Watch{
	Interval:        30 * time.Second,
	TrainSchedule:   "@every 30m",
	CleanupSchedule: "@daily",
}
