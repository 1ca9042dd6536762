// Package logging builds the process logger.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the level, destination and encoding of log output.
type Config struct {
	Level string `mapstructure:"level" json:"level"`
	File  string `mapstructure:"file" json:"file"`
	JSON  bool   `mapstructure:"json" json:"json"`
}

// DefaultConfig logs warnings and above to stderr in console format.
func DefaultConfig() Config {
	return Config{Level: "warn"}
}

// Validate checks that the level name is known.
func (c Config) Validate() error {
	if _, err := ParseLevel(c.Level); err != nil {
		return err
	}
	return nil
}

// ParseLevel parses a level name; empty means warn.
func ParseLevel(name string) (zapcore.Level, error) {
	if name == "" {
		return zapcore.WarnLevel, nil
	}
	lvl, err := zapcore.ParseLevel(name)
	if err != nil {
		return lvl, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}

// New builds a logger from cfg. Verbose forces debug level.
func New(cfg Config, verbose bool) (*zap.Logger, error) {
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if verbose {
		lvl = zapcore.DebugLevel
	}

	var zc zap.Config
	if cfg.JSON {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
		zc.DisableStacktrace = true
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.OutputPaths = []string{"stderr"}
	if cfg.File != "" {
		zc.OutputPaths = []string{cfg.File}
	}
	zc.ErrorOutputPaths = []string{"stderr"}

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return logger, nil
}
