package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/blackwell-systems/termlearn/internal/learning"
	"github.com/blackwell-systems/termlearn/internal/logging"
	"github.com/blackwell-systems/termlearn/internal/privacy"
)

// Config is the top-level termlearn configuration.
type Config struct {
	Learning learning.Config `mapstructure:"learning"`
	Log      logging.Config  `mapstructure:"log"`
	Output   Output          `mapstructure:"output"`
	Watch    Watch           `mapstructure:"watch"`
	Store    Store           `mapstructure:"store"`
}

// Output defines output preferences.
type Output struct {
	Color bool `mapstructure:"color"`
	Width int  `mapstructure:"width"`
}

// Watch configures the history watcher daemon.
type Watch struct {
	HistoryFile     string        `mapstructure:"history_file"`
	Interval        time.Duration `mapstructure:"interval"`
	TrainSchedule   string        `mapstructure:"train_schedule"`
	CleanupSchedule string        `mapstructure:"cleanup_schedule"`
}

// Store locates the training history database.
type Store struct {
	Path string `mapstructure:"path"`
}

// expandPath replaces a leading ~ with the user's home directory.
func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
	}
	return path
}

func setDefaults(v *viper.Viper) {
	l := learning.DefaultConfig()
	v.SetDefault("learning.enabled", l.Enabled)
	v.SetDefault("learning.data_dir", DefaultDataDir)
	v.SetDefault("learning.max_data_age_days", l.MaxDataAgeDays)

	c := l.Collector
	v.SetDefault("learning.collector.collect_commands", c.CollectCommands)
	v.SetDefault("learning.collector.collect_outputs", c.CollectOutputs)
	v.SetDefault("learning.collector.collect_ai_interactions", c.CollectAIInteractions)
	v.SetDefault("learning.collector.collect_errors", c.CollectErrors)
	v.SetDefault("learning.collector.max_memory_events", c.MaxMemoryEvents)
	v.SetDefault("learning.collector.flush_threshold", c.FlushThreshold)

	p := l.Privacy
	v.SetDefault("learning.privacy.filter_passwords", p.FilterPasswords)
	v.SetDefault("learning.privacy.filter_tokens", p.FilterTokens)
	v.SetDefault("learning.privacy.filter_ssh_keys", p.FilterSSHKeys)
	v.SetDefault("learning.privacy.filter_ip_addresses", p.FilterIPAddresses)
	v.SetDefault("learning.privacy.filter_emails", p.FilterEmails)
	v.SetDefault("learning.privacy.anonymize_username", p.AnonymizeUsername)
	v.SetDefault("learning.privacy.anonymize_hostname", p.AnonymizeHostname)
	v.SetDefault("learning.privacy.custom_patterns", []string{})
	v.SetDefault("learning.privacy.sensitive_dirs", p.SensitiveDirs)

	t := l.Trainer
	v.SetDefault("learning.trainer.min_events", t.MinEvents)
	v.SetDefault("learning.trainer.learning_rate", t.LearningRate)
	v.SetDefault("learning.trainer.decay_rate", t.DecayRate)
	v.SetDefault("learning.trainer.max_sequence_length", t.MaxSequenceLength)
	v.SetDefault("learning.trainer.min_pattern_occurrences", t.MinPatternOccurrences)
	v.SetDefault("learning.trainer.enable_time_patterns", t.EnableTimePatterns)
	v.SetDefault("learning.trainer.enable_project_patterns", t.EnableProjectPatterns)
	v.SetDefault("learning.trainer.enable_error_learning", t.EnableErrorLearning)
	v.SetDefault("learning.trainer.enable_ngram_learning", t.EnableNGramLearning)
	v.SetDefault("learning.trainer.enable_directory_patterns", t.EnableDirectoryPatterns)
	v.SetDefault("learning.trainer.enable_error_fix_learning", t.EnableErrorFixLearning)
	v.SetDefault("learning.trainer.enable_intent_learning", t.EnableIntentLearning)

	lg := logging.DefaultConfig()
	v.SetDefault("log.level", lg.Level)
	v.SetDefault("log.file", lg.File)
	v.SetDefault("log.json", lg.JSON)

	v.SetDefault("output.color", DefaultOutput.Color)
	v.SetDefault("output.width", DefaultOutput.Width)

	v.SetDefault("watch.history_file", "")
	v.SetDefault("watch.interval", DefaultWatch.Interval)
	v.SetDefault("watch.train_schedule", DefaultWatch.TrainSchedule)
	v.SetDefault("watch.cleanup_schedule", DefaultWatch.CleanupSchedule)

	v.SetDefault("store.path", filepath.Join(DefaultConfigDir, DefaultDBName))
}

// Load reads configuration from the given path (or the default location),
// applies defaults and TERMLEARN_* environment overrides, and validates the
// result.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(expandPath(cfgFile))
	} else {
		v.AddConfigPath(expandPath(DefaultConfigDir))
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// A missing config file is not an error.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	cfg.Learning.DataDir = expandPath(cfg.Learning.DataDir)
	cfg.Store.Path = expandPath(cfg.Store.Path)
	cfg.Log.File = expandPath(cfg.Log.File)
	cfg.Watch.HistoryFile = expandPath(cfg.Watch.HistoryFile)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error

	if c.Learning.DataDir == "" {
		errs = append(errs, errors.New("learning.data_dir must be set"))
	}
	if c.Learning.MaxDataAgeDays < 0 {
		errs = append(errs, fmt.Errorf("learning.max_data_age_days must not be negative, got %d", c.Learning.MaxDataAgeDays))
	}
	if c.Learning.Collector.MaxMemoryEvents <= 0 {
		errs = append(errs, fmt.Errorf("learning.collector.max_memory_events must be positive, got %d", c.Learning.Collector.MaxMemoryEvents))
	}
	if c.Learning.Collector.FlushThreshold <= 0 {
		errs = append(errs, fmt.Errorf("learning.collector.flush_threshold must be positive, got %d", c.Learning.Collector.FlushThreshold))
	}
	if _, err := privacy.CompilePatterns(c.Learning.Privacy); err != nil {
		errs = append(errs, fmt.Errorf("learning.privacy: %w", err))
	}
	if err := c.Learning.Trainer.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("learning.trainer: %w", err))
	}
	if err := c.Log.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Output.Width <= 0 {
		errs = append(errs, fmt.Errorf("output.width must be positive, got %d", c.Output.Width))
	}
	if c.Watch.Interval <= 0 {
		errs = append(errs, fmt.Errorf("watch.interval must be positive, got %s", c.Watch.Interval))
	}
	for key, spec := range map[string]string{
		"watch.train_schedule":   c.Watch.TrainSchedule,
		"watch.cleanup_schedule": c.Watch.CleanupSchedule,
	} {
		if _, err := cron.ParseStandard(spec); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}

// DBPath returns the default SQLite database path.
func DBPath() string {
	return filepath.Join(expandPath(DefaultConfigDir), DefaultDBName)
}

// ConfigDir returns the expanded configuration directory.
func ConfigDir() string {
	return expandPath(DefaultConfigDir)
}
