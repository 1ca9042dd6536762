package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/blackwell-systems/termlearn/internal/config"
	"github.com/blackwell-systems/termlearn/internal/event"
	"github.com/blackwell-systems/termlearn/internal/learning"
	"github.com/blackwell-systems/termlearn/internal/shellhist"
	"github.com/blackwell-systems/termlearn/internal/store"
	"github.com/blackwell-systems/termlearn/internal/watcher"
)

var (
	watchDaemon   bool
	watchInterval time.Duration
	watchStop     bool
	watchQuiet    bool
	watchFile     string
	watchFormat   string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow shell history and train on a schedule",
	Long: `Run a monitor that follows your shell history file, records every new
command through the privacy filter and trains the model on a schedule
(watch.train_schedule, default every 30 minutes). Old journals and training
runs are cleaned up on watch.cleanup_schedule.

Examples:
  termlearn watch                      # run in foreground (ctrl-c to stop)
  termlearn watch --daemon             # run in background, write PID file
  termlearn watch --interval 10s       # poll the history file every 10 seconds
  termlearn watch --stop               # stop the background daemon`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchDaemon, "daemon", false, "Run in background mode (write PID file, log to file)")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 0, "Poll interval (default: watch.interval from config)")
	watchCmd.Flags().BoolVar(&watchStop, "stop", false, "Stop a running background daemon")
	watchCmd.Flags().BoolVar(&watchQuiet, "quiet", false, "Suppress terminal output, only send notifications")
	watchCmd.Flags().StringVar(&watchFile, "file", "", "History file to follow (default: $HISTFILE, ~/.zsh_history or ~/.bash_history)")
	watchCmd.Flags().StringVar(&watchFormat, "format", "", "History format: bash or zsh (default: detect)")
	rootCmd.AddCommand(watchCmd)
}

// pidFilePath returns the path to the daemon PID file.
func pidFilePath() string {
	return filepath.Join(config.ConfigDir(), "watch.pid")
}

// logFilePath returns the path to the daemon log file.
func logFilePath() string {
	return filepath.Join(config.ConfigDir(), "watch.log")
}

func runWatch(cmd *cobra.Command, args []string) error {
	if watchStop {
		return stopDaemon(cmd.OutOrStdout())
	}

	var format shellhist.Format
	if watchFormat != "" {
		f, err := shellhist.ParseFormat(watchFormat)
		if err != nil {
			return err
		}
		format = f
	}
	if watchInterval != 0 && watchInterval < time.Second {
		return fmt.Errorf("interval must be at least 1s, got %s", watchInterval)
	}

	e, err := openEnv(envOptions{withStore: true})
	if err != nil {
		return err
	}
	defer func() { _ = e.close() }()
	if err := e.requireRunning(); err != nil {
		return err
	}

	path := historyPath(e.cfg)
	if path == "" {
		return errors.New("no shell history file found; set watch.history_file or pass --file")
	}
	interval := e.cfg.Watch.Interval
	if watchInterval > 0 {
		interval = watchInterval
	}

	if watchDaemon {
		return runDaemon(e, path, format, interval)
	}
	return runForeground(cmd.OutOrStdout(), e, path, format, interval)
}

// historyPath picks the file to follow: the flag, then config, then the
// first default history file that exists.
func historyPath(cfg *config.Config) string {
	if watchFile != "" {
		return watchFile
	}
	if cfg.Watch.HistoryFile != "" {
		return cfg.Watch.HistoryFile
	}
	if files := shellhist.DefaultFiles(); len(files) > 0 {
		return files[0]
	}
	return ""
}

// session serializes every use of the learning system between the history
// watcher and the scheduled jobs.
type session struct {
	mu      sync.Mutex
	sys     *learning.System
	db      *store.DB
	maxAge  int
	logger  *zap.Logger
	report  func(format string, args ...any)
	now     func() time.Time
	counter int
}

func newSession(e *env, report func(format string, args ...any)) *session {
	return &session{
		sys:    e.sys,
		db:     e.db,
		maxAge: e.cfg.Learning.MaxDataAgeDays,
		logger: e.logger,
		report: report,
		now:    time.Now,
	}
}

// record feeds new history entries to the learning system.
func (s *session) record(entries []shellhist.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range shellhist.Events(entries, s.now()) {
		if c, ok := ev.(*event.CommandEvent); ok {
			s.sys.RecordCommandEvent(*c)
			s.counter++
		}
	}
	s.logger.Debug("recorded history entries", zap.Int("count", len(entries)))
}

// train runs one scheduled training pass.
func (s *session) train() {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats, err := s.sys.Train()
	if err != nil {
		s.logger.Warn("scheduled training failed", zap.Error(err))
		s.report("training failed: %v", err)
		return
	}
	if stats.EventsProcessed == 0 {
		s.logger.Debug("scheduled training skipped, too few new events")
		return
	}
	s.report("trained on %d events (%d new, %d updated, %d pruned patterns)",
		stats.EventsProcessed, stats.NewPatterns, stats.UpdatedPatterns, stats.PrunedPatterns)
}

// cleanup applies the retention window to journals and training runs.
func (s *session) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.sys.CleanupOldData(); err != nil {
		s.logger.Warn("journal cleanup failed", zap.Error(err))
	}
	if s.db == nil || s.maxAge <= 0 {
		return
	}
	n, err := s.db.PruneRunsBefore(s.now().AddDate(0, 0, -s.maxAge))
	if err != nil {
		s.logger.Warn("pruning training runs failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.report("pruned %d old training runs", n)
	}
}

// schedule registers the training and cleanup jobs.
func (s *session) schedule(cfg config.Watch) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(cfg.TrainSchedule, s.train); err != nil {
		return nil, fmt.Errorf("watch.train_schedule: %w", err)
	}
	if _, err := c.AddFunc(cfg.CleanupSchedule, s.cleanup); err != nil {
		return nil, fmt.Errorf("watch.cleanup_schedule: %w", err)
	}
	return c, nil
}

// follow runs the history watcher and the scheduler until ctx is
// cancelled, then trains once more so nothing recorded is left unlearned.
func (s *session) follow(ctx context.Context, e *env, path string, format shellhist.Format, interval time.Duration, alertFn func(watcher.Alert)) error {
	c, err := s.schedule(e.cfg.Watch)
	if err != nil {
		return err
	}
	c.Start()
	defer func() { <-c.Stop().Done() }()

	w := watcher.New(path, format, interval, s.record,
		watcher.WithAlertFunc(alertFn),
		watcher.WithLogger(e.logger),
	)
	err = w.Run(ctx)
	s.train()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runForeground runs the watcher in the foreground with live terminal output.
func runForeground(out io.Writer, e *env, path string, format shellhist.Format, interval time.Duration) error {
	ctx, cancel := signalContext()
	defer cancel()

	report := func(format string, args ...any) {
		if !watchQuiet {
			fmt.Fprintf(out, "[%s] %s %s\n", time.Now().Format("15:04:05"), checkMark(), fmt.Sprintf(format, args...))
		}
	}
	if !watchQuiet {
		fmt.Fprintf(out, "termlearn watching %s... (checking every %s)\n", path, interval)
	}

	alertFn := func(a watcher.Alert) {
		_ = watcher.Notify(a, io.Discard)
		if !watchQuiet {
			printAlert(out, a)
		}
	}

	s := newSession(e, report)
	if err := s.follow(ctx, e, path, format, interval, alertFn); err != nil {
		return err
	}
	if !watchQuiet {
		fmt.Fprintf(out, "\nStopped after recording %d commands.\n", s.counter)
	}
	return nil
}

// runDaemon sets up PID and log files, then runs the watcher. The actual
// backgrounding should be done by the caller (nohup, &, etc.) since Go
// cannot reliably fork.
func runDaemon(e *env, path string, format shellhist.Format, interval time.Duration) error {
	configDir := config.ConfigDir()
	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	if pid, err := readPID(); err == nil {
		if processExists(pid) {
			return fmt.Errorf("daemon already running (PID %d). Use --stop to stop it", pid)
		}
		_ = os.Remove(pidFilePath())
	}

	pid := os.Getpid()
	if err := os.WriteFile(pidFilePath(), []byte(strconv.Itoa(pid)), 0o600); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer func() { _ = os.Remove(pidFilePath()) }()

	logFile, err := os.OpenFile(logFilePath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer func() { _ = logFile.Close() }()

	ctx, cancel := signalContext()
	defer cancel()

	writeLog(logFile, "termlearn daemon started (PID %d, following %s every %s)", pid, path, interval)

	alertFn := func(a watcher.Alert) {
		_ = watcher.Notify(a, io.Discard)
		writeLog(logFile, "[%s] %s: %s", a.Level, a.Title, a.Message)
	}
	report := func(format string, args ...any) {
		writeLog(logFile, format, args...)
	}

	s := newSession(e, report)
	if err := s.follow(ctx, e, path, format, interval, alertFn); err != nil {
		writeLog(logFile, "daemon failed: %v", err)
		return err
	}
	writeLog(logFile, "daemon stopped")
	return nil
}

// signalContext is cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), shutdownSignals...)
}

// readPID reads the daemon PID from the PID file.
func readPID() (int, error) {
	data, err := os.ReadFile(pidFilePath())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

// writeLog writes a timestamped line to the log file.
func writeLog(w io.Writer, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	_, _ = fmt.Fprintf(w, "[%s] %s\n", timestamp, msg)
}

// printAlert formats and prints an alert to the terminal.
func printAlert(w io.Writer, a watcher.Alert) {
	timestamp := a.Time.Format("15:04:05")
	fmt.Fprintf(w, "[%s] %s %s\n", timestamp, alertIcon(a.Level), a.Title)
	if a.Message != "" {
		fmt.Fprintf(w, "         %s\n", a.Message)
	}
}

// alertIcon returns the terminal indicator for an alert level.
func alertIcon(level string) string {
	switch level {
	case watcher.LevelCritical:
		return "\xf0\x9f\x94\xb4" // red circle
	case watcher.LevelWarning:
		return "\xe2\x9a\xa0\xef\xb8\x8f" // warning sign
	case watcher.LevelInfo:
		return "\xe2\x9c\x93" // check mark
	default:
		return " "
	}
}

// checkMark returns a terminal check mark indicator.
func checkMark() string {
	return "\xe2\x9c\x93"
}
