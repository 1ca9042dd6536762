package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/termlearn/internal/event"
)

var (
	recordExit     int
	recordOutput   string
	recordDuration time.Duration
	recordDir      string

	recordQuery    string
	recordResponse string
	recordHelpful  bool

	recordFailedCommand string
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a command, assistant interaction or error",
	Long: `Record a single event into the local journal. Secrets, personal data and
sensitive paths are redacted before anything is written. Typically called
from a shell hook:

  termlearn record command --exit $? -- git push origin main
  termlearn record error --command "make" "undefined reference to foo"
  termlearn record interaction --query "list pods" --response "kubectl get pods" --helpful`,
}

var recordCommandCmd = &cobra.Command{
	Use:   "command -- <command line>",
	Short: "Record an executed command",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRecordCommand,
}

var recordInteractionCmd = &cobra.Command{
	Use:   "interaction",
	Short: "Record an assistant query and its response",
	Args:  cobra.NoArgs,
	RunE:  runRecordInteraction,
}

var recordErrorCmd = &cobra.Command{
	Use:   "error <error text>",
	Short: "Record an error message",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRecordError,
}

func init() {
	recordCommandCmd.Flags().IntVar(&recordExit, "exit", 0, "Exit code of the command")
	recordCommandCmd.Flags().StringVar(&recordOutput, "output", "", "Captured output of the command")
	recordCommandCmd.Flags().DurationVar(&recordDuration, "duration", 0, "How long the command ran (e.g. 1.2s)")
	recordCommandCmd.Flags().StringVar(&recordDir, "dir", "", "Working directory (default: current directory)")

	recordInteractionCmd.Flags().StringVar(&recordQuery, "query", "", "What was asked")
	recordInteractionCmd.Flags().StringVar(&recordResponse, "response", "", "What was answered")
	recordInteractionCmd.Flags().BoolVar(&recordHelpful, "helpful", false, "Mark the response as helpful")

	recordErrorCmd.Flags().StringVar(&recordFailedCommand, "command", "", "Command that produced the error")

	recordCmd.AddCommand(recordCommandCmd, recordInteractionCmd, recordErrorCmd)
	rootCmd.AddCommand(recordCmd)
}

func runRecordCommand(cmd *cobra.Command, args []string) error {
	e, err := openEnv(envOptions{})
	if err != nil {
		return err
	}

	dir := recordDir
	if dir == "" {
		dir, _ = os.Getwd()
	}
	e.sys.RecordCommandEvent(event.CommandEvent{
		Command:    strings.Join(args, " "),
		WorkingDir: dir,
		ExitCode:   recordExit,
		Output:     recordOutput,
		DurationMs: recordDuration.Milliseconds(),
	})
	return e.close()
}

func runRecordInteraction(cmd *cobra.Command, args []string) error {
	if strings.TrimSpace(recordQuery) == "" {
		return errors.New("--query is required")
	}
	e, err := openEnv(envOptions{})
	if err != nil {
		return err
	}
	e.sys.RecordAIInteraction(recordQuery, recordResponse, recordHelpful)
	return e.close()
}

func runRecordError(cmd *cobra.Command, args []string) error {
	e, err := openEnv(envOptions{})
	if err != nil {
		return err
	}
	e.sys.RecordError(strings.Join(args, " "), recordFailedCommand)
	if err := e.close(); err != nil {
		return fmt.Errorf("saving error event: %w", err)
	}
	return nil
}
