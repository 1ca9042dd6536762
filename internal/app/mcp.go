package app

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/termlearn/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run an MCP stdio server for coding assistants",
	Long: `Start a Model Context Protocol stdio server that a coding assistant can
query during a session. The server exposes these tools:

  suggest_next_command  Rank likely next commands
  explain_error         Return a learned fix for an error
  predict_command       Map a description or prefix to commands
  record_interaction    Record a query and response (redacted)
  record_error          Record an error and its command (redacted)
  learning_stats        Model version and table sizes

Example MCP configuration:
  {"mcpServers":{"termlearn":{"command":"termlearn","args":["mcp"]}}}`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	e, err := openEnv(envOptions{})
	if err != nil {
		return err
	}
	if err := e.requireRunning(); err != nil {
		_ = e.close()
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	srv := mcp.NewServer(e.sys, appVersion, mcp.WithLogger(e.logger))
	runErr := srv.Run(ctx, os.Stdin, cmd.OutOrStdout())
	if err := e.close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
