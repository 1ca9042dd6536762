package app

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blackwell-systems/termlearn/internal/output"
)

var deleteYes bool

var exportCmd = &cobra.Command{
	Use:   "export <path>",
	Short: "Export collected events as JSONL",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete all collected data and the model",
	Long: `Remove every journal file and the learned model. The training history in
the database is kept. Asks for confirmation unless --yes is given.`,
	Args: cobra.NoArgs,
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().BoolVar(&deleteYes, "yes", false, "Do not ask for confirmation")
	rootCmd.AddCommand(exportCmd, deleteCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	e, err := openEnv(envOptions{})
	if err != nil {
		return err
	}
	exportErr := e.sys.ExportData(args[0])
	if err := e.close(); err != nil && exportErr == nil {
		exportErr = err
	}
	if exportErr != nil {
		return fmt.Errorf("exporting data: %w", exportErr)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s Exported events to %s\n", output.StyleSuccess.Render("✓"), args[0])
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if !deleteYes && !confirm(cmd.InOrStdin(), out, "Delete all collected data and the learned model?") {
		fmt.Fprintln(out, "Aborted.")
		return nil
	}

	e, err := openEnv(envOptions{})
	if err != nil {
		return err
	}
	deleteErr := e.sys.DeleteData()
	if err := e.close(); err != nil && deleteErr == nil {
		deleteErr = err
	}
	if deleteErr != nil {
		return fmt.Errorf("deleting data: %w", deleteErr)
	}
	fmt.Fprintf(out, "%s Deleted all learning data\n", output.StyleSuccess.Render("✓"))
	return nil
}

// confirm asks a yes/no question and reads the answer from in.
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N] ", question)
	answer, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
