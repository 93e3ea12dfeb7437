package cli

import (
	"github.com/spf13/cobra"

	"github.com/ksyq12/nascert/internal/logger"
	"github.com/ksyq12/nascert/internal/output"
)

var revertCmd = &cobra.Command{
	Use:   "revert [snapshot-id]",
	Short: "Restore a certificate snapshot",
	Long: `Restore the certificate stores from a snapshot and reload services.
Without an id the latest snapshot is restored.

Examples:
  nascert revert
  nascert revert 20261019-103045`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRevert,
}

func init() {
	rootCmd.AddCommand(revertCmd)
}

func runRevert(cmd *cobra.Command, args []string) error {
	id := ""
	if len(args) == 1 {
		id = args[0]
	}

	a, err := buildApp(false)
	if err != nil {
		return err
	}

	out, runErr := a.orchestrator().Revert(cmd.Context(), id)
	if runErr != nil {
		if jsonOutput {
			if err := output.JSON(newRunResult(a.cfg.Domain, out)); err != nil {
				logger.LogError(err, "Failed to write JSON result")
			}
		} else {
			output.Error("Revert failed: %v", runErr)
			if out.ReloadErr != nil {
				output.Warn("Snapshot %s restored but services did not reload", snapshotID(out))
			}
		}
		return runErr
	}

	return outputResult(newRunResult(a.cfg.Domain, out),
		"Snapshot %s restored", snapshotID(out))
}
