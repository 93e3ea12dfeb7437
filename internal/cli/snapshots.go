package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ksyq12/nascert/internal/errors"
	"github.com/ksyq12/nascert/internal/input"
	"github.com/ksyq12/nascert/internal/output"
)

var (
	pruneKeep  int
	forcePrune bool
)

var snapshotsCmd = &cobra.Command{
	Use:     "snapshots",
	Aliases: []string{"snapshot"},
	Short:   "Manage certificate snapshots",
}

var snapshotsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List snapshots, newest first",
	Long: `List the snapshots in BACKUP_ROOT, newest first. The latest snapshot,
the one restored by a plain revert, is marked with *.

Examples:
  nascert snapshots list
  nascert snapshots ls --json`,
	Args: cobra.NoArgs,
	RunE: runSnapshotsList,
}

var snapshotsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove old snapshots",
	Long: `Remove all but the newest --keep snapshots. The latest snapshot is
never removed.

Examples:
  nascert snapshots prune --keep 5
  nascert snapshots prune --keep 1 --force`,
	Args: cobra.NoArgs,
	RunE: runSnapshotsPrune,
}

func init() {
	snapshotsPruneCmd.Flags().IntVar(&pruneKeep, "keep", 5, "Number of snapshots to keep")
	snapshotsPruneCmd.Flags().BoolVarP(&forcePrune, "force", "f", false, "Prune without confirmation")

	snapshotsCmd.AddCommand(snapshotsListCmd)
	snapshotsCmd.AddCommand(snapshotsPruneCmd)
	rootCmd.AddCommand(snapshotsCmd)
}

// SnapshotInfo is the JSON form of a snapshot
type SnapshotInfo struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
	Domain    string `json:"domain,omitempty"`
	Files     int    `json:"files"`
	Latest    bool   `json:"latest"`
	Path      string `json:"path"`
}

func runSnapshotsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	mgr := newSnapshotManager(cfg)
	snaps, err := mgr.List()
	if err != nil {
		return err
	}
	latest, _ := mgr.Latest()

	infos := make([]SnapshotInfo, 0, len(snaps))
	for _, s := range snaps {
		infos = append(infos, SnapshotInfo{
			ID:        s.ID,
			CreatedAt: s.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			Domain:    s.Domain,
			Files:     s.Files(),
			Latest:    s.ID == latest,
			Path:      s.Dir,
		})
	}

	if jsonOutput {
		return output.JSON(infos)
	}

	if len(snaps) == 0 {
		output.Info("No snapshots in %s", cfg.BackupRoot)
		return nil
	}

	headers := []string{"ID", "CREATED", "DOMAIN", "STORES"}
	rows := make([][]string, 0, len(snaps))
	for _, s := range snaps {
		id := s.ID
		if s.ID == latest {
			id += " *"
		}
		rows = append(rows, []string{id, formatTime(s.CreatedAt), s.Domain, describe(s)})
	}
	output.Table(headers, rows)
	return nil
}

func runSnapshotsPrune(cmd *cobra.Command, args []string) error {
	if pruneKeep < 1 {
		return errors.Validationf("--keep must be at least 1, got %d", pruneKeep)
	}

	if err := requireRoot(); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	mgr := newSnapshotManager(cfg)

	if !forcePrune {
		output.Print("Remove all but the newest %d snapshots in %s? [y/N]: ", pruneKeep, cfg.BackupRoot)
		if !input.Confirm(deps.StdinReader) {
			output.Info("Prune cancelled")
			return nil
		}
	}

	pruned, err := mgr.Prune(pruneKeep)
	if err != nil {
		return err
	}

	return outputResult(
		map[string]interface{}{
			"success": true,
			"pruned":  pruned,
		},
		"%s", pruneMessage(len(pruned)),
	)
}

func pruneMessage(n int) string {
	switch n {
	case 0:
		return "Nothing to prune"
	case 1:
		return "Pruned 1 snapshot"
	}
	return fmt.Sprintf("Pruned %d snapshots", n)
}
