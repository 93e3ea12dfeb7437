package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/ksyq12/nascert/internal/acme"
	"github.com/ksyq12/nascert/internal/lifecycle"
	"github.com/ksyq12/nascert/internal/logger"
	"github.com/ksyq12/nascert/internal/metrics"
	"github.com/ksyq12/nascert/internal/output"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Renew the certificate and install it",
	Long: `Renew the certificate for DOMAIN and *.DOMAIN and install it as the DSM
default certificate.

Steps:
  1. Snapshot the certificate stores into BACKUP_ROOT
  2. Install the ACME client (acme.sh only)
  3. Issue the certificate through a DNS-01 challenge
  4. Copy it into the default certificate and every service using it
  5. Reload the certificate registry, nginx and WebDAV

If a step after the snapshot fails, the snapshot is restored and services
are reloaded again.

Examples:
  nascert update
  nascert update --config /volume1/homes/admin/nascert/config --json`,
	Args: cobra.NoArgs,
	RunE: runUpdate,
}

func init() {
	rootCmd.AddCommand(updateCmd)
}

func runUpdate(cmd *cobra.Command, args []string) error {
	a, err := buildApp(true)
	if err != nil {
		return err
	}

	if !jsonOutput {
		output.Info("Renewing certificate for %s with %s", a.cfg.Domain, a.acquirer.Name())
	}

	o := a.orchestrator()
	if !jsonOutput {
		o.OnTransition(progress())
	}
	out, runErr := o.Update(cmd.Context(), request(a.cfg))
	recordMetrics(a, out)

	if runErr != nil {
		if jsonOutput {
			if err := output.JSON(newRunResult(a.cfg.Domain, out)); err != nil {
				logger.LogError(err, "Failed to write JSON result")
			}
		} else {
			output.Error("Update failed: %v", runErr)
			reportFailure(out, a.cfg.BackupRoot)
		}
		return runErr
	}

	if a.cfg.KeepSnapshots > 0 {
		pruned, err := a.snapshots.Prune(a.cfg.KeepSnapshots)
		if err != nil {
			output.Warn("Failed to prune snapshots: %v", err)
		} else if len(pruned) > 0 {
			logger.Info("Pruned %d old snapshots", len(pruned))
		}
	}

	if jsonOutput {
		return output.JSON(newRunResult(a.cfg.Domain, out))
	}
	output.Success("Certificate for %s installed", a.cfg.Domain)
	output.KeyValue([][2]string{
		{"Expires", formatTime(out.Expiry)},
		{"Snapshot", snapshotID(out)},
		{"Client", a.acquirer.Name()},
	})
	return nil
}

// stepTitles describes the states entered by an update
var stepTitles = map[string]string{
	lifecycle.StateBackedUp:         "Certificate stores backed up",
	lifecycle.StateToolInstalled:    "ACME client ready",
	lifecycle.StateIssued:           "Certificate issued",
	lifecycle.StateInstalled:        "Certificate installed",
	lifecycle.StateServicesReloaded: "Services reloaded",
	lifecycle.StateReverting:        "Restoring snapshot",
}

// progress prints a numbered line for each forward step
func progress() func(state string) {
	n := 0
	total := len(stepTitles) - 1
	return func(state string) {
		title, ok := stepTitles[state]
		if !ok {
			return
		}
		if state == lifecycle.StateReverting {
			output.Warn("%s", title)
			return
		}
		n++
		output.Step(n, total, "%s", title)
	}
}

// recordMetrics writes the textfile metrics when METRICS_FILE is set
func recordMetrics(a *app, out *lifecycle.Outcome) {
	if a.cfg.MetricsFile == "" {
		return
	}
	expiry := out.Expiry
	if !out.Succeeded() {
		expiry = installedExpiry(a)
	}
	rec := metrics.NewRecorder(a.cfg.Domain)
	rec.Observe(out.Finished, out.Succeeded(), expiry)
	if err := rec.WriteFile(a.cfg.MetricsFile); err != nil {
		output.Warn("Failed to write metrics: %v", err)
	}
}

// installedExpiry returns the NotAfter of the live default certificate, zero
// when it cannot be read
func installedExpiry(a *app) time.Time {
	id, err := a.installer.DefaultArchive()
	if err != nil {
		return time.Time{}
	}
	expiry, err := acme.NewBundle(a.cfg.Domain, a.installer.ArchiveDir(id)).Expiry()
	if err != nil {
		logger.Debug("Installed certificate expiry unknown: %v", err)
		return time.Time{}
	}
	return expiry
}
